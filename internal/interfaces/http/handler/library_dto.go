package handler

import (
	"time"

	"github.com/google/uuid"
	libraryapp "github.com/municipal/backoffice/internal/application/library"
	"github.com/municipal/backoffice/internal/domain/library"
	"github.com/shopspring/decimal"
)

// BookRequest is the body of POST and PUT /library/books
type BookRequest struct {
	ISBN          string `json:"isbn" binding:"required,isbn13"`
	Title         string `json:"title" binding:"required,max=300"`
	Author        string `json:"author" binding:"required,max=200"`
	Publisher     string `json:"publisher" binding:"max=200"`
	PublishYear   int    `json:"publish_year" binding:"omitempty,min=1000"`
	Category      string `json:"category" binding:"max=100"`
	Language      string `json:"language" binding:"max=10"`
	PageCount     int    `json:"page_count" binding:"min=0"`
	Description   string `json:"description"`
	ShelfLocation string `json:"shelf_location" binding:"max=50"`
}

func (r BookRequest) details() library.BookDetails {
	return library.BookDetails{
		ISBN:          r.ISBN,
		Title:         r.Title,
		Author:        r.Author,
		Publisher:     r.Publisher,
		PublishYear:   r.PublishYear,
		Category:      r.Category,
		Language:      r.Language,
		PageCount:     r.PageCount,
		Description:   r.Description,
		ShelfLocation: r.ShelfLocation,
	}
}

// BookListRequest holds the book search query
type BookListRequest struct {
	Search   string `form:"search" binding:"max=100"`
	Category string `form:"category" binding:"max=100"`
	Language string `form:"language" binding:"max=10"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// CopyRequest is the body of POST /library/books/{id}/copies
type CopyRequest struct {
	Condition    string `json:"condition" binding:"max=500"`
	AcquiredDate string `json:"acquired_date" binding:"omitempty,datetime=2006-01-02"`
}

// CopyStatusRequest is the body of PUT /library/copies/{id}/status
type CopyStatusRequest struct {
	Status    string `json:"status" binding:"required,oneof=AVAILABLE RESERVED LOST DAMAGED MAINTENANCE"`
	Condition string `json:"condition" binding:"max=500"`
}

// MemberRequest is the body of POST and PUT /library/members
type MemberRequest struct {
	FirstName  string `json:"first_name" binding:"required,max=100"`
	LastName   string `json:"last_name" binding:"required,max=100"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"max=15"`
	TCNo       string `json:"tc_no" binding:"required,national_id"`
	Address    string `json:"address"`
	BirthDate  string `json:"birth_date" binding:"omitempty,datetime=2006-01-02"`
	MemberType string `json:"member_type" binding:"omitempty,oneof=STUDENT TEACHER STAFF PUBLIC"`
	Status     string `json:"status" binding:"omitempty,oneof=ACTIVE SUSPENDED EXPIRED BLOCKED"`
	ExpiryDate string `json:"expiry_date" binding:"omitempty,datetime=2006-01-02"`
}

func (r MemberRequest) details() (library.MemberDetails, error) {
	birth, err := parseOptionalDate(r.BirthDate)
	if err != nil {
		return library.MemberDetails{}, err
	}
	var expiry time.Time
	if r.ExpiryDate != "" {
		if expiry, err = parseDate(r.ExpiryDate); err != nil {
			return library.MemberDetails{}, err
		}
	}
	return library.MemberDetails{
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email,
		Phone:      r.Phone,
		TCNo:       r.TCNo,
		Address:    r.Address,
		BirthDate:  birth,
		MemberType: library.MemberType(r.MemberType),
		Status:     library.MemberStatus(r.Status),
		ExpiryDate: expiry,
	}, nil
}

// MemberListRequest holds the member search query
type MemberListRequest struct {
	Search     string `form:"search" binding:"max=100"`
	MemberType string `form:"member_type" binding:"omitempty,oneof=STUDENT TEACHER STAFF PUBLIC"`
	Status     string `form:"status" binding:"omitempty,oneof=ACTIVE SUSPENDED EXPIRED BLOCKED"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy    string `form:"order_by"`
	OrderDir   string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// BorrowRequest is the body of POST /library/loans
type BorrowRequest struct {
	MemberID uuid.UUID `json:"member_id" binding:"required"`
	CopyID   uuid.UUID `json:"copy_id" binding:"required"`
	Notes    string    `json:"notes" binding:"max=500"`
}

// ReturnRequest is the optional body of POST /library/loans/{id}/return
type ReturnRequest struct {
	Notes string `json:"notes" binding:"max=500"`
}

// LoanListRequest holds the loan list query
type LoanListRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=BORROWED RETURNED OVERDUE LOST"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// ReservationRequest is the body of POST /library/reservations
type ReservationRequest struct {
	MemberID uuid.UUID `json:"member_id" binding:"required"`
	BookID   uuid.UUID `json:"book_id" binding:"required"`
}

// ReservationListRequest holds the reservation list query
type ReservationListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=ACTIVE FULFILLED CANCELLED EXPIRED"`
}

// FineRequest is the body of POST /library/fines
type FineRequest struct {
	MemberID uuid.UUID       `json:"member_id" binding:"required"`
	LoanID   *uuid.UUID      `json:"loan_id"`
	Type     string          `json:"fine_type" binding:"required,oneof=OVERDUE DAMAGE LOST OTHER"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason" binding:"max=500"`
}

func (r FineRequest) input() libraryapp.FineInput {
	return libraryapp.FineInput{
		MemberID: r.MemberID,
		LoanID:   r.LoanID,
		Type:     library.FineType(r.Type),
		Amount:   r.Amount,
		Reason:   r.Reason,
	}
}

// FineListRequest holds the fine list query
type FineListRequest struct {
	Type   string `form:"fine_type" binding:"omitempty,oneof=OVERDUE DAMAGE LOST OTHER"`
	IsPaid *bool  `form:"is_paid"`
}
