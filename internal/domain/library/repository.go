package library

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BookFilter narrows book lists; Search matches title, author or ISBN
type BookFilter struct {
	shared.Filter
	Category string
	Language string
}

// BookRepository persists the catalogue
type BookRepository interface {
	Create(ctx context.Context, b *Book) error
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*Book, error)
	List(ctx context.Context, filter BookFilter) ([]Book, int64, error)
}

// CopyRepository persists physical copies
type CopyRepository interface {
	Create(ctx context.Context, c *Copy) error
	Update(ctx context.Context, c *Copy) error
	FindByID(ctx context.Context, id uuid.UUID) (*Copy, error)
	ListByBook(ctx context.Context, bookID uuid.UUID) ([]Copy, error)
	CountByBook(ctx context.Context, bookID uuid.UUID) (int64, error)
	// FirstAvailable returns ErrNotFound when every copy is out
	FirstAvailable(ctx context.Context, bookID uuid.UUID) (*Copy, error)
}

// MemberFilter narrows member lists; Search matches name, number, email or TC number
type MemberFilter struct {
	shared.Filter
	MemberType MemberType
	Status     MemberStatus
}

// MemberRepository persists members
type MemberRepository interface {
	Create(ctx context.Context, m *Member) error
	Update(ctx context.Context, m *Member) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*Member, error)
	List(ctx context.Context, filter MemberFilter) ([]Member, int64, error)
	// LastNumber returns the highest member number starting with prefix,
	// or "" when there is none
	LastNumber(ctx context.Context, prefix string) (string, error)
}

// LoanFilter narrows loan lists
type LoanFilter struct {
	shared.Filter
	MemberID *uuid.UUID
	CopyID   *uuid.UUID
	Status   LoanStatus
	// DueBefore keeps open loans due before the date
	DueBefore *time.Time
}

// LoanRepository reads loans; writes go through Circulation
type LoanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Loan, error)
	List(ctx context.Context, filter LoanFilter) ([]Loan, int64, error)
	CountOpenByMember(ctx context.Context, memberID uuid.UUID) (int64, error)
	History(ctx context.Context, loanID uuid.UUID) ([]LoanHistory, error)
}

// ReservationFilter narrows reservation lists
type ReservationFilter struct {
	MemberID *uuid.UUID
	BookID   *uuid.UUID
	Status   ReservationStatus
}

// ReservationRepository persists reservations
type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error
	Update(ctx context.Context, r *Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	List(ctx context.Context, filter ReservationFilter) ([]Reservation, error)
	HasActive(ctx context.Context, memberID *uuid.UUID, bookID uuid.UUID) (bool, error)
	// Position is 1 + the active reservations of the book made earlier
	Position(ctx context.Context, r *Reservation) (int, error)
}

// FineFilter narrows fine lists
type FineFilter struct {
	MemberID *uuid.UUID
	Type     FineType
	IsPaid   *bool
}

// FineRepository persists fines
type FineRepository interface {
	Create(ctx context.Context, f *Fine) error
	FindByID(ctx context.Context, id uuid.UUID) (*Fine, error)
	List(ctx context.Context, filter FineFilter) ([]Fine, error)
}

// Change is a set of circulation writes applied atomically. Nil parts are
// skipped; Loan and Fine are inserted when NewLoan and NewFine are set and
// saved otherwise.
type Change struct {
	Loan        *Loan
	NewLoan     bool
	Copy        *Copy
	History     *LoanHistory
	Fine        *Fine
	NewFine     bool
	Reservation *Reservation
}

// Circulation applies loan, copy, history, fine and reservation changes in
// one transaction
type Circulation interface {
	Apply(ctx context.Context, change Change) error
}

// Statistics summarises the library
type Statistics struct {
	Books            int64                `json:"books"`
	Copies           int64                `json:"copies"`
	CopiesByStatus   map[CopyStatus]int64 `json:"copies_by_status"`
	Members          int64                `json:"members"`
	MembersByType    map[MemberType]int64 `json:"members_by_type"`
	ActiveLoans      int64                `json:"active_loans"`
	OverdueLoans     int64                `json:"overdue_loans"`
	UnpaidFines      int64                `json:"unpaid_fines"`
	UnpaidFinesTotal decimal.Decimal      `json:"unpaid_fines_total"`
}

// StatisticsRepository computes library statistics
type StatisticsRepository interface {
	Statistics(ctx context.Context) (*Statistics, error)
}
