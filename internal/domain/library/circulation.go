package library

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Rules are the circulation settings of the library
type Rules struct {
	LoanPeriodDays        int
	FinePerDay            decimal.Decimal
	ReservationExpiryDays int
	MaxLoansPerMember     int
}

// DefaultRules returns a two week loan, 1.00 per overdue day, three day
// reservations and five open loans per member
func DefaultRules() Rules {
	return Rules{
		LoanPeriodDays:        14,
		FinePerDay:            decimal.NewFromInt(1),
		ReservationExpiryDays: 3,
		MaxLoansPerMember:     5,
	}
}

// LoanStatus is the state of a loan
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanReturned LoanStatus = "RETURNED"
	LoanOverdue  LoanStatus = "OVERDUE"
	LoanLost     LoanStatus = "LOST"
)

// IsOpen reports whether the book is still out
func (s LoanStatus) IsOpen() bool {
	return s == LoanBorrowed || s == LoanOverdue
}

// Loan is a copy lent to a member
type Loan struct {
	shared.BaseEntity
	MemberID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"member_id"`
	CopyID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"copy_id"`
	BorrowedDate time.Time       `gorm:"not null" json:"borrowed_date"`
	DueDate      time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	ReturnedDate *time.Time      `json:"returned_date,omitempty"`
	Status       LoanStatus      `gorm:"size:20;not null;index" json:"status"`
	FineAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"fine_amount"`
	FinePaid     bool            `gorm:"not null;default:false" json:"fine_paid"`
	Notes        string          `gorm:"type:text" json:"notes"`
}

// TableName returns the table name for GORM
func (Loan) TableName() string {
	return "library_loans"
}

// Borrow lends an available copy to a member who passed the eligibility check
func Borrow(member *Member, item *Copy, rules Rules, now time.Time, notes string) (*Loan, error) {
	if err := item.lend(); err != nil {
		return nil, err
	}
	return &Loan{
		BaseEntity:   shared.NewBaseEntity(),
		MemberID:     member.ID,
		CopyID:       item.ID,
		BorrowedDate: now,
		DueDate:      dateOf(now).AddDate(0, 0, rules.LoanPeriodDays),
		Status:       LoanBorrowed,
		FineAmount:   decimal.Zero,
		Notes:        strings.TrimSpace(notes),
	}, nil
}

// DaysOverdue counts whole days past the due date
func (l *Loan) DaysOverdue(now time.Time) int {
	today := dateOf(now)
	if !today.After(l.DueDate) {
		return 0
	}
	return int(today.Sub(l.DueDate).Hours() / 24)
}

// Refresh marks an open loan past its due date OVERDUE and recomputes the
// fine. It reports whether anything changed.
func (l *Loan) Refresh(rules Rules, now time.Time) bool {
	if !l.Status.IsOpen() {
		return false
	}
	days := l.DaysOverdue(now)
	if days == 0 {
		return false
	}
	fine := rules.FinePerDay.Mul(decimal.NewFromInt(int64(days)))
	if l.Status == LoanOverdue && l.FineAmount.Equal(fine) {
		return false
	}
	l.Status = LoanOverdue
	l.FineAmount = fine
	l.Touch()
	return true
}

// Return closes the loan and shelves the copy. When the loan is overdue an
// OVERDUE fine is returned for the member.
func (l *Loan) Return(item *Copy, rules Rules, now time.Time) (*Fine, error) {
	if !l.Status.IsOpen() {
		return nil, shared.NewStateError(fmt.Sprintf("Loan is %s", l.Status))
	}
	l.Refresh(rules, now)
	l.Status = LoanReturned
	l.ReturnedDate = &now
	l.Touch()
	item.shelve()

	if !l.FineAmount.IsPositive() {
		return nil, nil
	}
	loanID := l.ID
	return &Fine{
		BaseEntity: shared.NewBaseEntity(),
		MemberID:   l.MemberID,
		LoanID:     &loanID,
		Type:       FineOverdue,
		Amount:     l.FineAmount,
		Reason:     fmt.Sprintf("Returned %d days late", l.DaysOverdue(now)),
	}, nil
}

// Renew extends the due date by one loan period. Only BORROWED loans of books
// nobody is waiting for can be renewed.
func (l *Loan) Renew(rules Rules, reserved bool) error {
	if l.Status != LoanBorrowed {
		return shared.NewStateError("Only borrowed loans can be renewed")
	}
	if reserved {
		return shared.NewBusinessRuleError("The book is reserved by another member")
	}
	l.DueDate = l.DueDate.AddDate(0, 0, rules.LoanPeriodDays)
	l.Touch()
	return nil
}

// History actions
const (
	HistoryBorrowed = "BORROWED"
	HistoryReturned = "RETURNED"
	HistoryRenewed  = "RENEWED"
	HistoryOverdue  = "OVERDUE"
)

// LoanHistory is an entry of a loan's log
type LoanHistory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LoanID    uuid.UUID `gorm:"type:uuid;not null;index" json:"loan_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	Notes     string    `gorm:"type:text" json:"notes"`
	UserID    uuid.UUID `gorm:"type:uuid" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (LoanHistory) TableName() string {
	return "library_loan_history"
}

// NewLoanHistory creates a log entry
func NewLoanHistory(loanID uuid.UUID, action, notes string, userID uuid.UUID, now time.Time) *LoanHistory {
	return &LoanHistory{
		ID:        uuid.New(),
		LoanID:    loanID,
		Action:    action,
		Notes:     notes,
		UserID:    userID,
		CreatedAt: now,
	}
}

// ReservationStatus is the state of a reservation
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation queues a member for a book
type Reservation struct {
	shared.BaseEntity
	MemberID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"member_id"`
	BookID        uuid.UUID         `gorm:"type:uuid;not null;index" json:"book_id"`
	ReservedDate  time.Time         `gorm:"not null" json:"reserved_date"`
	ExpiryDate    time.Time         `gorm:"type:date;not null" json:"expiry_date"`
	Status        ReservationStatus `gorm:"size:20;not null;index" json:"status"`
	FulfilledDate *time.Time        `json:"fulfilled_date,omitempty"`
	Position      int               `gorm:"-" json:"queue_position,omitempty"`
}

// TableName returns the table name for GORM
func (Reservation) TableName() string {
	return "library_reservations"
}

// NewReservation queues member for book
func NewReservation(member *Member, book *Book, rules Rules, now time.Time) *Reservation {
	return &Reservation{
		BaseEntity:   shared.NewBaseEntity(),
		MemberID:     member.ID,
		BookID:       book.ID,
		ReservedDate: now,
		ExpiryDate:   dateOf(now).AddDate(0, 0, rules.ReservationExpiryDays),
		Status:       ReservationActive,
	}
}

// Cancel withdraws an active reservation
func (r *Reservation) Cancel() error {
	if r.Status != ReservationActive {
		return shared.NewStateError("Only active reservations can be cancelled")
	}
	r.Status = ReservationCancelled
	r.Touch()
	return nil
}

// Fulfill closes an active reservation once its loan is made
func (r *Reservation) Fulfill(now time.Time) error {
	if r.Status != ReservationActive {
		return shared.NewStateError("Only active reservations can be fulfilled")
	}
	r.Status = ReservationFulfilled
	r.FulfilledDate = &now
	r.Touch()
	return nil
}

// Expire closes an active reservation past its expiry date and reports
// whether it did
func (r *Reservation) Expire(now time.Time) bool {
	if r.Status != ReservationActive || !dateOf(now).After(r.ExpiryDate) {
		return false
	}
	r.Status = ReservationExpired
	r.Touch()
	return true
}

// FineType is why a fine was charged
type FineType string

const (
	FineOverdue FineType = "OVERDUE"
	FineDamage  FineType = "DAMAGE"
	FineLost    FineType = "LOST"
	FineOther   FineType = "OTHER"
)

// IsValid reports whether t is a known fine type
func (t FineType) IsValid() bool {
	switch t {
	case FineOverdue, FineDamage, FineLost, FineOther:
		return true
	}
	return false
}

// Fine is an amount a member owes
type Fine struct {
	shared.BaseEntity
	MemberID uuid.UUID       `gorm:"type:uuid;not null;index" json:"member_id"`
	LoanID   *uuid.UUID      `gorm:"type:uuid;index" json:"loan_id,omitempty"`
	Type     FineType        `gorm:"column:fine_type;size:20;not null" json:"fine_type"`
	Amount   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Reason   string          `gorm:"type:text" json:"reason"`
	IsPaid   bool            `gorm:"not null;default:false;index" json:"is_paid"`
	PaidDate *time.Time      `json:"paid_date,omitempty"`
}

// TableName returns the table name for GORM
func (Fine) TableName() string {
	return "library_fines"
}

// NewFine charges a member by hand
func NewFine(memberID uuid.UUID, loanID *uuid.UUID, fineType FineType, amount decimal.Decimal, reason string) (*Fine, error) {
	if !fineType.IsValid() {
		return nil, shared.NewValidationError("Fine type must be one of OVERDUE, DAMAGE, LOST, OTHER")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("Fine amount must be positive")
	}
	return &Fine{
		BaseEntity: shared.NewBaseEntity(),
		MemberID:   memberID,
		LoanID:     loanID,
		Type:       fineType,
		Amount:     amount.Round(2),
		Reason:     strings.TrimSpace(reason),
	}, nil
}

// Pay settles the fine. An OVERDUE fine also settles the fine of its loan.
func (f *Fine) Pay(loan *Loan, now time.Time) error {
	if f.IsPaid {
		return shared.NewStateError("Fine is already paid")
	}
	f.IsPaid = true
	f.PaidDate = &now
	f.Touch()
	if loan != nil && f.Type == FineOverdue {
		loan.FinePaid = true
		loan.Touch()
	}
	return nil
}
