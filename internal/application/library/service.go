// Package library implements the circulation desk of the public library.
package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/library"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const metricsModule = "library"

// Repositories groups the library persistence ports
type Repositories struct {
	Books        library.BookRepository
	Copies       library.CopyRepository
	Members      library.MemberRepository
	Loans        library.LoanRepository
	Reservations library.ReservationRepository
	Fines        library.FineRepository
	Circulation  library.Circulation
	Statistics   library.StatisticsRepository
}

// BookView is a book with its copies
type BookView struct {
	*library.Book
	Copies          []library.Copy `json:"copies"`
	TotalCopies     int            `json:"total_copies"`
	AvailableCopies int            `json:"available_copies"`
}

// LoanView is a loan with its history
type LoanView struct {
	*library.Loan
	History []library.LoanHistory `json:"history"`
}

// FineInput charges a member by hand
type FineInput struct {
	MemberID uuid.UUID
	LoanID   *uuid.UUID
	Type     library.FineType
	Amount   decimal.Decimal
	Reason   string
}

// RulesFromConfig converts the library settings, falling back to the
// defaults for unset values
func RulesFromConfig(cfg config.LibraryConfig) (library.Rules, error) {
	rules := library.DefaultRules()
	if cfg.LoanPeriodDays > 0 {
		rules.LoanPeriodDays = cfg.LoanPeriodDays
	}
	if cfg.ReservationExpiryDays > 0 {
		rules.ReservationExpiryDays = cfg.ReservationExpiryDays
	}
	if cfg.MaxLoansPerMember > 0 {
		rules.MaxLoansPerMember = cfg.MaxLoansPerMember
	}
	if cfg.FinePerDay != "" {
		fine, err := decimal.NewFromString(cfg.FinePerDay)
		if err != nil {
			return rules, fmt.Errorf("library.fine_per_day: %w", err)
		}
		rules.FinePerDay = fine
	}
	return rules, nil
}

// Service manages the catalogue, members and circulation
type Service struct {
	repos   Repositories
	rules   library.Rules
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a library service; metrics may be nil
func NewService(repos Repositories, rules library.Rules, metrics *telemetry.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repos:   repos,
		rules:   rules,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Rules returns the circulation rules in effect
func (s *Service) Rules() library.Rules {
	return s.rules
}

// CreateBook adds a book to the catalogue
func (s *Service) CreateBook(ctx context.Context, d library.BookDetails) (*library.Book, error) {
	b, err := library.NewBook(d)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Books.Create(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("Book added", zap.String("book_id", b.ID.String()), zap.String("isbn", b.ISBN))
	return b, nil
}

// GetBook returns a book with its copies
func (s *Service) GetBook(ctx context.Context, id uuid.UUID) (*BookView, error) {
	b, err := s.book(ctx, id)
	if err != nil {
		return nil, err
	}
	copies, err := s.repos.Copies.ListByBook(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &BookView{Book: b, Copies: copies, TotalCopies: len(copies)}
	for _, c := range copies {
		if c.Status == library.CopyAvailable {
			view.AvailableCopies++
		}
	}
	return view, nil
}

// ListBooks returns a page of books
func (s *Service) ListBooks(ctx context.Context, filter library.BookFilter) (shared.Paginated[library.Book], error) {
	items, total, err := s.repos.Books.List(ctx, filter)
	if err != nil {
		return shared.Paginated[library.Book]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// UpdateBook replaces the attributes of a book
func (s *Service) UpdateBook(ctx context.Context, id uuid.UUID, d library.BookDetails) (*library.Book, error) {
	b, err := s.book(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := b.Update(d); err != nil {
		return nil, err
	}
	if err := s.repos.Books.Update(ctx, b); err != nil {
		return nil, notFoundAs(err, "Book")
	}
	return b, nil
}

// DeleteBook removes a book none of whose copies is on loan
func (s *Service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	copies, err := s.repos.Copies.ListByBook(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range copies {
		if c.Status == library.CopyBorrowed {
			return shared.NewBusinessRuleError("A copy of this book is on loan")
		}
	}
	if err := s.repos.Books.Delete(ctx, id); err != nil {
		return notFoundAs(err, "Book")
	}
	s.logger.Info("Book removed", zap.String("book_id", id.String()))
	return nil
}

// AddCopy adds the next numbered copy of a book. A nil acquired date means
// today.
func (s *Service) AddCopy(ctx context.Context, bookID uuid.UUID, condition string, acquired *time.Time) (*library.Copy, error) {
	b, err := s.book(ctx, bookID)
	if err != nil {
		return nil, err
	}
	count, err := s.repos.Copies.CountByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	date := s.now()
	if acquired != nil {
		date = *acquired
	}
	c := library.NewCopy(b, int(count)+1, condition, date)
	if err := s.repos.Copies.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCopies returns the copies of a book
func (s *Service) ListCopies(ctx context.Context, bookID uuid.UUID) ([]library.Copy, error) {
	if _, err := s.book(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repos.Copies.ListByBook(ctx, bookID)
}

// SetCopyStatus changes the status of a copy by hand
func (s *Service) SetCopyStatus(ctx context.Context, id uuid.UUID, status library.CopyStatus, condition string) (*library.Copy, error) {
	c, err := s.repos.Copies.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Book copy")
	}
	if err := c.SetStatus(status, condition); err != nil {
		return nil, err
	}
	if err := s.repos.Copies.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterMember creates a member numbered after the last member of the
// same type registered this year; gaps left by deleted members stay unused.
func (s *Service) RegisterMember(ctx context.Context, d library.MemberDetails) (*library.Member, error) {
	now := s.now()
	if !d.MemberType.IsValid() {
		return nil, shared.NewValidationError("Member type must be one of STUDENT, TEACHER, STAFF, PUBLIC")
	}
	prefix := library.MemberNumberPrefix(d.MemberType, now.Year())
	last, err := s.repos.Members.LastNumber(ctx, prefix)
	if err != nil {
		return nil, err
	}
	seq, err := library.NextMemberSequence(prefix, last)
	if err != nil {
		return nil, err
	}
	m, err := library.NewMember(d, seq, now)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Members.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("Library member registered", zap.String("member_id", m.ID.String()), zap.String("member_number", m.MemberNumber))
	return m, nil
}

// GetMember returns a member
func (s *Service) GetMember(ctx context.Context, id uuid.UUID) (*library.Member, error) {
	return s.member(ctx, id)
}

// ListMembers returns a page of members
func (s *Service) ListMembers(ctx context.Context, filter library.MemberFilter) (shared.Paginated[library.Member], error) {
	items, total, err := s.repos.Members.List(ctx, filter)
	if err != nil {
		return shared.Paginated[library.Member]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// UpdateMember replaces the attributes of a member
func (s *Service) UpdateMember(ctx context.Context, id uuid.UUID, d library.MemberDetails) (*library.Member, error) {
	m, err := s.member(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.Update(d); err != nil {
		return nil, err
	}
	if err := s.repos.Members.Update(ctx, m); err != nil {
		return nil, notFoundAs(err, "Member")
	}
	return m, nil
}

// DeleteMember removes a member without open loans
func (s *Service) DeleteMember(ctx context.Context, id uuid.UUID) error {
	open, err := s.repos.Loans.CountOpenByMember(ctx, id)
	if err != nil {
		return err
	}
	if open > 0 {
		return shared.NewBusinessRuleError("Member has books on loan")
	}
	return notFoundAs(s.repos.Members.Delete(ctx, id), "Member")
}

// Eligibility reports whether a member may borrow
func (s *Service) Eligibility(ctx context.Context, id uuid.UUID) (*library.Eligibility, error) {
	m, err := s.member(ctx, id)
	if err != nil {
		return nil, err
	}
	e, err := s.eligibility(ctx, m)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Borrow lends an available copy to an eligible member
func (s *Service) Borrow(ctx context.Context, userID, memberID, copyID uuid.UUID, notes string) (loan *library.Loan, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "borrow", started, err)
	}(time.Now())

	m, err := s.member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	item, err := s.repos.Copies.FindByID(ctx, copyID)
	if err != nil {
		return nil, notFoundAs(err, "Book copy")
	}
	return s.lend(ctx, userID, m, item, notes, nil)
}

// Return closes a loan. An overdue return also charges an OVERDUE fine.
func (s *Service) Return(ctx context.Context, userID, loanID uuid.UUID, notes string) (view *LoanView, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "return", started, err)
	}(time.Now())

	loan, err := s.loan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	item, err := s.repos.Copies.FindByID(ctx, loan.CopyID)
	if err != nil {
		return nil, notFoundAs(err, "Book copy")
	}
	now := s.now()
	fine, err := loan.Return(item, s.rules, now)
	if err != nil {
		return nil, err
	}
	if notes != "" {
		loan.Notes = notes
	}
	historyNote := "Returned on time"
	if fine != nil {
		historyNote = fine.Reason
	}
	change := library.Change{
		Loan:    loan,
		Copy:    item,
		History: library.NewLoanHistory(loan.ID, library.HistoryReturned, historyNote, userID, now),
		Fine:    fine,
		NewFine: fine != nil,
	}
	if err := s.repos.Circulation.Apply(ctx, change); err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.String("loan_id", loan.ID.String()), zap.String("copy_id", item.ID.String())}
	if fine != nil {
		fields = append(fields, zap.String("fine", fine.Amount.StringFixed(2)))
	}
	s.logger.Info("Book returned", fields...)
	return s.GetLoan(ctx, loan.ID)
}

// Renew extends a borrowed loan unless someone reserved the book
func (s *Service) Renew(ctx context.Context, userID, loanID uuid.UUID) (*LoanView, error) {
	loan, err := s.loan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	item, err := s.repos.Copies.FindByID(ctx, loan.CopyID)
	if err != nil {
		return nil, notFoundAs(err, "Book copy")
	}
	reserved, err := s.repos.Reservations.HasActive(ctx, nil, item.BookID)
	if err != nil {
		return nil, err
	}
	if err := loan.Renew(s.rules, reserved); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("Due date extended to %s", loan.DueDate.Format("2006-01-02"))
	change := library.Change{
		Loan:    loan,
		History: library.NewLoanHistory(loan.ID, library.HistoryRenewed, note, userID, s.now()),
	}
	if err := s.repos.Circulation.Apply(ctx, change); err != nil {
		return nil, err
	}
	return s.GetLoan(ctx, loan.ID)
}

// GetLoan returns a loan with its history
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*LoanView, error) {
	loan, err := s.loan(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repos.Loans.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LoanView{Loan: loan, History: history}, nil
}

// ListLoans returns a page of loans
func (s *Service) ListLoans(ctx context.Context, filter library.LoanFilter) (shared.Paginated[library.Loan], error) {
	items, total, err := s.repos.Loans.List(ctx, filter)
	if err != nil {
		return shared.Paginated[library.Loan]{}, err
	}
	f := filter.Filter.Normalize()
	return shared.NewPaginated(items, total, f.Page, f.PageSize), nil
}

// Overdue marks open loans past their due date OVERDUE, recomputes their
// fines and returns a page of overdue loans
func (s *Service) Overdue(ctx context.Context, userID uuid.UUID, filter shared.Filter) (shared.Paginated[library.Loan], error) {
	if _, err := s.RefreshOverdue(ctx, userID); err != nil {
		return shared.Paginated[library.Loan]{}, err
	}
	return s.ListLoans(ctx, library.LoanFilter{Filter: filter, Status: library.LoanOverdue})
}

// RefreshOverdue updates every open loan due before today and returns how
// many changed
func (s *Service) RefreshOverdue(ctx context.Context, userID uuid.UUID) (int, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	filter := library.LoanFilter{Filter: shared.Filter{Page: 1, PageSize: 100}, DueBefore: &today}
	changed := 0
	for {
		loans, _, err := s.repos.Loans.List(ctx, filter)
		if err != nil {
			return changed, err
		}
		for i := range loans {
			loan := &loans[i]
			first := loan.Status == library.LoanBorrowed
			if !loan.Refresh(s.rules, now) {
				continue
			}
			change := library.Change{Loan: loan}
			if first {
				note := fmt.Sprintf("%d days overdue", loan.DaysOverdue(now))
				change.History = library.NewLoanHistory(loan.ID, library.HistoryOverdue, note, userID, now)
			}
			if err := s.repos.Circulation.Apply(ctx, change); err != nil {
				return changed, err
			}
			changed++
		}
		if len(loans) < filter.PageSize {
			break
		}
		filter.Page++
	}
	if changed > 0 {
		s.logger.Info("Overdue loans refreshed", zap.Int("count", changed))
	}
	return changed, nil
}

// Reserve queues a member for a book that has no available copy
func (s *Service) Reserve(ctx context.Context, memberID, bookID uuid.UUID) (*library.Reservation, error) {
	m, err := s.member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	b, err := s.book(ctx, bookID)
	if err != nil {
		return nil, err
	}
	dup, err := s.repos.Reservations.HasActive(ctx, &memberID, bookID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, shared.NewConflictError("Member already has an active reservation for this book")
	}
	if _, err := s.repos.Copies.FirstAvailable(ctx, bookID); err == nil {
		return nil, shared.NewBusinessRuleError("A copy is available; borrow it instead")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	r := library.NewReservation(m, b, s.rules, s.now())
	if err := s.repos.Reservations.Create(ctx, r); err != nil {
		return nil, err
	}
	if r.Position, err = s.repos.Reservations.Position(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("Book reserved",
		zap.String("reservation_id", r.ID.String()),
		zap.String("book_id", bookID.String()),
		zap.Int("position", r.Position))
	return r, nil
}

// CancelReservation withdraws an active reservation
func (s *Service) CancelReservation(ctx context.Context, id uuid.UUID) (*library.Reservation, error) {
	r, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repos.Reservations.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// FulfillReservation lends the first available copy to the member who
// reserved the book
func (s *Service) FulfillReservation(ctx context.Context, userID, id uuid.UUID) (*library.Loan, error) {
	r, err := s.reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != library.ReservationActive {
		return nil, shared.NewStateError("Only active reservations can be fulfilled")
	}
	item, err := s.repos.Copies.FirstAvailable(ctx, r.BookID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewBusinessRuleError("No copy of the book is available")
	}
	if err != nil {
		return nil, err
	}
	m, err := s.member(ctx, r.MemberID)
	if err != nil {
		return nil, err
	}
	return s.lend(ctx, userID, m, item, fmt.Sprintf("Reservation %s fulfilled", r.ID), r)
}

// ListReservations returns reservations in queue order with the queue
// position of the active ones
func (s *Service) ListReservations(ctx context.Context, filter library.ReservationFilter) ([]library.Reservation, error) {
	items, err := s.repos.Reservations.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Status != library.ReservationActive {
			continue
		}
		if items[i].Position, err = s.repos.Reservations.Position(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ExpireReservations closes active reservations past their expiry date
func (s *Service) ExpireReservations(ctx context.Context) (int, error) {
	active, err := s.repos.Reservations.List(ctx, library.ReservationFilter{Status: library.ReservationActive})
	if err != nil {
		return 0, err
	}
	now := s.now()
	expired := 0
	for i := range active {
		if !active[i].Expire(now) {
			continue
		}
		if err := s.repos.Reservations.Update(ctx, &active[i]); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// CreateFine charges a member
func (s *Service) CreateFine(ctx context.Context, in FineInput) (*library.Fine, error) {
	if _, err := s.member(ctx, in.MemberID); err != nil {
		return nil, err
	}
	if in.LoanID != nil {
		loan, err := s.loan(ctx, *in.LoanID)
		if err != nil {
			return nil, err
		}
		if loan.MemberID != in.MemberID {
			return nil, shared.NewValidationError("Loan belongs to another member")
		}
	}
	f, err := library.NewFine(in.MemberID, in.LoanID, in.Type, in.Amount, in.Reason)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Fines.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFines returns fines, newest first
func (s *Service) ListFines(ctx context.Context, filter library.FineFilter) ([]library.Fine, error) {
	return s.repos.Fines.List(ctx, filter)
}

// PayFine settles a fine and, for an OVERDUE fine, its loan
func (s *Service) PayFine(ctx context.Context, id uuid.UUID) (*library.Fine, error) {
	f, err := s.repos.Fines.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Fine")
	}
	var loan *library.Loan
	if f.LoanID != nil && f.Type == library.FineOverdue {
		if loan, err = s.loan(ctx, *f.LoanID); err != nil {
			return nil, err
		}
	}
	if err := f.Pay(loan, s.now()); err != nil {
		return nil, err
	}
	if err := s.repos.Circulation.Apply(ctx, library.Change{Loan: loan, Fine: f}); err != nil {
		return nil, err
	}
	s.logger.Info("Fine paid", zap.String("fine_id", f.ID.String()), zap.String("amount", f.Amount.StringFixed(2)))
	return f, nil
}

// Statistics summarises the library
func (s *Service) Statistics(ctx context.Context) (*library.Statistics, error) {
	return s.repos.Statistics.Statistics(ctx)
}

func (s *Service) lend(ctx context.Context, userID uuid.UUID, m *library.Member, item *library.Copy, notes string, r *library.Reservation) (*library.Loan, error) {
	e, err := s.eligibility(ctx, m)
	if err != nil {
		return nil, err
	}
	if !e.CanBorrow {
		return nil, shared.NewBusinessRuleError("Member cannot borrow: " + e.Reason)
	}
	now := s.now()
	loan, err := library.Borrow(m, item, s.rules, now, notes)
	if err != nil {
		return nil, err
	}
	change := library.Change{
		Loan:    loan,
		NewLoan: true,
		Copy:    item,
		History: library.NewLoanHistory(loan.ID, library.HistoryBorrowed, loan.Notes, userID, now),
	}
	if r != nil {
		if err := r.Fulfill(now); err != nil {
			return nil, err
		}
		change.Reservation = r
	}
	if err := s.repos.Circulation.Apply(ctx, change); err != nil {
		return nil, err
	}
	s.logger.Info("Book lent",
		zap.String("loan_id", loan.ID.String()),
		zap.String("member_number", m.MemberNumber),
		zap.String("copy_number", item.CopyNumber),
		zap.Time("due_date", loan.DueDate))
	return loan, nil
}

func (s *Service) eligibility(ctx context.Context, m *library.Member) (library.Eligibility, error) {
	open, err := s.repos.Loans.CountOpenByMember(ctx, m.ID)
	if err != nil {
		return library.Eligibility{}, err
	}
	return m.Eligibility(open, s.rules, s.now()), nil
}

func (s *Service) book(ctx context.Context, id uuid.UUID) (*library.Book, error) {
	b, err := s.repos.Books.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Book")
	}
	return b, nil
}

func (s *Service) member(ctx context.Context, id uuid.UUID) (*library.Member, error) {
	m, err := s.repos.Members.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Member")
	}
	return m, nil
}

func (s *Service) loan(ctx context.Context, id uuid.UUID) (*library.Loan, error) {
	l, err := s.repos.Loans.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Loan")
	}
	return l, nil
}

func (s *Service) reservation(ctx context.Context, id uuid.UUID) (*library.Reservation, error) {
	r, err := s.repos.Reservations.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "Reservation")
	}
	return r, nil
}

func notFoundAs(err error, resource string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError(resource)
	}
	return err
}
