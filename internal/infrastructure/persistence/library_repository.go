package persistence

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/library"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BookSortFields contains allowed sort fields for books
var BookSortFields = map[string]bool{
	"created_at":   true,
	"title":        true,
	"author":       true,
	"publish_year": true,
	"isbn":         true,
}

// MemberSortFields contains allowed sort fields for members
var MemberSortFields = map[string]bool{
	"registration_date": true,
	"member_number":     true,
	"last_name":         true,
	"expiry_date":       true,
}

// LoanSortFields contains allowed sort fields for loans
var LoanSortFields = map[string]bool{
	"borrowed_date": true,
	"due_date":      true,
	"status":        true,
}

// GormBookRepository implements library.BookRepository using GORM
type GormBookRepository struct {
	db *gorm.DB
}

// NewGormBookRepository creates a new GormBookRepository
func NewGormBookRepository(db *gorm.DB) *GormBookRepository {
	return &GormBookRepository{db: db}
}

// Create saves a new book
func (r *GormBookRepository) Create(ctx context.Context, b *library.Book) error {
	return translateWriteError(r.db.WithContext(ctx).Create(b).Error, "A book with this ISBN already exists")
}

// Update saves changes to a book
func (r *GormBookRepository) Update(ctx context.Context, b *library.Book) error {
	result := r.db.WithContext(ctx).Save(b)
	if result.Error != nil {
		return translateWriteError(result.Error, "A book with this ISBN already exists")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a book
func (r *GormBookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&library.Book{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a book by ID
func (r *GormBookRepository) FindByID(ctx context.Context, id uuid.UUID) (*library.Book, error) {
	var b library.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// List returns a filtered page of books
func (r *GormBookRepository) List(ctx context.Context, filter library.BookFilter) ([]library.Book, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&library.Book{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Language != "" {
		query = query.Where("language = ?", filter.Language)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR isbn LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var books []library.Book
	query = orderBy(query, filter.Filter, BookSortFields, "title")
	if err := paginate(query, filter.Filter).Find(&books).Error; err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// GormBookCopyRepository implements library.CopyRepository using GORM
type GormBookCopyRepository struct {
	db *gorm.DB
}

// NewGormBookCopyRepository creates a new GormBookCopyRepository
func NewGormBookCopyRepository(db *gorm.DB) *GormBookCopyRepository {
	return &GormBookCopyRepository{db: db}
}

// Create saves a new copy
func (r *GormBookCopyRepository) Create(ctx context.Context, c *library.Copy) error {
	return translateWriteError(r.db.WithContext(ctx).Create(c).Error, "A copy with this number already exists")
}

// Update saves changes to a copy
func (r *GormBookCopyRepository) Update(ctx context.Context, c *library.Copy) error {
	result := r.db.WithContext(ctx).Save(c)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a copy by ID
func (r *GormBookCopyRepository) FindByID(ctx context.Context, id uuid.UUID) (*library.Copy, error) {
	var c library.Copy
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListByBook returns the copies of a book by number
func (r *GormBookCopyRepository) ListByBook(ctx context.Context, bookID uuid.UUID) ([]library.Copy, error) {
	var copies []library.Copy
	err := r.db.WithContext(ctx).Where("book_id = ?", bookID).Order("copy_number").Find(&copies).Error
	return copies, err
}

// CountByBook counts the copies of a book
func (r *GormBookCopyRepository) CountByBook(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&library.Copy{}).Where("book_id = ?", bookID).Count(&count).Error
	return count, err
}

// FirstAvailable returns the lowest numbered available copy of a book
func (r *GormBookCopyRepository) FirstAvailable(ctx context.Context, bookID uuid.UUID) (*library.Copy, error) {
	var c library.Copy
	if err := r.db.WithContext(ctx).
		Where("book_id = ? AND status = ?", bookID, library.CopyAvailable).
		Order("copy_number").
		First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// GormMemberRepository implements library.MemberRepository using GORM
type GormMemberRepository struct {
	db *gorm.DB
}

// NewGormMemberRepository creates a new GormMemberRepository
func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	return &GormMemberRepository{db: db}
}

const memberConflict = "A member with this email or TC number already exists"

// Create saves a new member
func (r *GormMemberRepository) Create(ctx context.Context, m *library.Member) error {
	return translateWriteError(r.db.WithContext(ctx).Create(m).Error, memberConflict)
}

// Update saves changes to a member
func (r *GormMemberRepository) Update(ctx context.Context, m *library.Member) error {
	result := r.db.WithContext(ctx).Save(m)
	if result.Error != nil {
		return translateWriteError(result.Error, memberConflict)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a member
func (r *GormMemberRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&library.Member{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a member by ID
func (r *GormMemberRepository) FindByID(ctx context.Context, id uuid.UUID) (*library.Member, error) {
	var m library.Member
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// List returns a filtered page of members
func (r *GormMemberRepository) List(ctx context.Context, filter library.MemberFilter) ([]library.Member, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&library.Member{})
	if filter.MemberType != "" {
		query = query.Where("member_type = ?", filter.MemberType)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(member_number) LIKE ? OR LOWER(email) LIKE ? OR tc_no = ?",
			pattern, pattern, pattern, pattern, filter.Search)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var members []library.Member
	query = orderBy(query, filter.Filter, MemberSortFields, "registration_date")
	if err := paginate(query, filter.Filter).Find(&members).Error; err != nil {
		return nil, 0, err
	}
	return members, total, nil
}

// LastNumber returns the highest member number with prefix. Numbers are
// fixed width, so the lexical maximum is the latest one.
func (r *GormMemberRepository) LastNumber(ctx context.Context, prefix string) (string, error) {
	var last sql.NullString
	err := r.db.WithContext(ctx).Model(&library.Member{}).
		Where("member_number LIKE ?", prefix+"%").
		Select("MAX(member_number)").Row().Scan(&last)
	return last.String, err
}

// GormLoanRepository implements library.LoanRepository and
// library.Circulation using GORM
type GormLoanRepository struct {
	db *gorm.DB
}

// NewGormLoanRepository creates a new GormLoanRepository
func NewGormLoanRepository(db *gorm.DB) *GormLoanRepository {
	return &GormLoanRepository{db: db}
}

// FindByID finds a loan by ID
func (r *GormLoanRepository) FindByID(ctx context.Context, id uuid.UUID) (*library.Loan, error) {
	var l library.Loan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// List returns a filtered page of loans
func (r *GormLoanRepository) List(ctx context.Context, filter library.LoanFilter) ([]library.Loan, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&library.Loan{})
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.CopyID != nil {
		query = query.Where("copy_id = ?", *filter.CopyID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DueBefore != nil {
		query = query.Where("status IN ? AND due_date < ?",
			[]library.LoanStatus{library.LoanBorrowed, library.LoanOverdue}, *filter.DueBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var loans []library.Loan
	if filter.OrderBy == "" {
		filter.OrderDir = "desc"
	}
	query = orderBy(query, filter.Filter, LoanSortFields, "borrowed_date")
	if err := paginate(query, filter.Filter).Find(&loans).Error; err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// CountOpenByMember counts BORROWED and OVERDUE loans of a member
func (r *GormLoanRepository) CountOpenByMember(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&library.Loan{}).
		Where("member_id = ? AND status IN ?", memberID, []library.LoanStatus{library.LoanBorrowed, library.LoanOverdue}).
		Count(&count).Error
	return count, err
}

// History returns the log of a loan, oldest first
func (r *GormLoanRepository) History(ctx context.Context, loanID uuid.UUID) ([]library.LoanHistory, error) {
	var entries []library.LoanHistory
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("created_at").Find(&entries).Error
	return entries, err
}

// Apply writes a circulation change in one transaction
func (r *GormLoanRepository) Apply(ctx context.Context, change library.Change) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if change.Loan != nil {
			if change.NewLoan {
				if err := tx.Create(change.Loan).Error; err != nil {
					return err
				}
			} else if err := tx.Save(change.Loan).Error; err != nil {
				return err
			}
		}
		if change.Copy != nil {
			if err := tx.Save(change.Copy).Error; err != nil {
				return err
			}
		}
		if change.History != nil {
			if err := tx.Create(change.History).Error; err != nil {
				return err
			}
		}
		if change.Fine != nil {
			if change.NewFine {
				if err := tx.Create(change.Fine).Error; err != nil {
					return err
				}
			} else if err := tx.Save(change.Fine).Error; err != nil {
				return err
			}
		}
		if change.Reservation != nil {
			if err := tx.Save(change.Reservation).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GormReservationRepository implements library.ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// Create saves a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, res *library.Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

// Update saves changes to a reservation
func (r *GormReservationRepository) Update(ctx context.Context, res *library.Reservation) error {
	result := r.db.WithContext(ctx).Save(res)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a reservation by ID
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*library.Reservation, error) {
	var res library.Reservation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&res).Error; err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

// List returns reservations in queue order
func (r *GormReservationRepository) List(ctx context.Context, filter library.ReservationFilter) ([]library.Reservation, error) {
	query := r.db.WithContext(ctx).Order("reserved_date")
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.BookID != nil {
		query = query.Where("book_id = ?", *filter.BookID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var reservations []library.Reservation
	err := query.Find(&reservations).Error
	return reservations, err
}

// HasActive reports whether the book has an active reservation, optionally
// by one member
func (r *GormReservationRepository) HasActive(ctx context.Context, memberID *uuid.UUID, bookID uuid.UUID) (bool, error) {
	query := r.db.WithContext(ctx).Model(&library.Reservation{}).
		Where("book_id = ? AND status = ?", bookID, library.ReservationActive)
	if memberID != nil {
		query = query.Where("member_id = ?", *memberID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Position counts active reservations of the same book made earlier
func (r *GormReservationRepository) Position(ctx context.Context, res *library.Reservation) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&library.Reservation{}).
		Where("book_id = ? AND status = ? AND reserved_date < ?", res.BookID, library.ReservationActive, res.ReservedDate).
		Count(&count).Error
	return int(count) + 1, err
}

// GormFineRepository implements library.FineRepository using GORM
type GormFineRepository struct {
	db *gorm.DB
}

// NewGormFineRepository creates a new GormFineRepository
func NewGormFineRepository(db *gorm.DB) *GormFineRepository {
	return &GormFineRepository{db: db}
}

// Create saves a new fine
func (r *GormFineRepository) Create(ctx context.Context, f *library.Fine) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// FindByID finds a fine by ID
func (r *GormFineRepository) FindByID(ctx context.Context, id uuid.UUID) (*library.Fine, error) {
	var f library.Fine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// List returns fines, newest first
func (r *GormFineRepository) List(ctx context.Context, filter library.FineFilter) ([]library.Fine, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.Type != "" {
		query = query.Where("fine_type = ?", filter.Type)
	}
	if filter.IsPaid != nil {
		query = query.Where("is_paid = ?", *filter.IsPaid)
	}
	var fines []library.Fine
	err := query.Find(&fines).Error
	return fines, err
}

// GormLibraryStatisticsRepository implements library.StatisticsRepository
type GormLibraryStatisticsRepository struct {
	db *gorm.DB
}

// NewGormLibraryStatisticsRepository creates a new GormLibraryStatisticsRepository
func NewGormLibraryStatisticsRepository(db *gorm.DB) *GormLibraryStatisticsRepository {
	return &GormLibraryStatisticsRepository{db: db}
}

type groupCount struct {
	Label string
	Count int64
}

func (r *GormLibraryStatisticsRepository) countBy(ctx context.Context, model any, column string) ([]groupCount, error) {
	var rows []groupCount
	err := r.db.WithContext(ctx).Model(model).
		Select(column + " AS label, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	return rows, err
}

// Statistics counts the catalogue, members, loans and unpaid fines
func (r *GormLibraryStatisticsRepository) Statistics(ctx context.Context) (*library.Statistics, error) {
	db := r.db.WithContext(ctx)
	stats := &library.Statistics{
		CopiesByStatus: make(map[library.CopyStatus]int64),
		MembersByType:  make(map[library.MemberType]int64),
	}
	if err := db.Model(&library.Book{}).Count(&stats.Books).Error; err != nil {
		return nil, err
	}

	copies, err := r.countBy(ctx, &library.Copy{}, "status")
	if err != nil {
		return nil, err
	}
	for _, row := range copies {
		stats.CopiesByStatus[library.CopyStatus(row.Label)] = row.Count
		stats.Copies += row.Count
	}

	members, err := r.countBy(ctx, &library.Member{}, "member_type")
	if err != nil {
		return nil, err
	}
	for _, row := range members {
		stats.MembersByType[library.MemberType(row.Label)] = row.Count
		stats.Members += row.Count
	}

	loans, err := r.countBy(ctx, &library.Loan{}, "status")
	if err != nil {
		return nil, err
	}
	for _, row := range loans {
		switch library.LoanStatus(row.Label) {
		case library.LoanBorrowed:
			stats.ActiveLoans += row.Count
		case library.LoanOverdue:
			stats.ActiveLoans += row.Count
			stats.OverdueLoans = row.Count
		}
	}

	var fines struct {
		Count int64
		Total decimal.NullDecimal
	}
	if err := db.Model(&library.Fine{}).
		Select("COUNT(*) AS count, SUM(amount) AS total").
		Where("is_paid = ?", false).
		Scan(&fines).Error; err != nil {
		return nil, err
	}
	stats.UnpaidFines = fines.Count
	stats.UnpaidFinesTotal = fines.Total.Decimal
	return stats, nil
}

var (
	_ library.BookRepository        = (*GormBookRepository)(nil)
	_ library.CopyRepository        = (*GormBookCopyRepository)(nil)
	_ library.MemberRepository      = (*GormMemberRepository)(nil)
	_ library.LoanRepository        = (*GormLoanRepository)(nil)
	_ library.Circulation           = (*GormLoanRepository)(nil)
	_ library.ReservationRepository = (*GormReservationRepository)(nil)
	_ library.FineRepository        = (*GormFineRepository)(nil)
	_ library.StatisticsRepository  = (*GormLibraryStatisticsRepository)(nil)
)
