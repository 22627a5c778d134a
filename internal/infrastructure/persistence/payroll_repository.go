package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormSettingsRepository implements payroll.SettingsRepository using GORM
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// Create deactivates the active settings of the same year and stores the new
// version with its brackets in one transaction
func (r *GormSettingsRepository) Create(ctx context.Context, settings *payroll.FinancialSettings) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&payroll.FinancialSettings{}).
			Where("effective_year = ? AND is_active = ?", settings.EffectiveYear, true).
			Updates(map[string]any{"is_active": false, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
		return tx.Create(settings).Error
	})
}

func (r *GormSettingsRepository) withBrackets(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Brackets", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	})
}

// FindByID finds settings by ID
func (r *GormSettingsRepository) FindByID(ctx context.Context, id uuid.UUID) (*payroll.FinancialSettings, error) {
	var settings payroll.FinancialSettings
	if err := r.withBrackets(ctx).Where("id = ?", id).First(&settings).Error; err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// FindEffective returns the settings in force on date
func (r *GormSettingsRepository) FindEffective(ctx context.Context, date time.Time) (*payroll.FinancialSettings, error) {
	var settings payroll.FinancialSettings
	err := r.withBrackets(ctx).
		Where("is_active = ? AND effective_year = ? AND effective_date <= ?", true, date.Year(), date).
		Order("effective_date DESC").
		First(&settings).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

// List returns settings newest first; year 0 lists every year
func (r *GormSettingsRepository) List(ctx context.Context, year int) ([]payroll.FinancialSettings, error) {
	query := r.withBrackets(ctx)
	if year > 0 {
		query = query.Where("effective_year = ?", year)
	}
	var list []payroll.FinancialSettings
	if err := query.Order("effective_year DESC, effective_date DESC, created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

var _ payroll.SettingsRepository = (*GormSettingsRepository)(nil)

// PayrollSortFields contains allowed sort fields for payroll summaries
var PayrollSortFields = map[string]bool{
	"payrolls.created_at":   true,
	"payrolls.period_start": true,
	"payrolls.net_salary":   true,
	"payrolls.gross_salary": true,
}

// GormPayrollRepository implements payroll.PayrollRepository using GORM
type GormPayrollRepository struct {
	db *gorm.DB
}

// NewGormPayrollRepository creates a new GormPayrollRepository
func NewGormPayrollRepository(db *gorm.DB) *GormPayrollRepository {
	return &GormPayrollRepository{db: db}
}

// Create saves a new payroll
func (r *GormPayrollRepository) Create(ctx context.Context, p *payroll.Payroll) error {
	return translateWriteError(r.db.WithContext(ctx).Omit("Employee").Create(p).Error,
		"A payroll already exists for this employee and period")
}

// Update saves changes to an existing payroll
func (r *GormPayrollRepository) Update(ctx context.Context, p *payroll.Payroll) error {
	result := r.db.WithContext(ctx).Omit("Employee").Save(p)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a payroll
func (r *GormPayrollRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&payroll.Payroll{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a payroll with its employee
func (r *GormPayrollRepository) FindByID(ctx context.Context, id uuid.UUID) (*payroll.Payroll, error) {
	var p payroll.Payroll
	if err := r.db.WithContext(ctx).Preload("Employee").Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// ExistsForPeriod checks for a payroll of the employee with the same period
func (r *GormPayrollRepository) ExistsForPeriod(ctx context.Context, employeeID uuid.UUID, start, end time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&payroll.Payroll{}).
		Where("employee_id = ? AND period_start = ? AND period_end = ?", employeeID, start, end).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListSummaries returns payroll rows joined with employee names
func (r *GormPayrollRepository) ListSummaries(ctx context.Context, filter payroll.PayrollFilter) ([]payroll.PayrollSummary, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&payroll.Payroll{}).
		Joins("JOIN employees ON employees.id = payrolls.employee_id")

	if !filter.IncludeInactive {
		query = query.Where("employees.is_active = ?", true)
	}
	if filter.EmployeeID != nil {
		query = query.Where("payrolls.employee_id = ?", *filter.EmployeeID)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where(
			"LOWER(employees.first_name) LIKE ? OR LOWER(employees.last_name) LIKE ? OR LOWER(employees.first_name || ' ' || employees.last_name) LIKE ?",
			pattern, pattern, pattern)
	}
	if filter.Status != "" {
		query = query.Where("payrolls.status = ?", filter.Status)
	}
	if filter.DateFrom != nil {
		query = query.Where("payrolls.period_start >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("payrolls.period_end <= ?", *filter.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []payroll.PayrollSummary
	query = query.Select(`payrolls.id, payrolls.employee_id,
		employees.first_name || ' ' || employees.last_name AS employee_full_name,
		employees.is_active AS employee_is_active,
		payrolls.period_start, payrolls.period_end,
		payrolls.gross_salary, payrolls.net_salary, payrolls.status, payrolls.created_at`)
	filter.OrderBy = qualify(filter.OrderBy)
	query = orderBy(query, filter.Filter, PayrollSortFields, "payrolls.created_at")
	if err := paginate(query, filter.Filter).Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func qualify(field string) string {
	if field == "" {
		return ""
	}
	return "payrolls." + field
}

// Totals aggregates counts and amounts for the dashboard
func (r *GormPayrollRepository) Totals(ctx context.Context, employeeID *uuid.UUID, monthStart time.Time) (*payroll.Totals, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&payroll.Payroll{})
		if employeeID != nil {
			q = q.Where("employee_id = ?", *employeeID)
		}
		return q
	}

	totals := &payroll.Totals{}
	if err := scoped().Count(&totals.Count).Error; err != nil {
		return nil, err
	}
	if err := scoped().Where("created_at >= ?", monthStart).Count(&totals.CurrentMonth).Error; err != nil {
		return nil, err
	}

	var sums struct {
		Gross decimal.NullDecimal
		Net   decimal.NullDecimal
	}
	if err := scoped().Select("SUM(gross_salary) AS gross, SUM(net_salary) AS net").Scan(&sums).Error; err != nil {
		return nil, err
	}
	totals.Gross, totals.Net = sums.Gross.Decimal, sums.Net.Decimal

	var paid struct{ Total decimal.NullDecimal }
	if err := scoped().Select("SUM(net_salary) AS total").
		Where("status = ? AND created_at >= ?", payroll.StatusPaid, monthStart).
		Scan(&paid).Error; err != nil {
		return nil, err
	}
	totals.CurrentMonthPaid = paid.Total.Decimal
	return totals, nil
}

var _ payroll.PayrollRepository = (*GormPayrollRepository)(nil)

// GormActivityRepository implements payroll.ActivityRepository using GORM
type GormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a new GormActivityRepository
func NewGormActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

// Create appends an activity entry
func (r *GormActivityRepository) Create(ctx context.Context, entry *payroll.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the newest entries
func (r *GormActivityRepository) Recent(ctx context.Context, limit int) ([]payroll.ActivityLog, error) {
	var entries []payroll.ActivityLog
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

var _ payroll.ActivityRepository = (*GormActivityRepository)(nil)
