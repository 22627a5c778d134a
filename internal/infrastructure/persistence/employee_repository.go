package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EmployeeSortFields contains allowed sort fields for employees
var EmployeeSortFields = map[string]bool{
	"created_at":   true,
	"first_name":   true,
	"last_name":    true,
	"department":   true,
	"hire_date":    true,
	"gross_salary": true,
}

// GormEmployeeRepository implements payroll.EmployeeRepository using GORM
type GormEmployeeRepository struct {
	db *gorm.DB
}

// NewGormEmployeeRepository creates a new GormEmployeeRepository
func NewGormEmployeeRepository(db *gorm.DB) *GormEmployeeRepository {
	return &GormEmployeeRepository{db: db}
}

// Create saves a new employee
func (r *GormEmployeeRepository) Create(ctx context.Context, employee *payroll.Employee) error {
	return translateWriteError(r.db.WithContext(ctx).Create(employee).Error,
		"An employee with this national ID or user account already exists")
}

// Update saves changes to an existing employee
func (r *GormEmployeeRepository) Update(ctx context.Context, employee *payroll.Employee) error {
	result := r.db.WithContext(ctx).Save(employee)
	if result.Error != nil {
		return translateWriteError(result.Error, "An employee with this national ID already exists")
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds an employee by ID
func (r *GormEmployeeRepository) FindByID(ctx context.Context, id uuid.UUID) (*payroll.Employee, error) {
	var emp payroll.Employee
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&emp).Error; err != nil {
		return nil, notFound(err)
	}
	return &emp, nil
}

// FindByUserID finds the employee linked to an IAM user
func (r *GormEmployeeRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*payroll.Employee, error) {
	var emp payroll.Employee
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&emp).Error; err != nil {
		return nil, notFound(err)
	}
	return &emp, nil
}

// ExistsByNationalID checks whether any employee, active or not, uses the national ID
func (r *GormEmployeeRepository) ExistsByNationalID(ctx context.Context, nationalID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&payroll.Employee{}).
		Where("national_id = ?", nationalID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns a filtered page of employees
func (r *GormEmployeeRepository) List(ctx context.Context, filter payroll.EmployeeFilter) ([]payroll.Employee, int64, error) {
	filter.Filter = filter.Filter.Normalize()
	query := r.db.WithContext(ctx).Model(&payroll.Employee{})

	if !filter.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(first_name || ' ' || last_name) LIKE ? OR national_id LIKE ?",
			pattern, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var employees []payroll.Employee
	query = orderBy(query, filter.Filter, EmployeeSortFields, "created_at")
	if err := paginate(query, filter.Filter).Find(&employees).Error; err != nil {
		return nil, 0, err
	}
	return employees, total, nil
}

// CountActive counts active employees
func (r *GormEmployeeRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&payroll.Employee{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// SumActiveGross is the estimated monthly budget: the gross total of active employees
func (r *GormEmployeeRepository) SumActiveGross(ctx context.Context) (decimal.Decimal, error) {
	var row struct{ Total decimal.NullDecimal }
	if err := r.db.WithContext(ctx).Model(&payroll.Employee{}).
		Select("SUM(gross_salary) AS total").
		Where("is_active = ?", true).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Decimal, nil
}

var _ payroll.EmployeeRepository = (*GormEmployeeRepository)(nil)

// DepartmentOf returns the department of the active employee linked to
// userID, or "" when the user has no employee record
func (r *GormEmployeeRepository) DepartmentOf(ctx context.Context, userID uuid.UUID) (string, error) {
	var departments []string
	err := r.db.WithContext(ctx).Model(&payroll.Employee{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Limit(1).
		Pluck("department", &departments).Error
	if err != nil || len(departments) == 0 {
		return "", err
	}
	return departments[0], nil
}
