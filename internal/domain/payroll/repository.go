package payroll

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EmployeeFilter narrows employee listings
type EmployeeFilter struct {
	shared.Filter
	IncludeInactive bool
	Department      string
}

// EmployeeRepository defines persistence for employees
type EmployeeRepository interface {
	Create(ctx context.Context, employee *Employee) error
	Update(ctx context.Context, employee *Employee) error
	FindByID(ctx context.Context, id uuid.UUID) (*Employee, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Employee, error)
	ExistsByNationalID(ctx context.Context, nationalID string) (bool, error)
	List(ctx context.Context, filter EmployeeFilter) ([]Employee, int64, error)
	// CountActive and SumActiveGross feed the dashboard
	CountActive(ctx context.Context) (int64, error)
	SumActiveGross(ctx context.Context) (decimal.Decimal, error)
}

// SettingsRepository defines persistence for financial settings
type SettingsRepository interface {
	// Create stores settings and deactivates the other active settings of the same year
	Create(ctx context.Context, settings *FinancialSettings) error
	FindByID(ctx context.Context, id uuid.UUID) (*FinancialSettings, error)
	// FindEffective returns the active settings of date's year with the
	// latest EffectiveDate not after date
	FindEffective(ctx context.Context, date time.Time) (*FinancialSettings, error)
	List(ctx context.Context, year int) ([]FinancialSettings, error)
}

// PayrollFilter narrows payroll summary listings
type PayrollFilter struct {
	shared.Filter
	IncludeInactive bool
	EmployeeID      *uuid.UUID
	Status          Status
	DateFrom        *time.Time
	DateTo          *time.Time
}

// PayrollSummary is one row of the payroll list
type PayrollSummary struct {
	ID               uuid.UUID       `json:"id"`
	EmployeeID       uuid.UUID       `json:"employee_id"`
	EmployeeFullName string          `json:"employee_full_name"`
	EmployeeIsActive bool            `json:"employee_is_active"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	GrossSalary      decimal.Decimal `json:"gross_salary"`
	NetSalary        decimal.Decimal `json:"net_salary"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Totals aggregates payroll amounts for the dashboard
type Totals struct {
	Count            int64
	CurrentMonth     int64
	Gross            decimal.Decimal
	Net              decimal.Decimal
	CurrentMonthPaid decimal.Decimal
}

// PayrollRepository defines persistence for payroll records
type PayrollRepository interface {
	Create(ctx context.Context, payroll *Payroll) error
	Update(ctx context.Context, payroll *Payroll) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*Payroll, error)
	ExistsForPeriod(ctx context.Context, employeeID uuid.UUID, start, end time.Time) (bool, error)
	ListSummaries(ctx context.Context, filter PayrollFilter) ([]PayrollSummary, int64, error)
	// Totals sums payrolls of employeeID, or of everyone when nil; the
	// current month starts at monthStart (by creation time)
	Totals(ctx context.Context, employeeID *uuid.UUID, monthStart time.Time) (*Totals, error)
}

// ActivityRepository defines persistence for the activity feed
type ActivityRepository interface {
	Create(ctx context.Context, entry *ActivityLog) error
	Recent(ctx context.Context, limit int) ([]ActivityLog, error)
}
