package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller of a payroll operation
type Actor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// EmployeeInput carries the attributes of a new or updated employee
type EmployeeInput struct {
	NationalID  string
	FirstName   string
	LastName    string
	Title       string
	Department  string
	HireDate    time.Time
	GrossSalary decimal.Decimal
	UserID      *uuid.UUID
}

// Details converts the input into domain employee details
func (in EmployeeInput) Details() payroll.EmployeeDetails {
	return payroll.EmployeeDetails{
		NationalID:  in.NationalID,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Title:       in.Title,
		Department:  in.Department,
		HireDate:    dateOnly(in.HireDate),
		GrossSalary: in.GrossSalary,
	}
}

// EmployeeResponse is the API view of an employee
type EmployeeResponse struct {
	ID          uuid.UUID       `json:"id"`
	UserID      *uuid.UUID      `json:"user_id,omitempty"`
	NationalID  string          `json:"national_id"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Title       string          `json:"title"`
	Department  string          `json:"department"`
	HireDate    time.Time       `json:"hire_date"`
	GrossSalary decimal.Decimal `json:"gross_salary"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ToEmployeeResponse maps an employee entity
func ToEmployeeResponse(e *payroll.Employee) EmployeeResponse {
	return EmployeeResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		NationalID:  e.NationalID,
		FirstName:   e.FirstName,
		LastName:    e.LastName,
		Title:       e.Title,
		Department:  e.Department,
		HireDate:    e.HireDate,
		GrossSalary: e.GrossSalary,
		IsActive:    e.IsActive,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// EmployeeListQuery are the listing parameters for employees
type EmployeeListQuery struct {
	IncludeInactive bool
	Search          string
	Department      string
	Page            int
	PageSize        int
}

// SettingsInput carries a new financial settings version
type SettingsInput struct {
	EffectiveYear            int
	EffectiveDate            time.Time
	MinimumWage              decimal.Decimal
	SGKEmployeeRate          decimal.Decimal
	SGKEmployerRate          decimal.Decimal
	UnemploymentEmployeeRate decimal.Decimal
	UnemploymentEmployerRate decimal.Decimal
	StampTaxRate             decimal.Decimal
	Brackets                 []BracketInput
}

// BracketInput is one income tax bracket; a nil MaxAmount is unbounded
type BracketInput struct {
	MinAmount decimal.Decimal
	MaxAmount *decimal.Decimal
	Rate      decimal.Decimal
}

// SettingsResponse is the API view of a financial settings version
type SettingsResponse struct {
	ID                       uuid.UUID            `json:"id"`
	EffectiveYear            int                  `json:"effective_year"`
	EffectiveDate            time.Time            `json:"effective_date"`
	MinimumWage              decimal.Decimal      `json:"minimum_wage"`
	SGKEmployeeRate          decimal.Decimal      `json:"sgk_employee_rate"`
	SGKEmployerRate          decimal.Decimal      `json:"sgk_employer_rate"`
	UnemploymentEmployeeRate decimal.Decimal      `json:"unemployment_employee_rate"`
	UnemploymentEmployerRate decimal.Decimal      `json:"unemployment_employer_rate"`
	StampTaxRate             decimal.Decimal      `json:"stamp_tax_rate"`
	IsActive                 bool                 `json:"is_active"`
	Brackets                 []payroll.TaxBracket `json:"brackets"`
	CreatedAt                time.Time            `json:"created_at"`
}

// ToSettingsResponse maps a settings entity
func ToSettingsResponse(s *payroll.FinancialSettings) SettingsResponse {
	brackets := s.SortedBrackets()
	if brackets == nil {
		brackets = []payroll.TaxBracket{}
	}
	return SettingsResponse{
		ID:                       s.ID,
		EffectiveYear:            s.EffectiveYear,
		EffectiveDate:            s.EffectiveDate,
		MinimumWage:              s.MinimumWage,
		SGKEmployeeRate:          s.SGKEmployeeRate,
		SGKEmployerRate:          s.SGKEmployerRate,
		UnemploymentEmployeeRate: s.UnemploymentEmployeeRate,
		UnemploymentEmployerRate: s.UnemploymentEmployerRate,
		StampTaxRate:             s.StampTaxRate,
		IsActive:                 s.IsActive,
		Brackets:                 brackets,
		CreatedAt:                s.CreatedAt,
	}
}

// CreatePayrollInput requests a payroll for one employee and period.
// GrossSalary overrides the employee's salary when set.
type CreatePayrollInput struct {
	EmployeeID  uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	GrossSalary *decimal.Decimal
	Notes       string
}

// PayrollListQuery are the listing parameters for payrolls
type PayrollListQuery struct {
	IncludeInactive bool
	Search          string
	Status          string
	DateFrom        *time.Time
	DateTo          *time.Time
	Page            int
	PageSize        int
}

// PayrollResponse is the API view of a payroll
type PayrollResponse struct {
	ID                  uuid.UUID       `json:"id"`
	EmployeeID          uuid.UUID       `json:"employee_id"`
	EmployeeFullName    string          `json:"employee_full_name,omitempty"`
	PeriodStart         time.Time       `json:"period_start"`
	PeriodEnd           time.Time       `json:"period_end"`
	GrossSalary         decimal.Decimal `json:"gross_salary"`
	IncomeTax           decimal.Decimal `json:"income_tax"`
	EffectiveTaxRate    decimal.Decimal `json:"effective_tax_rate"`
	SGKPremium          decimal.Decimal `json:"sgk_premium"`
	UnemploymentPremium decimal.Decimal `json:"unemployment_premium"`
	TotalDeductions     decimal.Decimal `json:"total_deductions"`
	NetSalary           decimal.Decimal `json:"net_salary"`
	Status              string          `json:"status"`
	Notes               string          `json:"notes,omitempty"`
	SettingsID          *uuid.UUID      `json:"settings_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ToPayrollResponse maps a payroll entity
func ToPayrollResponse(p *payroll.Payroll) PayrollResponse {
	resp := PayrollResponse{
		ID:                  p.ID,
		EmployeeID:          p.EmployeeID,
		PeriodStart:         p.PeriodStart,
		PeriodEnd:           p.PeriodEnd,
		GrossSalary:         p.GrossSalary,
		IncomeTax:           p.IncomeTax,
		EffectiveTaxRate:    p.EffectiveTaxRate,
		SGKPremium:          p.SGKPremium,
		UnemploymentPremium: p.UnemploymentPremium,
		TotalDeductions:     p.TotalDeductions,
		NetSalary:           p.NetSalary,
		Status:              string(p.Status),
		Notes:               p.Notes,
		SettingsID:          p.SettingsID,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if p.Employee != nil {
		resp.EmployeeFullName = p.Employee.FullName()
	}
	return resp
}

// DashboardStats are the payroll dashboard figures
type DashboardStats struct {
	TotalEmployees         int64                 `json:"total_employees"`
	TotalPayrolls          int64                 `json:"total_payrolls"`
	CurrentMonthPayrolls   int64                 `json:"current_month_payrolls"`
	TotalGrossSalary       decimal.Decimal       `json:"total_gross_salary"`
	TotalNetSalary         decimal.Decimal       `json:"total_net_salary"`
	CurrentMonthNetSalary  decimal.Decimal       `json:"current_month_net_salary"`
	EstimatedMonthlyBudget decimal.Decimal       `json:"estimated_monthly_budget"`
	BudgetUsagePercent     decimal.Decimal       `json:"budget_usage_percent"`
	RecentActivities       []payroll.ActivityLog `json:"recent_activities"`
	GeneratedAt            time.Time             `json:"generated_at"`
}

// dateOnly truncates t to midnight UTC of its calendar day
func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
