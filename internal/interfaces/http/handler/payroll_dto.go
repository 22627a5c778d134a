package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// parseDate parses an optional YYYY-MM-DD value; empty yields the zero time
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, shared.NewValidationError("Dates must use the YYYY-MM-DD format")
	}
	return t, nil
}

func parseOptionalDate(s string) (*time.Time, error) {
	t, err := parseDate(s)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// EmployeeRequest is the body of POST and PUT /payroll/employees
type EmployeeRequest struct {
	NationalID  string          `json:"national_id" binding:"required,national_id"`
	FirstName   string          `json:"first_name" binding:"required,max=100"`
	LastName    string          `json:"last_name" binding:"required,max=100"`
	Title       string          `json:"title" binding:"max=100"`
	Department  string          `json:"department" binding:"max=100"`
	HireDate    string          `json:"hire_date" binding:"required,datetime=2006-01-02"`
	GrossSalary decimal.Decimal `json:"gross_salary"`
	UserID      *uuid.UUID      `json:"user_id"`
}

// EmployeeListRequest holds the employee list query
type EmployeeListRequest struct {
	IncludeInactive bool   `form:"include_inactive"`
	Search          string `form:"search" binding:"max=100"`
	Department      string `form:"department" binding:"max=100"`
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// BracketRequest is one tax bracket; omit max_amount for the top bracket
type BracketRequest struct {
	MinAmount decimal.Decimal  `json:"min_amount"`
	MaxAmount *decimal.Decimal `json:"max_amount"`
	Rate      decimal.Decimal  `json:"rate"`
}

// SettingsRequest is the body of POST /payroll/financial-settings
type SettingsRequest struct {
	EffectiveYear            int              `json:"effective_year" binding:"required,min=2000,max=2100"`
	EffectiveDate            string           `json:"effective_date" binding:"omitempty,datetime=2006-01-02"`
	MinimumWage              decimal.Decimal  `json:"minimum_wage"`
	SGKEmployeeRate          decimal.Decimal  `json:"sgk_employee_rate"`
	SGKEmployerRate          decimal.Decimal  `json:"sgk_employer_rate"`
	UnemploymentEmployeeRate decimal.Decimal  `json:"unemployment_employee_rate"`
	UnemploymentEmployerRate decimal.Decimal  `json:"unemployment_employer_rate"`
	StampTaxRate             decimal.Decimal  `json:"stamp_tax_rate"`
	Brackets                 []BracketRequest `json:"brackets" binding:"dive"`
}

// SeedSettingsRequest is the body of POST /payroll/financial-settings/defaults
type SeedSettingsRequest struct {
	Year int `json:"year" binding:"omitempty,min=2000,max=2100"`
}

// CalculateRequest is the body of POST /payroll/calculate
type CalculateRequest struct {
	GrossSalary decimal.Decimal `json:"gross_salary"`
	Date        string          `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// CreatePayrollRequest is the body of POST /payroll/payrolls
type CreatePayrollRequest struct {
	EmployeeID  uuid.UUID        `json:"employee_id" binding:"required"`
	PeriodStart string           `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string           `json:"period_end" binding:"required,datetime=2006-01-02"`
	GrossSalary *decimal.Decimal `json:"gross_salary"`
	Notes       string           `json:"notes" binding:"max=1000"`
}

// PayrollListRequest holds the payroll list query
type PayrollListRequest struct {
	IncludeInactive bool   `form:"include_inactive"`
	Search          string `form:"search" binding:"max=100"`
	Status          string `form:"status"`
	DateFrom        string `form:"date_from" binding:"omitempty,datetime=2006-01-02"`
	DateTo          string `form:"date_to" binding:"omitempty,datetime=2006-01-02"`
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}
