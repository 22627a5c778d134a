// Package payroll holds the salary management aggregates: employees,
// versioned financial settings, payroll records and the deduction calculator.
package payroll

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var nationalIDPattern = regexp.MustCompile(`^[0-9]{11}$`)

// IsValidNationalID reports whether s is an 11 digit national id
func IsValidNationalID(s string) bool {
	return nationalIDPattern.MatchString(s)
}

// Employee is a person on the municipal payroll. UserID links the record to
// an IAM account when the employee can log in.
type Employee struct {
	shared.BaseAggregateRoot
	UserID      *uuid.UUID      `gorm:"type:uuid;uniqueIndex"`
	NationalID  string          `gorm:"size:11;not null;uniqueIndex"`
	FirstName   string          `gorm:"size:100;not null"`
	LastName    string          `gorm:"size:100;not null"`
	Title       string          `gorm:"size:100"`
	Department  string          `gorm:"size:100;index"`
	HireDate    time.Time       `gorm:"type:date;not null"`
	GrossSalary decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IsActive    bool            `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (Employee) TableName() string {
	return "employees"
}

// EmployeeDetails are the mutable attributes of an employee
type EmployeeDetails struct {
	NationalID  string
	FirstName   string
	LastName    string
	Title       string
	Department  string
	HireDate    time.Time
	GrossSalary decimal.Decimal
}

func (d EmployeeDetails) normalize() (EmployeeDetails, error) {
	d.NationalID = strings.TrimSpace(d.NationalID)
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Title = strings.TrimSpace(d.Title)
	d.Department = strings.TrimSpace(d.Department)

	if !IsValidNationalID(d.NationalID) {
		return d, shared.NewValidationError("National ID must be exactly 11 digits")
	}
	if d.FirstName == "" || d.LastName == "" {
		return d, shared.NewValidationError("First and last name are required")
	}
	if d.HireDate.IsZero() {
		return d, shared.NewValidationError("Hire date is required")
	}
	if !d.GrossSalary.IsPositive() {
		return d, shared.NewValidationError("Gross salary must be greater than zero")
	}
	d.GrossSalary = d.GrossSalary.Round(2)
	return d, nil
}

// NewEmployee creates an active employee, optionally linked to an IAM user
func NewEmployee(details EmployeeDetails, userID *uuid.UUID) (*Employee, error) {
	details, err := details.normalize()
	if err != nil {
		return nil, err
	}

	emp := &Employee{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		UserID:            userID,
		NationalID:        details.NationalID,
		FirstName:         details.FirstName,
		LastName:          details.LastName,
		Title:             details.Title,
		Department:        details.Department,
		HireDate:          details.HireDate,
		GrossSalary:       details.GrossSalary,
		IsActive:          true,
	}
	emp.AddDomainEvent(NewEmployeeCreatedEvent(emp))
	return emp, nil
}

// Update replaces the employee's attributes
func (e *Employee) Update(details EmployeeDetails) error {
	details, err := details.normalize()
	if err != nil {
		return err
	}
	e.NationalID = details.NationalID
	e.FirstName = details.FirstName
	e.LastName = details.LastName
	e.Title = details.Title
	e.Department = details.Department
	e.HireDate = details.HireDate
	e.GrossSalary = details.GrossSalary
	e.IncrementVersion()
	e.AddDomainEvent(NewEmployeeUpdatedEvent(e))
	return nil
}

// Deactivate is the soft delete of an employee
func (e *Employee) Deactivate() error {
	if !e.IsActive {
		return shared.NewStateError("Employee is already inactive")
	}
	e.IsActive = false
	e.IncrementVersion()
	e.AddDomainEvent(NewEmployeeDeactivatedEvent(e))
	return nil
}

// FullName returns "First Last"
func (e *Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// BelongsTo reports whether the employee record is linked to the IAM user
func (e *Employee) BelongsTo(userID uuid.UUID) bool {
	return e.UserID != nil && *e.UserID == userID
}
