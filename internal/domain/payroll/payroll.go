package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payroll record
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus validates a status name
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusApproved, StatusPaid, StatusCancelled:
		return Status(s), nil
	}
	return "", shared.NewValidationError("Invalid payroll status")
}

// Payroll is the salary record of one employee for one pay period
type Payroll struct {
	shared.BaseAggregateRoot
	EmployeeID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_payroll_period"`
	PeriodStart         time.Time       `gorm:"type:date;not null;uniqueIndex:idx_payroll_period"`
	PeriodEnd           time.Time       `gorm:"type:date;not null;uniqueIndex:idx_payroll_period"`
	GrossSalary         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IncomeTax           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SGKPremium          decimal.Decimal `gorm:"column:sgk_premium;type:numeric(12,2);not null"`
	UnemploymentPremium decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	TotalDeductions     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	NetSalary           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	EffectiveTaxRate    decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	Status              Status          `gorm:"size:20;not null;index"`
	Notes               string          `gorm:"type:text"`
	SettingsID          *uuid.UUID      `gorm:"type:uuid"`
	Employee            *Employee       `gorm:"foreignKey:EmployeeID"`
}

// TableName returns the table name for GORM
func (Payroll) TableName() string {
	return "payrolls"
}

// NewPayroll creates a DRAFT payroll from a calculated breakdown
func NewPayroll(employee *Employee, periodStart, periodEnd time.Time, breakdown *Breakdown, notes string, actor uuid.UUID) (*Payroll, error) {
	if !employee.IsActive {
		return nil, shared.NewStateError("Cannot create a payroll for an inactive employee")
	}
	if periodStart.IsZero() || periodEnd.IsZero() {
		return nil, shared.NewValidationError("Pay period start and end are required")
	}
	if periodEnd.Before(periodStart) {
		return nil, shared.NewValidationError("Pay period end must not be before its start")
	}

	p := &Payroll{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		EmployeeID:          employee.ID,
		PeriodStart:         periodStart,
		PeriodEnd:           periodEnd,
		GrossSalary:         breakdown.GrossSalary,
		IncomeTax:           breakdown.IncomeTax,
		SGKPremium:          breakdown.SGKPremium,
		UnemploymentPremium: breakdown.UnemploymentPremium,
		TotalDeductions:     breakdown.TotalDeductions,
		NetSalary:           breakdown.NetSalary,
		EffectiveTaxRate:    breakdown.EffectiveTaxRate,
		Status:              StatusDraft,
		Notes:               notes,
		SettingsID:          breakdown.SettingsID,
	}
	p.AddDomainEvent(NewPayrollCreatedEvent(p, employee.FullName(), actor))
	return p, nil
}

// Approve moves a draft to APPROVED
func (p *Payroll) Approve(actor uuid.UUID) error {
	if p.Status != StatusDraft {
		return shared.NewStateError("Only draft payrolls can be approved")
	}
	return p.transition(StatusApproved, actor)
}

// MarkPaid moves an approved payroll to PAID
func (p *Payroll) MarkPaid(actor uuid.UUID) error {
	if p.Status != StatusApproved {
		return shared.NewStateError("Only approved payrolls can be paid")
	}
	return p.transition(StatusPaid, actor)
}

// Cancel moves a draft or approved payroll to CANCELLED
func (p *Payroll) Cancel(actor uuid.UUID) error {
	if p.Status != StatusDraft && p.Status != StatusApproved {
		return shared.NewStateError("Only draft or approved payrolls can be cancelled")
	}
	return p.transition(StatusCancelled, actor)
}

// CanDelete reports whether the record may be removed
func (p *Payroll) CanDelete() bool {
	return p.Status == StatusDraft || p.Status == StatusCancelled
}

// MarkDeleted checks deletability and records the deletion event
func (p *Payroll) MarkDeleted(actor uuid.UUID) error {
	if !p.CanDelete() {
		return shared.NewStateError("Only draft or cancelled payrolls can be deleted")
	}
	p.AddDomainEvent(NewPayrollDeletedEvent(p, actor))
	return nil
}

func (p *Payroll) transition(to Status, actor uuid.UUID) error {
	from := p.Status
	p.Status = to
	p.IncrementVersion()
	p.AddDomainEvent(NewPayrollStatusChangedEvent(p, from, actor))
	return nil
}
