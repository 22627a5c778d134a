package payroll

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
)

// Aggregate types of payroll events
const (
	AggregateTypeEmployee = "Employee"
	AggregateTypePayroll  = "Payroll"
	AggregateTypeSettings = "FinancialSettings"
)

// Payroll domain event types
const (
	EventTypeEmployeeCreated          = "EmployeeCreated"
	EventTypeEmployeeUpdated          = "EmployeeUpdated"
	EventTypeEmployeeDeactivated      = "EmployeeDeactivated"
	EventTypePayrollCreated           = "PayrollCreated"
	EventTypePayrollStatusChanged     = "PayrollStatusChanged"
	EventTypePayrollDeleted           = "PayrollDeleted"
	EventTypeFinancialSettingsCreated = "FinancialSettingsCreated"
)

// ActivityEventTypes are the events recorded in the activity feed
var ActivityEventTypes = []string{
	EventTypeEmployeeCreated,
	EventTypeEmployeeUpdated,
	EventTypeEmployeeDeactivated,
	EventTypePayrollCreated,
	EventTypePayrollStatusChanged,
	EventTypePayrollDeleted,
	EventTypeFinancialSettingsCreated,
}

// Attributed is implemented by events that know the acting user
type Attributed interface {
	Actor() uuid.UUID
}

type actor struct {
	ActorID uuid.UUID `json:"actor_id"`
}

// Actor returns the user who caused the event
func (a actor) Actor() uuid.UUID {
	return a.ActorID
}

// EmployeeCreatedEvent is published when an employee is hired
type EmployeeCreatedEvent struct {
	shared.BaseDomainEvent
	FullName   string `json:"full_name"`
	Department string `json:"department"`
}

// NewEmployeeCreatedEvent creates a new EmployeeCreatedEvent
func NewEmployeeCreatedEvent(e *Employee) *EmployeeCreatedEvent {
	return &EmployeeCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEmployeeCreated, AggregateTypeEmployee, e.ID),
		FullName:        e.FullName(),
		Department:      e.Department,
	}
}

func (e *EmployeeCreatedEvent) Describe() string {
	return fmt.Sprintf("Employee %s added", e.FullName)
}

// EmployeeUpdatedEvent is published when employee attributes change
type EmployeeUpdatedEvent struct {
	shared.BaseDomainEvent
	FullName string `json:"full_name"`
}

// NewEmployeeUpdatedEvent creates a new EmployeeUpdatedEvent
func NewEmployeeUpdatedEvent(e *Employee) *EmployeeUpdatedEvent {
	return &EmployeeUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEmployeeUpdated, AggregateTypeEmployee, e.ID),
		FullName:        e.FullName(),
	}
}

func (e *EmployeeUpdatedEvent) Describe() string {
	return fmt.Sprintf("Employee %s updated", e.FullName)
}

// EmployeeDeactivatedEvent is published on soft delete
type EmployeeDeactivatedEvent struct {
	shared.BaseDomainEvent
	FullName string     `json:"full_name"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
}

// NewEmployeeDeactivatedEvent creates a new EmployeeDeactivatedEvent
func NewEmployeeDeactivatedEvent(e *Employee) *EmployeeDeactivatedEvent {
	return &EmployeeDeactivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEmployeeDeactivated, AggregateTypeEmployee, e.ID),
		FullName:        e.FullName(),
		UserID:          e.UserID,
	}
}

func (e *EmployeeDeactivatedEvent) Describe() string {
	return fmt.Sprintf("Employee %s deactivated", e.FullName)
}

// PayrollCreatedEvent is published when a payroll draft is calculated
type PayrollCreatedEvent struct {
	shared.BaseDomainEvent
	actor
	EmployeeName string `json:"employee_name"`
	Period       string `json:"period"`
	NetSalary    string `json:"net_salary"`
}

// NewPayrollCreatedEvent creates a new PayrollCreatedEvent
func NewPayrollCreatedEvent(p *Payroll, employeeName string, by uuid.UUID) *PayrollCreatedEvent {
	return &PayrollCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayrollCreated, AggregateTypePayroll, p.ID),
		actor:           actor{ActorID: by},
		EmployeeName:    employeeName,
		Period:          p.PeriodStart.Format("2006-01"),
		NetSalary:       p.NetSalary.StringFixed(2),
	}
}

func (e *PayrollCreatedEvent) Describe() string {
	return fmt.Sprintf("Payroll created for %s (%s), net %s", e.EmployeeName, e.Period, e.NetSalary)
}

// PayrollStatusChangedEvent is published on approve, pay and cancel
type PayrollStatusChangedEvent struct {
	shared.BaseDomainEvent
	actor
	From Status `json:"from"`
	To   Status `json:"to"`
}

// NewPayrollStatusChangedEvent creates a new PayrollStatusChangedEvent
func NewPayrollStatusChangedEvent(p *Payroll, from Status, by uuid.UUID) *PayrollStatusChangedEvent {
	return &PayrollStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayrollStatusChanged, AggregateTypePayroll, p.ID),
		actor:           actor{ActorID: by},
		From:            from,
		To:              p.Status,
	}
}

func (e *PayrollStatusChangedEvent) Describe() string {
	return fmt.Sprintf("Payroll status changed from %s to %s", e.From, e.To)
}

// PayrollDeletedEvent is published when a payroll is removed
type PayrollDeletedEvent struct {
	shared.BaseDomainEvent
	actor
	Status Status `json:"status"`
}

// NewPayrollDeletedEvent creates a new PayrollDeletedEvent
func NewPayrollDeletedEvent(p *Payroll, by uuid.UUID) *PayrollDeletedEvent {
	return &PayrollDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayrollDeleted, AggregateTypePayroll, p.ID),
		actor:           actor{ActorID: by},
		Status:          p.Status,
	}
}

func (e *PayrollDeletedEvent) Describe() string {
	return fmt.Sprintf("%s payroll deleted", e.Status)
}

// FinancialSettingsCreatedEvent is published when a settings version is created
type FinancialSettingsCreatedEvent struct {
	shared.BaseDomainEvent
	EffectiveYear int `json:"effective_year"`
}

// NewFinancialSettingsCreatedEvent creates a new FinancialSettingsCreatedEvent
func NewFinancialSettingsCreatedEvent(s *FinancialSettings) *FinancialSettingsCreatedEvent {
	return &FinancialSettingsCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeFinancialSettingsCreated, AggregateTypeSettings, s.ID),
		EffectiveYear:   s.EffectiveYear,
	}
}

func (e *FinancialSettingsCreatedEvent) Describe() string {
	return fmt.Sprintf("Financial settings for %d created", e.EffectiveYear)
}
