package payroll

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmployee(t *testing.T) *Employee {
	t.Helper()
	emp, err := NewEmployee(EmployeeDetails{
		NationalID:  "12345678901",
		FirstName:   " Mehmet ",
		LastName:    "Demir",
		Title:       "Engineer",
		Department:  "Public Works",
		HireDate:    time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		GrossSalary: dec("45000"),
	}, nil)
	require.NoError(t, err)
	emp.ClearDomainEvents()
	return emp
}

func newTestPayroll(t *testing.T, emp *Employee) *Payroll {
	t.Helper()
	b, err := NewCalculator(DefaultFallbackRates()).Calculate(emp.GrossSalary, nil)
	require.NoError(t, err)
	p, err := NewPayroll(emp,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		b, "", uuid.New())
	require.NoError(t, err)
	return p
}

func TestNewEmployee(t *testing.T) {
	emp, err := NewEmployee(EmployeeDetails{
		NationalID:  "12345678901",
		FirstName:   " Mehmet ",
		LastName:    "Demir",
		HireDate:    time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
		GrossSalary: dec("45000.456"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Mehmet Demir", emp.FullName())
	assert.True(t, emp.IsActive)
	assert.Equal(t, "45000.46", emp.GrossSalary.StringFixed(2))
	require.Len(t, emp.GetDomainEvents(), 1)
	assert.Equal(t, EventTypeEmployeeCreated, emp.GetDomainEvents()[0].EventType())
}

func TestNewEmployee_Validation(t *testing.T) {
	base := EmployeeDetails{
		NationalID:  "12345678901",
		FirstName:   "A",
		LastName:    "B",
		HireDate:    time.Now(),
		GrossSalary: dec("1000"),
	}
	tests := []struct {
		name   string
		mutate func(d *EmployeeDetails)
	}{
		{"short national id", func(d *EmployeeDetails) { d.NationalID = "123" }},
		{"letters in national id", func(d *EmployeeDetails) { d.NationalID = "1234567890a" }},
		{"missing name", func(d *EmployeeDetails) { d.FirstName = "  " }},
		{"missing hire date", func(d *EmployeeDetails) { d.HireDate = time.Time{} }},
		{"zero salary", func(d *EmployeeDetails) { d.GrossSalary = dec("0") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			_, err := NewEmployee(d, nil)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "INVALID_INPUT", domainErr.Code)
		})
	}
}

func TestEmployee_DeactivateAndOwnership(t *testing.T) {
	userID := uuid.New()
	emp := newTestEmployee(t)
	emp.UserID = &userID

	assert.True(t, emp.BelongsTo(userID))
	assert.False(t, emp.BelongsTo(uuid.New()))

	require.NoError(t, emp.Deactivate())
	assert.False(t, emp.IsActive)
	require.Len(t, emp.GetDomainEvents(), 1)
	evt := emp.GetDomainEvents()[0].(*EmployeeDeactivatedEvent)
	assert.Equal(t, &userID, evt.UserID)

	err := emp.Deactivate()
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestNewPayroll(t *testing.T) {
	emp := newTestEmployee(t)
	p := newTestPayroll(t, emp)

	assert.Equal(t, StatusDraft, p.Status)
	assert.Equal(t, emp.ID, p.EmployeeID)
	assert.Equal(t, "45000.00", p.GrossSalary.StringFixed(2))
	assert.True(t, p.NetSalary.LessThan(p.GrossSalary))
	require.Len(t, p.GetDomainEvents(), 1)
	created := p.GetDomainEvents()[0].(*PayrollCreatedEvent)
	assert.Equal(t, "2025-01", created.Period)
	assert.Contains(t, created.Describe(), "Mehmet Demir")
}

func TestNewPayroll_Rejects(t *testing.T) {
	emp := newTestEmployee(t)
	b, err := NewCalculator(DefaultFallbackRates()).Calculate(emp.GrossSalary, nil)
	require.NoError(t, err)

	_, err = NewPayroll(emp, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), b, "", uuid.Nil)
	assert.Error(t, err)

	require.NoError(t, emp.Deactivate())
	_, err = NewPayroll(emp, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), b, "", uuid.Nil)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestPayroll_StatusTransitions(t *testing.T) {
	actor := uuid.New()

	t.Run("draft to approved to paid", func(t *testing.T) {
		p := newTestPayroll(t, newTestEmployee(t))
		p.ClearDomainEvents()

		require.Error(t, p.MarkPaid(actor))
		require.NoError(t, p.Approve(actor))
		assert.Equal(t, StatusApproved, p.Status)
		require.Error(t, p.Approve(actor))
		require.NoError(t, p.MarkPaid(actor))
		assert.Equal(t, StatusPaid, p.Status)

		assert.Error(t, p.Cancel(actor))
		assert.False(t, p.CanDelete())
		assert.Error(t, p.MarkDeleted(actor))

		events := p.GetDomainEvents()
		require.Len(t, events, 2)
		changed := events[1].(*PayrollStatusChangedEvent)
		assert.Equal(t, StatusApproved, changed.From)
		assert.Equal(t, StatusPaid, changed.To)
		assert.Equal(t, actor, changed.Actor())
	})

	t.Run("cancel from approved then delete", func(t *testing.T) {
		p := newTestPayroll(t, newTestEmployee(t))
		require.NoError(t, p.Approve(actor))
		assert.False(t, p.CanDelete())
		require.NoError(t, p.Cancel(actor))
		assert.True(t, p.CanDelete())
		require.NoError(t, p.MarkDeleted(actor))
	})

	t.Run("draft can be deleted", func(t *testing.T) {
		p := newTestPayroll(t, newTestEmployee(t))
		assert.True(t, p.CanDelete())
	})
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("PAID")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, s)

	_, err = ParseStatus("paid")
	assert.Error(t, err)
}

func TestNewActivityFromEvent(t *testing.T) {
	actor := uuid.New()
	p := newTestPayroll(t, newTestEmployee(t))
	p.ClearDomainEvents()
	require.NoError(t, p.Approve(actor))

	entry := NewActivityFromEvent(p.GetDomainEvents()[0])
	assert.Equal(t, EventTypePayrollStatusChanged, entry.Type)
	assert.Equal(t, "Payroll status changed from DRAFT to APPROVED", entry.Message)
	assert.Equal(t, p.ID, entry.EntityID)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, actor, *entry.ActorID)

	emp := newTestEmployee(t)
	require.NoError(t, emp.Deactivate())
	entry = NewActivityFromEvent(emp.GetDomainEvents()[0])
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, "Employee Mehmet Demir deactivated", entry.Message)
}
