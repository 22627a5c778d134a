// Package payroll implements the salary management use cases: employees,
// financial settings, payroll runs, the dashboard and payslips.
package payroll

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"go.uber.org/zap"
)

// EmployeeService manages employee records
type EmployeeService struct {
	employees payroll.EmployeeRepository
	events    shared.EventPublisher
	logger    *zap.Logger
}

// NewEmployeeService creates a new employee service
func NewEmployeeService(employees payroll.EmployeeRepository, events shared.EventPublisher, logger *zap.Logger) *EmployeeService {
	return &EmployeeService{employees: employees, events: events, logger: logger}
}

// Create hires an employee. The national ID must not be used by any
// employee, including inactive ones.
func (s *EmployeeService) Create(ctx context.Context, input EmployeeInput) (*EmployeeResponse, error) {
	emp, err := payroll.NewEmployee(input.Details(), input.UserID)
	if err != nil {
		return nil, err
	}

	if err := s.EnsureNationalIDFree(ctx, emp.NationalID); err != nil {
		return nil, err
	}
	if err := s.employees.Create(ctx, emp); err != nil {
		return nil, err
	}
	s.publish(ctx, emp)

	s.logger.Info("Employee created", zap.String("employee_id", emp.ID.String()))
	resp := ToEmployeeResponse(emp)
	return &resp, nil
}

// EnsureNationalIDFree returns a conflict error when the national ID is taken
func (s *EmployeeService) EnsureNationalIDFree(ctx context.Context, nationalID string) error {
	exists, err := s.employees.ExistsByNationalID(ctx, nationalID)
	if err != nil {
		return err
	}
	if exists {
		return shared.NewConflictError("An employee with this national ID already exists")
	}
	return nil
}

// Get returns an employee; non-admins may only read their own record
func (s *EmployeeService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*EmployeeResponse, error) {
	emp, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && !emp.BelongsTo(actor.UserID) {
		return nil, shared.NewForbiddenError("You can only view your own employee record")
	}
	resp := ToEmployeeResponse(emp)
	return &resp, nil
}

// Me returns the employee record linked to the caller's account
func (s *EmployeeService) Me(ctx context.Context, userID uuid.UUID) (*EmployeeResponse, error) {
	emp, err := s.employees.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Employee profile")
		}
		return nil, err
	}
	resp := ToEmployeeResponse(emp)
	return &resp, nil
}

// List returns a filtered page of employees
func (s *EmployeeService) List(ctx context.Context, q EmployeeListQuery) (shared.Paginated[EmployeeResponse], error) {
	filter := shared.Filter{Page: q.Page, PageSize: q.PageSize, Search: q.Search}.Normalize()
	employees, total, err := s.employees.List(ctx, payroll.EmployeeFilter{
		Filter:          filter,
		IncludeInactive: q.IncludeInactive,
		Department:      q.Department,
	})
	if err != nil {
		return shared.Paginated[EmployeeResponse]{}, err
	}

	items := make([]EmployeeResponse, len(employees))
	for i := range employees {
		items[i] = ToEmployeeResponse(&employees[i])
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// Update replaces an employee's attributes
func (s *EmployeeService) Update(ctx context.Context, id uuid.UUID, input EmployeeInput) (*EmployeeResponse, error) {
	emp, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	details := input.Details()
	if details.NationalID != emp.NationalID {
		if err := s.EnsureNationalIDFree(ctx, details.NationalID); err != nil {
			return nil, err
		}
	}
	if err := emp.Update(details); err != nil {
		return nil, err
	}
	if err := s.employees.Update(ctx, emp); err != nil {
		return nil, err
	}
	s.publish(ctx, emp)

	resp := ToEmployeeResponse(emp)
	return &resp, nil
}

// Deactivate soft deletes an employee and returns the updated record
func (s *EmployeeService) Deactivate(ctx context.Context, id uuid.UUID) (*EmployeeResponse, error) {
	emp, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := emp.Deactivate(); err != nil {
		return nil, err
	}
	if err := s.employees.Update(ctx, emp); err != nil {
		return nil, err
	}
	s.publish(ctx, emp)

	s.logger.Info("Employee deactivated", zap.String("employee_id", emp.ID.String()))
	resp := ToEmployeeResponse(emp)
	return &resp, nil
}

func (s *EmployeeService) find(ctx context.Context, id uuid.UUID) (*payroll.Employee, error) {
	emp, err := s.employees.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Employee")
		}
		return nil, err
	}
	return emp, nil
}

func (s *EmployeeService) publish(ctx context.Context, emp *payroll.Employee) {
	if err := shared.PublishPending(ctx, s.events, emp); err != nil {
		s.logger.Warn("Failed to publish employee events", zap.Error(err))
	}
}
