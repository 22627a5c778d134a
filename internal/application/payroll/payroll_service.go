package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const metricsModule = "payroll"

// PayrollService creates payroll records and drives their status lifecycle
type PayrollService struct {
	payrolls  payroll.PayrollRepository
	employees payroll.EmployeeRepository
	settings  *SettingsService
	events    shared.EventPublisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

// NewPayrollService creates a new payroll service; metrics may be nil
func NewPayrollService(
	payrolls payroll.PayrollRepository,
	employees payroll.EmployeeRepository,
	settings *SettingsService,
	events shared.EventPublisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *PayrollService {
	return &PayrollService{
		payrolls:  payrolls,
		employees: employees,
		settings:  settings,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create calculates a DRAFT payroll for an active employee using the
// settings in force at the period start
func (s *PayrollService) Create(ctx context.Context, actor Actor, input CreatePayrollInput) (resp *PayrollResponse, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "create_payroll", started, err)
	}(time.Now())

	emp, err := s.employees.FindByID(ctx, input.EmployeeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Employee")
		}
		return nil, err
	}

	start, end := dateOnly(input.PeriodStart), dateOnly(input.PeriodEnd)
	exists, err := s.payrolls.ExistsForPeriod(ctx, emp.ID, start, end)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewConflictError("A payroll already exists for this employee and period")
	}

	gross := emp.GrossSalary
	if input.GrossSalary != nil {
		gross = *input.GrossSalary
	}
	breakdown, err := s.settings.Calculate(ctx, gross, start)
	if err != nil {
		return nil, err
	}

	p, err := payroll.NewPayroll(emp, start, end, breakdown, input.Notes, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.payrolls.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, p)

	s.logger.Info("Payroll created",
		zap.String("payroll_id", p.ID.String()),
		zap.String("employee_id", emp.ID.String()))
	p.Employee = emp
	out := ToPayrollResponse(p)
	return &out, nil
}

// List returns payroll summaries; non-admins only see their own payrolls
func (s *PayrollService) List(ctx context.Context, actor Actor, q PayrollListQuery) (shared.Paginated[payroll.PayrollSummary], error) {
	filter := payroll.PayrollFilter{
		Filter:          shared.Filter{Page: q.Page, PageSize: q.PageSize, Search: q.Search}.Normalize(),
		IncludeInactive: q.IncludeInactive,
		DateFrom:        q.DateFrom,
		DateTo:          q.DateTo,
	}
	if q.Status != "" {
		status, err := payroll.ParseStatus(q.Status)
		if err != nil {
			return shared.Paginated[payroll.PayrollSummary]{}, err
		}
		filter.Status = status
	}

	if !actor.IsAdmin {
		emp, err := s.employees.FindByUserID(ctx, actor.UserID)
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewPaginated([]payroll.PayrollSummary{}, 0, filter.Page, filter.PageSize), nil
		}
		if err != nil {
			return shared.Paginated[payroll.PayrollSummary]{}, err
		}
		filter.EmployeeID = &emp.ID
		filter.IncludeInactive = true
	}

	rows, total, err := s.payrolls.ListSummaries(ctx, filter)
	if err != nil {
		return shared.Paginated[payroll.PayrollSummary]{}, err
	}
	if rows == nil {
		rows = []payroll.PayrollSummary{}
	}
	return shared.NewPaginated(rows, total, filter.Page, filter.PageSize), nil
}

// Get returns one payroll; non-admins may only read their own
func (s *PayrollService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*PayrollResponse, error) {
	p, err := s.findVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	resp := ToPayrollResponse(p)
	return &resp, nil
}

// Approve moves a draft payroll to APPROVED
func (s *PayrollService) Approve(ctx context.Context, actor Actor, id uuid.UUID) (*PayrollResponse, error) {
	return s.transition(ctx, id, "approve_payroll", func(p *payroll.Payroll) error {
		return p.Approve(actor.UserID)
	})
}

// Pay moves an approved payroll to PAID
func (s *PayrollService) Pay(ctx context.Context, actor Actor, id uuid.UUID) (*PayrollResponse, error) {
	return s.transition(ctx, id, "pay_payroll", func(p *payroll.Payroll) error {
		return p.MarkPaid(actor.UserID)
	})
}

// Cancel moves a draft or approved payroll to CANCELLED
func (s *PayrollService) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*PayrollResponse, error) {
	return s.transition(ctx, id, "cancel_payroll", func(p *payroll.Payroll) error {
		return p.Cancel(actor.UserID)
	})
}

// Delete removes a DRAFT or CANCELLED payroll
func (s *PayrollService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := p.MarkDeleted(actor.UserID); err != nil {
		return err
	}
	if err := s.payrolls.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, p)
	return nil
}

func (s *PayrollService) transition(ctx context.Context, id uuid.UUID, op string, apply func(*payroll.Payroll) error) (resp *PayrollResponse, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, op, started, err)
	}(time.Now())

	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(p); err != nil {
		return nil, err
	}
	if err := s.payrolls.Update(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, p)

	out := ToPayrollResponse(p)
	return &out, nil
}

// findVisible loads a payroll and enforces that employees only see their own
func (s *PayrollService) findVisible(ctx context.Context, actor Actor, id uuid.UUID) (*payroll.Payroll, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin {
		return p, nil
	}
	if p.Employee == nil || !p.Employee.BelongsTo(actor.UserID) {
		return nil, shared.NewForbiddenError("You can only view your own payrolls")
	}
	return p, nil
}

func (s *PayrollService) find(ctx context.Context, id uuid.UUID) (*payroll.Payroll, error) {
	p, err := s.payrolls.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Payroll")
		}
		return nil, err
	}
	return p, nil
}

func (s *PayrollService) publish(ctx context.Context, p *payroll.Payroll) {
	if err := shared.PublishPending(ctx, s.events, p); err != nil {
		s.logger.Warn("Failed to publish payroll events", zap.Error(err))
	}
}
