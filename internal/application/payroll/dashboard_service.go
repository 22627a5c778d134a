package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecentActivityLimit is the number of activity entries on the dashboard
const RecentActivityLimit = 10

const adminDashboardKey = "dashboard:admin"

var hundred = decimal.NewFromInt(100)

// DashboardService computes dashboard figures and caches them for a short TTL.
// It also listens to payroll events to drop the cached admin view.
type DashboardService struct {
	employees  payroll.EmployeeRepository
	payrolls   payroll.PayrollRepository
	activities payroll.ActivityRepository
	cache      cache.Cache
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewDashboardService creates a dashboard service; a nil cache disables caching
func NewDashboardService(
	employees payroll.EmployeeRepository,
	payrolls payroll.PayrollRepository,
	activities payroll.ActivityRepository,
	c cache.Cache,
	ttl time.Duration,
	logger *zap.Logger,
) *DashboardService {
	return &DashboardService{
		employees:  employees,
		payrolls:   payrolls,
		activities: activities,
		cache:      c,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Stats returns system-wide figures for admins and the caller's own figures
// for employees
func (s *DashboardService) Stats(ctx context.Context, actor Actor) (*DashboardStats, error) {
	key := adminDashboardKey
	if !actor.IsAdmin {
		key = "dashboard:user:" + actor.UserID.String()
	}

	var cached DashboardStats
	if s.cache != nil {
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Dashboard cache read failed", zap.Error(err))
		}
	}

	var stats *DashboardStats
	var err error
	if actor.IsAdmin {
		stats, err = s.adminStats(ctx)
	} else {
		stats, err = s.employeeStats(ctx, actor)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.ttl); err != nil {
			s.logger.Warn("Dashboard cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// RecentActivities returns the newest activity entries
func (s *DashboardService) RecentActivities(ctx context.Context, limit int) ([]payroll.ActivityLog, error) {
	if limit <= 0 || limit > 100 {
		limit = RecentActivityLimit
	}
	entries, err := s.activities.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []payroll.ActivityLog{}
	}
	return entries, nil
}

func (s *DashboardService) monthStart() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func (s *DashboardService) adminStats(ctx context.Context) (*DashboardStats, error) {
	active, err := s.employees.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	budget, err := s.employees.SumActiveGross(ctx)
	if err != nil {
		return nil, err
	}
	totals, err := s.payrolls.Totals(ctx, nil, s.monthStart())
	if err != nil {
		return nil, err
	}
	recent, err := s.RecentActivities(ctx, RecentActivityLimit)
	if err != nil {
		return nil, err
	}
	return s.build(active, budget, totals, recent), nil
}

func (s *DashboardService) employeeStats(ctx context.Context, actor Actor) (*DashboardStats, error) {
	emp, err := s.employees.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Employee profile")
		}
		return nil, err
	}
	totals, err := s.payrolls.Totals(ctx, &emp.ID, s.monthStart())
	if err != nil {
		return nil, err
	}
	return s.build(1, emp.GrossSalary, totals, []payroll.ActivityLog{}), nil
}

func (s *DashboardService) build(employees int64, budget decimal.Decimal, totals *payroll.Totals, recent []payroll.ActivityLog) *DashboardStats {
	return &DashboardStats{
		TotalEmployees:         employees,
		TotalPayrolls:          totals.Count,
		CurrentMonthPayrolls:   totals.CurrentMonth,
		TotalGrossSalary:       totals.Gross.Round(2),
		TotalNetSalary:         totals.Net.Round(2),
		CurrentMonthNetSalary:  totals.CurrentMonthPaid.Round(2),
		EstimatedMonthlyBudget: budget.Round(2),
		BudgetUsagePercent:     BudgetUsage(totals.CurrentMonthPaid, budget),
		RecentActivities:       recent,
		GeneratedAt:            s.now(),
	}
}

// BudgetUsage is paid/budget*100 capped at 100, zero without a budget
func BudgetUsage(paid, budget decimal.Decimal) decimal.Decimal {
	if !budget.IsPositive() {
		return decimal.Zero
	}
	usage := paid.Div(budget).Mul(hundred)
	if usage.GreaterThan(hundred) {
		usage = hundred
	}
	return usage.Round(2)
}

// Handle drops the cached admin dashboard when payroll data changes
func (s *DashboardService) Handle(ctx context.Context, _ shared.DomainEvent) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, adminDashboardKey)
}

// EventTypes returns the payroll events that invalidate the dashboard
func (s *DashboardService) EventTypes() []string {
	return payroll.ActivityEventTypes
}

var _ shared.EventHandler = (*DashboardService)(nil)
