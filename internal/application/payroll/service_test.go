package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/cache"
	"github.com/municipal/backoffice/internal/infrastructure/event"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/infrastructure/printing"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	employees *EmployeeService
	settings  *SettingsService
	payrolls  *PayrollService
	dashboard *DashboardService
	payslips  *PayslipService
	cache     *cache.MemoryCache
	events    *testutil.EventRecorder
	admin     Actor
}

type stubRenderer struct {
	req *printing.RenderRequest
}

func (r *stubRenderer) Render(_ context.Context, req *printing.RenderRequest) (*printing.PDF, error) {
	r.req = req
	return &printing.PDF{Data: []byte("%PDF-1.4"), Pages: 1}, nil
}

func (r *stubRenderer) Close() error { return nil }

func newFixture(t *testing.T, renderer printing.PDFRenderer) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&payroll.Employee{}, &payroll.FinancialSettings{}, &payroll.TaxBracket{},
		&payroll.Payroll{}, &payroll.ActivityLog{})

	employeeRepo := persistence.NewGormEmployeeRepository(db)
	payrollRepo := persistence.NewGormPayrollRepository(db)
	activityRepo := persistence.NewGormActivityRepository(db)
	settingsRepo := persistence.NewGormSettingsRepository(db)

	bus := event.NewInMemoryEventBus(zap.NewNop())
	memCache := cache.NewMemoryCache()
	recorded := testutil.NewEventRecorder()

	settings := NewSettingsService(settingsRepo, payroll.NewCalculator(payroll.DefaultFallbackRates()),
		payroll.DefaultMinimumWage, bus, zap.NewNop())
	dashboard := NewDashboardService(employeeRepo, payrollRepo, activityRepo, memCache, time.Minute, zap.NewNop())

	bus.Subscribe(NewActivityRecorder(activityRepo))
	bus.Subscribe(dashboard)
	bus.Subscribe(recorded, payroll.ActivityEventTypes...)

	return &fixture{
		employees: NewEmployeeService(employeeRepo, bus, zap.NewNop()),
		settings:  settings,
		payrolls:  NewPayrollService(payrollRepo, employeeRepo, settings, bus, nil, zap.NewNop()),
		dashboard: dashboard,
		payslips:  NewPayslipService(payrollRepo, printing.NewTemplateEngine(), renderer, zap.NewNop()),
		cache:     memCache,
		events:    recorded,
		admin:     Actor{UserID: uuid.New(), IsAdmin: true},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func hire(t *testing.T, f *fixture, nationalID string, userID *uuid.UUID, gross string) *EmployeeResponse {
	t.Helper()
	emp, err := f.employees.Create(context.Background(), EmployeeInput{
		NationalID:  nationalID,
		FirstName:   "Ayşe",
		LastName:    "Kaya",
		Title:       "Accountant",
		Department:  "Finance",
		HireDate:    testutil.Date(2022, 3, 1),
		GrossSalary: testutil.Dec(gross),
		UserID:      userID,
	})
	require.NoError(t, err)
	return emp
}

func monthInput(employeeID uuid.UUID, year int, month time.Month) CreatePayrollInput {
	start := testutil.Date(year, month, 1)
	return CreatePayrollInput{EmployeeID: employeeID, PeriodStart: start, PeriodEnd: start.AddDate(0, 1, -1)}
}

func TestEmployeeService_CreateAndVisibility(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()
	owner := uuid.New()

	emp := hire(t, f, "12345678901", &owner, "30000")
	assert.True(t, emp.IsActive)

	_, err := f.employees.Create(ctx, EmployeeInput{
		NationalID: "12345678901", FirstName: "Can", LastName: "Demir",
		HireDate: testutil.Date(2023, 1, 1), GrossSalary: testutil.Dec("20000"),
	})
	assertCode(t, err, "ALREADY_EXISTS")

	_, err = f.employees.Get(ctx, Actor{UserID: owner}, emp.ID)
	require.NoError(t, err)

	_, err = f.employees.Get(ctx, Actor{UserID: uuid.New()}, emp.ID)
	assertCode(t, err, "FORBIDDEN")

	me, err := f.employees.Me(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, emp.ID, me.ID)

	_, err = f.employees.Me(ctx, uuid.New())
	assertCode(t, err, "NOT_FOUND")
}

func TestEmployeeService_UpdateAndDeactivate(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()

	first := hire(t, f, "11111111111", nil, "30000")
	hire(t, f, "22222222222", nil, "25000")

	_, err := f.employees.Update(ctx, first.ID, EmployeeInput{
		NationalID: "22222222222", FirstName: "Ayşe", LastName: "Kaya",
		HireDate: testutil.Date(2022, 3, 1), GrossSalary: testutil.Dec("30000"),
	})
	assertCode(t, err, "ALREADY_EXISTS")

	updated, err := f.employees.Update(ctx, first.ID, EmployeeInput{
		NationalID: "11111111111", FirstName: "Ayşe", LastName: "Kaya", Department: "Payroll",
		HireDate: testutil.Date(2022, 3, 1), GrossSalary: testutil.Dec("32000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Payroll", updated.Department)
	assert.True(t, testutil.Dec("32000").Equal(updated.GrossSalary))

	deactivated, err := f.employees.Deactivate(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	_, err = f.employees.Deactivate(ctx, first.ID)
	assertCode(t, err, "INVALID_STATE")

	page, err := f.employees.List(ctx, EmployeeListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = f.employees.List(ctx, EmployeeListQuery{IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	_, err = f.employees.Deactivate(ctx, uuid.New())
	assertCode(t, err, "NOT_FOUND")
}

func TestSettingsService_VersionsAndCalculation(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()

	// no settings yet: the configured fallback rates apply
	b, err := f.settings.Calculate(ctx, testutil.Dec("10000"), testutil.Date(2025, 6, 1))
	require.NoError(t, err)
	assert.True(t, b.FlatTaxApplied)
	assert.True(t, testutil.Dec("1500").Equal(b.IncomeTax))
	assert.Nil(t, b.SettingsID)

	_, err = f.settings.Effective(ctx, testutil.Date(2025, 6, 1))
	assertCode(t, err, "NOT_FOUND")

	first, err := f.settings.SeedDefaults(ctx, 2025, f.admin.UserID)
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Len(t, first.Brackets, 4)

	second, err := f.settings.Create(ctx, SettingsInput{
		EffectiveYear:   2025,
		EffectiveDate:   testutil.Date(2025, 7, 1),
		MinimumWage:     testutil.Dec("22104.67"),
		SGKEmployeeRate: testutil.Dec("14"),
		SGKEmployerRate: testutil.Dec("15.5"),
		Brackets: []BracketInput{
			{MinAmount: testutil.Dec("0"), Rate: testutil.Dec("10")},
		},
	}, f.admin.UserID)
	require.NoError(t, err)

	list, err := f.settings.List(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, s := range list {
		assert.Equal(t, s.ID == second.ID, s.IsActive)
	}

	effective, err := f.settings.Effective(ctx, testutil.Date(2025, 8, 15))
	require.NoError(t, err)
	assert.Equal(t, second.ID, effective.ID)

	b, err = f.settings.Calculate(ctx, testutil.Dec("10000"), testutil.Date(2025, 8, 15))
	require.NoError(t, err)
	assert.False(t, b.FlatTaxApplied)
	assert.True(t, testutil.Dec("1000").Equal(b.IncomeTax))
	require.NotNil(t, b.SettingsID)
	assert.Equal(t, second.ID, *b.SettingsID)

	_, err = f.settings.Create(ctx, SettingsInput{EffectiveYear: 1990}, f.admin.UserID)
	assertCode(t, err, "INVALID_INPUT")

	_, err = f.settings.Get(ctx, uuid.New())
	assertCode(t, err, "NOT_FOUND")
}

func TestPayrollService_Lifecycle(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()
	emp := hire(t, f, "12345678901", nil, "30000")

	p, err := f.payrolls.Create(ctx, f.admin, monthInput(emp.ID, 2025, 1))
	require.NoError(t, err)
	assert.Equal(t, "DRAFT", p.Status)
	assert.Equal(t, "Ayşe Kaya", p.EmployeeFullName)
	assert.True(t, p.GrossSalary.Equal(testutil.Dec("30000")))
	assert.True(t, p.NetSalary.Equal(p.GrossSalary.Sub(p.TotalDeductions)))

	_, err = f.payrolls.Create(ctx, f.admin, monthInput(emp.ID, 2025, 1))
	assertCode(t, err, "ALREADY_EXISTS")

	_, err = f.payrolls.Create(ctx, f.admin, monthInput(uuid.New(), 2025, 1))
	assertCode(t, err, "NOT_FOUND")

	_, err = f.payrolls.Pay(ctx, f.admin, p.ID)
	assertCode(t, err, "INVALID_STATE")

	approved, err := f.payrolls.Approve(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", approved.Status)

	paid, err := f.payrolls.Pay(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "PAID", paid.Status)

	_, err = f.payrolls.Cancel(ctx, f.admin, p.ID)
	assertCode(t, err, "INVALID_STATE")

	err = f.payrolls.Delete(ctx, f.admin, p.ID)
	assertCode(t, err, "INVALID_STATE")

	draft, err := f.payrolls.Create(ctx, f.admin, monthInput(emp.ID, 2025, 2))
	require.NoError(t, err)
	require.NoError(t, f.payrolls.Delete(ctx, f.admin, draft.ID))
	_, err = f.payrolls.Get(ctx, f.admin, draft.ID)
	assertCode(t, err, "NOT_FOUND")

	types := f.events.Types()
	assert.Contains(t, types, payroll.EventTypePayrollCreated)
	assert.Contains(t, types, payroll.EventTypePayrollStatusChanged)
	assert.Contains(t, types, payroll.EventTypePayrollDeleted)
}

func TestPayrollService_GrossOverrideAndInactiveEmployee(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()
	emp := hire(t, f, "12345678901", nil, "30000")

	input := monthInput(emp.ID, 2025, 3)
	override := testutil.Dec("45000")
	input.GrossSalary = &override
	p, err := f.payrolls.Create(ctx, f.admin, input)
	require.NoError(t, err)
	assert.True(t, p.GrossSalary.Equal(override))

	bad := monthInput(emp.ID, 2025, 5)
	bad.PeriodEnd = bad.PeriodStart.AddDate(0, 0, -1)
	_, err = f.payrolls.Create(ctx, f.admin, bad)
	assertCode(t, err, "INVALID_INPUT")

	_, err = f.employees.Deactivate(ctx, emp.ID)
	require.NoError(t, err)
	_, err = f.payrolls.Create(ctx, f.admin, monthInput(emp.ID, 2025, 4))
	assertCode(t, err, "INVALID_STATE")
}

func TestPayrollService_EmployeeScope(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()
	owner := uuid.New()
	mine := hire(t, f, "11111111111", &owner, "30000")
	other := hire(t, f, "22222222222", nil, "25000")

	own, err := f.payrolls.Create(ctx, f.admin, monthInput(mine.ID, 2025, 1))
	require.NoError(t, err)
	foreign, err := f.payrolls.Create(ctx, f.admin, monthInput(other.ID, 2025, 1))
	require.NoError(t, err)

	self := Actor{UserID: owner}
	page, err := f.payrolls.List(ctx, self, PayrollListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, own.ID, page.Items[0].ID)

	page, err = f.payrolls.List(ctx, f.admin, PayrollListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	page, err = f.payrolls.List(ctx, Actor{UserID: uuid.New()}, PayrollListQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.NotNil(t, page.Items)

	_, err = f.payrolls.List(ctx, f.admin, PayrollListQuery{Status: "UNKNOWN"})
	assertCode(t, err, "INVALID_INPUT")

	_, err = f.payrolls.Get(ctx, self, own.ID)
	require.NoError(t, err)
	_, err = f.payrolls.Get(ctx, self, foreign.ID)
	assertCode(t, err, "FORBIDDEN")
}

func TestDashboardService_CachesAndInvalidates(t *testing.T) {
	f := newFixture(t, printing.DisabledRenderer{})
	ctx := context.Background()
	f.dashboard.now = func() time.Time { return time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC) }

	owner := uuid.New()
	emp := hire(t, f, "12345678901", &owner, "20000")
	hire(t, f, "22222222222", nil, "30000")

	stats, err := f.dashboard.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEmployees)
	assert.Equal(t, int64(0), stats.TotalPayrolls)
	assert.True(t, testutil.Dec("50000").Equal(stats.EstimatedMonthlyBudget))
	assert.NotEmpty(t, stats.RecentActivities)

	var cached DashboardStats
	require.NoError(t, f.cache.Get(ctx, adminDashboardKey, &cached))

	p, err := f.payrolls.Create(ctx, f.admin, monthInput(emp.ID, 2025, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, f.cache.Get(ctx, adminDashboardKey, &cached), cache.ErrMiss)

	_, err = f.payrolls.Approve(ctx, f.admin, p.ID)
	require.NoError(t, err)
	_, err = f.payrolls.Pay(ctx, f.admin, p.ID)
	require.NoError(t, err)

	stats, err = f.dashboard.Stats(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalPayrolls)
	assert.Equal(t, int64(1), stats.CurrentMonthPayrolls)
	assert.True(t, p.NetSalary.Equal(stats.CurrentMonthNetSalary))
	assert.True(t, BudgetUsage(p.NetSalary, testutil.Dec("50000")).Equal(stats.BudgetUsagePercent))
	messages := make([]string, 0, len(stats.RecentActivities))
	for _, a := range stats.RecentActivities {
		messages = append(messages, a.Message)
	}
	assert.Contains(t, messages, "Payroll status changed from APPROVED to PAID")

	own, err := f.dashboard.Stats(ctx, Actor{UserID: owner})
	require.NoError(t, err)
	assert.Equal(t, int64(1), own.TotalEmployees)
	assert.True(t, testutil.Dec("20000").Equal(own.EstimatedMonthlyBudget))
	assert.Empty(t, own.RecentActivities)

	_, err = f.dashboard.Stats(ctx, Actor{UserID: uuid.New()})
	assertCode(t, err, "NOT_FOUND")
}

func TestBudgetUsage(t *testing.T) {
	assert.True(t, BudgetUsage(testutil.Dec("500"), decimal.Zero).IsZero())
	assert.True(t, testutil.Dec("25").Equal(BudgetUsage(testutil.Dec("250"), testutil.Dec("1000"))))
	assert.True(t, testutil.Dec("100").Equal(BudgetUsage(testutil.Dec("5000"), testutil.Dec("1000"))))
	assert.True(t, testutil.Dec("33.33").Equal(BudgetUsage(testutil.Dec("1"), testutil.Dec("3"))))
}

func TestPayslipService(t *testing.T) {
	renderer := &stubRenderer{}
	f := newFixture(t, renderer)
	ctx := context.Background()
	owner := uuid.New()
	emp := hire(t, f, "12345678901", &owner, "30000")
	p, err := f.payrolls.Create(ctx, f.admin, monthInput(emp.ID, 2025, 2))
	require.NoError(t, err)

	slip, err := f.payslips.HTML(ctx, Actor{UserID: owner}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", slip.ContentType)
	body := string(slip.Data)
	assert.Contains(t, body, "Ayşe Kaya")
	assert.Contains(t, body, "Şubat 2025")
	assert.Contains(t, body, "30.000,00 TL")

	_, err = f.payslips.HTML(ctx, Actor{UserID: uuid.New()}, p.ID)
	assertCode(t, err, "FORBIDDEN")

	pdf, err := f.payslips.PDF(ctx, f.admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), pdf.Data)
	assert.Contains(t, pdf.FileName, "payslip-2025-02-")
	require.NotNil(t, renderer.req)
	assert.Equal(t, printing.PaperSizeA4, renderer.req.PaperSize)

	disabled := NewPayslipService(f.payslips.payrolls, printing.NewTemplateEngine(), printing.DisabledRenderer{}, zap.NewNop())
	_, err = disabled.PDF(ctx, f.admin, p.ID)
	assertCode(t, err, "UPSTREAM_UNAVAILABLE")
}
