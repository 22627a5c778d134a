package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	payrollapp "github.com/municipal/backoffice/internal/application/payroll"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/cache"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/event"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/infrastructure/printing"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	middleware.SetupValidator()
}

type payrollEnv struct {
	engine   *gin.Engine
	admin    map[string]string
	employee map[string]string
	userID   uuid.UUID
}

func bearer(t *testing.T, jwtService *auth.JWTService, userID uuid.UUID, role string) map[string]string {
	t.Helper()
	token, err := jwtService.GenerateAccessToken(userID, role+"@example.com", role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token.AccessToken}
}

func newPayrollEnv(t *testing.T) *payrollEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&payroll.Employee{}, &payroll.FinancialSettings{}, &payroll.TaxBracket{},
		&payroll.Payroll{}, &payroll.ActivityLog{})
	employeeRepo := persistence.NewGormEmployeeRepository(db)
	payrollRepo := persistence.NewGormPayrollRepository(db)
	activityRepo := persistence.NewGormActivityRepository(db)

	bus := event.NewInMemoryEventBus(zap.NewNop())
	settings := payrollapp.NewSettingsService(persistence.NewGormSettingsRepository(db),
		payroll.NewCalculator(payroll.DefaultFallbackRates()), payroll.DefaultMinimumWage, bus, zap.NewNop())
	dashboard := payrollapp.NewDashboardService(employeeRepo, payrollRepo, activityRepo, cache.NewMemoryCache(), time.Minute, zap.NewNop())
	bus.Subscribe(payrollapp.NewActivityRecorder(activityRepo))
	bus.Subscribe(dashboard)

	h := NewPayrollHandler(
		payrollapp.NewEmployeeService(employeeRepo, bus, zap.NewNop()),
		settings,
		payrollapp.NewPayrollService(payrollRepo, employeeRepo, settings, bus, nil, zap.NewNop()),
		dashboard,
		payrollapp.NewPayslipService(payrollRepo, printing.NewTemplateEngine(), printing.DisabledRenderer{}, zap.NewNop()),
	)

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "payroll-handler-test-secret",
		AccessTokenExpiration: 30 * time.Minute,
		Issuer:                "iam",
	})
	engine := gin.New()
	r := router.NewRouter(engine)
	r.Register(h.Routes(middleware.JWTAuthMiddleware(jwtService)))
	r.Setup()

	userID := uuid.New()
	return &payrollEnv{
		engine:   engine,
		admin:    bearer(t, jwtService, uuid.New(), "admin"),
		employee: bearer(t, jwtService, userID, "employee"),
		userID:   userID,
	}
}

func (e *payrollEnv) createEmployee(t *testing.T, nationalID string, userID *uuid.UUID) payrollapp.EmployeeResponse {
	t.Helper()
	body := map[string]any{
		"national_id":  nationalID,
		"first_name":   "Zeynep",
		"last_name":    "Arslan",
		"department":   "Fen İşleri",
		"hire_date":    "2020-09-01",
		"gross_salary": "40000",
	}
	if userID != nil {
		body["user_id"] = userID.String()
	}
	w := testutil.DoJSON(t, e.engine, http.MethodPost, "/api/v1/payroll/employees", body, e.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.DecodeData[payrollapp.EmployeeResponse](t, w)
}

func TestPayrollHandler_RequiresAuthentication(t *testing.T) {
	env := newPayrollEnv(t)
	w := testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/dashboard", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPayrollHandler_Employees(t *testing.T) {
	env := newPayrollEnv(t)
	emp := env.createEmployee(t, "10000000146", &env.userID)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/employees", map[string]any{
		"national_id": "123", "first_name": "A", "last_name": "B", "hire_date": "2020-01-01", "gross_salary": "100",
	}, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeValidation, testutil.ErrorCode(t, w))

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/employees", map[string]any{
		"national_id": "10000000146", "first_name": "A", "last_name": "B", "hire_date": "2020-01-01", "gross_salary": "100",
	}, env.admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/employees", nil, env.employee)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/employees?search=zeynep", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]payrollapp.EmployeeResponse](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/employees/me", nil, env.employee)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, emp.ID, testutil.DecodeData[payrollapp.EmployeeResponse](t, w).ID)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/payroll/employees/"+emp.ID.String(), nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, testutil.DecodeData[payrollapp.EmployeeResponse](t, w).IsActive)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, "/api/v1/payroll/employees/"+emp.ID.String(), nil, env.admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/employees/not-a-uuid", nil, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayrollHandler_SettingsAndCalculate(t *testing.T) {
	env := newPayrollEnv(t)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/calculate",
		map[string]any{"gross_salary": "10000"}, env.employee)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := testutil.DecodeData[payroll.Breakdown](t, w)
	assert.True(t, b.FlatTaxApplied)
	assert.True(t, testutil.Dec("7000").Equal(b.NetSalary))

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/financial-settings/defaults",
		map[string]any{"year": 2025}, env.employee)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/financial-settings/defaults",
		map[string]any{"year": 2025}, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	seeded := testutil.DecodeData[payrollapp.SettingsResponse](t, w)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/financial-settings/effective?date=2025-03-01", nil, env.employee)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, seeded.ID, testutil.DecodeData[payrollapp.SettingsResponse](t, w).ID)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/financial-settings/effective?date=01.03.2025", nil, env.employee)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/calculate",
		map[string]any{"gross_salary": "300000", "date": "2025-03-01"}, env.employee)
	require.Equal(t, http.StatusOK, w.Code)
	b = testutil.DecodeData[payroll.Breakdown](t, w)
	assert.True(t, testutil.Dec("59400").Equal(b.IncomeTax))
	assert.Len(t, b.Brackets, 3)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/financial-settings", map[string]any{
		"effective_year": 2025,
		"minimum_wage":   "22104.67",
		"brackets": []map[string]any{
			{"min_amount": "0", "max_amount": "100000", "rate": "15"},
			{"min_amount": "50000", "rate": "20"},
		},
	}, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/financial-settings?year=2025", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]payrollapp.SettingsResponse](t, w), 1)
}

func TestPayrollHandler_PayrollLifecycle(t *testing.T) {
	env := newPayrollEnv(t)
	emp := env.createEmployee(t, "10000000146", &env.userID)
	other := env.createEmployee(t, "20000000146", nil)

	create := func(employeeID uuid.UUID, start, end string) *httptest.ResponseRecorder {
		return testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/payrolls", map[string]any{
			"employee_id": employeeID, "period_start": start, "period_end": end,
		}, env.admin)
	}

	w := create(emp.ID, "2025-01-01", "2025-01-31")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := testutil.DecodeData[payrollapp.PayrollResponse](t, w)
	assert.Equal(t, "DRAFT", p.Status)

	assert.Equal(t, http.StatusConflict, create(emp.ID, "2025-01-01", "2025-01-31").Code)
	assert.Equal(t, http.StatusNotFound, create(uuid.New(), "2025-01-01", "2025-01-31").Code)
	assert.Equal(t, http.StatusBadRequest, create(emp.ID, "2025-02-10", "2025-02-01").Code)
	require.Equal(t, http.StatusCreated, create(other.ID, "2025-01-01", "2025-01-31").Code)

	base := "/api/v1/payroll/payrolls/" + p.ID.String()
	w = testutil.DoJSON(t, env.engine, http.MethodPost, base+"/pay", nil, env.admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, base+"/approve", nil, env.employee)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, base+"/approve", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "APPROVED", testutil.DecodeData[payrollapp.PayrollResponse](t, w).Status)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, base, nil, env.admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, base+"/cancel", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", testutil.DecodeData[payrollapp.PayrollResponse](t, w).Status)

	// employees see only their own payrolls
	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/payrolls", nil, env.employee)
	require.Equal(t, http.StatusOK, w.Code)
	summaries := testutil.DecodeData[[]payroll.PayrollSummary](t, w)
	require.Len(t, summaries, 1)
	assert.Equal(t, p.ID, summaries[0].ID)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/payrolls?status=CANCELLED", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]payroll.PayrollSummary](t, w), 1)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/payrolls?date_from=bad", nil, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodDelete, base, nil, env.admin)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, base, nil, env.admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/activities", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, testutil.DecodeData[[]payroll.ActivityLog](t, w))
}

func TestPayrollHandler_PayslipAndDashboard(t *testing.T) {
	env := newPayrollEnv(t)
	emp := env.createEmployee(t, "10000000146", &env.userID)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/payroll/payrolls", map[string]any{
		"employee_id": emp.ID, "period_start": "2025-03-01", "period_end": "2025-03-31",
	}, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := testutil.DecodeData[payrollapp.PayrollResponse](t, w)
	base := "/api/v1/payroll/payrolls/" + p.ID.String()

	w = testutil.DoJSON(t, env.engine, http.MethodGet, base+"/payslip", nil, env.employee)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Zeynep Arslan")
	assert.Contains(t, w.Body.String(), "Mart 2025")

	w = testutil.DoJSON(t, env.engine, http.MethodGet, base+"/payslip?format=pdf", nil, env.admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, base+"/payslip?format=docx", nil, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/dashboard", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code)
	stats := testutil.DecodeData[payrollapp.DashboardStats](t, w)
	assert.Equal(t, int64(1), stats.TotalEmployees)
	assert.Equal(t, int64(1), stats.TotalPayrolls)
	assert.True(t, testutil.Dec("40000").Equal(stats.EstimatedMonthlyBudget))

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/payroll/dashboard", nil, env.employee)
	require.Equal(t, http.StatusOK, w.Code)
	own := testutil.DecodeData[payrollapp.DashboardStats](t, w)
	assert.Equal(t, int64(1), own.TotalPayrolls)
}
