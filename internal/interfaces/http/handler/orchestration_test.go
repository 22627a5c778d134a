package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/application/orchestration"
	payrollapp "github.com/municipal/backoffice/internal/application/payroll"
	"github.com/municipal/backoffice/internal/domain/integration"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/event"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orchestrationEnv struct {
	engine    *gin.Engine
	iam       *testutil.MockIAMClient
	employees *payrollapp.EmployeeService
	admin     map[string]string
	user      map[string]string
}

func newOrchestrationEnv(t *testing.T) *orchestrationEnv {
	t.Helper()
	gormDB := testutil.NewSQLiteDB(t, &payroll.Employee{})
	employees := payrollapp.NewEmployeeService(persistence.NewGormEmployeeRepository(gormDB),
		event.NewInMemoryEventBus(zap.NewNop()), zap.NewNop())
	iam := new(testutil.MockIAMClient)
	svc := orchestration.NewService(iam, employees, persistence.NewDatabaseFromGorm(gormDB), nil, zap.NewNop())

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "orchestration-handler-test-secret",
		AccessTokenExpiration: 30 * time.Minute,
		Issuer:                "iam",
	})
	engine := gin.New()
	r := router.NewRouter(engine)
	r.Register(NewOrchestrationHandler(svc).Routes(middleware.JWTAuthMiddleware(jwtService)))
	r.Setup()

	return &orchestrationEnv{
		engine:    engine,
		iam:       iam,
		employees: employees,
		admin:     bearer(t, jwtService, uuid.New(), "admin"),
		user:      bearer(t, jwtService, uuid.New(), "employee"),
	}
}

func provisionBody() map[string]any {
	return map[string]any{
		"email":        "selin@example.com",
		"password":     "secret123",
		"first_name":   "Selin",
		"last_name":    "Aydın",
		"national_id":  "10000000146",
		"department":   "Zabıta",
		"hire_date":    "2024-05-02",
		"gross_salary": "32000",
	}
}

func TestOrchestrationHandler_CreateEmployee(t *testing.T) {
	env := newOrchestrationEnv(t)
	userID := uuid.New()
	env.iam.On("Health", mock.Anything).Return(nil)
	env.iam.On("CreateUser", mock.Anything, mock.Anything).
		Return(&integration.Account{ID: userID, Email: "selin@example.com", Role: "employee", IsActive: true}, nil)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/orchestration/employees", provisionBody(), env.user)
	assert.Equal(t, http.StatusForbidden, w.Code)

	body := provisionBody()
	body["email"] = "not-an-email"
	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/orchestration/employees", body, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env.iam.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/orchestration/employees", provisionBody(), env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := testutil.DecodeData[orchestration.EmployeeAccount](t, w)
	assert.Equal(t, "Selin", result.Employee.FirstName)
	require.NotNil(t, result.Employee.UserID)
	assert.Equal(t, userID, *result.Employee.UserID)

	w = testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/orchestration/employees", provisionBody(), env.admin)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOrchestrationHandler_IAMDown(t *testing.T) {
	env := newOrchestrationEnv(t)
	env.iam.On("Health", mock.Anything).Return(integration.ErrIAMUnavailable)

	w := testutil.DoJSON(t, env.engine, http.MethodPost, "/api/v1/orchestration/employees", provisionBody(), env.admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = testutil.DoJSON(t, env.engine, http.MethodGet, "/api/v1/orchestration/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := testutil.DecodeData[orchestration.Health](t, w)
	assert.Equal(t, "down", health.IAM)
	assert.Equal(t, "up", health.Database)
	assert.Equal(t, "degraded", health.Overall)
}

func TestOrchestrationHandler_ApproveRegistrationForwardsToken(t *testing.T) {
	env := newOrchestrationEnv(t)
	requestID := uuid.New()
	adminToken := strings.TrimPrefix(env.admin["Authorization"], "Bearer ")

	env.iam.On("Health", mock.Anything).Return(nil)
	env.iam.On("ListRegistrations", mock.Anything, adminToken).Return([]integration.PendingRegistration{
		{ID: requestID, Email: "burak@example.com", FirstName: "Burak", LastName: "Şahin"},
	}, nil)
	env.iam.On("ApproveRegistration", mock.Anything, adminToken, requestID).
		Return(&integration.Account{ID: uuid.New(), Email: "burak@example.com", IsActive: true}, nil)

	details := map[string]any{"national_id": "10000000146", "hire_date": "2024-01-15", "gross_salary": 28000}
	w := testutil.DoJSON(t, env.engine, http.MethodPost,
		"/api/v1/orchestration/registrations/"+requestID.String()+"/approve", details, env.admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	result := testutil.DecodeData[orchestration.EmployeeAccount](t, w)
	assert.Equal(t, "Burak", result.Employee.FirstName)

	w = testutil.DoJSON(t, env.engine, http.MethodPost,
		"/api/v1/orchestration/registrations/not-a-uuid/approve", details, env.admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrchestrationHandler_DeactivateEmployee(t *testing.T) {
	env := newOrchestrationEnv(t)
	userID := uuid.New()
	emp, err := env.employees.Create(t.Context(), payrollapp.EmployeeInput{
		NationalID: "10000000146", FirstName: "Deniz", LastName: "Yıldız",
		HireDate: testutil.Date(2019, 6, 1), GrossSalary: testutil.Dec("26000"), UserID: &userID,
	})
	require.NoError(t, err)

	env.iam.On("Health", mock.Anything).Return(nil)
	env.iam.On("DeactivateUser", mock.Anything, mock.Anything, userID).Return(integration.ErrIAMUnavailable)

	w := testutil.DoJSON(t, env.engine, http.MethodPost,
		"/api/v1/orchestration/employees/"+emp.ID.String()+"/deactivate", nil, env.admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := testutil.DecodeData[orchestration.DeactivationResult](t, w)
	assert.False(t, result.Employee.IsActive)
	assert.False(t, result.UserDeactivated)
	assert.NotEmpty(t, result.Warning)

	w = testutil.DoJSON(t, env.engine, http.MethodPost,
		"/api/v1/orchestration/employees/"+emp.ID.String()+"/deactivate", nil, env.admin)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
