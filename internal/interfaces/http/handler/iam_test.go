package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/municipal/backoffice/internal/application/identity"
	domainidentity "github.com/municipal/backoffice/internal/domain/identity"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/municipal/backoffice/internal/interfaces/http/router"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testInternalKey = "internal-test-key"

func init() {
	domainidentity.BcryptCost = bcrypt.MinCost
}

func newIAMEngine(t *testing.T) *gin.Engine {
	t.Helper()
	return newIAMEngineOn(t, testutil.NewSQLiteDB(t, &domainidentity.User{}, &domainidentity.RegistrationRequest{}))
}

// newIAMEngineOn builds the IAM API over db with an empty revocation store,
// as after a restart without Redis
func newIAMEngineOn(t *testing.T, db *gorm.DB) *gin.Engine {
	t.Helper()

	userRepo := persistence.NewGormUserRepository(db)
	regRepo := persistence.NewGormRegistrationRepository(db)
	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "iam-handler-test-secret",
		AccessTokenExpiration: 30 * time.Minute,
		Issuer:                "iam",
	})
	revocations := auth.NewMemoryRevocations()

	h := NewIAMHandler(
		identity.NewUserService(userRepo, jwtService, revocations, nil, zap.NewNop()),
		identity.NewRegistrationService(userRepo, regRepo, nil, zap.NewNop()),
	)
	authn := middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:  jwtService,
		Revocations: revocations,
	})

	engine := gin.New()
	r := router.NewRouter(engine, router.WithBasePath(""))
	for _, g := range h.Routes(authn, testInternalKey) {
		r.Register(g)
	}
	r.Setup()
	return engine
}

func createIAMUser(t *testing.T, engine *gin.Engine, email, role string) identity.UserResponse {
	t.Helper()
	w := testutil.DoJSON(t, engine, http.MethodPost, "/users", map[string]string{
		"email": email, "password": "secret1", "first_name": "Elif", "last_name": "Sahin", "role": role,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return testutil.DecodeData[identity.UserResponse](t, w)
}

func loginIAM(t *testing.T, engine *gin.Engine, email string) map[string]string {
	t.Helper()
	w := testutil.DoJSON(t, engine, http.MethodPost, "/token", map[string]string{"email": email, "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := testutil.DecodeData[auth.IssuedToken](t, w)
	assert.Equal(t, "bearer", token.TokenType)
	return map[string]string{"Authorization": "Bearer " + token.AccessToken}
}

func TestIAMHandler_Health(t *testing.T) {
	engine := newIAMEngine(t)
	w := testutil.DoJSON(t, engine, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"iam"}`, w.Body.String())
}

func TestIAMHandler_CreateUserAndLogin(t *testing.T) {
	engine := newIAMEngine(t)
	user := createIAMUser(t, engine, "Elif@Example.com", "employee")
	assert.Equal(t, "elif@example.com", user.Email)

	w := testutil.DoJSON(t, engine, http.MethodPost, "/users", map[string]string{
		"email": "elif@example.com", "password": "secret1", "first_name": "E", "last_name": "S",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/users", map[string]string{
		"email": "x@example.com", "password": "secret1", "first_name": "E", "last_name": "S", "role": "root",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/token", map[string]string{"email": "elif@example.com", "password": "bad-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	headers := loginIAM(t, engine, "elif@example.com")
	w = testutil.DoJSON(t, engine, http.MethodGet, "/users/me", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.ID, testutil.DecodeData[identity.UserResponse](t, w).ID)
}

func TestIAMHandler_LoginWithForm(t *testing.T) {
	engine := newIAMEngine(t)
	createIAMUser(t, engine, "form@example.com", "employee")

	form := url.Values{"username": {"form@example.com"}, "password": {"secret1"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestIAMHandler_Logout(t *testing.T) {
	engine := newIAMEngine(t)
	createIAMUser(t, engine, "bye@example.com", "employee")
	headers := loginIAM(t, engine, "bye@example.com")

	w := testutil.DoJSON(t, engine, http.MethodPost, "/logout", nil, headers)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodGet, "/users/me", nil, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTokenRevoked, testutil.ErrorCode(t, w))
}

func TestIAMHandler_AdminRoutes(t *testing.T) {
	engine := newIAMEngine(t)
	createIAMUser(t, engine, "admin@example.com", "admin")
	employee := createIAMUser(t, engine, "emp@example.com", "employee")
	adminHeaders := loginIAM(t, engine, "admin@example.com")
	employeeHeaders := loginIAM(t, engine, "emp@example.com")

	w := testutil.DoJSON(t, engine, http.MethodGet, "/users", nil, employeeHeaders)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodGet, "/users?skip=0&limit=1", nil, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	list := testutil.DecodeData[identity.UserListResponse](t, w)
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Items, 1)

	w = testutil.DoJSON(t, engine, http.MethodPut, "/users/"+employee.ID.String()+"/role", map[string]string{"role": "boss"}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodPut, "/users/"+employee.ID.String()+"/role", map[string]string{"role": "admin"}, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", testutil.DecodeData[identity.UserResponse](t, w).Role)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/admin/users/"+employee.ID.String()+"/deactivate", nil, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code)

	// earlier tokens of a deactivated user stop working and login is refused
	w = testutil.DoJSON(t, engine, http.MethodGet, "/users/me", nil, employeeHeaders)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = testutil.DoJSON(t, engine, http.MethodPost, "/token", map[string]string{"email": "emp@example.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestIAMHandler_RegistrationFlow(t *testing.T) {
	engine := newIAMEngine(t)
	createIAMUser(t, engine, "admin@example.com", "admin")
	adminHeaders := loginIAM(t, engine, "admin@example.com")

	w := testutil.DoJSON(t, engine, http.MethodPost, "/register", map[string]string{
		"email": "admin@example.com", "password": "secret1", "first_name": "A", "last_name": "B",
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/register", map[string]string{
		"email": "applicant@example.com", "password": "secret1", "first_name": "Can", "last_name": "Ozturk",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	req := testutil.DecodeData[identity.RegistrationResponse](t, w)

	w = testutil.DoJSON(t, engine, http.MethodGet, "/admin/registrations", nil, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, testutil.DecodeData[[]identity.RegistrationResponse](t, w), 1)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/admin/registrations/approve/"+req.ID.String(), nil, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "applicant@example.com", testutil.DecodeData[identity.UserResponse](t, w).Email)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/admin/registrations/reject/"+req.ID.String(), nil, adminHeaders)
	assert.Equal(t, http.StatusNotFound, w.Code)

	loginIAM(t, engine, "applicant@example.com")
}

func TestIAMHandler_InternalUsers(t *testing.T) {
	engine := newIAMEngine(t)
	body := map[string]string{"email": "svc@example.com", "password": "secret1", "first_name": "Deniz", "last_name": "Aydin"}

	w := testutil.DoJSON(t, engine, http.MethodPost, "/internal/users", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, engine, http.MethodPost, "/internal/users", body, map[string]string{middleware.InternalKeyHeader: testInternalKey})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "employee", testutil.DecodeData[identity.UserResponse](t, w).Role)
}

func TestIAMHandler_DeactivatedUserAfterRestart(t *testing.T) {
	db := testutil.NewSQLiteDB(t, &domainidentity.User{}, &domainidentity.RegistrationRequest{})
	engine := newIAMEngineOn(t, db)
	createIAMUser(t, engine, "admin@example.com", "admin")
	employee := createIAMUser(t, engine, "emp@example.com", "employee")
	adminHeaders := loginIAM(t, engine, "admin@example.com")
	employeeHeaders := loginIAM(t, engine, "emp@example.com")

	w := testutil.DoJSON(t, engine, http.MethodPost, "/admin/users/"+employee.ID.String()+"/deactivate", nil, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	restarted := newIAMEngineOn(t, db)
	w = testutil.DoJSON(t, restarted, http.MethodGet, "/users/me", nil, employeeHeaders)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, dto.ErrCodeForbidden, testutil.ErrorCode(t, w))

	w = testutil.DoJSON(t, restarted, http.MethodPost, "/logout", nil, employeeHeaders)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoJSON(t, restarted, http.MethodGet, "/users/me", nil, adminHeaders)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIAMHandler_DeletedAccountToken(t *testing.T) {
	db := testutil.NewSQLiteDB(t, &domainidentity.User{}, &domainidentity.RegistrationRequest{})
	engine := newIAMEngineOn(t, db)
	user := createIAMUser(t, engine, "gone@example.com", "admin")
	headers := loginIAM(t, engine, "gone@example.com")

	require.NoError(t, db.Delete(&domainidentity.User{}, "id = ?", user.ID).Error)

	w := testutil.DoJSON(t, engine, http.MethodGet, "/admin/registrations", nil, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeUnauthorized, testutil.ErrorCode(t, w))
}
