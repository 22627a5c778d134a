// Package testutil holds fixtures shared by the package tests: databases,
// gin contexts, request helpers and small value constructors.
package testutil

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockDB is a postgres dialect GORM handle whose statements are checked by
// sqlmock. It is closed when the test ends.
type MockDB struct {
	DB   *gorm.DB
	Mock sqlmock.Sqlmock
	conn *sql.DB
}

func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err, "Failed to create sqlmock")
	t.Cleanup(func() { _ = conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn, DriverName: "postgres"}),
		&gorm.Config{SkipDefaultTransaction: true, DisableAutomaticPing: true})
	require.NoError(t, err, "Failed to open GORM over sqlmock")

	return &MockDB{DB: db, Mock: mock, conn: conn}
}

func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// NewSQLiteDB opens a private in-memory SQLite database with the given models
// migrated. Errors are translated like on postgres so unique violations
// surface as gorm.ErrDuplicatedKey.
func NewSQLiteDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to open SQLite database")
	t.Cleanup(func() {
		if conn, err := db.DB(); err == nil {
			_ = conn.Close()
		}
	})

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...), "Failed to migrate test schema")
	}
	return db
}

// TestContext is a bare gin context for handler helpers that run outside a
// router
type TestContext struct {
	Context  *gin.Context
	Recorder *httptest.ResponseRecorder
}

func NewTestContext(t *testing.T) *TestContext {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return &TestContext{Context: c, Recorder: w}
}

func (tc *TestContext) SetRequestID(id string) {
	tc.Context.Set("request_id", id)
}

// SetUser stores the caller the way the JWT middleware does
func (tc *TestContext) SetUser(id uuid.UUID, role string) {
	tc.Context.Set("jwt_user_id", id.String())
	tc.Context.Set("jwt_role", role)
}

func (tc *TestContext) SetHeader(key, value string) {
	tc.Context.Request.Header.Set(key, value)
}

func (tc *TestContext) ResponseBody() []byte { return tc.Recorder.Body.Bytes() }
func (tc *TestContext) ResponseCode() int    { return tc.Recorder.Code }

// NewTestUUID derives a stable UUID from seed
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("backoffice-test:"+seed))
}

func TestUserID() uuid.UUID {
	return NewTestUUID("user")
}

// Dec parses a decimal literal and panics on malformed input
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date returns midnight UTC of the given day
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
