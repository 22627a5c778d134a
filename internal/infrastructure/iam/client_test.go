package iam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/integration"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.IAMConfig{BaseURL: srv.URL + "/", Timeout: time.Second, InternalKey: "k1"}, zap.NewNop())
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","service":"iam"}`))
	})
	assert.NoError(t, c.Health(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.ErrorIs(t, down.Health(context.Background()), integration.ErrIAMUnavailable)

	unreachable := NewClient(config.IAMConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())
	assert.ErrorIs(t, unreachable.Health(context.Background()), integration.ErrIAMUnavailable)
}

func TestClient_CreateUser(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/users", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-Internal-Key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body integration.NewAccount
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Email == "taken@example.com" {
			writeError(w, http.StatusConflict, "ERR_ALREADY_EXISTS", "Email already registered")
			return
		}
		assert.Equal(t, "employee", body.Role)
		writeData(w, http.StatusCreated, map[string]any{
			"id": id, "email": body.Email, "first_name": body.FirstName, "last_name": body.LastName,
			"role": body.Role, "is_active": true,
		})
	})

	acc, err := c.CreateUser(context.Background(), integration.NewAccount{
		Email: "new@example.com", Password: "secret1", FirstName: "Ali", LastName: "Veli", Role: "employee",
	})
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
	assert.True(t, acc.IsActive)

	_, err = c.CreateUser(context.Background(), integration.NewAccount{Email: "taken@example.com", Role: "employee"})
	var iamErr *integration.IAMError
	require.True(t, errors.As(err, &iamErr))
	assert.Equal(t, http.StatusConflict, iamErr.Status)
	assert.Equal(t, "ERR_ALREADY_EXISTS", iamErr.Code)
	assert.Equal(t, "Email already registered", iamErr.Message)
	assert.True(t, iamErr.IsClientError())
}

func TestClient_AdminCallsForwardToken(t *testing.T) {
	reqID, userID := uuid.New(), uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/admin/registrations":
			writeData(w, http.StatusOK, []map[string]any{
				{"id": reqID, "email": "applicant@example.com", "first_name": "Can", "last_name": "Ozturk", "role": "employee"},
			})
		case "/admin/registrations/approve/" + reqID.String():
			writeData(w, http.StatusOK, map[string]any{"id": userID, "email": "applicant@example.com", "is_active": true})
		case "/admin/users/" + userID.String() + "/deactivate":
			writeData(w, http.StatusOK, map[string]any{"id": userID, "is_active": false})
		default:
			writeError(w, http.StatusNotFound, "ERR_NOT_FOUND", "not found")
		}
	})
	ctx := context.Background()

	regs, err := c.ListRegistrations(ctx, "admin-token")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "Can", regs[0].FirstName)

	acc, err := c.ApproveRegistration(ctx, "admin-token", reqID)
	require.NoError(t, err)
	assert.Equal(t, userID, acc.ID)

	require.NoError(t, c.DeactivateUser(ctx, "admin-token", userID))

	err = c.DeactivateUser(ctx, "admin-token", uuid.New())
	var iamErr *integration.IAMError
	require.ErrorAs(t, err, &iamErr)
	assert.Equal(t, http.StatusNotFound, iamErr.Status)
}

func TestClient_InvalidResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>proxy</html>"))
	})
	_, err := c.ListRegistrations(context.Background(), "t")
	assert.ErrorIs(t, err, integration.ErrIAMInvalidResponse)
}
