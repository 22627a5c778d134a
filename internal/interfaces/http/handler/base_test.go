package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/interfaces/http/dto"
	"github.com/municipal/backoffice/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGetRequestID(t *testing.T) {
	tc := testutil.NewTestContext(t)
	tc.SetHeader("X-Request-ID", "header-id")
	assert.Equal(t, "header-id", getRequestID(tc.Context))

	tc.SetRequestID("ctx-id")
	assert.Equal(t, "ctx-id", getRequestID(tc.Context))
}

func TestBaseHandler_Caller(t *testing.T) {
	h := &BaseHandler{}

	tc := testutil.NewTestContext(t)
	_, ok := h.caller(tc.Context)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, tc.ResponseCode())

	tc = testutil.NewTestContext(t)
	id := uuid.New()
	tc.SetUser(id, "admin")
	caller, ok := h.caller(tc.Context)
	require.True(t, ok)
	assert.Equal(t, id, caller.UserID)
	assert.True(t, caller.IsAdmin())
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.NewNotFoundError("Vehicle"), http.StatusNotFound, dto.ErrCodeNotFound},
		{"conflict", shared.NewConflictError("Plate already registered"), http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid state", shared.NewStateError("Grave is occupied"), http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"business rule", shared.NewBusinessRuleError("Loan limit reached"), http.StatusUnprocessableEntity, dto.ErrCodeBusinessRule},
		{"forbidden", shared.NewForbiddenError("Access denied"), http.StatusForbidden, dto.ErrCodeForbidden},
		{"upstream down", shared.ErrUpstreamUnavailable, http.StatusServiceUnavailable, dto.ErrCodeUpstreamUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := testutil.NewTestContext(t)
			(&BaseHandler{}).HandleError(tc.Context, tt.err)

			assert.Equal(t, tt.status, tc.ResponseCode())
			testutil.AssertErrorResponse(t, tc, tt.code)
		})
	}
}

func TestBaseHandler_ParseUUIDParam(t *testing.T) {
	h := &BaseHandler{}
	tc := testutil.NewTestContext(t)
	tc.Context.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	_, ok := h.parseUUIDParam(tc.Context, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, tc.ResponseCode())

	id := uuid.New()
	tc = testutil.NewTestContext(t)
	tc.Context.Params = gin.Params{{Key: "id", Value: id.String()}}
	parsed, ok := h.parseUUIDParam(tc.Context, "id")
	require.True(t, ok)
	assert.Equal(t, id, parsed)
}

func TestPaginated(t *testing.T) {
	tc := testutil.NewTestContext(t)
	Paginated(&BaseHandler{}, tc.Context, shared.NewPaginated([]string{"a", "b"}, 12, 2, 2))

	body := testutil.JSONResponse(t, tc)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(12), meta["total"])
	assert.Equal(t, float64(6), meta["total_pages"])
}
