package dto

import (
	"net/http"

	"github.com/municipal/backoffice/internal/domain/shared"
)

// API error codes, ERR_<CATEGORY>[_<DETAIL>]
const (
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeTokenRevoked = "ERR_TOKEN_REVOKED"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"

	// state transitions (approving a paid payroll, returning a returned loan)
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// rules such as a grave holding one burial or the loan limit of a member
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"

	ErrCodeUpstream            = "ERR_UPSTREAM"
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"

	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

var httpStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeUnauthorized:        http.StatusUnauthorized,
	ErrCodeTokenExpired:        http.StatusUnauthorized,
	ErrCodeTokenInvalid:        http.StatusUnauthorized,
	ErrCodeTokenRevoked:        http.StatusUnauthorized,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:        http.StatusUnprocessableEntity,
	ErrCodeUpstream:            http.StatusBadGateway,
	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the status for an API error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

var fromDomain = map[string]string{
	shared.CodeNotFound:            ErrCodeNotFound,
	shared.CodeAlreadyExists:       ErrCodeAlreadyExists,
	shared.CodeInvalidInput:        ErrCodeInvalidInput,
	shared.CodeInvalidState:        ErrCodeInvalidState,
	shared.CodeBusinessRule:        ErrCodeBusinessRule,
	shared.CodeForbidden:           ErrCodeForbidden,
	shared.CodeConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.CodeUpstream:            ErrCodeUpstream,
	shared.CodeUpstreamUnavailable: ErrCodeUpstreamUnavailable,
	shared.CodeUnauthorized:        ErrCodeUnauthorized,
	shared.CodeInternal:            ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to its API code. API codes
// and unknown codes pass through unchanged.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := fromDomain[code]; ok {
		return apiCode
	}
	return code
}
