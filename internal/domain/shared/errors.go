package shared

import "errors"

// DomainError is a rule violation reported to the caller. Code selects the
// HTTP status, Message is shown to the user as is.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewNotFoundError reports "<resource> not found"
func NewNotFoundError(resource string) *DomainError {
	return NewDomainError(CodeNotFound, resource+" not found")
}

func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeInvalidInput, message)
}

func NewConflictError(message string) *DomainError {
	return NewDomainError(CodeAlreadyExists, message)
}

func NewStateError(message string) *DomainError {
	return NewDomainError(CodeInvalidState, message)
}

func NewBusinessRuleError(message string) *DomainError {
	return NewDomainError(CodeBusinessRule, message)
}

func NewForbiddenError(message string) *DomainError {
	return NewDomainError(CodeForbidden, message)
}

// CodeOf returns the code of the DomainError in err's chain, or ""
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidState        = "INVALID_STATE"
	CodeBusinessRule        = "BUSINESS_RULE"
	CodeForbidden           = "FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeUpstream            = "UPSTREAM"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrUpstream            = NewDomainError(CodeUpstream, "Upstream service returned an error")
	ErrUpstreamUnavailable = NewDomainError(CodeUpstreamUnavailable, "Upstream service is unavailable")
)
