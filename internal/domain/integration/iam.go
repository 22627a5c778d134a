package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IAM integration errors
var (
	ErrIAMUnavailable     = errors.New("integration: IAM service unavailable")
	ErrIAMInvalidResponse = errors.New("integration: invalid IAM response")
)

// IAMError is an error answer of the IAM service
type IAMError struct {
	Status  int
	Code    string
	Message string
}

func (e *IAMError) Error() string {
	return fmt.Sprintf("integration: IAM returned %d: %s", e.Status, e.Message)
}

// IsClientError reports whether IAM rejected the request itself (4xx)
func (e *IAMError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// Account is a user account as reported by IAM
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
}

// NewAccount is the payload for provisioning an account
type NewAccount struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// PendingRegistration is a self-registration waiting for approval in IAM
type PendingRegistration struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        string    `json:"role"`
	RequestedAt time.Time `json:"requested_at"`
}

// IAMClient is the port to the identity service. Calls that act on behalf of
// an administrator forward the caller's bearer token.
type IAMClient interface {
	Health(ctx context.Context) error
	CreateUser(ctx context.Context, account NewAccount) (*Account, error)
	ListRegistrations(ctx context.Context, token string) ([]PendingRegistration, error)
	ApproveRegistration(ctx context.Context, token string, requestID uuid.UUID) (*Account, error)
	DeactivateUser(ctx context.Context, token string, userID uuid.UUID) error
}
