package identity

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines persistence for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// List returns users ordered by creation time
	List(ctx context.Context, skip, limit int) ([]User, int64, error)
}

// RegistrationRepository defines persistence for registration requests
type RegistrationRepository interface {
	Create(ctx context.Context, req *RegistrationRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*RegistrationRequest, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// ListPending returns requests newest first
	ListPending(ctx context.Context) ([]RegistrationRequest, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Approve creates user and deletes the request atomically
	Approve(ctx context.Context, req *RegistrationRequest, user *User) error
}
