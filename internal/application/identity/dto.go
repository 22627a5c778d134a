package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/identity"
)

// CreateUserInput is the payload for creating a user directly
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// LoginInput holds login credentials
type LoginInput struct {
	Email    string
	Password string
}

// RegisterInput is a self-service sign-up
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ToUserResponse maps a user without its password hash
func ToUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// UserListResponse is a page of users
type UserListResponse struct {
	Items []UserResponse `json:"items"`
	Total int64          `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// RegistrationResponse is the view of a pending registration request
type RegistrationResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        string    `json:"role"`
	RequestedAt time.Time `json:"requested_at"`
}

// ToRegistrationResponse maps a registration request
func ToRegistrationResponse(r *identity.RegistrationRequest) RegistrationResponse {
	return RegistrationResponse{
		ID:          r.ID,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Role:        string(r.Role),
		RequestedAt: r.RequestedAt(),
	}
}
