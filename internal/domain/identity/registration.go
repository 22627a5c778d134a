package identity

import (
	"strings"
	"time"

	"github.com/municipal/backoffice/internal/domain/shared"
)

// RegistrationRequest is a self-service sign-up awaiting admin approval.
// The password is hashed at request time and carried over on approval.
type RegistrationRequest struct {
	shared.BaseEntity
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:255;not null"`
	FirstName    string `gorm:"size:100;not null"`
	LastName     string `gorm:"size:100;not null"`
	Role         Role   `gorm:"size:20;not null"`
}

// TableName returns the table name for GORM
func (RegistrationRequest) TableName() string {
	return "registration_requests"
}

// NewRegistrationRequest validates and hashes a sign-up
func NewRegistrationRequest(email, password, firstName, lastName string, role Role) (*RegistrationRequest, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, shared.NewValidationError("First and last name are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	return &RegistrationRequest{
		BaseEntity:   shared.NewBaseEntity(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
	}, nil
}

// RequestedAt returns when the request was submitted
func (r *RegistrationRequest) RequestedAt() time.Time {
	return r.CreatedAt
}

// ToUser builds the active user created on approval
func (r *RegistrationRequest) ToUser() (*User, error) {
	return NewUserWithHash(r.Email, r.PasswordHash, r.FirstName, r.LastName, r.Role)
}
