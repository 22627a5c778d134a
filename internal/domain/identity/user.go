// Package identity holds the IAM aggregates: users and pending
// registration requests.
package identity

import (
	"net/mail"
	"strings"

	"github.com/municipal/backoffice/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// Role is the single role carried by a user and its tokens
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// BcryptCost is the cost used for new password hashes
var BcryptCost = bcrypt.DefaultCost

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

// ParseRole validates a role name
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleEmployee:
		return Role(s), nil
	}
	return "", shared.NewValidationError("Invalid role. Only 'admin' or 'employee' are allowed")
}

// User is an IAM account
type User struct {
	shared.BaseAggregateRoot
	Email        string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string `gorm:"size:255;not null"`
	FirstName    string `gorm:"size:100;not null"`
	LastName     string `gorm:"size:100;not null"`
	Role         Role   `gorm:"size:20;not null"`
	IsActive     bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (User) TableName() string {
	return "users"
}

// NewUser creates an active user with a freshly hashed password
func NewUser(email, password, firstName, lastName string, role Role) (*User, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return NewUserWithHash(email, hash, firstName, lastName, role)
}

// NewUserWithHash creates an active user from an already hashed password
func NewUserWithHash(email, passwordHash, firstName, lastName string, role Role) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" || lastName == "" {
		return nil, shared.NewValidationError("First and last name are required")
	}

	user := &User{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Email:             email,
		PasswordHash:      passwordHash,
		FirstName:         firstName,
		LastName:          lastName,
		Role:              role,
		IsActive:          true,
	}
	user.AddDomainEvent(NewUserCreatedEvent(user))
	return user, nil
}

// VerifyPassword checks password against the stored hash
func (u *User) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ChangeRole assigns a new role
func (u *User) ChangeRole(role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	if u.Role == role {
		return nil
	}
	old := u.Role
	u.Role = role
	u.IncrementVersion()
	u.AddDomainEvent(NewUserRoleChangedEvent(u, old))
	return nil
}

// Deactivate disables the account
func (u *User) Deactivate() error {
	if !u.IsActive {
		return shared.NewStateError("User is already inactive")
	}
	u.IsActive = false
	u.IncrementVersion()
	u.AddDomainEvent(NewUserDeactivatedEvent(u))
	return nil
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// FullName returns "First Last"
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// NormalizeEmail trims, lower-cases and validates an email address
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", shared.NewValidationError("Invalid email format")
	}
	return email, nil
}

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", shared.NewDomainError(shared.CodeInternal, "Failed to hash password")
	}
	return string(hash), nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return shared.NewValidationError("Password must be at least 6 characters")
	}
	// bcrypt ignores everything past 72 bytes
	if len(password) > 72 {
		return shared.NewValidationError("Password cannot exceed 72 bytes")
	}
	return nil
}
