// Package identity implements the IAM use cases: account management,
// token issuing and the registration approval queue.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/identity"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"go.uber.org/zap"
)

// Default and maximum page size for user listings
const (
	DefaultUserListLimit = 100
	MaxUserListLimit     = 1000
)

var errInvalidCredentials = shared.NewDomainError(shared.CodeUnauthorized, "Incorrect email or password")

// UserService handles user accounts and tokens
type UserService struct {
	users       identity.UserRepository
	jwtService  *auth.JWTService
	revocations auth.Revocations
	events      shared.EventPublisher
	logger      *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(
	users identity.UserRepository,
	jwtService *auth.JWTService,
	revocations auth.Revocations,
	events shared.EventPublisher,
	logger *zap.Logger,
) *UserService {
	return &UserService{
		users:       users,
		jwtService:  jwtService,
		revocations: revocations,
		events:      events,
		logger:      logger,
	}
}

// Create registers an active user. Used by POST /users and by
// the internal provisioning endpoint.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*UserResponse, error) {
	role, err := identity.ParseRole(input.Role)
	if err != nil {
		return nil, err
	}

	user, err := identity.NewUser(input.Email, input.Password, input.FirstName, input.LastName, role)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewConflictError("Email already registered")
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.publish(ctx, user)

	s.logger.Info("User created", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	resp := ToUserResponse(user)
	return &resp, nil
}

// Login verifies credentials and issues an access token
func (s *UserService) Login(ctx context.Context, input LoginInput) (*auth.IssuedToken, error) {
	email, err := identity.NormalizeEmail(input.Email)
	if err != nil {
		return nil, errInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Login attempt for unknown email")
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !user.VerifyPassword(input.Password) {
		s.logger.Warn("Invalid password", zap.String("user_id", user.ID.String()))
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.NewForbiddenError("Account is deactivated")
	}

	token, err := s.jwtService.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, err
	}
	s.logger.Info("User logged in", zap.String("user_id", user.ID.String()))
	return token, nil
}

// Logout revokes the presented token for the rest of its lifetime
func (s *UserService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return shared.NewValidationError("Token has no identifier")
	}
	if s.revocations == nil {
		return nil
	}
	return s.revocations.RevokeToken(ctx, claims.ID, claims.RemainingTTL())
}

// RequireActive fails unless id names an existing, active account. Tokens
// outlive deactivation when a revocation is lost, so authenticated IAM
// routes check the stored account on every request.
func (s *UserService) RequireActive(ctx context.Context, id uuid.UUID) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError(shared.CodeUnauthorized, "Account no longer exists")
		}
		return err
	}
	if !user.IsActive {
		return shared.NewForbiddenError("Account is deactivated")
	}
	return nil
}

// Me returns the caller's own account
func (s *UserService) Me(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

// List returns users in creation order
func (s *UserService) List(ctx context.Context, skip, limit int) (*UserListResponse, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultUserListLimit
	}
	if limit > MaxUserListLimit {
		limit = MaxUserListLimit
	}

	users, total, err := s.users.List(ctx, skip, limit)
	if err != nil {
		return nil, err
	}

	items := make([]UserResponse, len(users))
	for i := range users {
		items[i] = ToUserResponse(&users[i])
	}
	return &UserListResponse{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}

// UpdateRole changes a user's role. Existing tokens keep the old role
// until they expire.
func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*UserResponse, error) {
	parsed, err := identity.ParseRole(role)
	if err != nil {
		return nil, err
	}
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := user.ChangeRole(parsed); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	s.publish(ctx, user)

	resp := ToUserResponse(user)
	return &resp, nil
}

// Deactivate disables a user and revokes every token issued to them
func (s *UserService) Deactivate(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := user.Deactivate(); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	if s.revocations != nil {
		if err := s.revocations.RevokeUser(ctx, user.ID.String(), s.jwtService.AccessTokenExpiration()); err != nil {
			s.logger.Error("Failed to revoke tokens of deactivated user",
				zap.String("user_id", user.ID.String()), zap.Error(err))
		}
	}
	s.publish(ctx, user)

	s.logger.Info("User deactivated", zap.String("user_id", user.ID.String()))
	resp := ToUserResponse(user)
	return &resp, nil
}

func (s *UserService) find(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("User")
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) publish(ctx context.Context, user *identity.User) {
	if err := shared.PublishPending(ctx, s.events, user); err != nil {
		s.logger.Warn("Failed to publish user events", zap.Error(err))
	}
}
