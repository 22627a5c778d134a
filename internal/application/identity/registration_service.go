package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/identity"
	"github.com/municipal/backoffice/internal/domain/shared"
	"go.uber.org/zap"
)

// RegistrationService manages the sign-up approval queue
type RegistrationService struct {
	users         identity.UserRepository
	registrations identity.RegistrationRepository
	events        shared.EventPublisher
	logger        *zap.Logger
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	users identity.UserRepository,
	registrations identity.RegistrationRepository,
	events shared.EventPublisher,
	logger *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		users:         users,
		registrations: registrations,
		events:        events,
		logger:        logger,
	}
}

// Register queues a sign-up. The email must be free among both users and
// pending requests.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegistrationResponse, error) {
	role, err := identity.ParseRole(input.Role)
	if err != nil {
		return nil, err
	}
	req, err := identity.NewRegistrationRequest(input.Email, input.Password, input.FirstName, input.LastName, role)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, shared.NewConflictError("Email already registered")
	}
	pending, err := s.registrations.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, shared.NewConflictError("A registration request for this email is already pending")
	}

	if err := s.registrations.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("Registration requested", zap.String("request_id", req.ID.String()))
	resp := ToRegistrationResponse(req)
	return &resp, nil
}

// ListPending returns pending requests newest first
func (s *RegistrationService) ListPending(ctx context.Context) ([]RegistrationResponse, error) {
	reqs, err := s.registrations.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RegistrationResponse, len(reqs))
	for i := range reqs {
		out[i] = ToRegistrationResponse(&reqs[i])
	}
	return out, nil
}

// Approve turns a request into an active user and removes the request
func (s *RegistrationService) Approve(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, shared.NewConflictError("Email already registered")
	}

	user, err := req.ToUser()
	if err != nil {
		return nil, err
	}
	if err := s.registrations.Approve(ctx, req, user); err != nil {
		return nil, err
	}
	if err := shared.PublishPending(ctx, s.events, user); err != nil {
		s.logger.Warn("Failed to publish user events", zap.Error(err))
	}

	s.logger.Info("Registration approved",
		zap.String("request_id", req.ID.String()), zap.String("user_id", user.ID.String()))
	resp := ToUserResponse(user)
	return &resp, nil
}

// Reject discards a request
func (s *RegistrationService) Reject(ctx context.Context, id uuid.UUID) error {
	req, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.registrations.Delete(ctx, req.ID); err != nil {
		return err
	}
	s.logger.Info("Registration rejected", zap.String("request_id", req.ID.String()))
	return nil
}

func (s *RegistrationService) find(ctx context.Context, id uuid.UUID) (*identity.RegistrationRequest, error) {
	req, err := s.registrations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Registration request")
		}
		return nil, err
	}
	return req, nil
}
