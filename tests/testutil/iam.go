package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/municipal/backoffice/internal/domain/integration"
)

// MockIAMClient is a mock implementation of integration.IAMClient.
type MockIAMClient struct {
	mock.Mock
}

func (m *MockIAMClient) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIAMClient) CreateUser(ctx context.Context, account integration.NewAccount) (*integration.Account, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Account), args.Error(1)
}

func (m *MockIAMClient) ListRegistrations(ctx context.Context, token string) ([]integration.PendingRegistration, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.PendingRegistration), args.Error(1)
}

func (m *MockIAMClient) ApproveRegistration(ctx context.Context, token string, requestID uuid.UUID) (*integration.Account, error) {
	args := m.Called(ctx, token, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.Account), args.Error(1)
}

func (m *MockIAMClient) DeactivateUser(ctx context.Context, token string, userID uuid.UUID) error {
	args := m.Called(ctx, token, userID)
	return args.Error(0)
}

var _ integration.IAMClient = (*MockIAMClient)(nil)
