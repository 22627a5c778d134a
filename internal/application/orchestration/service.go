// Package orchestration keeps IAM accounts and payroll employee records in
// step across the two independently deployed services.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	payrollapp "github.com/municipal/backoffice/internal/application/payroll"
	"github.com/municipal/backoffice/internal/domain/integration"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/municipal/backoffice/internal/infrastructure/logger"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	metricsModule = "orchestration"
	upstreamIAM   = "iam"
	employeeRole  = "employee"
)

// Pinger reports whether the local database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmployeeDetails are the payroll attributes of a new employee
type EmployeeDetails struct {
	NationalID  string
	Title       string
	Department  string
	HireDate    time.Time
	GrossSalary decimal.Decimal
}

// CreateEmployeeInput provisions an IAM account together with an employee
type CreateEmployeeInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	EmployeeDetails
}

// EmployeeAccount is the result of a successful provisioning
type EmployeeAccount struct {
	Employee payrollapp.EmployeeResponse `json:"employee"`
	Account  integration.Account         `json:"account"`
}

// DeactivationResult reports both halves of a deactivation. IAM failures do
// not roll back the local soft delete.
type DeactivationResult struct {
	Employee        payrollapp.EmployeeResponse `json:"employee"`
	UserDeactivated bool                        `json:"user_deactivated"`
	Warning         string                      `json:"warning,omitempty"`
}

// Health is the combined status of the dependencies
type Health struct {
	IAM      string `json:"iam"`
	Database string `json:"database"`
	Overall  string `json:"overall"`
}

// Service coordinates IAM and payroll
type Service struct {
	iam       integration.IAMClient
	employees *payrollapp.EmployeeService
	db        Pinger
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

// NewService creates an orchestration service; metrics may be nil
func NewService(iam integration.IAMClient, employees *payrollapp.EmployeeService, db Pinger, metrics *telemetry.Metrics, log *zap.Logger) *Service {
	return &Service{iam: iam, employees: employees, db: db, metrics: metrics, logger: log}
}

// CreateEmployeeWithAccount creates the IAM account first and then the
// employee profile linked to it
func (s *Service) CreateEmployeeWithAccount(ctx context.Context, input CreateEmployeeInput) (result *EmployeeAccount, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "create_employee_with_account", started, err)
	}(time.Now())

	if err := s.ensureIAM(ctx); err != nil {
		return nil, err
	}
	if err := s.precheck(ctx, input.FirstName, input.LastName, input.EmployeeDetails); err != nil {
		return nil, err
	}

	account, err := s.iam.CreateUser(ctx, integration.NewAccount{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Role:      employeeRole,
	})
	if err != nil {
		return nil, s.iamFailure(ctx, "create_user", err)
	}

	return s.createProfile(ctx, account, input.FirstName, input.LastName, input.EmployeeDetails)
}

// ApproveRegistration approves a pending IAM registration and creates the
// employee profile for the new account
func (s *Service) ApproveRegistration(ctx context.Context, token string, requestID uuid.UUID, details EmployeeDetails) (result *EmployeeAccount, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "approve_registration", started, err)
	}(time.Now())

	if err := s.ensureIAM(ctx); err != nil {
		return nil, err
	}

	pending, err := s.iam.ListRegistrations(ctx, token)
	if err != nil {
		return nil, s.iamFailure(ctx, "list_registrations", err)
	}
	var request *integration.PendingRegistration
	for i := range pending {
		if pending[i].ID == requestID {
			request = &pending[i]
			break
		}
	}
	if request == nil {
		return nil, shared.NewNotFoundError("Registration request")
	}

	if err := s.precheck(ctx, request.FirstName, request.LastName, details); err != nil {
		return nil, err
	}

	account, err := s.iam.ApproveRegistration(ctx, token, requestID)
	if err != nil {
		return nil, s.iamFailure(ctx, "approve_registration", err)
	}

	return s.createProfile(ctx, account, request.FirstName, request.LastName, details)
}

// DeactivateEmployee soft deletes the employee and then disables the linked
// IAM account
func (s *Service) DeactivateEmployee(ctx context.Context, token string, employeeID uuid.UUID) (result *DeactivationResult, err error) {
	defer func(started time.Time) {
		s.metrics.RecordOperation(ctx, metricsModule, "deactivate_employee", started, err)
	}(time.Now())

	if err := s.ensureIAM(ctx); err != nil {
		return nil, err
	}

	emp, err := s.employees.Deactivate(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	result = &DeactivationResult{Employee: *emp}
	if emp.UserID == nil {
		result.Warning = "Employee has no linked IAM account"
		return result, nil
	}

	if err := s.iam.DeactivateUser(ctx, token, *emp.UserID); err != nil {
		s.metrics.RecordUpstreamError(ctx, upstreamIAM, "deactivate_user")
		logger.For(ctx, s.logger).Warn("Employee deactivated but IAM account is still active",
			zap.String("employee_id", emp.ID.String()),
			zap.String("user_id", emp.UserID.String()),
			zap.Error(err))
		result.Warning = "Employee deactivated but the IAM account could not be deactivated: " + iamMessage(err)
		return result, nil
	}

	result.UserDeactivated = true
	return result, nil
}

// Health checks IAM and the database
func (s *Service) Health(ctx context.Context) Health {
	h := Health{IAM: "up", Database: "up", Overall: "healthy"}
	if err := s.iam.Health(ctx); err != nil {
		h.IAM = "down"
	}
	if s.db == nil || s.db.Ping(ctx) != nil {
		h.Database = "down"
	}
	if h.IAM != "up" || h.Database != "up" {
		h.Overall = "degraded"
	}
	return h
}

// precheck validates the profile before any IAM account exists
func (s *Service) precheck(ctx context.Context, firstName, lastName string, details EmployeeDetails) error {
	if _, err := payroll.NewEmployee(profileInput(firstName, lastName, details, nil).Details(), nil); err != nil {
		return err
	}
	return s.employees.EnsureNationalIDFree(ctx, details.NationalID)
}

func profileInput(firstName, lastName string, details EmployeeDetails, userID *uuid.UUID) payrollapp.EmployeeInput {
	return payrollapp.EmployeeInput{
		NationalID:  details.NationalID,
		FirstName:   firstName,
		LastName:    lastName,
		Title:       details.Title,
		Department:  details.Department,
		HireDate:    details.HireDate,
		GrossSalary: details.GrossSalary,
		UserID:      userID,
	}
}

func (s *Service) createProfile(ctx context.Context, account *integration.Account, firstName, lastName string, details EmployeeDetails) (*EmployeeAccount, error) {
	userID := account.ID
	emp, err := s.employees.Create(ctx, profileInput(firstName, lastName, details, &userID))
	if err != nil {
		logger.For(ctx, s.logger).Error("IAM account created but employee profile failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError(shared.CodeInternal, fmt.Sprintf(
			"IAM account %s was created but the employee profile could not be saved (%s); manual correction is required",
			userID, errorMessage(err)))
	}

	logger.For(ctx, s.logger).Info("Employee provisioned with IAM account",
		zap.String("employee_id", emp.ID.String()),
		zap.String("user_id", userID.String()))
	return &EmployeeAccount{Employee: *emp, Account: *account}, nil
}

func (s *Service) ensureIAM(ctx context.Context) error {
	if err := s.iam.Health(ctx); err != nil {
		s.metrics.RecordUpstreamError(ctx, upstreamIAM, "health")
		logger.For(ctx, s.logger).Warn("IAM health check failed", zap.Error(err))
		return shared.NewDomainError(shared.CodeUpstreamUnavailable, "IAM service is unavailable")
	}
	return nil
}

// iamFailure maps IAM errors: rejections become 400 with the IAM message,
// anything else a bad gateway
func (s *Service) iamFailure(ctx context.Context, op string, err error) error {
	s.metrics.RecordUpstreamError(ctx, upstreamIAM, op)
	var iamErr *integration.IAMError
	if errors.As(err, &iamErr) && iamErr.IsClientError() {
		return shared.NewValidationError(iamErr.Message)
	}
	if errors.Is(err, integration.ErrIAMUnavailable) {
		return shared.NewDomainError(shared.CodeUpstreamUnavailable, "IAM service is unavailable")
	}
	logger.For(ctx, s.logger).Error("IAM call failed", zap.String("operation", op), zap.Error(err))
	return shared.NewDomainError(shared.CodeUpstream, "IAM request failed")
}

func iamMessage(err error) string {
	var iamErr *integration.IAMError
	if errors.As(err, &iamErr) {
		return iamErr.Message
	}
	return "IAM service is unavailable"
}

func errorMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
