package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettingsService manages the versioned financial settings and runs the
// deduction calculator against them
type SettingsService struct {
	settings    payroll.SettingsRepository
	calculator  *payroll.Calculator
	minimumWage decimal.Decimal
	events      shared.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// NewSettingsService creates a new settings service. minimumWage is used when
// seeding default settings.
func NewSettingsService(
	settings payroll.SettingsRepository,
	calculator *payroll.Calculator,
	minimumWage decimal.Decimal,
	events shared.EventPublisher,
	logger *zap.Logger,
) *SettingsService {
	return &SettingsService{
		settings:    settings,
		calculator:  calculator,
		minimumWage: minimumWage,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

// Create stores a new settings version and deactivates the previous active
// version of the same year
func (s *SettingsService) Create(ctx context.Context, input SettingsInput, createdBy uuid.UUID) (*SettingsResponse, error) {
	brackets := make([]payroll.TaxBracket, len(input.Brackets))
	for i, b := range input.Brackets {
		brackets[i] = payroll.TaxBracket{MinAmount: b.MinAmount, MaxAmount: b.MaxAmount, Rate: b.Rate}
	}
	in := payroll.SettingsInput{
		EffectiveYear:            input.EffectiveYear,
		EffectiveDate:            dateOnly(input.EffectiveDate),
		MinimumWage:              input.MinimumWage,
		SGKEmployeeRate:          input.SGKEmployeeRate,
		SGKEmployerRate:          input.SGKEmployerRate,
		UnemploymentEmployeeRate: input.UnemploymentEmployeeRate,
		UnemploymentEmployerRate: input.UnemploymentEmployerRate,
		StampTaxRate:             input.StampTaxRate,
		Brackets:                 brackets,
	}
	if createdBy != uuid.Nil {
		in.CreatedBy = &createdBy
	}
	return s.store(ctx, in)
}

// SeedDefaults stores the default statutory values for year
func (s *SettingsService) SeedDefaults(ctx context.Context, year int, createdBy uuid.UUID) (*SettingsResponse, error) {
	if year == 0 {
		year = s.now().Year()
	}
	in := payroll.DefaultSettingsInput(year, s.minimumWage)
	if createdBy != uuid.Nil {
		in.CreatedBy = &createdBy
	}
	return s.store(ctx, in)
}

func (s *SettingsService) store(ctx context.Context, in payroll.SettingsInput) (*SettingsResponse, error) {
	settings, err := payroll.NewFinancialSettings(in)
	if err != nil {
		return nil, err
	}
	if err := s.settings.Create(ctx, settings); err != nil {
		return nil, err
	}
	if err := shared.PublishPending(ctx, s.events, settings); err != nil {
		s.logger.Warn("Failed to publish settings events", zap.Error(err))
	}

	s.logger.Info("Financial settings created",
		zap.String("settings_id", settings.ID.String()),
		zap.Int("effective_year", settings.EffectiveYear))
	resp := ToSettingsResponse(settings)
	return &resp, nil
}

// List returns settings versions, newest first; year 0 lists all years
func (s *SettingsService) List(ctx context.Context, year int) ([]SettingsResponse, error) {
	list, err := s.settings.List(ctx, year)
	if err != nil {
		return nil, err
	}
	out := make([]SettingsResponse, len(list))
	for i := range list {
		out[i] = ToSettingsResponse(&list[i])
	}
	return out, nil
}

// Get returns one settings version
func (s *SettingsService) Get(ctx context.Context, id uuid.UUID) (*SettingsResponse, error) {
	settings, err := s.settings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("Financial settings")
		}
		return nil, err
	}
	resp := ToSettingsResponse(settings)
	return &resp, nil
}

// Effective returns the settings in force on date (today when zero)
func (s *SettingsService) Effective(ctx context.Context, date time.Time) (*SettingsResponse, error) {
	settings, err := s.forDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, shared.NewNotFoundError("Financial settings for the given date")
	}
	resp := ToSettingsResponse(settings)
	return &resp, nil
}

// Calculate computes the deductions of gross on date (today when zero)
func (s *SettingsService) Calculate(ctx context.Context, gross decimal.Decimal, date time.Time) (*payroll.Breakdown, error) {
	settings, err := s.forDate(ctx, date)
	if err != nil {
		return nil, err
	}
	return s.calculator.Calculate(gross, settings)
}

// forDate returns nil settings when none cover the date, so the calculator
// falls back to the configured rates
func (s *SettingsService) forDate(ctx context.Context, date time.Time) (*payroll.FinancialSettings, error) {
	if date.IsZero() {
		date = s.now()
	}
	settings, err := s.settings.FindEffective(ctx, dateOnly(date))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return settings, err
}
