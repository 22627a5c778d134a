package payroll

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// DefaultMinimumWage is the gross minimum wage seeded with default settings
var DefaultMinimumWage = decimal.RequireFromString("17002.12")

// TaxBracket is one slice of the progressive income tax. A nil MaxAmount
// makes the bracket unbounded.
type TaxBracket struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SettingsID uuid.UUID        `gorm:"type:uuid;not null;index" json:"-"`
	MinAmount  decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"min_amount"`
	MaxAmount  *decimal.Decimal `gorm:"type:numeric(14,2)" json:"max_amount"`
	Rate       decimal.Decimal  `gorm:"type:numeric(5,2);not null" json:"rate"`
	Order      int              `gorm:"column:sort_order;not null" json:"order"`
}

// TableName returns the table name for GORM
func (TaxBracket) TableName() string {
	return "tax_brackets"
}

// Width is the amount of income the bracket covers; ok is false when unbounded
func (b TaxBracket) Width() (width decimal.Decimal, ok bool) {
	if b.MaxAmount == nil {
		return decimal.Zero, false
	}
	return b.MaxAmount.Sub(b.MinAmount), true
}

// FinancialSettings are the statutory rates in force from EffectiveDate
// within EffectiveYear. Only one settings row per year is active.
type FinancialSettings struct {
	shared.BaseAggregateRoot
	EffectiveYear            int             `gorm:"not null;index"`
	EffectiveDate            time.Time       `gorm:"type:date;not null"`
	MinimumWage              decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	SGKEmployeeRate          decimal.Decimal `gorm:"column:sgk_employee_rate;type:numeric(5,2);not null"`
	SGKEmployerRate          decimal.Decimal `gorm:"column:sgk_employer_rate;type:numeric(5,2);not null"`
	UnemploymentEmployeeRate decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	UnemploymentEmployerRate decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	StampTaxRate             decimal.Decimal `gorm:"type:numeric(6,3);not null"`
	IsActive                 bool            `gorm:"not null"`
	CreatedBy                *uuid.UUID      `gorm:"type:uuid"`
	Brackets                 []TaxBracket    `gorm:"foreignKey:SettingsID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (FinancialSettings) TableName() string {
	return "financial_settings"
}

// SettingsInput carries the values of a new settings version
type SettingsInput struct {
	EffectiveYear            int
	EffectiveDate            time.Time
	MinimumWage              decimal.Decimal
	SGKEmployeeRate          decimal.Decimal
	SGKEmployerRate          decimal.Decimal
	UnemploymentEmployeeRate decimal.Decimal
	UnemploymentEmployerRate decimal.Decimal
	StampTaxRate             decimal.Decimal
	Brackets                 []TaxBracket
	CreatedBy                *uuid.UUID
}

var hundred = decimal.NewFromInt(100)

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}

// NewFinancialSettings validates the input and returns an active settings version
func NewFinancialSettings(in SettingsInput) (*FinancialSettings, error) {
	if in.EffectiveYear < 2000 || in.EffectiveYear > 2100 {
		return nil, shared.NewValidationError("Effective year must be between 2000 and 2100")
	}
	if in.EffectiveDate.IsZero() {
		in.EffectiveDate = time.Date(in.EffectiveYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if in.EffectiveDate.Year() != in.EffectiveYear {
		return nil, shared.NewValidationError("Effective date must fall within the effective year")
	}
	if !in.MinimumWage.IsPositive() {
		return nil, shared.NewValidationError("Minimum wage must be greater than zero")
	}
	for _, r := range []decimal.Decimal{in.SGKEmployeeRate, in.SGKEmployerRate,
		in.UnemploymentEmployeeRate, in.UnemploymentEmployerRate, in.StampTaxRate} {
		if !validRate(r) {
			return nil, shared.NewValidationError("Rates must be between 0 and 100")
		}
	}

	settings := &FinancialSettings{
		BaseAggregateRoot:        shared.NewBaseAggregateRoot(),
		EffectiveYear:            in.EffectiveYear,
		EffectiveDate:            in.EffectiveDate,
		MinimumWage:              in.MinimumWage.Round(2),
		SGKEmployeeRate:          in.SGKEmployeeRate,
		SGKEmployerRate:          in.SGKEmployerRate,
		UnemploymentEmployeeRate: in.UnemploymentEmployeeRate,
		UnemploymentEmployerRate: in.UnemploymentEmployerRate,
		StampTaxRate:             in.StampTaxRate,
		IsActive:                 true,
		CreatedBy:                in.CreatedBy,
	}
	brackets, err := normalizeBrackets(settings.ID, in.Brackets)
	if err != nil {
		return nil, err
	}
	settings.Brackets = brackets
	settings.AddDomainEvent(NewFinancialSettingsCreatedEvent(settings))
	return settings, nil
}

// normalizeBrackets sorts by MinAmount and rejects overlaps or an unbounded
// bracket that is not the last one
func normalizeBrackets(settingsID uuid.UUID, in []TaxBracket) ([]TaxBracket, error) {
	brackets := slices.Clone(in)
	slices.SortFunc(brackets, func(a, b TaxBracket) int {
		return a.MinAmount.Cmp(b.MinAmount)
	})

	for i := range brackets {
		b := &brackets[i]
		if b.MinAmount.IsNegative() {
			return nil, shared.NewValidationError("Bracket minimum cannot be negative")
		}
		if !validRate(b.Rate) {
			return nil, shared.NewValidationError("Bracket rate must be between 0 and 100")
		}
		if b.MaxAmount != nil && !b.MaxAmount.GreaterThan(b.MinAmount) {
			return nil, shared.NewValidationError("Bracket maximum must be greater than its minimum")
		}
		if i > 0 {
			prev := brackets[i-1]
			if prev.MaxAmount == nil {
				return nil, shared.NewValidationError("Only the last bracket may be unbounded")
			}
			if b.MinAmount.LessThan(*prev.MaxAmount) {
				return nil, shared.NewValidationError("Tax brackets must not overlap")
			}
		}
		b.ID = uuid.New()
		b.SettingsID = settingsID
		b.Order = i + 1
	}
	return brackets, nil
}

// Deactivate marks the settings as superseded
func (s *FinancialSettings) Deactivate() {
	if !s.IsActive {
		return
	}
	s.IsActive = false
	s.IncrementVersion()
}

// SortedBrackets returns the brackets ordered by MinAmount
func (s *FinancialSettings) SortedBrackets() []TaxBracket {
	brackets := slices.Clone(s.Brackets)
	slices.SortFunc(brackets, func(a, b TaxBracket) int {
		return a.MinAmount.Cmp(b.MinAmount)
	})
	return brackets
}

func bound(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// DefaultBrackets are the income tax brackets seeded for a new year
func DefaultBrackets() []TaxBracket {
	return []TaxBracket{
		{MinAmount: decimal.Zero, MaxAmount: bound("110000"), Rate: decimal.NewFromInt(15)},
		{MinAmount: decimal.NewFromInt(110000), MaxAmount: bound("230000"), Rate: decimal.NewFromInt(20)},
		{MinAmount: decimal.NewFromInt(230000), MaxAmount: bound("580000"), Rate: decimal.NewFromInt(27)},
		{MinAmount: decimal.NewFromInt(580000), Rate: decimal.NewFromInt(35)},
	}
}

// DefaultSettingsInput returns the default statutory values for year
func DefaultSettingsInput(year int, minimumWage decimal.Decimal) SettingsInput {
	if !minimumWage.IsPositive() {
		minimumWage = DefaultMinimumWage
	}
	return SettingsInput{
		EffectiveYear:            year,
		EffectiveDate:            time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		MinimumWage:              minimumWage,
		SGKEmployeeRate:          decimal.NewFromInt(14),
		SGKEmployerRate:          decimal.RequireFromString("15.5"),
		UnemploymentEmployeeRate: decimal.NewFromInt(1),
		UnemploymentEmployerRate: decimal.NewFromInt(2),
		StampTaxRate:             decimal.RequireFromString("0.759"),
		Brackets:                 DefaultBrackets(),
	}
}
