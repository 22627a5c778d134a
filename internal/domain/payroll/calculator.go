package payroll

import (
	"github.com/google/uuid"
	"github.com/municipal/backoffice/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Rates used when no financial settings cover the payroll date
type Rates struct {
	SGKEmployee  decimal.Decimal
	SGKEmployer  decimal.Decimal
	Unemployment decimal.Decimal
	// FlatTax applies when there are no brackets
	FlatTax decimal.Decimal
}

// DefaultFallbackRates are 14% SGK, 15.5% employer SGK, 1% unemployment and 15% flat tax
func DefaultFallbackRates() Rates {
	return Rates{
		SGKEmployee:  decimal.NewFromInt(14),
		SGKEmployer:  decimal.RequireFromString("15.5"),
		Unemployment: decimal.NewFromInt(1),
		FlatTax:      decimal.NewFromInt(15),
	}
}

// BracketLine shows how much of the salary fell into one bracket
type BracketLine struct {
	MinAmount decimal.Decimal  `json:"min_amount"`
	MaxAmount *decimal.Decimal `json:"max_amount"`
	Rate      decimal.Decimal  `json:"rate"`
	Taxable   decimal.Decimal  `json:"taxable"`
	Tax       decimal.Decimal  `json:"tax"`
}

// Breakdown is the result of a deduction calculation. Every amount is
// rounded to two decimals.
type Breakdown struct {
	GrossSalary         decimal.Decimal `json:"gross_salary"`
	IncomeTax           decimal.Decimal `json:"income_tax"`
	EffectiveTaxRate    decimal.Decimal `json:"effective_tax_rate"`
	SGKRate             decimal.Decimal `json:"sgk_rate"`
	SGKPremium          decimal.Decimal `json:"sgk_premium"`
	UnemploymentRate    decimal.Decimal `json:"unemployment_rate"`
	UnemploymentPremium decimal.Decimal `json:"unemployment_premium"`
	TotalDeductions     decimal.Decimal `json:"total_deductions"`
	NetSalary           decimal.Decimal `json:"net_salary"`
	EmployerSGKPremium  decimal.Decimal `json:"employer_sgk_premium"`
	Brackets            []BracketLine   `json:"brackets"`
	FlatTaxApplied      bool            `json:"flat_tax_applied"`
	SettingsID          *uuid.UUID      `json:"settings_id,omitempty"`
}

// Calculator computes payroll deductions from gross salary
type Calculator struct {
	fallback Rates
}

// NewCalculator creates a calculator with the given fallback rates
func NewCalculator(fallback Rates) *Calculator {
	return &Calculator{fallback: fallback}
}

// Calculate applies settings (nil means fallback rates and flat tax) to gross
func (c *Calculator) Calculate(gross decimal.Decimal, settings *FinancialSettings) (*Breakdown, error) {
	if !gross.IsPositive() {
		return nil, shared.NewValidationError("Gross salary must be greater than zero")
	}

	sgkRate, employerRate, unemploymentRate := c.fallback.SGKEmployee, c.fallback.SGKEmployer, c.fallback.Unemployment
	var brackets []TaxBracket
	var settingsID *uuid.UUID
	if settings != nil {
		sgkRate = orDefault(settings.SGKEmployeeRate, sgkRate)
		employerRate = orDefault(settings.SGKEmployerRate, employerRate)
		unemploymentRate = orDefault(settings.UnemploymentEmployeeRate, unemploymentRate)
		brackets = settings.SortedBrackets()
		id := settings.ID
		settingsID = &id
	}

	tax, lines := c.incomeTax(gross, brackets)
	sgk := percent(gross, sgkRate)
	unemployment := percent(gross, unemploymentRate)
	total := tax.Add(sgk).Add(unemployment)

	return &Breakdown{
		GrossSalary:         gross.Round(2),
		IncomeTax:           tax.Round(2),
		EffectiveTaxRate:    tax.Div(gross).Mul(hundred).Round(2),
		SGKRate:             sgkRate,
		SGKPremium:          sgk.Round(2),
		UnemploymentRate:    unemploymentRate,
		UnemploymentPremium: unemployment.Round(2),
		TotalDeductions:     total.Round(2),
		NetSalary:           gross.Sub(total).Round(2),
		EmployerSGKPremium:  percent(gross, employerRate).Round(2),
		Brackets:            lines,
		FlatTaxApplied:      len(brackets) == 0,
		SettingsID:          settingsID,
	}, nil
}

// incomeTax walks the brackets in order, taxing min(remaining, width) of the
// salary in each until nothing remains
func (c *Calculator) incomeTax(gross decimal.Decimal, brackets []TaxBracket) (decimal.Decimal, []BracketLine) {
	if len(brackets) == 0 {
		return percent(gross, c.fallback.FlatTax), nil
	}

	total := decimal.Zero
	remaining := gross
	lines := make([]BracketLine, 0, len(brackets))
	for _, b := range brackets {
		if !remaining.IsPositive() {
			break
		}
		taxable := remaining
		if width, ok := b.Width(); ok && width.LessThan(remaining) {
			taxable = width
		}
		if !taxable.IsPositive() {
			continue
		}
		tax := percent(taxable, b.Rate)
		total = total.Add(tax)
		remaining = remaining.Sub(taxable)
		lines = append(lines, BracketLine{
			MinAmount: b.MinAmount,
			MaxAmount: b.MaxAmount,
			Rate:      b.Rate,
			Taxable:   taxable.Round(2),
			Tax:       tax.Round(2),
		})
	}
	return total, lines
}

func percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// orDefault treats a zero stored rate as missing
func orDefault(v, def decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return def
	}
	return v
}
