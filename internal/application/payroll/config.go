package payroll

import (
	"fmt"

	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/shopspring/decimal"
)

// RatesFromConfig reads the fallback deduction rates and the seed minimum
// wage, keeping the built-in defaults for unset values
func RatesFromConfig(cfg config.PayrollConfig) (payroll.Rates, decimal.Decimal, error) {
	rates := payroll.DefaultFallbackRates()
	minimumWage := payroll.DefaultMinimumWage

	fields := []struct {
		key    string
		raw    string
		target *decimal.Decimal
	}{
		{"payroll.default_minimum_wage", cfg.DefaultMinimumWage, &minimumWage},
		{"payroll.fallback_sgk_employee_rate", cfg.FallbackSGKEmployeeRate, &rates.SGKEmployee},
		{"payroll.fallback_sgk_employer_rate", cfg.FallbackSGKEmployerRate, &rates.SGKEmployer},
		{"payroll.fallback_unemployment_rate", cfg.FallbackUnemploymentRate, &rates.Unemployment},
		{"payroll.fallback_flat_tax_rate", cfg.FallbackFlatTaxRate, &rates.FlatTax},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(f.raw)
		if err != nil {
			return rates, minimumWage, fmt.Errorf("%s: %w", f.key, err)
		}
		if value.IsNegative() {
			return rates, minimumWage, fmt.Errorf("%s: must not be negative", f.key)
		}
		*f.target = value
	}
	return rates, minimumWage, nil
}
