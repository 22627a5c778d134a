package payroll

import (
	"testing"

	"github.com/municipal/backoffice/internal/domain/payroll"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatesFromConfig(t *testing.T) {
	rates, wage, err := RatesFromConfig(config.PayrollConfig{})
	require.NoError(t, err)
	assert.True(t, payroll.DefaultFallbackRates().FlatTax.Equal(rates.FlatTax))
	assert.True(t, payroll.DefaultMinimumWage.Equal(wage))

	rates, wage, err = RatesFromConfig(config.PayrollConfig{DefaultMinimumWage: "22104.67", FallbackFlatTaxRate: "20"})
	require.NoError(t, err)
	assert.Equal(t, "22104.67", wage.String())
	assert.Equal(t, "20", rates.FlatTax.String())
	assert.Equal(t, "14", rates.SGKEmployee.String())

	_, _, err = RatesFromConfig(config.PayrollConfig{FallbackSGKEmployerRate: "fifteen"})
	assert.ErrorContains(t, err, "payroll.fallback_sgk_employer_rate")
	_, _, err = RatesFromConfig(config.PayrollConfig{FallbackUnemploymentRate: "-1"})
	assert.Error(t, err)
}
