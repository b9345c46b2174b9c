package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})

	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestCalculateReturns_TooShort(t *testing.T) {
	assert.Empty(t, CalculateReturns([]float64{100}))
	assert.Empty(t, CalculateReturns(nil))
}

func TestAnnualizedVolatility_Empty(t *testing.T) {
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
}

func TestCalculateDrawdown(t *testing.T) {
	dd := CalculateDrawdown([]float64{100, 120, 90, 110})

	assert.NotNil(t, dd)
	assert.InDelta(t, 0.25, dd.MaxDrawdown, 1e-9) // 120 -> 90
	assert.Equal(t, 120.0, dd.PeakValue)
	assert.Equal(t, 110.0, dd.CurrentValue)
	assert.InDelta(t, 1.0/12, dd.CurrentDrawdown, 1e-9)
}

func TestCalculateDrawdown_TooShort(t *testing.T) {
	assert.Nil(t, CalculateDrawdown([]float64{100}))
}

func TestCalculateRSI_InsufficientData(t *testing.T) {
	assert.Nil(t, CalculateRSI([]float64{1, 2, 3}, 14))
}

func TestCalculateRSI_SteadyUptrend(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100 + float64(i)
	}

	rsi := CalculateRSI(values, 14)
	assert.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-6) // no losses at all
}
