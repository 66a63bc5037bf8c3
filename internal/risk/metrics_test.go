package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleReturns() []float64 {
	return []float64{
		0.012, -0.008, 0.004, -0.015, 0.021, 0.003, -0.006, 0.009,
		-0.011, 0.017, -0.002, 0.005, -0.019, 0.008, 0.001, -0.004,
		0.013, -0.007, 0.006, -0.010,
	}
}

// TestComputeMetrics_ShortSeries verifies that fewer than ten observations
// produce zeroed metrics rather than an error
func TestComputeMetrics_ShortSeries(t *testing.T) {
	m := ComputeMetrics([]float64{0.01, -0.02, 0.03}, 0.95, 0.02)

	assert.Equal(t, 3, m.Observations)
	assert.Equal(t, 0.0, m.VaR1d)
	assert.Equal(t, 0.0, m.ExpectedShortfall)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 0.0, m.SharpeRatio)
}

// TestValueAtRisk_TimeScaling checks VaR(5d) = VaR(1d) * sqrt(5)
func TestValueAtRisk_TimeScaling(t *testing.T) {
	returns := sampleReturns()

	var1d := ValueAtRisk(returns, 0.95, 1)
	var5d := ValueAtRisk(returns, 0.95, 5)
	var10d := ValueAtRisk(returns, 0.95, 10)

	assert.Greater(t, var1d, 0.0)
	assert.InDelta(t, var1d*math.Sqrt(5), var5d, 1e-12)
	assert.InDelta(t, var1d*math.Sqrt(10), var10d, 1e-12)
}

// TestExpectedShortfall_AtLeastVaR verifies expected shortfall dominates
// one-day VaR for the same confidence
func TestExpectedShortfall_AtLeastVaR(t *testing.T) {
	returns := sampleReturns()

	es := ExpectedShortfall(returns, 0.95)
	var1d := ValueAtRisk(returns, 0.95, 1)

	assert.GreaterOrEqual(t, es, var1d)
}

// TestDrawdown_NonNegativeReturns verifies a monotonically non-decreasing
// value path has zero drawdown
func TestDrawdown_NonNegativeReturns(t *testing.T) {
	returns := []float64{0.01, 0.0, 0.02, 0.005, 0.0, 0.01, 0.003, 0.0, 0.01, 0.002, 0.004}

	maxDD, currentDD := Drawdown(returns)

	assert.Equal(t, 0.0, maxDD)
	assert.Equal(t, 0.0, currentDD)
}

// TestDrawdown_KnownPath checks the drawdown of a hand-computed path
func TestDrawdown_KnownPath(t *testing.T) {
	// cumulative: 1.10, 0.99, 1.0395, peak 1.10
	returns := []float64{0.10, -0.10, 0.05}

	maxDD, currentDD := Drawdown(returns)

	assert.InDelta(t, 0.10, maxDD, 1e-12)
	assert.InDelta(t, (1.10-1.0395)/1.10, currentDD, 1e-12)
}

// TestSortinoRatio_NoNegativeReturns verifies an all-gain series reports
// unbounded Sortino
func TestSortinoRatio_NoNegativeReturns(t *testing.T) {
	returns := []float64{0.01, 0.02, 0.01, 0.03, 0.005, 0.01, 0.02, 0.015, 0.01, 0.02}

	assert.True(t, math.IsInf(SortinoRatio(returns, 0.02), 1))
}

// TestSharpeRatio_Sign verifies the ratio sign tracks the mean return
func TestSharpeRatio_Sign(t *testing.T) {
	gains := []float64{0.02, 0.01, 0.03, 0.02, 0.01, 0.02, 0.03, 0.01, 0.02, 0.02}
	losses := []float64{-0.02, -0.01, -0.03, -0.02, -0.01, -0.02, -0.03, -0.01, -0.02, -0.02}

	assert.Greater(t, SharpeRatio(gains, 0.02), 0.0)
	assert.Less(t, SharpeRatio(losses, 0.02), 0.0)
}

// TestCalmarRatio_ZeroDrawdown verifies division by a zero drawdown is
// reported as zero
func TestCalmarRatio_ZeroDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, CalmarRatio(sampleReturns(), 0))
}

// TestReturnsFromValues verifies simple return derivation and the skip of
// non-positive starting values
func TestReturnsFromValues(t *testing.T) {
	returns := ReturnsFromValues([]float64{100, 110, 99})
	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)

	assert.Nil(t, ReturnsFromValues([]float64{100}))
	assert.Empty(t, ReturnsFromValues([]float64{0, 100}))
}

// TestPercentile_Interpolation checks linear interpolation between order
// statistics
func TestPercentile_Interpolation(t *testing.T) {
	xs := []float64{1, 2, 3, 4}

	assert.Equal(t, 1.0, percentile(xs, 0))
	assert.Equal(t, 4.0, percentile(xs, 100))
	assert.InDelta(t, 2.5, percentile(xs, 50), 1e-12)
	assert.InDelta(t, 1.15, percentile(xs, 5), 1e-12)
}

// TestSkewness_Symmetric verifies a symmetric series has zero skew
func TestSkewness_Symmetric(t *testing.T) {
	xs := []float64{-0.02, -0.01, 0, 0.01, 0.02}
	assert.InDelta(t, 0.0, skewness(xs), 1e-12)
}
