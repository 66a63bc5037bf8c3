package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tradingerrors "github.com/ducminhle1904/crypto-trading-core/internal/errors"
)

func newTestSizer() *Sizer {
	return NewSizer(DefaultConfig())
}

// TestSizeRejectsBadInputs refuses non-positive price or balance.
func TestSizeRejectsBadInputs(t *testing.T) {
	s := newTestSizer()

	_, err := s.Size(MethodFixedAmount, 10000, TradeParams{EntryPrice: 0}, MarketStats{})
	require.Error(t, err)
	assert.True(t, tradingerrors.IsCategory(err, tradingerrors.ErrorCategoryValidation))

	_, err = s.Size(MethodFixedAmount, 0, TradeParams{EntryPrice: 100}, MarketStats{})
	require.Error(t, err)
}

// TestSizeUnknownMethod reports the method name in the error.
func TestSizeUnknownMethod(t *testing.T) {
	s := newTestSizer()

	_, err := s.Size(Method("martingale"), 10000, TradeParams{EntryPrice: 100}, MarketStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "martingale")
}

// TestFixedAmountClampedToBand caps the notional at the max position size.
func TestFixedAmountClampedToBand(t *testing.T) {
	s := newTestSizer()

	// 5000 of a 10000 balance is 50%, far above the 10% cap.
	r, err := s.Size(MethodFixedAmount, 10000, TradeParams{EntryPrice: 100, FixedAmount: 5000}, MarketStats{})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, r.RecommendedSize, 1e-9) // 10% of 10000 / 100
}

// TestFixedPercentageDefault falls back to 5% when no percentage is given.
func TestFixedPercentageDefault(t *testing.T) {
	s := newTestSizer()

	r, err := s.Size(MethodFixedPercentage, 10000, TradeParams{EntryPrice: 100}, MarketStats{})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, r.RecommendedSize, 1e-9)
	assert.InDelta(t, 500.0, r.RiskAmount, 1e-9)
}

// TestKellyFraction computes f=(bp-q)/b and applies quarter Kelly.
func TestKellyFraction(t *testing.T) {
	s := newTestSizer()

	// odds = 0.03/0.015 = 2, f = (2*0.6 - 0.4)/2 = 0.4 capped at 0.25,
	// quarter Kelly 0.0625 of balance.
	stats := MarketStats{WinRate: 0.6, AvgWin: 0.03, AvgLoss: 0.015}
	r, err := s.Size(MethodKellyCriterion, 10000, TradeParams{EntryPrice: 100}, stats)
	require.NoError(t, err)
	assert.InDelta(t, 625.0, r.RiskAmount, 1e-9)
	assert.InDelta(t, 6.25, r.RecommendedSize, 1e-9)
}

// TestKellyNegativeAvgLoss is a hard validation error.
func TestKellyNegativeAvgLoss(t *testing.T) {
	s := newTestSizer()

	_, err := s.Size(MethodKellyCriterion, 10000, TradeParams{EntryPrice: 100},
		MarketStats{WinRate: 0.6, AvgWin: 0.03, AvgLoss: -0.01})
	require.Error(t, err)
	assert.True(t, tradingerrors.IsCategory(err, tradingerrors.ErrorCategoryValidation))
}

// TestKellyZeroStatsUseDefaults treats zero statistics as unknown.
func TestKellyZeroStatsUseDefaults(t *testing.T) {
	s := newTestSizer()

	r, err := s.Size(MethodKellyCriterion, 10000, TradeParams{EntryPrice: 100}, MarketStats{})
	require.NoError(t, err)
	// win_rate 0.5, odds 2: f = (2*0.5-0.5)/2 = 0.25, quarter Kelly 0.0625
	assert.InDelta(t, 625.0, r.RiskAmount, 1e-9)
}

// TestVolatilityAdjustedScaling scales risk by target over realized vol.
func TestVolatilityAdjustedScaling(t *testing.T) {
	s := newTestSizer()

	// 2% risk * (15% target / 30% realized) = 1% of balance
	r, err := s.Size(MethodVolatilityAdjusted, 10000, TradeParams{EntryPrice: 100},
		MarketStats{HistoricalVol: 0.30})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.RecommendedSize, 1e-9)
}

// TestRiskParityWithStop sizes off the stop distance, clamped to the band.
func TestRiskParityWithStop(t *testing.T) {
	s := newTestSizer()

	// budget 200, risk per share 10 -> 20 units = 20% of balance, clamped
	// to the 10% cap.
	r, err := s.Size(MethodRiskParity, 10000, TradeParams{EntryPrice: 100, StopLoss: 90}, MarketStats{})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, r.RecommendedSize, 1e-9)

	// A wide stop keeps the raw size inside the band.
	r, err = s.Size(MethodRiskParity, 10000, TradeParams{EntryPrice: 100, StopLoss: 50}, MarketStats{})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, r.RecommendedSize, 1e-9)
}

// TestOptimalFFallback uses fixed-percentage when history is too short.
func TestOptimalFFallback(t *testing.T) {
	s := newTestSizer()

	r, err := s.Size(MethodOptimalF, 10000, TradeParams{EntryPrice: 100},
		MarketStats{TradeReturns: []float64{0.01, -0.02}})
	require.NoError(t, err)
	assert.Contains(t, r.Rationale, "fallback")
	assert.InDelta(t, 5.0, r.RecommendedSize, 1e-9)
}

// TestOptimalFWithHistory stays inside the configured band.
func TestOptimalFWithHistory(t *testing.T) {
	s := newTestSizer()

	returns := []float64{0.02, -0.01, 0.03, 0.01, -0.02, 0.02, 0.01, -0.01, 0.02, 0.015, -0.005, 0.01}
	r, err := s.Size(MethodOptimalF, 10000, TradeParams{EntryPrice: 100},
		MarketStats{TradeReturns: returns})
	require.NoError(t, err)
	notionalPct := r.RecommendedSize * 100 / 10000
	assert.GreaterOrEqual(t, notionalPct, s.cfg.MinPositionSize-1e-12)
	assert.LessOrEqual(t, notionalPct, s.cfg.MaxPositionSize+1e-12)
}

// TestOptimalSizeBlend stays within the band and reports the blend.
func TestOptimalSizeBlend(t *testing.T) {
	s := newTestSizer()

	r, err := s.OptimalSize(10000, TradeParams{EntryPrice: 100, StopLoss: 95},
		MarketStats{WinRate: 0.55, AvgWin: 0.02, AvgLoss: 0.015, HistoricalVol: 0.25})
	require.NoError(t, err)
	assert.Contains(t, r.Rationale, "blend")

	notionalPct := r.RecommendedSize * 100 / 10000
	assert.GreaterOrEqual(t, notionalPct, s.cfg.MinPositionSize-1e-12)
	assert.LessOrEqual(t, notionalPct, s.cfg.MaxPositionSize+1e-12)
}

// TestValidateSize covers the acceptance band and both rejection directions.
func TestValidateSize(t *testing.T) {
	s := newTestSizer()

	ok, reason := s.ValidateSize(5, 100, 10000)
	assert.True(t, ok)
	assert.Empty(t, reason)

	ok, reason = s.ValidateSize(0, 100, 10000)
	assert.False(t, ok)
	assert.Contains(t, reason, "positive")

	// 20 units * 100 = 20% of balance, above the cap
	ok, reason = s.ValidateSize(20, 100, 10000)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds maximum")

	// 0.005 units * 100 = 0.005% of balance, below the floor
	ok, reason = s.ValidateSize(0.005, 100, 10000)
	assert.False(t, ok)
	assert.Contains(t, reason, "below minimum")

	// notional above balance
	ok, reason = s.ValidateSize(200, 100, 10000)
	assert.False(t, ok)
	assert.Contains(t, reason, "exceeds balance")
}
