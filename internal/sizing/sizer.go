package sizing

import (
	"fmt"
	"math"

	tradingerrors "github.com/ducminhle1904/crypto-trading-core/internal/errors"
)

// Method selects the sizing policy applied by the Sizer.
type Method string

const (
	MethodFixedAmount        Method = "fixed_amount"
	MethodFixedPercentage    Method = "fixed_percentage"
	MethodKellyCriterion     Method = "kelly_criterion"
	MethodVolatilityAdjusted Method = "volatility_adjusted"
	MethodRiskParity         Method = "risk_parity"
	MethodOptimalF           Method = "optimal_f"
)

// Config holds the sizing bands and risk budget shared by all methods.
type Config struct {
	RiskPerTrade    float64 // fraction of balance risked per trade
	MaxPositionSize float64 // upper band, fraction of balance
	MinPositionSize float64 // lower band, fraction of balance
	TargetVol       float64 // annualized target volatility
	DefaultVol      float64 // fallback historical volatility
}

// DefaultConfig returns the standard sizing configuration.
func DefaultConfig() Config {
	return Config{
		RiskPerTrade:    0.02,
		MaxPositionSize: 0.10,
		MinPositionSize: 0.001,
		TargetVol:       0.15,
		DefaultVol:      0.20,
	}
}

// TradeParams carries the per-trade inputs to a sizing request.
type TradeParams struct {
	Symbol      string
	EntryPrice  float64
	StopLoss    float64 // 0 means no stop attached
	FixedAmount float64 // quote-currency notional for MethodFixedAmount
	FixedPct    float64 // fraction of balance for MethodFixedPercentage
}

// MarketStats carries optional historical statistics. Zero values mean
// "unknown" and trigger each method's documented fallback.
type MarketStats struct {
	WinRate       float64
	AvgWin        float64
	AvgLoss       float64
	HistoricalVol float64
	TradeReturns  []float64
}

// Result is the outcome of one sizing request. Sizes are in base-asset units.
type Result struct {
	RecommendedSize float64
	MinSize         float64
	MaxSize         float64
	Confidence      float64
	Method          Method
	RiskAmount      float64
	Rationale       string
}

// Sizer computes recommended trade sizes. It holds no mutable state and is
// safe for concurrent use.
type Sizer struct {
	cfg Config
}

// NewSizer creates a position sizer with the given configuration.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size computes a recommended position size using the requested method.
func (s *Sizer) Size(method Method, balance float64, params TradeParams, stats MarketStats) (*Result, error) {
	if params.EntryPrice <= 0 {
		return nil, tradingerrors.NewInvalidParameterError("sizer", string(method),
			"entry price must be positive")
	}
	if balance <= 0 {
		return nil, tradingerrors.NewInvalidParameterError("sizer", string(method),
			"account balance must be positive")
	}

	switch method {
	case MethodFixedAmount:
		return s.fixedAmount(balance, params), nil
	case MethodFixedPercentage:
		return s.fixedPercentage(balance, params), nil
	case MethodKellyCriterion:
		return s.kelly(balance, params, stats)
	case MethodVolatilityAdjusted:
		return s.volatilityAdjusted(balance, params, stats), nil
	case MethodRiskParity:
		return s.riskParity(balance, params, stats), nil
	case MethodOptimalF:
		return s.optimalF(balance, params, stats), nil
	default:
		return nil, tradingerrors.NewInvalidParameterError("sizer", "size",
			fmt.Sprintf("unknown sizing method %q", method))
	}
}

// OptimalSize combines risk-parity, volatility-adjusted and Kelly sizing into
// a confidence-weighted recommendation, re-clamped to the global band.
func (s *Sizer) OptimalSize(balance float64, params TradeParams, stats MarketStats) (*Result, error) {
	if params.EntryPrice <= 0 {
		return nil, tradingerrors.NewInvalidParameterError("sizer", "optimal_size",
			"entry price must be positive")
	}

	methods := []Method{MethodRiskParity, MethodVolatilityAdjusted, MethodKellyCriterion}
	weights := []float64{0.4, 0.3, 0.3}

	var results []*Result
	var usedWeights []float64
	for i, m := range methods {
		r, err := s.Size(m, balance, params, stats)
		if err != nil {
			continue
		}
		results = append(results, r)
		usedWeights = append(usedWeights, weights[i])
	}

	if len(results) == 0 {
		return s.Size(MethodFixedPercentage, balance, params, stats)
	}

	var weightedSize, weightedConfidence float64
	for i, r := range results {
		weightedSize += r.RecommendedSize * usedWeights[i]
		weightedConfidence += r.Confidence * usedWeights[i]
	}

	pct := s.clampPct(weightedSize * params.EntryPrice / balance)
	finalSize := pct * balance / params.EntryPrice

	return &Result{
		RecommendedSize: finalSize,
		MinSize:         s.cfg.MinPositionSize * balance / params.EntryPrice,
		MaxSize:         s.cfg.MaxPositionSize * balance / params.EntryPrice,
		Confidence:      weightedConfidence,
		Method:          MethodRiskParity,
		RiskAmount:      finalSize * params.EntryPrice,
		Rationale:       fmt.Sprintf("confidence-weighted blend of %d methods", len(results)),
	}, nil
}

// ValidateSize checks a proposed size against the configured band and the
// account balance. Rejection is reported as a value, not an error.
func (s *Sizer) ValidateSize(size, price, balance float64) (bool, string) {
	if size <= 0 {
		return false, "position size must be positive"
	}
	if price <= 0 || balance <= 0 {
		return false, "price and balance must be positive"
	}

	notional := size * price
	if notional > balance {
		return false, fmt.Sprintf("notional %.2f exceeds balance %.2f", notional, balance)
	}

	pct := notional / balance
	if pct > s.cfg.MaxPositionSize {
		return false, fmt.Sprintf("position %.2f%% of balance exceeds maximum %.2f%%",
			pct*100, s.cfg.MaxPositionSize*100)
	}
	if pct < s.cfg.MinPositionSize {
		return false, fmt.Sprintf("position %.2f%% of balance below minimum %.2f%%",
			pct*100, s.cfg.MinPositionSize*100)
	}
	return true, ""
}

func (s *Sizer) fixedAmount(balance float64, params TradeParams) *Result {
	amount := params.FixedAmount
	if amount <= 0 {
		amount = 1000
	}

	pct := s.clampPct(amount / balance)
	size := pct * balance / params.EntryPrice

	return s.result(size, balance, params.EntryPrice, 1.0, MethodFixedAmount, amount,
		fmt.Sprintf("fixed amount %.2f", amount))
}

func (s *Sizer) fixedPercentage(balance float64, params TradeParams) *Result {
	pct := params.FixedPct
	if pct <= 0 {
		pct = 0.05
	}
	pct = s.clampPct(pct)

	amount := pct * balance
	size := amount / params.EntryPrice

	return s.result(size, balance, params.EntryPrice, 1.0, MethodFixedPercentage, amount,
		fmt.Sprintf("fixed percentage %.2f%%", pct*100))
}

func (s *Sizer) kelly(balance float64, params TradeParams, stats MarketStats) (*Result, error) {
	winRate := stats.WinRate
	if winRate <= 0 {
		winRate = 0.5
	}
	avgWin := stats.AvgWin
	if avgWin <= 0 {
		avgWin = 0.02
	}
	avgLoss := stats.AvgLoss
	if avgLoss == 0 {
		avgLoss = 0.01
	}
	if avgLoss < 0 {
		return nil, tradingerrors.NewInvalidParameterError("sizer", "kelly_criterion",
			"average loss must be positive")
	}

	// f = (bp - q) / b with b the payoff odds
	odds := avgWin / avgLoss
	kellyFraction := (odds*winRate - (1 - winRate)) / odds
	kellyFraction = math.Max(0, math.Min(kellyFraction, 0.25))

	// Quarter Kelly keeps the estimate survivable under parameter error.
	conservative := kellyFraction * 0.25
	pct := s.clampPct(conservative)

	amount := pct * balance
	size := amount / params.EntryPrice

	return s.result(size, balance, params.EntryPrice, 0.8, MethodKellyCriterion, amount,
		fmt.Sprintf("kelly: win_rate=%.2f%% odds=%.2f fraction=%.2f%%",
			winRate*100, odds, kellyFraction*100)), nil
}

func (s *Sizer) volatilityAdjusted(balance float64, params TradeParams, stats MarketStats) *Result {
	histVol := stats.HistoricalVol
	if histVol <= 0 {
		histVol = s.cfg.DefaultVol
	}

	adjustment := s.cfg.TargetVol / histVol
	pct := s.clampPct(s.cfg.RiskPerTrade * adjustment)

	amount := pct * balance
	size := amount / params.EntryPrice

	return s.result(size, balance, params.EntryPrice, 0.7, MethodVolatilityAdjusted, amount,
		fmt.Sprintf("volatility adjusted: hist_vol=%.2f%% target=%.2f%% factor=%.2f",
			histVol*100, s.cfg.TargetVol*100, adjustment))
}

func (s *Sizer) riskParity(balance float64, params TradeParams, stats MarketStats) *Result {
	var riskPerShare float64
	if params.StopLoss > 0 {
		riskPerShare = math.Abs(params.EntryPrice - params.StopLoss)
	} else {
		histVol := stats.HistoricalVol
		if histVol <= 0 {
			histVol = s.cfg.DefaultVol
		}
		// No stop attached: estimate dollar risk from daily volatility.
		riskPerShare = params.EntryPrice * histVol * 0.1
	}
	if riskPerShare <= 0 {
		riskPerShare = params.EntryPrice * 0.02
	}

	riskBudget := balance * s.cfg.RiskPerTrade
	size := riskBudget / riskPerShare

	pct := s.clampPct(size * params.EntryPrice / balance)
	finalSize := pct * balance / params.EntryPrice

	return s.result(finalSize, balance, params.EntryPrice, 0.9, MethodRiskParity, riskBudget,
		fmt.Sprintf("risk parity: risk_per_share=%.4f budget=%.2f", riskPerShare, riskBudget))
}

func (s *Sizer) optimalF(balance float64, params TradeParams, stats MarketStats) *Result {
	if len(stats.TradeReturns) < 10 {
		r := s.fixedPercentage(balance, params)
		r.Rationale = "optimal-f: insufficient trade history, fixed-percentage fallback"
		return r
	}

	optimalF := optimalFValue(stats.TradeReturns)
	conservative := optimalF * 0.5
	pct := s.clampPct(conservative)

	amount := pct * balance
	size := amount / params.EntryPrice

	return s.result(size, balance, params.EntryPrice, 0.6, MethodOptimalF, amount,
		fmt.Sprintf("optimal-f: f=%.2f%% conservative=%.2f%%", optimalF*100, conservative*100))
}

// optimalFValue computes a simplified optimal fraction as the geometric mean
// return over the return variance, clamped to [0, 0.25].
func optimalFValue(returns []float64) float64 {
	if len(returns) == 0 {
		return 0.05
	}

	logSum := 0.0
	for _, r := range returns {
		if r <= -1 {
			return 0
		}
		logSum += math.Log(1 + r)
	}
	geometricMean := math.Exp(logSum/float64(len(returns))) - 1

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	if variance <= 0 {
		return 0.05
	}

	return math.Max(0, math.Min(0.25, geometricMean/variance))
}

func (s *Sizer) clampPct(pct float64) float64 {
	return math.Max(s.cfg.MinPositionSize, math.Min(s.cfg.MaxPositionSize, pct))
}

func (s *Sizer) result(size, balance, price, confidence float64, method Method, riskAmount float64, rationale string) *Result {
	return &Result{
		RecommendedSize: size,
		MinSize:         s.cfg.MinPositionSize * balance / price,
		MaxSize:         s.cfg.MaxPositionSize * balance / price,
		Confidence:      confidence,
		Method:          method,
		RiskAmount:      riskAmount,
		Rationale:       rationale,
	}
}
