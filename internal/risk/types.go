package risk

import (
	"time"
)

// Level grades the severity of a risk condition
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Type categorizes the source of a risk condition
type Type string

const (
	TypeMarket        Type = "market_risk"
	TypeLiquidity     Type = "liquidity_risk"
	TypeConcentration Type = "concentration_risk"
	TypeOperational   Type = "operational_risk"
)

// Limit types evaluated on every check cycle
const (
	LimitPortfolioRisk  = "portfolio_risk"
	LimitMaxDrawdown    = "max_drawdown"
	LimitSinglePosition = "single_position"
	LimitConcentration  = "concentration"
)

// Metrics is an immutable snapshot of portfolio risk, recomputed each
// evaluation cycle and appended to a bounded history.
type Metrics struct {
	Timestamp         time.Time `json:"timestamp"`
	VaR1d             float64   `json:"var_1d"`
	VaR5d             float64   `json:"var_5d"`
	VaR10d            float64   `json:"var_10d"`
	ExpectedShortfall float64   `json:"expected_shortfall"`
	MaxDrawdown       float64   `json:"max_drawdown"`
	CurrentDrawdown   float64   `json:"current_drawdown"`
	Volatility        float64   `json:"volatility"`
	SharpeRatio       float64   `json:"sharpe_ratio"`
	SortinoRatio      float64   `json:"sortino_ratio"`
	CalmarRatio       float64   `json:"calmar_ratio"`
	Skewness          float64   `json:"skewness"`
	Kurtosis          float64   `json:"kurtosis"`
	Observations      int       `json:"observations"`
}

// Limit is the result of evaluating one configured limit against the
// current portfolio state. Limits are recomputed every cycle and never
// persisted across cycles.
type Limit struct {
	LimitType       string  `json:"limit_type"`
	LimitValue      float64 `json:"limit_value"`
	CurrentValue    float64 `json:"current_value"`
	UtilizationRate float64 `json:"utilization_rate"`
	IsBreached      bool    `json:"is_breached"`
}

// Alert records a limit breach. Alerts resolve either explicitly via
// ResolveAlert or automatically when a later check shows the limit back
// within bounds.
type Alert struct {
	ID             string    `json:"id"`
	RiskType       Type      `json:"risk_type"`
	Level          Level     `json:"level"`
	LimitType      string    `json:"limit_type"`
	Component      string    `json:"component"`
	Message        string    `json:"message"`
	CurrentValue   float64   `json:"current_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Timestamp      time.Time `json:"timestamp"`
	Resolved       bool      `json:"resolved"`
	ResolvedAt     time.Time `json:"resolved_at,omitempty"`
}

// TradeRequest is a proposed trade submitted for risk validation
type TradeRequest struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// Notional returns the dollar value of the proposed trade
func (t *TradeRequest) Notional() float64 {
	return t.Amount * t.Price
}

// Config holds risk limit thresholds and evaluation parameters
type Config struct {
	MaxPortfolioRisk  float64       `json:"max_portfolio_risk"`
	MaxSinglePosition float64       `json:"max_single_position"`
	MaxDrawdown       float64       `json:"max_drawdown"`
	MaxConcentration  float64       `json:"max_concentration"`
	Confidence        float64       `json:"confidence"`
	RiskFreeRate      float64       `json:"risk_free_rate"`
	MetricsHistory    int           `json:"metrics_history"`
	AlertHistory      int           `json:"alert_history"`
	AlertDedupWindow  time.Duration `json:"alert_dedup_window"`
}

// DefaultConfig returns the standard risk limit configuration
func DefaultConfig() Config {
	return Config{
		MaxPortfolioRisk:  0.10,
		MaxSinglePosition: 0.05,
		MaxDrawdown:       0.15,
		MaxConcentration:  0.30,
		Confidence:        0.95,
		RiskFreeRate:      0.02,
		MetricsHistory:    1000,
		AlertHistory:      500,
		AlertDedupWindow:  5 * time.Minute,
	}
}

// Summary aggregates the latest metrics, limit configuration and alert
// statistics for the query surface.
type Summary struct {
	Metrics        Metrics       `json:"metrics"`
	Limits         Config        `json:"limits"`
	ReservedRisk   float64       `json:"reserved_risk"`
	CommittedRisk  float64       `json:"committed_risk"`
	ActiveAlerts   int           `json:"active_alerts"`
	TotalAlerts    int           `json:"total_alerts"`
	CriticalAlerts int           `json:"critical_alerts"`
	ResolvedAlerts int           `json:"resolved_alerts"`
	AlertsByLevel  map[Level]int `json:"alerts_by_level"`
}
