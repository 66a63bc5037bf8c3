package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Order metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_orders_total",
			Help: "Total number of orders by terminal state",
		},
		[]string{"symbol", "state"},
	)

	fillAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trading_core_fill_amount",
			Help:    "Distribution of filled order amounts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	activeOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_active_orders",
			Help: "Number of orders currently being tracked",
		},
	)

	// Portfolio metrics
	portfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_portfolio_value",
			Help: "Total portfolio value including cash",
		},
	)

	cashBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_cash_balance",
			Help: "Available cash balance",
		},
	)

	unrealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_unrealized_pnl",
			Help: "Unrealized profit and loss over open positions",
		},
	)

	realizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_realized_pnl",
			Help: "Realized profit and loss over closed positions",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_open_positions",
			Help: "Number of open positions",
		},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trading_core_current_price",
			Help: "Last observed mark price per symbol",
		},
		[]string{"symbol"},
	)

	// Risk metrics
	portfolioVaR = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_portfolio_var_1d",
			Help: "One-day portfolio value at risk",
		},
	)

	maxDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_core_max_drawdown",
			Help: "Maximum observed portfolio drawdown",
		},
	)

	riskBudget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trading_core_risk_budget",
			Help: "Reserved and committed risk budget fractions",
		},
		[]string{"state"},
	)

	riskAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_risk_alerts_total",
			Help: "Total number of risk alerts raised",
		},
		[]string{"level", "limit"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_core_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(fillAmount)
	prometheus.MustRegister(activeOrders)
	prometheus.MustRegister(portfolioValue)
	prometheus.MustRegister(cashBalance)
	prometheus.MustRegister(unrealizedPnL)
	prometheus.MustRegister(realizedPnL)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(portfolioVaR)
	prometheus.MustRegister(maxDrawdown)
	prometheus.MustRegister(riskBudget)
	prometheus.MustRegister(riskAlertsTotal)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordOrder counts an order reaching a terminal state
func RecordOrder(symbol, state string) {
	ordersTotal.WithLabelValues(symbol, state).Inc()
}

// RecordFill observes a filled amount
func RecordFill(symbol string, amount float64) {
	fillAmount.WithLabelValues(symbol).Observe(amount)
}

// UpdateActiveOrders sets the active order gauge
func UpdateActiveOrders(n int) {
	activeOrders.Set(float64(n))
}

// UpdatePortfolio sets the portfolio gauges
func UpdatePortfolio(total, cash, unrealized, realized float64, positions int) {
	portfolioValue.Set(total)
	cashBalance.Set(cash)
	unrealizedPnL.Set(unrealized)
	realizedPnL.Set(realized)
	openPositions.Set(float64(positions))
}

// UpdatePrice sets the mark price gauge for a symbol
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdateRisk sets the risk gauges
func UpdateRisk(var1d, drawdown, reserved, committed float64) {
	portfolioVaR.Set(var1d)
	maxDrawdown.Set(drawdown)
	riskBudget.WithLabelValues("reserved").Set(reserved)
	riskBudget.WithLabelValues("committed").Set(committed)
}

// RecordRiskAlert counts a raised risk alert
func RecordRiskAlert(level, limit string) {
	riskAlertsTotal.WithLabelValues(level, limit).Inc()
}

// RecordError counts an error by category
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
