package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
	"github.com/ducminhle1904/crypto-trading-core/internal/ring"
)

// AlertHandler receives a copy of every alert created or resolved
type AlertHandler func(alert Alert)

// Manager evaluates portfolio risk against configured limits, raises and
// resolves alerts, and gates trades before order placement. Trade
// validation and risk-budget reservation happen under a single lock so
// concurrent approvals can never jointly exceed a limit.
type Manager struct {
	mu  sync.RWMutex
	cfg Config
	log *logger.Logger

	metricsHistory *ring.Buffer[Metrics]
	alerts         *ring.Buffer[*Alert]

	// lastAlertAt keys breach alerts by (limit type, component) for the
	// de-duplication window.
	lastAlertAt map[string]time.Time

	reservedRisk  float64
	committedRisk float64

	totalAlerts    int
	criticalAlerts int
	resolvedAlerts int

	handlers []AlertHandler

	// pendingEmits holds alerts queued during a critical section for
	// dispatch once the lock is released.
	pendingEmits []Alert
}

// Reservation is a slice of risk budget held between trade validation and
// the known outcome of the order. Exactly one of Commit or Release must be
// called; later calls are no-ops.
type Reservation struct {
	ID           string
	Symbol       string
	RiskFraction float64
	CreatedAt    time.Time

	mgr  *Manager
	once sync.Once
}

// Commit converts the reservation into committed exposure once the fill is
// known. The actual fraction may differ from the reserved one when the
// order filled partially.
func (r *Reservation) Commit(actualFraction float64) {
	r.once.Do(func() { r.mgr.settleReservation(r, actualFraction) })
}

// Release returns the reserved budget, used when the order is rejected,
// cancelled or failed.
func (r *Reservation) Release() {
	r.once.Do(func() { r.mgr.settleReservation(r, 0) })
}

// NewManager constructs a risk manager with the given limits
func NewManager(cfg Config, log *logger.Logger) *Manager {
	if cfg.MetricsHistory <= 0 {
		cfg.MetricsHistory = DefaultConfig().MetricsHistory
	}
	if cfg.AlertHistory <= 0 {
		cfg.AlertHistory = DefaultConfig().AlertHistory
	}
	if cfg.AlertDedupWindow <= 0 {
		cfg.AlertDedupWindow = DefaultConfig().AlertDedupWindow
	}
	return &Manager{
		cfg:            cfg,
		log:            log,
		metricsHistory: ring.New[Metrics](cfg.MetricsHistory),
		alerts:         ring.New[*Alert](cfg.AlertHistory),
		lastAlertAt:    make(map[string]time.Time),
	}
}

// AddAlertHandler registers a callback invoked on alert creation and
// resolution. Handlers run after the raising operation has released the
// manager lock, so a slow handler never blocks validation.
func (m *Manager) AddAlertHandler(h AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// UpdateLimits replaces the limit thresholds, leaving history sizes as is
func (m *Manager) UpdateLimits(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MaxPortfolioRisk = cfg.MaxPortfolioRisk
	m.cfg.MaxSinglePosition = cfg.MaxSinglePosition
	m.cfg.MaxDrawdown = cfg.MaxDrawdown
	m.cfg.MaxConcentration = cfg.MaxConcentration
	m.log.Risk("risk limits updated: portfolio=%.4f single=%.4f drawdown=%.4f concentration=%.4f",
		cfg.MaxPortfolioRisk, cfg.MaxSinglePosition, cfg.MaxDrawdown, cfg.MaxConcentration)
}

// CalculatePortfolioRisk computes the metric set from the snapshot's value
// history and appends it to the bounded metrics history. Portfolios with
// fewer than ten return observations produce zeroed metrics.
func (m *Manager) CalculatePortfolioRisk(snap *portfolio.Snapshot) Metrics {
	returns := snapshotReturns(snap)

	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := ComputeMetrics(returns, m.cfg.Confidence, m.cfg.RiskFreeRate)
	m.metricsHistory.Push(metrics)
	return metrics
}

// CheckRiskLimits evaluates every configured limit against the snapshot
// and, when provided, the proposed trade. A breached limit raises an alert
// at most once per (limit, component) within the de-duplication window; a
// limit observed back within bounds auto-resolves its active alerts.
func (m *Manager) CheckRiskLimits(snap *portfolio.Snapshot, trade *TradeRequest) []Limit {
	returns := snapshotReturns(snap)

	defer m.flushAlerts()
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := ComputeMetrics(returns, m.cfg.Confidence, m.cfg.RiskFreeRate)
	m.metricsHistory.Push(metrics)
	return m.checkLimitsLocked(snap, trade, metrics)
}

func (m *Manager) checkLimitsLocked(snap *portfolio.Snapshot, trade *TradeRequest, metrics Metrics) []Limit {
	limits := make([]Limit, 0, 4)

	portfolioLimit := m.evaluateLocked(LimitPortfolioRisk, "portfolio", TypeMarket, LevelHigh,
		metrics.VaR1d, m.cfg.MaxPortfolioRisk,
		fmt.Sprintf("portfolio VaR %.4f exceeds limit %.4f", metrics.VaR1d, m.cfg.MaxPortfolioRisk))
	limits = append(limits, portfolioLimit)

	drawdownLimit := m.evaluateLocked(LimitMaxDrawdown, "portfolio", TypeMarket, LevelCritical,
		metrics.MaxDrawdown, m.cfg.MaxDrawdown,
		fmt.Sprintf("max drawdown %.4f exceeds limit %.4f", metrics.MaxDrawdown, m.cfg.MaxDrawdown))
	limits = append(limits, drawdownLimit)

	if trade != nil {
		var ratio float64
		if snap.TotalValue > 0 {
			ratio = trade.Notional() / snap.TotalValue
		}
		singleLimit := m.evaluateLocked(LimitSinglePosition, trade.Symbol, TypeConcentration, LevelHigh,
			ratio, m.cfg.MaxSinglePosition,
			fmt.Sprintf("trade %s notional ratio %.4f exceeds limit %.4f", trade.Symbol, ratio, m.cfg.MaxSinglePosition))
		limits = append(limits, singleLimit)
	}

	maxRatio, maxSymbol := largestPositionRatio(snap)
	concentrationLimit := m.evaluateLocked(LimitConcentration, maxSymbol, TypeConcentration, LevelHigh,
		maxRatio, m.cfg.MaxConcentration,
		fmt.Sprintf("position %s holds %.4f of portfolio, limit %.4f", maxSymbol, maxRatio, m.cfg.MaxConcentration))
	limits = append(limits, concentrationLimit)

	return limits
}

// evaluateLocked builds one limit result, creating or resolving alerts as
// the observed value crosses the threshold.
func (m *Manager) evaluateLocked(limitType, component string, riskType Type, level Level, current, threshold float64, message string) Limit {
	limit := Limit{
		LimitType:    limitType,
		LimitValue:   threshold,
		CurrentValue: current,
	}
	if threshold > 0 {
		limit.UtilizationRate = current / threshold
	}
	if current > threshold {
		limit.IsBreached = true
		m.createAlertLocked(riskType, level, limitType, component, message, current, threshold)
	} else {
		m.autoResolveLocked(limitType, component)
	}
	return limit
}

// ValidateTrade gates a proposed trade against the current limits.
// Rejection is a value: the trade is not approved and the reason names
// every breached limit. Errors are reserved for programmer mistakes.
func (m *Manager) ValidateTrade(trade *TradeRequest, snap *portfolio.Snapshot) (bool, string) {
	returns := snapshotReturns(snap)

	defer m.flushAlerts()
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := ComputeMetrics(returns, m.cfg.Confidence, m.cfg.RiskFreeRate)
	m.metricsHistory.Push(metrics)
	return m.validateLocked(trade, snap, metrics)
}

func (m *Manager) validateLocked(trade *TradeRequest, snap *portfolio.Snapshot, metrics Metrics) (bool, string) {
	if trade == nil {
		return false, "no trade provided"
	}
	if trade.Symbol == "" || trade.Amount <= 0 || trade.Price <= 0 {
		return false, fmt.Sprintf("malformed trade: symbol=%q amount=%.8f price=%.8f", trade.Symbol, trade.Amount, trade.Price)
	}

	limits := m.checkLimitsLocked(snap, trade, metrics)
	var breached []string
	for _, l := range limits {
		if l.IsBreached {
			breached = append(breached, fmt.Sprintf("%s: %.4f > %.4f", l.LimitType, l.CurrentValue, l.LimitValue))
		}
	}
	if len(breached) > 0 {
		reason := "risk limits breached: "
		for i, b := range breached {
			if i > 0 {
				reason += ", "
			}
			reason += b
		}
		return false, reason
	}
	return true, "trade approved"
}

// ValidateAndReserve validates the trade and, when approved, reserves its
// risk fraction against the portfolio budget in the same critical section.
// The returned reservation must be committed or released once the order
// outcome is known. A nil reservation means the trade was rejected.
func (m *Manager) ValidateAndReserve(trade *TradeRequest, snap *portfolio.Snapshot) (*Reservation, bool, string) {
	returns := snapshotReturns(snap)

	defer m.flushAlerts()
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := ComputeMetrics(returns, m.cfg.Confidence, m.cfg.RiskFreeRate)
	m.metricsHistory.Push(metrics)

	approved, reason := m.validateLocked(trade, snap, metrics)
	if !approved {
		return nil, false, reason
	}

	var fraction float64
	if snap.TotalValue > 0 {
		fraction = trade.Notional() / snap.TotalValue
	}
	if m.reservedRisk+m.committedRisk+fraction > m.cfg.MaxPortfolioRisk {
		return nil, false, fmt.Sprintf("risk budget exhausted: reserved=%.4f committed=%.4f requested=%.4f limit=%.4f",
			m.reservedRisk, m.committedRisk, fraction, m.cfg.MaxPortfolioRisk)
	}

	m.reservedRisk += fraction
	res := &Reservation{
		ID:           uuid.New().String(),
		Symbol:       trade.Symbol,
		RiskFraction: fraction,
		CreatedAt:    time.Now(),
		mgr:          m,
	}
	m.log.Risk("reserved %.4f risk budget for %s (reserved=%.4f committed=%.4f)",
		fraction, trade.Symbol, m.reservedRisk, m.committedRisk)
	return res, true, "trade approved"
}

// settleReservation moves a reservation into committed exposure
// (actualFraction > 0) or returns it to the budget (actualFraction == 0).
func (m *Manager) settleReservation(r *Reservation, actualFraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservedRisk -= r.RiskFraction
	if m.reservedRisk < 0 {
		m.reservedRisk = 0
	}
	if actualFraction > 0 {
		m.committedRisk += actualFraction
		m.log.Risk("committed %.4f exposure for %s (reserved=%.4f committed=%.4f)",
			actualFraction, r.Symbol, m.reservedRisk, m.committedRisk)
	} else {
		m.log.Risk("released %.4f reserved budget for %s (reserved=%.4f committed=%.4f)",
			r.RiskFraction, r.Symbol, m.reservedRisk, m.committedRisk)
	}
}

// ReleaseExposure returns committed exposure to the budget when a position
// closes.
func (m *Manager) ReleaseExposure(fraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committedRisk -= fraction
	if m.committedRisk < 0 {
		m.committedRisk = 0
	}
}

// createAlertLocked raises a breach alert unless the same (limit,
// component) pair alerted within the de-duplication window.
func (m *Manager) createAlertLocked(riskType Type, level Level, limitType, component, message string, current, threshold float64) {
	key := limitType + "|" + component
	now := time.Now()
	if last, ok := m.lastAlertAt[key]; ok && now.Sub(last) < m.cfg.AlertDedupWindow {
		return
	}
	m.lastAlertAt[key] = now

	alert := &Alert{
		ID:             uuid.New().String(),
		RiskType:       riskType,
		Level:          level,
		LimitType:      limitType,
		Component:      component,
		Message:        message,
		CurrentValue:   current,
		ThresholdValue: threshold,
		Timestamp:      now,
	}
	m.alerts.Push(alert)
	m.totalAlerts++
	if level == LevelCritical {
		m.criticalAlerts++
	}
	m.log.Risk("ALERT [%s/%s] %s", level, limitType, message)
	m.queueEmitLocked(*alert)
}

// autoResolveLocked resolves active alerts for a limit that a later check
// shows back within bounds.
func (m *Manager) autoResolveLocked(limitType, component string) {
	for _, alert := range m.alerts.Items() {
		if alert.Resolved || alert.LimitType != limitType || alert.Component != component {
			continue
		}
		alert.Resolved = true
		alert.ResolvedAt = time.Now()
		m.resolvedAlerts++
		m.log.Risk("alert %s auto-resolved: %s back within bounds", alert.ID, limitType)
		m.queueEmitLocked(*alert)
	}
}

// ResolveAlert marks an alert resolved by operator action. Returns false
// when the id is unknown or the alert is already resolved.
func (m *Manager) ResolveAlert(id string) bool {
	defer m.flushAlerts()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, alert := range m.alerts.Items() {
		if alert.ID != id || alert.Resolved {
			continue
		}
		alert.Resolved = true
		alert.ResolvedAt = time.Now()
		m.resolvedAlerts++
		m.log.Risk("alert %s resolved by operator", id)
		m.queueEmitLocked(*alert)
		return true
	}
	return false
}

// ActiveAlerts returns copies of unresolved alerts, oldest first
func (m *Manager) ActiveAlerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var active []Alert
	for _, alert := range m.alerts.Items() {
		if !alert.Resolved {
			active = append(active, *alert)
		}
	}
	return active
}

// MetricsHistory returns up to limit most recent metric snapshots,
// oldest first.
func (m *Manager) MetricsHistory(limit int) []Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsHistory.Last(limit)
}

// GetRiskSummary reports the latest metrics, configured limits, budget
// usage and alert statistics.
func (m *Manager) GetRiskSummary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := Summary{
		Limits:         m.cfg,
		ReservedRisk:   m.reservedRisk,
		CommittedRisk:  m.committedRisk,
		TotalAlerts:    m.totalAlerts,
		CriticalAlerts: m.criticalAlerts,
		ResolvedAlerts: m.resolvedAlerts,
		AlertsByLevel:  make(map[Level]int),
	}
	if latest, ok := m.metricsHistory.Latest(); ok {
		summary.Metrics = latest
	}
	for _, alert := range m.alerts.Items() {
		if alert.Resolved {
			continue
		}
		summary.ActiveAlerts++
		summary.AlertsByLevel[alert.Level]++
	}
	return summary
}

// queueEmitLocked queues an alert for fan-out after the current critical
// section ends. Handlers never run with the manager lock held, so a slow
// handler cannot stall validation or reservation settlement.
func (m *Manager) queueEmitLocked(alert Alert) {
	m.pendingEmits = append(m.pendingEmits, alert)
}

// flushAlerts drains the pending queue and dispatches each alert to the
// registered handlers without holding the lock. Public entrypoints defer
// this flush to run after their unlock.
func (m *Manager) flushAlerts() {
	m.mu.Lock()
	pending := m.pendingEmits
	m.pendingEmits = nil
	handlers := m.handlers
	m.mu.Unlock()

	for _, alert := range pending {
		for _, h := range handlers {
			h(alert)
		}
	}
}

// snapshotReturns derives the daily return series from the snapshot's
// value history.
func snapshotReturns(snap *portfolio.Snapshot) []float64 {
	if snap == nil || len(snap.ValueHistory) < 2 {
		return nil
	}
	values := make([]float64, len(snap.ValueHistory))
	for i, p := range snap.ValueHistory {
		values[i] = p.TotalValue
	}
	return ReturnsFromValues(values)
}

// largestPositionRatio finds the open position with the largest share of
// total portfolio value.
func largestPositionRatio(snap *portfolio.Snapshot) (float64, string) {
	if snap == nil || snap.TotalValue <= 0 {
		return 0, "portfolio"
	}
	var maxRatio float64
	symbol := "portfolio"
	for sym, pos := range snap.Positions {
		ratio := pos.Amount * pos.CurrentPrice / snap.TotalValue
		if ratio > maxRatio {
			maxRatio = ratio
			symbol = sym
		}
	}
	return maxRatio, symbol
}
