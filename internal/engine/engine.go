package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/monitoring"
	"github.com/ducminhle1904/crypto-trading-core/internal/orders"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
	"github.com/ducminhle1904/crypto-trading-core/internal/sizing"
)

// TradeIntent is a structured trade request from the decision pipeline.
// The engine sizes it, validates it against risk limits and places the
// order; it never calls back into the decision pipeline.
type TradeIntent struct {
	Symbol          string             `json:"symbol"`
	Side            exchange.OrderSide `json:"side"`
	Type            exchange.OrderType `json:"type"`
	TargetPrice     float64            `json:"target_price"`
	StopLoss        float64            `json:"stop_loss,omitempty"`
	TakeProfit      float64            `json:"take_profit,omitempty"`
	RequestedAmount float64            `json:"requested_amount,omitempty"`

	// RiskHint selects the sizing method; empty means the composite
	// optimal size.
	RiskHint sizing.Method `json:"risk_hint,omitempty"`
}

// IntentResult reports the outcome of one trade intent. A rejected intent
// is a result, not an error: Approved is false and Reason names the
// limit.
type IntentResult struct {
	Approved bool           `json:"approved"`
	Reason   string         `json:"reason"`
	OrderID  string         `json:"order_id,omitempty"`
	Sizing   *sizing.Result `json:"sizing,omitempty"`
}

// Config holds engine loop intervals and shutdown tuning
type Config struct {
	RiskRecomputeInterval time.Duration
	CleanupInterval       time.Duration
	StopTimeout           time.Duration
	// ReservationTimeout bounds how long an unsettled reservation may
	// hold risk budget before the cleanup loop reclaims it.
	ReservationTimeout time.Duration
}

// DefaultConfig returns the standard engine tuning
func DefaultConfig() Config {
	return Config{
		RiskRecomputeInterval: 30 * time.Second,
		CleanupInterval:       time.Minute,
		StopTimeout:           15 * time.Second,
		ReservationTimeout:    5 * time.Minute,
	}
}

// Engine ties the trading pipeline together: sizing, risk gating with
// budget reservation, order placement and the background recompute and
// cleanup loops.
type Engine struct {
	cfg Config
	log *logger.Logger

	sizer     *sizing.Sizer
	portfolio *portfolio.Manager
	risk      *risk.Manager
	orders    *orders.Manager

	mu           sync.Mutex
	running      bool
	stopChan     chan struct{}
	wg           sync.WaitGroup
	reservations map[string]*heldReservation
	stats        map[string]sizing.MarketStats
}

type heldReservation struct {
	reservation *risk.Reservation
	createdAt   time.Time
}

// New wires an engine from its collaborators
func New(cfg Config, sizer *sizing.Sizer, pm *portfolio.Manager, rm *risk.Manager, om *orders.Manager, log *logger.Logger) *Engine {
	def := DefaultConfig()
	if cfg.RiskRecomputeInterval <= 0 {
		cfg.RiskRecomputeInterval = def.RiskRecomputeInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.ReservationTimeout <= 0 {
		cfg.ReservationTimeout = def.ReservationTimeout
	}

	e := &Engine{
		cfg:          cfg,
		log:          log,
		sizer:        sizer,
		portfolio:    pm,
		risk:         rm,
		orders:       om,
		stopChan:     make(chan struct{}),
		reservations: make(map[string]*heldReservation),
		stats:        make(map[string]sizing.MarketStats),
	}
	om.SubscribeAll(e.handleOrderEvent)
	return e
}

// SetMarketStats updates the per-symbol statistics the sizer consumes
func (e *Engine) SetMarketStats(symbol string, stats sizing.MarketStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats[symbol] = stats
}

// Start launches the order manager and the background loops
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	if err := e.orders.Start(ctx); err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		return err
	}

	e.wg.Add(2)
	go e.riskLoop()
	go e.cleanupLoop()

	e.log.Status("engine started")
	return nil
}

// Stop shuts the loops and the order manager down, waiting up to
// StopTimeout for in-flight work to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		e.orders.Stop()
		close(done)
	}()

	select {
	case <-done:
		e.log.Status("engine stopped")
	case <-time.After(e.cfg.StopTimeout):
		e.log.Warning("engine stop timed out after %s", e.cfg.StopTimeout)
	}

	e.releaseAllReservations()
}

// SubmitIntent runs the trade pipeline: size, validate and reserve risk
// budget atomically, then place the order. Risk rejections come back as a
// non-approved result; errors signal placement or parameter failures.
func (e *Engine) SubmitIntent(ctx context.Context, intent TradeIntent) (*IntentResult, error) {
	balance := e.portfolio.CashBalance()

	e.mu.Lock()
	stats := e.stats[intent.Symbol]
	e.mu.Unlock()

	params := sizing.TradeParams{
		Symbol:     intent.Symbol,
		EntryPrice: intent.TargetPrice,
		StopLoss:   intent.StopLoss,
	}

	var sized *sizing.Result
	var err error
	if intent.RiskHint != "" {
		sized, err = e.sizer.Size(intent.RiskHint, balance, params, stats)
	} else {
		sized, err = e.sizer.OptimalSize(balance, params, stats)
	}
	if err != nil {
		return nil, err
	}

	amount := sized.RecommendedSize
	if intent.RequestedAmount > 0 && intent.RequestedAmount < amount {
		amount = intent.RequestedAmount
	}
	if ok, reason := e.sizer.ValidateSize(amount, intent.TargetPrice, balance); !ok {
		return &IntentResult{Reason: fmt.Sprintf("sizing rejected: %s", reason), Sizing: sized}, nil
	}

	trade := &risk.TradeRequest{
		Symbol: intent.Symbol,
		Side:   string(intent.Side),
		Amount: amount,
		Price:  intent.TargetPrice,
	}
	reservation, approved, reason := e.risk.ValidateAndReserve(trade, e.portfolio.Snapshot())
	if !approved {
		e.log.Risk("intent for %s rejected: %s", intent.Symbol, reason)
		return &IntentResult{Reason: reason, Sizing: sized}, nil
	}

	orderID, err := e.orders.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol:    intent.Symbol,
		Side:      intent.Side,
		Type:      intent.Type,
		Amount:    amount,
		Price:     intent.TargetPrice,
		StopPrice: intent.StopLoss,
	})
	if err != nil {
		reservation.Release()
		return nil, err
	}

	e.mu.Lock()
	e.reservations[orderID] = &heldReservation{reservation: reservation, createdAt: time.Now()}
	e.mu.Unlock()

	// Market orders can reach a terminal state inside PlaceOrder, before
	// the reservation is registered; settle immediately in that case.
	if order, found := e.orders.GetOrder(orderID); found && order.State.IsTerminal() {
		e.settleOrder(orderID)
	}

	e.log.Trade("intent accepted: %s %s %.8f @ %.2f (order=%s, method=%s)",
		intent.Side, intent.Symbol, amount, intent.TargetPrice, orderID, sized.Method)
	return &IntentResult{Approved: true, Reason: "accepted", OrderID: orderID, Sizing: sized}, nil
}

// handleOrderEvent settles risk reservations when their orders reach a
// terminal state.
func (e *Engine) handleOrderEvent(event orders.Event) {
	switch event.Type {
	case orders.EventOrderFilled, orders.EventOrderCancelled, orders.EventOrderFailed:
	default:
		return
	}
	e.settleOrder(event.OrderID)
}

// settleOrder commits or releases the reservation held for an order that
// reached a terminal state.
func (e *Engine) settleOrder(orderID string) {
	e.mu.Lock()
	held, ok := e.reservations[orderID]
	if ok {
		delete(e.reservations, orderID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	order, found := e.orders.GetOrder(orderID)
	if !found || order.FilledAmount <= 0 {
		held.reservation.Release()
		return
	}

	// Commit the exposure actually taken on; a partial fill before a
	// cancel commits only the filled part.
	snap := e.portfolio.Snapshot()
	var fraction float64
	if snap.TotalValue > 0 {
		price := order.AvgFillPrice
		if price <= 0 {
			price = order.Price
		}
		fraction = order.FilledAmount * price / snap.TotalValue
	}
	held.reservation.Commit(fraction)
}

// UpdatePrices pushes fresh mark prices into the portfolio and the
// per-symbol price gauge.
func (e *Engine) UpdatePrices(prices map[string]float64) {
	e.portfolio.UpdatePositionPrices(prices)
	for symbol, price := range prices {
		monitoring.UpdatePrice(symbol, price)
	}
}

// ClosePosition closes a position at the given price and releases its
// committed risk exposure.
func (e *Engine) ClosePosition(symbol string, exitPrice float64, reason string) error {
	snap := e.portfolio.Snapshot()
	var fraction float64
	if pos, ok := snap.Positions[symbol]; ok && snap.TotalValue > 0 {
		fraction = pos.Amount * pos.CurrentPrice / snap.TotalValue
	}
	if err := e.portfolio.ClosePosition(symbol, exitPrice, reason, 0); err != nil {
		return err
	}
	e.risk.ReleaseExposure(fraction)
	return nil
}

// riskLoop recomputes portfolio risk and checks limits on a schedule
func (e *Engine) riskLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.RiskRecomputeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			snap := e.portfolio.Snapshot()
			limits := e.risk.CheckRiskLimits(snap, nil)
			for _, l := range limits {
				if l.IsBreached {
					e.log.Risk("limit %s breached: %.4f > %.4f", l.LimitType, l.CurrentValue, l.LimitValue)
				}
			}
		}
	}
}

// cleanupLoop reclaims stale reservations and logs a periodic status
// block.
func (e *Engine) cleanupLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.reclaimStaleReservations()

			metrics := e.portfolio.GetPortfolioMetrics()
			stats := e.orders.GetOrderStatistics()
			e.log.LogPortfolioStatus(metrics.TotalValue, metrics.CashBalance,
				metrics.UnrealizedPnL, metrics.RealizedPnL, metrics.NumPositions, stats.ActiveOrders)
		}
	}
}

// reclaimStaleReservations releases budget held by orders that never
// produced a terminal event within the timeout.
func (e *Engine) reclaimStaleReservations() {
	e.mu.Lock()
	var stale []*heldReservation
	for orderID, held := range e.reservations {
		if time.Since(held.createdAt) > e.cfg.ReservationTimeout {
			if _, active := activeOrder(e.orders, orderID); !active {
				stale = append(stale, held)
				delete(e.reservations, orderID)
			}
		}
	}
	e.mu.Unlock()

	for _, held := range stale {
		held.reservation.Release()
		e.log.Warning("reclaimed stale risk reservation %s", held.reservation.ID)
	}
}

// activeOrder reports whether the order is still in the active set
func activeOrder(om *orders.Manager, orderID string) (orders.ManagedOrder, bool) {
	order, found := om.GetOrder(orderID)
	if !found {
		return orders.ManagedOrder{}, false
	}
	return order, !order.State.IsTerminal()
}

// releaseAllReservations returns any budget still held at shutdown
func (e *Engine) releaseAllReservations() {
	e.mu.Lock()
	held := make([]*heldReservation, 0, len(e.reservations))
	for _, h := range e.reservations {
		held = append(held, h)
	}
	e.reservations = make(map[string]*heldReservation)
	e.mu.Unlock()

	for _, h := range held {
		h.reservation.Release()
	}
}

// GetPortfolioMetrics exposes the portfolio aggregate for callers
func (e *Engine) GetPortfolioMetrics() portfolio.Metrics {
	return e.portfolio.GetPortfolioMetrics()
}

// GetActiveOrders exposes active orders, optionally filtered by symbol
func (e *Engine) GetActiveOrders(symbol string) []orders.ManagedOrder {
	return e.orders.GetActiveOrders(symbol)
}

// GetRiskSummary exposes the current risk summary
func (e *Engine) GetRiskSummary() risk.Summary {
	return e.risk.GetRiskSummary()
}

// GetPosition exposes one position by symbol
func (e *Engine) GetPosition(symbol string) (portfolio.Position, bool) {
	return e.portfolio.GetPosition(symbol)
}
