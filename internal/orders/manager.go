package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	tradingerrors "github.com/ducminhle1904/crypto-trading-core/internal/errors"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
	"github.com/ducminhle1904/crypto-trading-core/internal/ring"
)

const component = "order_manager"

// maxRecentErrors bounds the error window kept for diagnostics
const maxRecentErrors = 50

// FillSink receives realized fills. The portfolio manager's ApplyFill is
// the production implementation and the single mutation entrypoint for
// position state.
type FillSink interface {
	ApplyFill(symbol string, side portfolio.Side, amount, price float64) error
}

// Config holds order manager tuning
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
	HistorySize    int
}

// DefaultConfig returns the standard polling configuration
func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     3,
		HistorySize:    1000,
	}
}

// Manager submits orders to an exchange adapter, tracks each through its
// state machine by polling, reconciles fills into the portfolio and emits
// lifecycle events. Stop waits for any in-flight per-order update to
// finish before returning.
type Manager struct {
	mu  sync.RWMutex
	cfg Config
	log *logger.Logger

	exchange exchange.Exchange
	sink     FillSink
	bus      *eventBus

	active    map[string]*ManagedOrder
	completed *ring.Buffer[ManagedOrder]
	failed    *ring.Buffer[ManagedOrder]

	totalOrders      int
	successfulOrders int
	failedOrders     int
	errStats         *tradingerrors.ErrorStats

	running bool
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// NewManager constructs an order manager bound to one exchange adapter
func NewManager(cfg Config, ex exchange.Exchange, sink FillSink, log *logger.Logger) *Manager {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		exchange:  ex,
		sink:      sink,
		bus:       newEventBus(),
		active:    make(map[string]*ManagedOrder),
		completed: ring.New[ManagedOrder](cfg.HistorySize),
		failed:    ring.New[ManagedOrder](cfg.HistorySize),
		errStats:  tradingerrors.NewErrorStats(maxRecentErrors),
	}
}

// Subscribe registers a handler for one event type
func (m *Manager) Subscribe(t EventType, h EventHandler) { m.bus.subscribe(t, h) }

// SubscribeAll registers a handler for every event type
func (m *Manager) SubscribeAll(h EventHandler) { m.bus.subscribeAll(h) }

// Start connects the exchange if needed and launches the polling loop
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	if !m.exchange.IsConnected() {
		if err := m.exchange.Connect(ctx); err != nil {
			m.mu.Lock()
			m.running = false
			m.cancel = nil
			m.mu.Unlock()
			cancel()
			return m.recordError(tradingerrors.Wrap(err, tradingerrors.ErrorCategoryExchange, component, "start"))
		}
	}

	m.done.Add(1)
	go m.pollLoop(loopCtx)

	m.log.Order("order manager started (poll=%s, retries=%d)", m.cfg.PollInterval, m.cfg.MaxRetries)
	return nil
}

// Stop cancels the polling loop and blocks until any in-flight per-order
// update has committed or rolled back.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.done.Wait()
	m.log.Order("order manager stopped")
}

// IsRunning reports whether the polling loop is active
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// PlaceOrder submits an order and registers it for tracking. It returns
// the internal order ID, which is never reused.
func (m *Manager) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	if req.Symbol == "" || req.Amount <= 0 {
		return "", m.recordError(tradingerrors.NewInvalidParameterError(component, "place_order",
			fmt.Sprintf("symbol=%q amount=%.8f", req.Symbol, req.Amount)))
	}
	if !m.IsRunning() {
		return "", m.recordError(tradingerrors.New(tradingerrors.ErrorCategoryValidation, component, "place_order",
			"order manager is not running"))
	}

	callCtx, cancelCall := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancelCall()

	if !m.exchange.HealthCheck(callCtx) {
		return "", m.recordError(tradingerrors.NewExchangeUnavailableError(component, m.exchange.Name()))
	}

	internalID := uuid.New().String()
	req.ClientOrderID = internalID

	placed, err := m.exchange.PlaceOrder(callCtx, req)
	if err != nil {
		if exchange.IsRejection(err) {
			return "", m.recordError(tradingerrors.NewOrderRejectedError(component, "place_order", err))
		}
		return "", m.recordError(tradingerrors.Wrap(err, tradingerrors.ErrorCategoryExchange, component, "place_order"))
	}

	order := &ManagedOrder{
		ID:              internalID,
		ExchangeOrderID: placed.OrderID,
		Exchange:        m.exchange.Name(),
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Amount:          req.Amount,
		Price:           req.Price,
		StopPrice:       req.StopPrice,
		State:           StateCreated,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	m.mu.Lock()
	m.active[internalID] = order
	m.totalOrders++
	m.mu.Unlock()

	m.log.Order("placed %s %s %.8f %s (internal=%s exchange=%s)",
		req.Side, req.Type, req.Amount, req.Symbol, internalID, placed.OrderID)
	m.bus.emit(Event{
		Type: EventOrderCreated, OrderID: internalID, Symbol: req.Symbol, Timestamp: time.Now(),
		Payload: map[string]interface{}{
			"exchange":          m.exchange.Name(),
			"exchange_order_id": placed.OrderID,
			"side":              string(req.Side),
			"amount":            req.Amount,
			"price":             req.Price,
		},
	})

	// The exchange may report a terminal status immediately, market
	// orders in particular.
	m.applyExchangeState(order, placed)
	return internalID, nil
}

// CancelOrder requests cancellation of an active order. A cancel the
// exchange reports as already filled resolves the order as Filled and is
// not an error.
func (m *Manager) CancelOrder(ctx context.Context, internalID string) (bool, error) {
	m.mu.RLock()
	order, ok := m.active[internalID]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}

	order.mu.Lock()
	symbol, exchangeID := order.Symbol, order.ExchangeOrderID
	order.mu.Unlock()

	callCtx, cancelCall := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	defer cancelCall()

	cancelled, err := m.exchange.CancelOrder(callCtx, symbol, exchangeID)
	if err != nil {
		if exchange.IsOrderNotFound(err) {
			cancelled = false
		} else {
			return false, tradingerrors.Wrap(err, tradingerrors.ErrorCategoryExchange, component, "cancel_order")
		}
	}
	if cancelled {
		m.log.Order("cancel requested for %s (%s)", internalID, symbol)
		return true, nil
	}

	// Cancel did not take: the order likely reached a terminal state
	// already. Resolve through its authoritative status.
	current, err := m.exchange.GetOrder(callCtx, symbol, exchangeID)
	if err != nil {
		return false, tradingerrors.Wrap(err, tradingerrors.ErrorCategoryExchange, component, "cancel_order")
	}
	m.applyExchangeState(order, current)
	return current.Status == exchange.StatusCancelled, nil
}

// CancelAllOrders cancels every active order, optionally filtered by
// symbol, and returns the number of successful cancel requests.
func (m *Manager) CancelAllOrders(ctx context.Context, symbol string) int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.active))
	for id, order := range m.active {
		order.mu.Lock()
		match := symbol == "" || order.Symbol == symbol
		order.mu.Unlock()
		if match {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	cancelled := 0
	for _, id := range ids {
		ok, err := m.CancelOrder(ctx, id)
		if err != nil {
			m.log.Warning("cancel %s failed: %v", id, err)
			continue
		}
		if ok {
			cancelled++
		}
	}
	m.log.Order("cancel all: %d/%d orders cancelled", cancelled, len(ids))
	return cancelled
}

// pollLoop refreshes every active order once per interval until cancelled
func (m *Manager) pollLoop(ctx context.Context) {
	defer m.done.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateAllOrders(ctx)
		}
	}
}

// updateAllOrders polls each active order on its own goroutine and waits
// for the batch, so a shutdown never abandons a half-applied update.
func (m *Manager) updateAllOrders(ctx context.Context) {
	m.mu.RLock()
	batch := make([]*ManagedOrder, 0, len(m.active))
	for _, order := range m.active {
		batch = append(batch, order)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, order := range batch {
		wg.Add(1)
		go func(o *ManagedOrder) {
			defer wg.Done()
			m.updateOrder(ctx, o)
		}(order)
	}
	wg.Wait()
}

// updateOrder fetches the authoritative state of one order and applies
// it. Transport failures count against the retry budget; exhausting it
// force-fails the order with a reason distinguishable from an
// exchange-reported terminal state.
func (m *Manager) updateOrder(ctx context.Context, order *ManagedOrder) {
	order.mu.Lock()
	if order.State.IsTerminal() {
		order.mu.Unlock()
		return
	}
	symbol, exchangeID := order.Symbol, order.ExchangeOrderID
	order.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
	current, err := m.exchange.GetOrder(callCtx, symbol, exchangeID)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if exchange.IsOrderNotFound(err) {
			m.reconciliationFailure(order, fmt.Sprintf("order %s not found on exchange", exchangeID))
			return
		}

		order.mu.Lock()
		order.RetryCount++
		retries := order.RetryCount
		order.mu.Unlock()

		m.log.Warning("poll %s failed (attempt %d/%d): %v", order.ID, retries, m.cfg.MaxRetries, err)
		if retries >= m.cfg.MaxRetries {
			m.failOrder(order, fmt.Sprintf("status polling failed after %d attempts: %v", retries, err))
		}
		return
	}

	order.mu.Lock()
	order.RetryCount = 0
	order.mu.Unlock()

	m.applyExchangeState(order, current)
}

// applyExchangeState folds an exchange report into the managed order,
// forwarding new fills to the portfolio and emitting lifecycle events.
func (m *Manager) applyExchangeState(order *ManagedOrder, current *exchange.Order) {
	order.mu.Lock()

	if order.State.IsTerminal() {
		order.mu.Unlock()
		return
	}

	oldState := order.State
	oldFilled := order.FilledAmount
	newState := stateFromStatus(current.Status)

	if newState != oldState && !CanTransition(oldState, newState) {
		order.mu.Unlock()
		m.reconciliationFailure(order, fmt.Sprintf("illegal state change %s -> %s reported by exchange", oldState, newState))
		return
	}

	order.FilledAmount = current.FilledAmount
	if current.AvgFillPrice > 0 {
		order.AvgFillPrice = current.AvgFillPrice
	}
	order.UpdatedAt = time.Now()
	if newState != oldState {
		order.State = newState
	}
	snapshot := order.snapshotLocked()
	order.mu.Unlock()

	fillDelta := snapshot.FilledAmount - oldFilled
	if fillDelta > 0 {
		m.forwardFill(snapshot, fillDelta)
	}

	payload := map[string]interface{}{
		"old_state":      string(oldState),
		"new_state":      string(snapshot.State),
		"old_filled":     oldFilled,
		"new_filled":     snapshot.FilledAmount,
		"avg_fill_price": snapshot.AvgFillPrice,
	}

	if fillDelta > 0 && snapshot.State == StatePartial {
		m.bus.emit(Event{Type: EventOrderPartial, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(), Payload: payload})
	}

	if snapshot.State != oldState {
		switch snapshot.State {
		case StateFilled:
			m.moveToHistory(snapshot, true)
			m.log.LogFill(snapshot.ID, snapshot.Symbol, string(snapshot.Side), snapshot.FilledAmount, snapshot.AvgFillPrice)
			m.bus.emit(Event{Type: EventOrderFilled, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(), Payload: payload})
		case StateCancelled:
			m.moveToHistory(snapshot, true)
			m.bus.emit(Event{Type: EventOrderCancelled, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(), Payload: payload})
		case StateRejected:
			m.terminalFailure(snapshot, "rejected by exchange")
		case StateExpired:
			m.terminalFailure(snapshot, "expired on exchange")
		}
	}

	// A poll that observed no change emits nothing.
	if snapshot.State != oldState || fillDelta > 0 {
		m.bus.emit(Event{Type: EventOrderUpdated, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(), Payload: payload})
	}
}

// forwardFill applies a newly observed fill increment to the portfolio
func (m *Manager) forwardFill(snapshot ManagedOrder, delta float64) {
	price := snapshot.AvgFillPrice
	if price <= 0 {
		price = snapshot.Price
	}
	side := portfolio.SideLong
	if snapshot.Side == exchange.OrderSideSell {
		side = portfolio.SideShort
	}
	if err := m.sink.ApplyFill(snapshot.Symbol, side, delta, price); err != nil {
		m.log.Error("fill reconciliation for %s failed: %v", snapshot.ID, err)
		m.bus.emit(Event{
			Type: EventReconciliation, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(),
			Payload: map[string]interface{}{"reason": err.Error(), "amount": delta, "price": price},
		})
	}
}

// moveToHistory removes a terminal order from the active set
func (m *Manager) moveToHistory(snapshot ManagedOrder, successful bool) {
	m.mu.Lock()
	delete(m.active, snapshot.ID)
	if successful {
		m.completed.Push(snapshot)
		m.successfulOrders++
	} else {
		m.failed.Push(snapshot)
		m.failedOrders++
	}
	m.mu.Unlock()
}

// recordError feeds a failure into the rolling error statistics and
// returns it unchanged so call sites stay single-expression.
func (m *Manager) recordError(err *tradingerrors.TradingError) error {
	m.errStats.Record(err)
	return err
}

// terminalFailure records an exchange-reported terminal failure, keeping
// the exchange's state (rejected/expired) rather than Failed.
func (m *Manager) terminalFailure(snapshot ManagedOrder, reason string) {
	m.mu.Lock()
	if order, ok := m.active[snapshot.ID]; ok {
		order.mu.Lock()
		order.FailReason = reason
		snapshot.FailReason = reason
		order.mu.Unlock()
	}
	m.mu.Unlock()

	m.errStats.Record(tradingerrors.New(tradingerrors.ErrorCategoryExchange, component, "track_order", reason))
	m.moveToHistory(snapshot, false)
	m.log.Order("order %s %s: %s", snapshot.ID, snapshot.State, reason)
	m.bus.emit(Event{
		Type: EventOrderFailed, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(),
		Payload: map[string]interface{}{"reason": reason, "state": string(snapshot.State)},
	})
}

// failOrder force-transitions an order to Failed after retry exhaustion
func (m *Manager) failOrder(order *ManagedOrder, reason string) {
	order.mu.Lock()
	if order.State.IsTerminal() {
		order.mu.Unlock()
		return
	}
	order.State = StateFailed
	order.FailReason = reason
	order.UpdatedAt = time.Now()
	snapshot := order.snapshotLocked()
	order.mu.Unlock()

	m.errStats.Record(tradingerrors.New(tradingerrors.ErrorCategoryExchange, component, "track_order", reason))
	m.moveToHistory(snapshot, false)
	m.log.Error("order %s failed: %s", snapshot.ID, reason)
	m.bus.emit(Event{
		Type: EventOrderFailed, OrderID: snapshot.ID, Symbol: snapshot.Symbol, Timestamp: time.Now(),
		Payload: map[string]interface{}{"reason": reason, "state": string(StateFailed)},
	})
}

// reconciliationFailure handles local/exchange state divergence: the
// order is failed and a reconciliation alert is emitted for manual
// review, never silently dropped.
func (m *Manager) reconciliationFailure(order *ManagedOrder, reason string) {
	order.mu.Lock()
	symbol := order.Symbol
	id := order.ID
	order.mu.Unlock()

	m.bus.emit(Event{
		Type: EventReconciliation, OrderID: id, Symbol: symbol, Timestamp: time.Now(),
		Payload: map[string]interface{}{"reason": reason},
	})
	m.failOrder(order, reason)
}

// GetOrder returns a copy of an order, active or historical
func (m *Manager) GetOrder(internalID string) (ManagedOrder, bool) {
	m.mu.RLock()
	if order, ok := m.active[internalID]; ok {
		m.mu.RUnlock()
		return order.Snapshot(), true
	}
	m.mu.RUnlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.completed.Items() {
		if o.ID == internalID {
			return o, true
		}
	}
	for _, o := range m.failed.Items() {
		if o.ID == internalID {
			return o, true
		}
	}
	return ManagedOrder{}, false
}

// GetActiveOrders returns copies of active orders, optionally filtered by
// symbol.
func (m *Manager) GetActiveOrders(symbol string) []ManagedOrder {
	m.mu.RLock()
	batch := make([]*ManagedOrder, 0, len(m.active))
	for _, order := range m.active {
		batch = append(batch, order)
	}
	m.mu.RUnlock()

	result := make([]ManagedOrder, 0, len(batch))
	for _, order := range batch {
		snapshot := order.Snapshot()
		if symbol == "" || snapshot.Symbol == symbol {
			result = append(result, snapshot)
		}
	}
	return result
}

// CompletedOrders returns up to limit most recent completed orders
func (m *Manager) CompletedOrders(limit int) []ManagedOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed.Last(limit)
}

// FailedOrders returns up to limit most recent failed orders
func (m *Manager) FailedOrders(limit int) []ManagedOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failed.Last(limit)
}

// GetOrderStatistics summarizes activity since construction
func (m *Manager) GetOrderStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Statistics{
		TotalOrders:      m.totalOrders,
		ActiveOrders:     len(m.active),
		SuccessfulOrders: m.successfulOrders,
		FailedOrders:     m.failedOrders,
		Running:          m.running,
	}
	if m.totalOrders > 0 {
		stats.SuccessRate = float64(m.successfulOrders) / float64(m.totalOrders)
	}
	return stats
}

// ErrorStatistics returns the total error count and a per-category
// breakdown of failures recorded since construction.
func (m *Manager) ErrorStatistics() (int, map[tradingerrors.ErrorCategory]int) {
	return m.errStats.Snapshot()
}
