package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tradingerrors "github.com/ducminhle1904/crypto-trading-core/internal/errors"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
)

type recordedFill struct {
	Symbol string
	Side   portfolio.Side
	Amount float64
	Price  float64
}

// fillRecorder is a FillSink that captures forwarded fills
type fillRecorder struct {
	mu    sync.Mutex
	fills []recordedFill
	err   error
}

func (f *fillRecorder) ApplyFill(symbol string, side portfolio.Side, amount, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.fills = append(f.fills, recordedFill{symbol, side, amount, price})
	return nil
}

func (f *fillRecorder) recorded() []recordedFill {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedFill(nil), f.fills...)
}

// eventRecorder captures emitted events
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (e *eventRecorder) handle(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventRecorder) byType(t EventType) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// newTestManager wires a manager to a paper exchange with a poll interval
// long enough that tests drive updates explicitly
func newTestManager(t *testing.T) (*Manager, *exchange.PaperExchange, *fillRecorder, *eventRecorder) {
	t.Helper()

	paper := exchange.NewPaperExchange(map[string]float64{"USDT": 1_000_000})
	paper.SetPrice("BTCUSDT", 50000)

	sink := &fillRecorder{}
	events := &eventRecorder{}
	m := NewManager(Config{PollInterval: time.Hour, MaxRetries: 3}, paper, sink, logger.NewTestLogger(io.Discard))
	m.SubscribeAll(events.handle)

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m, paper, sink, events
}

// TestCanTransition_TerminalAbsorbs verifies no transition leaves a
// terminal state
func TestCanTransition_TerminalAbsorbs(t *testing.T) {
	terminals := []State{StateFilled, StateCancelled, StateRejected, StateExpired, StateFailed}
	all := []State{StateCreated, StateOpen, StatePartial, StateFilled, StateCancelled, StateRejected, StateExpired, StateFailed}

	for _, from := range terminals {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s must be illegal", from, to)
		}
	}
}

// TestCanTransition_NonTerminalPaths verifies every non-terminal state
// reaches each terminal state
func TestCanTransition_NonTerminalPaths(t *testing.T) {
	for _, from := range []State{StateCreated, StateOpen, StatePartial} {
		for _, to := range []State{StateFilled, StateCancelled, StateRejected, StateExpired, StateFailed} {
			assert.True(t, CanTransition(from, to), "%s -> %s must be legal", from, to)
		}
	}
	assert.True(t, CanTransition(StateOpen, StatePartial))
	assert.True(t, CanTransition(StatePartial, StateOpen))
	assert.False(t, CanTransition(StateOpen, StateCreated))
}

// TestPlaceOrder_MarketFill verifies an immediately filled market order
// lands in history with its fill forwarded
func TestPlaceOrder_MarketFill(t *testing.T) {
	m, _, sink, events := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 0.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	order, ok := m.GetOrder(id)
	require.True(t, ok)
	assert.Equal(t, StateFilled, order.State)
	assert.Equal(t, 0.5, order.FilledAmount)
	assert.Equal(t, 50000.0, order.AvgFillPrice)

	assert.Empty(t, m.GetActiveOrders(""))
	require.Len(t, m.CompletedOrders(10), 1)

	fills := sink.recorded()
	require.Len(t, fills, 1)
	assert.Equal(t, recordedFill{"BTCUSDT", portfolio.SideLong, 0.5, 50000}, fills[0])

	assert.Len(t, events.byType(EventOrderCreated), 1)
	assert.Len(t, events.byType(EventOrderFilled), 1)
}

// TestPlaceOrder_Unhealthy verifies placement against an unhealthy
// exchange fails with an exchange error before submission
func TestPlaceOrder_Unhealthy(t *testing.T) {
	m, paper, sink, _ := newTestManager(t)
	paper.SetHealthy(false)

	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 1,
	})

	require.Error(t, err)
	assert.True(t, tradingerrors.IsCategory(err, tradingerrors.ErrorCategoryExchange))
	assert.Empty(t, sink.recorded())
}

// TestPlaceOrder_Rejected verifies an outright exchange rejection is a
// terminal error, not retried
func TestPlaceOrder_Rejected(t *testing.T) {
	m, paper, _, _ := newTestManager(t)
	paper.RejectNextOrder("min notional not met")

	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 1,
	})

	require.Error(t, err)
	assert.True(t, tradingerrors.IsOrderRejected(err))
	assert.False(t, tradingerrors.IsRetryable(err))
}

// TestLimitOrder_FillOnCross verifies a resting limit order fills when a
// later price update crosses it
func TestLimitOrder_FillOnCross(t *testing.T) {
	m, paper, sink, _ := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.2, Price: 49000,
	})
	require.NoError(t, err)

	m.updateAllOrders(context.Background())
	order, _ := m.GetOrder(id)
	assert.Equal(t, StateOpen, order.State)
	require.Len(t, m.GetActiveOrders("BTCUSDT"), 1)

	paper.SetPrice("BTCUSDT", 48900)
	m.updateAllOrders(context.Background())

	order, _ = m.GetOrder(id)
	assert.Equal(t, StateFilled, order.State)
	assert.Equal(t, 49000.0, order.AvgFillPrice)
	require.Len(t, sink.recorded(), 1)
	assert.Equal(t, 0.2, sink.recorded()[0].Amount)
}

// TestPartialFill verifies partial fills forward increments and toggle
// the partial state before completion
func TestPartialFill(t *testing.T) {
	m, paper, sink, events := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideSell, Type: exchange.OrderTypeLimit, Amount: 1.0, Price: 51000,
	})
	require.NoError(t, err)

	order, _ := m.GetOrder(id)
	require.NoError(t, paper.FillPartial(order.ExchangeOrderID, 0.4, 51000))
	m.updateAllOrders(context.Background())

	order, _ = m.GetOrder(id)
	assert.Equal(t, StatePartial, order.State)
	assert.Equal(t, 0.4, order.FilledAmount)
	assert.Len(t, events.byType(EventOrderPartial), 1)

	require.NoError(t, paper.FillPartial(order.ExchangeOrderID, 0.6, 51000))
	m.updateAllOrders(context.Background())

	order, _ = m.GetOrder(id)
	assert.Equal(t, StateFilled, order.State)

	fills := sink.recorded()
	require.Len(t, fills, 2)
	assert.InDelta(t, 0.4, fills[0].Amount, 1e-12)
	assert.InDelta(t, 0.6, fills[1].Amount, 1e-12)
	assert.Equal(t, portfolio.SideShort, fills[0].Side)
}

// TestRetryExhaustion verifies transport failures exhaust the retry
// budget into a Failed state with a distinguishable reason
func TestRetryExhaustion(t *testing.T) {
	m, paper, _, events := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)

	paper.FailNextRequests(3)
	for i := 0; i < 3; i++ {
		m.updateAllOrders(context.Background())
	}

	order, ok := m.GetOrder(id)
	require.True(t, ok)
	assert.Equal(t, StateFailed, order.State)
	assert.Contains(t, order.FailReason, "status polling failed after 3 attempts")
	assert.Empty(t, m.GetActiveOrders(""))
	require.Len(t, m.FailedOrders(10), 1)

	failures := events.byType(EventOrderFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, string(StateFailed), failures[0].Payload["state"])
}

// TestRetryCountResets verifies a successful poll clears the retry count
func TestRetryCountResets(t *testing.T) {
	m, paper, _, _ := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)

	paper.FailNextRequests(2)
	m.updateAllOrders(context.Background())
	m.updateAllOrders(context.Background())
	m.updateAllOrders(context.Background()) // succeeds, resets the counter

	paper.FailNextRequests(2)
	m.updateAllOrders(context.Background())
	m.updateAllOrders(context.Background())

	order, _ := m.GetOrder(id)
	assert.NotEqual(t, StateFailed, order.State)
	assert.Len(t, m.GetActiveOrders(""), 1)
}

// TestCancelOrder verifies a resting order cancels and lands in history
func TestCancelOrder(t *testing.T) {
	m, _, _, events := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)

	ok, err := m.CancelOrder(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	m.updateAllOrders(context.Background())

	order, found := m.GetOrder(id)
	require.True(t, found)
	assert.Equal(t, StateCancelled, order.State)
	assert.Len(t, events.byType(EventOrderCancelled), 1)
}

// TestCancelOrder_AlreadyFilled verifies a cancel the exchange reports as
// too late resolves the order as Filled, not an error
func TestCancelOrder_AlreadyFilled(t *testing.T) {
	m, paper, sink, _ := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 49500,
	})
	require.NoError(t, err)

	// fills venue-side before the cancel arrives
	paper.SetPrice("BTCUSDT", 49000)

	cancelled, err := m.CancelOrder(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, cancelled)

	order, found := m.GetOrder(id)
	require.True(t, found)
	assert.Equal(t, StateFilled, order.State)
	assert.Len(t, sink.recorded(), 1)
}

// TestCancelAllOrders verifies the symbol filter and count
func TestCancelAllOrders(t *testing.T) {
	m, paper, _, _ := newTestManager(t)
	paper.SetPrice("ETHUSDT", 2000)

	for _, req := range []exchange.OrderRequest{
		{Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000},
		{Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.2, Price: 41000},
		{Symbol: "ETHUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 1, Price: 1800},
	} {
		_, err := m.PlaceOrder(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, m.CancelAllOrders(context.Background(), "BTCUSDT"))
	m.updateAllOrders(context.Background())
	assert.Len(t, m.GetActiveOrders(""), 1)
}

// TestExpiredOrder verifies venue expiry keeps the Expired state and is
// distinguishable from retry-exhaustion failure
func TestExpiredOrder(t *testing.T) {
	m, paper, _, events := newTestManager(t)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)

	order, _ := m.GetOrder(id)
	require.NoError(t, paper.ExpireOrder(order.ExchangeOrderID))
	m.updateAllOrders(context.Background())

	order, found := m.GetOrder(id)
	require.True(t, found)
	assert.Equal(t, StateExpired, order.State)
	assert.Equal(t, "expired on exchange", order.FailReason)

	failures := events.byType(EventOrderFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, string(StateExpired), failures[0].Payload["state"])
}

// TestReconciliation_FillSinkFailure verifies a portfolio-side fill
// failure raises a reconciliation alert instead of being dropped
func TestReconciliation_FillSinkFailure(t *testing.T) {
	m, _, sink, events := newTestManager(t)
	sink.err = assert.AnError

	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 0.1,
	})
	require.NoError(t, err)

	assert.Len(t, events.byType(EventReconciliation), 1)
}

// TestStatistics verifies counters across mixed outcomes
func TestStatistics(t *testing.T) {
	m, paper, _, _ := newTestManager(t)

	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 0.1,
	})
	require.NoError(t, err)

	id, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)
	order, _ := m.GetOrder(id)
	require.NoError(t, paper.ExpireOrder(order.ExchangeOrderID))
	m.updateAllOrders(context.Background())

	stats := m.GetOrderStatistics()
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.SuccessfulOrders)
	assert.Equal(t, 1, stats.FailedOrders)
	assert.Equal(t, 0, stats.ActiveOrders)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-12)
	assert.True(t, stats.Running)
}

// TestPollWithoutChange_EmitsNothing verifies an unchanged resting order
// produces no update events on later poll cycles
func TestPollWithoutChange_EmitsNothing(t *testing.T) {
	m, _, _, events := newTestManager(t)

	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)

	m.updateAllOrders(context.Background())
	seen := len(events.byType(EventOrderUpdated))

	m.updateAllOrders(context.Background())
	m.updateAllOrders(context.Background())

	assert.Len(t, events.byType(EventOrderUpdated), seen)
}

// TestErrorStatistics verifies failures are tallied by category
func TestErrorStatistics(t *testing.T) {
	m, paper, _, _ := newTestManager(t)

	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 0.1,
	})
	require.Error(t, err)

	paper.RejectNextOrder("min notional not met")
	_, err = m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 1,
	})
	require.Error(t, err)

	total, byCategory := m.ErrorStatistics()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, byCategory[tradingerrors.ErrorCategoryValidation])
	assert.Equal(t, 1, byCategory[tradingerrors.ErrorCategoryOrderRejected])
}

// TestStopHandshake verifies Stop blocks until the loop exits and
// placement is refused afterwards
func TestStopHandshake(t *testing.T) {
	paper := exchange.NewPaperExchange(map[string]float64{"USDT": 100000})
	paper.SetPrice("BTCUSDT", 50000)
	m := NewManager(Config{PollInterval: 5 * time.Millisecond}, paper, &fillRecorder{}, logger.NewTestLogger(io.Discard))

	require.NoError(t, m.Start(context.Background()))
	_, err := m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeLimit, Amount: 0.1, Price: 40000,
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	m.Stop()
	assert.False(t, m.IsRunning())

	_, err = m.PlaceOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: exchange.OrderSideBuy, Type: exchange.OrderTypeMarket, Amount: 0.1,
	})
	assert.Error(t, err)

	// Stop twice is safe
	m.Stop()
}
