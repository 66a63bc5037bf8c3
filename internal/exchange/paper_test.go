package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectedPaper(t *testing.T) *PaperExchange {
	t.Helper()
	p := NewPaperExchange(map[string]float64{"USDT": 100000})
	p.SetPrice("BTCUSDT", 50000)
	require.NoError(t, p.Connect(context.Background()))
	return p
}

// TestMarketOrderFillsImmediately at the current mark price.
func TestMarketOrderFillsImmediately(t *testing.T) {
	p := newConnectedPaper(t)

	order, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT",
		Side:   OrderSideBuy,
		Type:   OrderTypeMarket,
		Amount: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, order.Status)
	assert.InDelta(t, 0.5, order.FilledAmount, 1e-12)
	assert.InDelta(t, 50000.0, order.AvgFillPrice, 1e-9)
}

// TestMarketFillMovesBalances debits quote, credits base.
func TestMarketFillMovesBalances(t *testing.T) {
	p := newConnectedPaper(t)

	_, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT",
		Side:   OrderSideBuy,
		Type:   OrderTypeMarket,
		Amount: 1,
	})
	require.NoError(t, err)

	balances, err := p.GetBalances(context.Background())
	require.NoError(t, err)

	byAsset := map[string]float64{}
	for _, b := range balances {
		byAsset[b.Asset] = b.Free
	}
	assert.InDelta(t, 50000.0, byAsset["USDT"], 1e-9)
	assert.InDelta(t, 1.0, byAsset["BTC"], 1e-12)
}

// TestLimitOrderRestsUntilCrossed fills when a price update crosses it.
func TestLimitOrderRestsUntilCrossed(t *testing.T) {
	p := newConnectedPaper(t)

	order, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT",
		Side:   OrderSideBuy,
		Type:   OrderTypeLimit,
		Amount: 0.5,
		Price:  49000,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, order.Status)

	p.SetPrice("BTCUSDT", 48500)

	current, err := p.GetOrder(context.Background(), "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, current.Status)
	// Limit fills execute at the limit price, not the crossing print.
	assert.InDelta(t, 49000.0, current.AvgFillPrice, 1e-9)
}

// TestLimitOrderCrossedAtPlacement fills immediately when already marketable.
func TestLimitOrderCrossedAtPlacement(t *testing.T) {
	p := newConnectedPaper(t)

	order, err := p.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT",
		Side:   OrderSideSell,
		Type:   OrderTypeLimit,
		Amount: 0.1,
		Price:  49500,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, order.Status)
}

// TestPlaceOrderValidation rejects bad requests and unknown symbols.
func TestPlaceOrderValidation(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0})
	assert.Error(t, err)

	_, err = p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeLimit, Amount: 1})
	assert.Error(t, err)

	_, err = p.PlaceOrder(ctx, OrderRequest{Symbol: "NOPEUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

// TestNotConnectedErrors every call refuses before Connect.
func TestNotConnectedErrors(t *testing.T) {
	p := NewPaperExchange(nil)
	p.SetPrice("BTCUSDT", 50000)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 1})
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = p.GetOrder(ctx, "BTCUSDT", "PAPER-1")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = p.CancelOrder(ctx, "BTCUSDT", "PAPER-1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

// TestCancelRestingOrder succeeds and leaves a terminal state.
func TestCancelRestingOrder(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeLimit, Amount: 0.5, Price: 45000,
	})
	require.NoError(t, err)

	cancelled, err := p.CancelOrder(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	current, err := p.GetOrder(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, current.Status)
}

// TestCancelFilledOrderReturnsFalse cancel after fill is not an error.
func TestCancelFilledOrderReturnsFalse(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0.5,
	})
	require.NoError(t, err)

	cancelled, err := p.CancelOrder(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

// TestCancelUnknownOrder reports order-not-found.
func TestCancelUnknownOrder(t *testing.T) {
	p := newConnectedPaper(t)

	_, err := p.CancelOrder(context.Background(), "BTCUSDT", "PAPER-999")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// TestFailNextRequests injects retryable transport failures.
func TestFailNextRequests(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()
	p.FailNextRequests(2)

	_, err := p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0.1})
	assert.Error(t, err)
	_, err = p.GetOrder(ctx, "BTCUSDT", "PAPER-1")
	assert.Error(t, err)

	// Budget exhausted, requests succeed again.
	_, err = p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0.1})
	assert.NoError(t, err)
}

// TestRejectNextOrder injects a one-shot terminal rejection.
func TestRejectNextOrder(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()
	p.RejectNextOrder("min notional not met")

	_, err := p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0.1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min notional")

	_, err = p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0.1})
	assert.NoError(t, err)
}

// TestHealthCheckToggle reflects connectivity and injected unhealthiness.
func TestHealthCheckToggle(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	assert.True(t, p.HealthCheck(ctx))

	p.SetHealthy(false)
	assert.False(t, p.HealthCheck(ctx))

	p.SetHealthy(true)
	assert.True(t, p.HealthCheck(ctx))

	require.NoError(t, p.Disconnect())
	assert.False(t, p.HealthCheck(ctx))
}

// TestFillPartialAccumulates tracks a volume-weighted average fill price.
func TestFillPartialAccumulates(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideSell, Type: OrderTypeLimit, Amount: 1.0, Price: 51000,
	})
	require.NoError(t, err)

	require.NoError(t, p.FillPartial(order.OrderID, 0.4, 51000))
	current, err := p.GetOrder(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyFilled, current.Status)
	assert.InDelta(t, 0.4, current.FilledAmount, 1e-12)

	// Completing the remainder flips the order to filled.
	require.NoError(t, p.FillPartial(order.OrderID, 0.6, 51000))
	current, err = p.GetOrder(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, current.Status)
	assert.InDelta(t, 1.0, current.FilledAmount, 1e-12)
	assert.InDelta(t, 51000.0, current.AvgFillPrice, 1e-9)
}

// TestExpireOrder marks a resting order expired.
func TestExpireOrder(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	order, err := p.PlaceOrder(ctx, OrderRequest{
		Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeLimit, Amount: 0.5, Price: 45000,
	})
	require.NoError(t, err)

	require.NoError(t, p.ExpireOrder(order.OrderID))

	current, err := p.GetOrder(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, current.Status)

	// A terminal order cannot be expired twice.
	assert.Error(t, p.ExpireOrder(order.OrderID))
}

// TestGetOpenOrdersFilter excludes terminal orders, optionally by symbol.
func TestGetOpenOrdersFilter(t *testing.T) {
	p := newConnectedPaper(t)
	p.SetPrice("ETHUSDT", 2000)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeLimit, Amount: 0.5, Price: 45000})
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, OrderRequest{Symbol: "ETHUSDT", Side: OrderSideBuy, Type: OrderTypeLimit, Amount: 1, Price: 1900})
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, OrderRequest{Symbol: "BTCUSDT", Side: OrderSideBuy, Type: OrderTypeMarket, Amount: 0.1})
	require.NoError(t, err)

	all, err := p.GetOpenOrders(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	btc, err := p.GetOpenOrders(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, btc, 1)
}
