package adapters

import (
	"context"

	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
	"github.com/ducminhle1904/crypto-trading-core/internal/exchange/bybit"
)

// BybitAdapter implements the exchange.Exchange contract for Bybit
type BybitAdapter struct {
	client    *bybit.Client
	retry     exchange.RetryConfig
	connected bool
}

// NewBybitAdapter creates a new Bybit adapter instance
func NewBybitAdapter(cfg bybit.Config) (*BybitAdapter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, &exchange.ExchangeError{
			Code:        "MISSING_CREDENTIALS",
			Message:     "Bybit API key and secret are required",
			IsRetryable: false,
		}
	}

	return &BybitAdapter{
		client: bybit.NewClient(cfg),
		retry:  exchange.DefaultRetryConfig(),
	}, nil
}

func (b *BybitAdapter) Name() string        { return "bybit" }
func (b *BybitAdapter) Environment() string { return b.client.Environment() }

// Connect verifies connectivity with a lightweight authenticated call,
// retrying transient transport failures with backoff.
func (b *BybitAdapter) Connect(ctx context.Context) error {
	err := exchange.Retry(ctx, b.retry, func() error {
		if _, err := b.client.GetWalletBalances(ctx); err != nil {
			return b.convertError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.connected = true
	return nil
}

func (b *BybitAdapter) Disconnect() error {
	b.connected = false
	return nil
}

func (b *BybitAdapter) IsConnected() bool {
	return b.connected
}

// HealthCheck probes the venue without mutating anything
func (b *BybitAdapter) HealthCheck(ctx context.Context) bool {
	if !b.connected {
		return false
	}
	_, err := b.client.GetWalletBalances(ctx)
	return err == nil
}

func (b *BybitAdapter) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	if !b.connected {
		return nil, exchange.ErrNotConnected
	}

	params := bybit.PlaceOrderParams{
		Symbol:      req.Symbol,
		Side:        bybit.OrderSide(req.Side),
		OrderType:   toBybitOrderType(req.Type),
		Qty:         req.Amount,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		TimeInForce: bybit.TimeInForce(req.TimeInForce),
		OrderLinkID: req.ClientOrderID,
	}

	order, err := b.client.PlaceOrder(ctx, params)
	if err != nil {
		return nil, b.convertError(err)
	}

	converted := convertOrder(order)
	return &converted, nil
}

func (b *BybitAdapter) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	if !b.connected {
		return false, exchange.ErrNotConnected
	}

	if err := b.client.CancelOrder(ctx, symbol, orderID); err != nil {
		// A cancel refused because the order already reached a terminal
		// state is not an error; the caller resolves it via GetOrder.
		if bybit.IsOrderNotFoundError(err) {
			return false, nil
		}
		return false, b.convertError(err)
	}
	return true, nil
}

func (b *BybitAdapter) GetOrder(ctx context.Context, symbol, orderID string) (*exchange.Order, error) {
	if !b.connected {
		return nil, exchange.ErrNotConnected
	}

	// Status reads are idempotent, safe to retry on transport failure.
	var order *bybit.Order
	err := exchange.Retry(ctx, b.retry, func() error {
		var callErr error
		order, callErr = b.client.GetOrder(ctx, symbol, orderID)
		if callErr != nil {
			return b.convertError(callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	converted := convertOrder(order)
	return &converted, nil
}

func (b *BybitAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	if !b.connected {
		return nil, exchange.ErrNotConnected
	}

	orders, err := b.client.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, b.convertError(err)
	}

	converted := make([]exchange.Order, 0, len(orders))
	for i := range orders {
		converted = append(converted, convertOrder(&orders[i]))
	}
	return converted, nil
}

func (b *BybitAdapter) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	if !b.connected {
		return nil, exchange.ErrNotConnected
	}

	balances, err := b.client.GetWalletBalances(ctx)
	if err != nil {
		return nil, b.convertError(err)
	}

	converted := make([]exchange.Balance, 0, len(balances))
	for _, bal := range balances {
		converted = append(converted, exchange.Balance{
			Asset:  bal.Coin,
			Free:   bal.AvailableToTrade,
			Locked: bal.Locked,
		})
	}
	return converted, nil
}

// convertError normalizes Bybit errors into the adapter failure taxonomy
func (b *BybitAdapter) convertError(err error) error {
	switch {
	case bybit.IsOrderNotFoundError(err):
		return exchange.ErrOrderNotFound
	case bybit.IsAuthenticationError(err):
		return exchange.ErrAuthenticationFailed
	case bybit.IsRejectionError(err):
		return exchange.NewRejectionError(err.Error())
	case bybit.IsRetryableError(err):
		return exchange.NewConnectivityError(err.Error())
	default:
		return exchange.NewRejectionError(err.Error())
	}
}

func convertOrder(order *bybit.Order) exchange.Order {
	return exchange.Order{
		OrderID:       order.OrderID,
		ClientOrderID: order.OrderLinkID,
		Symbol:        order.Symbol,
		Side:          exchange.OrderSide(order.Side),
		Type:          exchange.OrderType(order.OrderType),
		Amount:        order.Qty,
		Price:         order.Price,
		FilledAmount:  order.CumExecQty,
		AvgFillPrice:  order.AvgPrice,
		Status:        convertStatus(order.OrderStatus),
		CreatedTime:   order.CreatedTime,
		UpdatedTime:   order.UpdatedTime,
	}
}

// convertStatus maps Bybit order states onto the adapter contract states
func convertStatus(status string) exchange.Status {
	switch status {
	case "New", "Created", "Untriggered", "Triggered":
		return exchange.StatusNew
	case "PartiallyFilled":
		return exchange.StatusPartiallyFilled
	case "Filled":
		return exchange.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled":
		return exchange.StatusCancelled
	case "Rejected":
		return exchange.StatusRejected
	case "Expired", "Deactivated":
		return exchange.StatusExpired
	default:
		return exchange.StatusNew
	}
}

func toBybitOrderType(t exchange.OrderType) bybit.OrderType {
	switch t {
	case exchange.OrderTypeLimit:
		return bybit.OrderTypeLimit
	default:
		return bybit.OrderTypeMarket
	}
}
