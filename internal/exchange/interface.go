package exchange

import "context"

// Exchange defines the adapter contract the order manager consumes.
// Implementations wrap a concrete venue (or a paper simulation) and
// normalize its order model and failure modes.
type Exchange interface {
	// Exchange identification
	Name() string
	Environment() string

	// Connection management
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// HealthCheck probes the venue; false means orders must not be routed here.
	HealthCheck(ctx context.Context) bool

	// Trading operations
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	GetOrder(ctx context.Context, symbol, orderID string) (*Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)

	// Account management
	GetBalances(ctx context.Context) ([]Balance, error)
}
