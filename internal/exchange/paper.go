package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// PaperExchange is an in-memory exchange used for paper trading and tests.
// Market orders fill immediately at the last set price; limit orders rest
// until a price update crosses them. Fault injection hooks simulate the
// failure modes of a real venue.
type PaperExchange struct {
	mu        sync.Mutex
	connected bool
	prices    map[string]float64
	balances  map[string]float64
	orders    map[string]*Order
	nextID    int

	// fault injection
	failNext   int
	rejectNext string
	unhealthy  bool
}

// NewPaperExchange creates a paper exchange seeded with the given balances.
func NewPaperExchange(balances map[string]float64) *PaperExchange {
	b := make(map[string]float64, len(balances))
	for asset, amount := range balances {
		b[asset] = amount
	}
	return &PaperExchange{
		prices:   make(map[string]float64),
		balances: b,
		orders:   make(map[string]*Order),
		nextID:   1,
	}
}

func (p *PaperExchange) Name() string        { return "paper" }
func (p *PaperExchange) Environment() string { return "simulation" }

func (p *PaperExchange) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return ErrConnectionFailed
	}
	p.connected = true
	return nil
}

func (p *PaperExchange) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *PaperExchange) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *PaperExchange) HealthCheck(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected && !p.unhealthy
}

// SetPrice updates the mark price for a symbol and fills any resting limit
// orders the new price crosses.
func (p *PaperExchange) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[symbol] = price

	for _, order := range p.orders {
		if order.Symbol != symbol || order.Status.IsTerminal() || order.Type != OrderTypeLimit {
			continue
		}
		crossed := (order.Side == OrderSideBuy && price <= order.Price) ||
			(order.Side == OrderSideSell && price >= order.Price)
		if crossed {
			p.fillLocked(order, order.Price)
		}
	}
}

func (p *PaperExchange) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.failNext > 0 {
		p.failNext--
		return nil, NewConnectivityError("simulated transport failure")
	}
	if p.rejectNext != "" {
		reason := p.rejectNext
		p.rejectNext = ""
		return nil, NewRejectionError(reason)
	}
	if req.Amount <= 0 {
		return nil, NewRejectionError("amount must be positive")
	}
	if req.Type == OrderTypeLimit && req.Price <= 0 {
		return nil, NewRejectionError("limit orders require a price")
	}

	price, ok := p.prices[req.Symbol]
	if !ok {
		return nil, ErrInvalidSymbol
	}

	now := time.Now()
	order := &Order{
		OrderID:       fmt.Sprintf("PAPER-%d", p.nextID),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Amount:        req.Amount,
		Price:         req.Price,
		Status:        StatusNew,
		CreatedTime:   now,
		UpdatedTime:   now,
	}
	p.nextID++
	p.orders[order.OrderID] = order

	switch req.Type {
	case OrderTypeMarket:
		p.fillLocked(order, price)
	case OrderTypeLimit:
		crossed := (req.Side == OrderSideBuy && price <= req.Price) ||
			(req.Side == OrderSideSell && price >= req.Price)
		if crossed {
			p.fillLocked(order, req.Price)
		}
	}

	copied := *order
	return &copied, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return false, ErrNotConnected
	}
	if p.failNext > 0 {
		p.failNext--
		return false, NewConnectivityError("simulated transport failure")
	}

	order, ok := p.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		// Too late to cancel; the caller reads the terminal state via GetOrder.
		return false, nil
	}

	order.Status = StatusCancelled
	order.UpdatedTime = time.Now()
	return true, nil
}

func (p *PaperExchange) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}
	if p.failNext > 0 {
		p.failNext--
		return nil, NewConnectivityError("simulated transport failure")
	}

	order, ok := p.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (p *PaperExchange) GetOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}

	var open []Order
	for _, order := range p.orders {
		if order.Status.IsTerminal() {
			continue
		}
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		open = append(open, *order)
	}
	return open, nil
}

func (p *PaperExchange) GetBalances(ctx context.Context) ([]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil, ErrNotConnected
	}

	balances := make([]Balance, 0, len(p.balances))
	for asset, amount := range p.balances {
		balances = append(balances, Balance{Asset: asset, Free: amount})
	}
	return balances, nil
}

// FailNextRequests makes the next n API calls fail with a retryable
// connectivity error.
func (p *PaperExchange) FailNextRequests(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = n
}

// RejectNextOrder makes the next PlaceOrder fail with a terminal rejection.
func (p *PaperExchange) RejectNextOrder(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejectNext = reason
}

// SetHealthy toggles the health-check result without disconnecting.
func (p *PaperExchange) SetHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unhealthy = !healthy
}

// FillPartial marks an open order partially filled at the given price,
// simulating a venue-side partial execution.
func (p *PaperExchange) FillPartial(orderID string, amount, price float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("order %s already terminal", orderID)
	}

	filled := order.FilledAmount + amount
	if filled >= order.Amount {
		p.fillLocked(order, price)
		return nil
	}

	order.AvgFillPrice = (order.AvgFillPrice*order.FilledAmount + price*amount) / filled
	order.FilledAmount = filled
	order.Status = StatusPartiallyFilled
	order.UpdatedTime = time.Now()
	return nil
}

// ExpireOrder marks an open order expired, as a venue would for IOC/FOK.
func (p *PaperExchange) ExpireOrder(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("order %s already terminal", orderID)
	}
	order.Status = StatusExpired
	order.UpdatedTime = time.Now()
	return nil
}

// fillLocked completes an order at the given price. Caller holds p.mu.
func (p *PaperExchange) fillLocked(order *Order, price float64) {
	remaining := order.Amount - order.FilledAmount
	if order.FilledAmount > 0 {
		order.AvgFillPrice = (order.AvgFillPrice*order.FilledAmount + price*remaining) / order.Amount
	} else {
		order.AvgFillPrice = price
	}
	order.FilledAmount = order.Amount
	order.Status = StatusFilled
	order.UpdatedTime = time.Now()

	base, quote := splitSymbol(order.Symbol)
	notional := order.Amount * price
	if order.Side == OrderSideBuy {
		p.balances[quote] -= notional
		p.balances[base] += order.Amount
	} else {
		p.balances[base] -= order.Amount
		p.balances[quote] += notional
	}
}

// splitSymbol derives base and quote assets from a concatenated pair symbol.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return symbol, "USDT"
}
