package portfolio

import "time"

// Side is the direction of a position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Status is the lifecycle state of a position
type Status string

const (
	StatusPending Status = "pending"
	StatusOpen    Status = "open"
	StatusPartial Status = "partial"
	StatusClosed  Status = "closed"
)

// Position is a single open or closed holding. All mutation happens inside
// the Manager; callers only ever see copies.
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Amount        float64   `json:"amount"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	EntryTime     time.Time `json:"entry_time"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Status        Status    `json:"status"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`
	Commission    float64   `json:"commission"`
}

// updatePrice sets the current price and recomputes unrealized P&L in the
// same step, so the two are never observed out of sync.
func (p *Position) updatePrice(price float64) {
	p.CurrentPrice = price
	if p.Side == SideLong {
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Amount
	} else {
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Amount
	}
}

// MarketValue returns the current notional value of the position.
func (p *Position) MarketValue() float64 {
	return p.Amount * p.CurrentPrice
}

// CostBasis returns the entry notional of the position.
func (p *Position) CostBasis() float64 {
	return p.Amount * p.EntryPrice
}

// PnLPercentage returns unrealized P&L relative to cost basis.
func (p *Position) PnLPercentage() float64 {
	basis := p.CostBasis()
	if basis == 0 {
		return 0
	}
	return p.UnrealizedPnL / basis * 100
}
