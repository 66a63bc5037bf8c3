package orders

import (
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-trading-core/internal/exchange"
)

// State is the lifecycle state of a managed order
type State string

const (
	StateCreated   State = "created"
	StateOpen      State = "open"
	StatePartial   State = "partial"
	StateFilled    State = "filled"
	StateCancelled State = "cancelled"
	StateRejected  State = "rejected"
	StateExpired   State = "expired"

	// StateFailed is reached only through retry exhaustion or a
	// reconciliation failure, never reported by the exchange.
	StateFailed State = "failed"
)

// IsTerminal reports whether no further transition is defined out of s
func (s State) IsTerminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected, StateExpired, StateFailed:
		return true
	}
	return false
}

// validNext defines the order state machine. Terminal states have no
// entries and therefore absorb.
var validNext = map[State]map[State]bool{
	StateCreated: {
		StateOpen: true, StatePartial: true, StateFilled: true,
		StateCancelled: true, StateRejected: true, StateExpired: true, StateFailed: true,
	},
	StateOpen: {
		StatePartial: true, StateFilled: true,
		StateCancelled: true, StateRejected: true, StateExpired: true, StateFailed: true,
	},
	StatePartial: {
		StateOpen: true, StateFilled: true,
		StateCancelled: true, StateRejected: true, StateExpired: true, StateFailed: true,
	},
}

// CanTransition reports whether from -> to is a legal state change
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	return validNext[from][to]
}

// stateFromStatus maps an exchange-reported status onto the managed state
func stateFromStatus(s exchange.Status) State {
	switch s {
	case exchange.StatusNew:
		return StateOpen
	case exchange.StatusPartiallyFilled:
		return StatePartial
	case exchange.StatusFilled:
		return StateFilled
	case exchange.StatusCancelled:
		return StateCancelled
	case exchange.StatusRejected:
		return StateRejected
	case exchange.StatusExpired:
		return StateExpired
	}
	return StateOpen
}

// ManagedOrder tracks one order from submission to a terminal state. The
// internal ID is assigned once and never reused. All mutation happens
// under the per-order mutex so updates to one order are serialized while
// different orders update in parallel.
type ManagedOrder struct {
	mu sync.Mutex

	ID              string             `json:"id"`
	ExchangeOrderID string             `json:"exchange_order_id"`
	Exchange        string             `json:"exchange"`
	Symbol          string             `json:"symbol"`
	Side            exchange.OrderSide `json:"side"`
	Type            exchange.OrderType `json:"type"`
	Amount          float64            `json:"amount"`
	Price           float64            `json:"price,omitempty"`
	StopPrice       float64            `json:"stop_price,omitempty"`

	State        State   `json:"state"`
	FilledAmount float64 `json:"filled_amount"`
	AvgFillPrice float64 `json:"avg_fill_price"`
	FailReason   string  `json:"fail_reason,omitempty"`

	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// snapshotLocked returns a copy safe to hand out. Caller holds mu.
func (o *ManagedOrder) snapshotLocked() ManagedOrder {
	return ManagedOrder{
		ID:              o.ID,
		ExchangeOrderID: o.ExchangeOrderID,
		Exchange:        o.Exchange,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Type:            o.Type,
		Amount:          o.Amount,
		Price:           o.Price,
		StopPrice:       o.StopPrice,
		State:           o.State,
		FilledAmount:    o.FilledAmount,
		AvgFillPrice:    o.AvgFillPrice,
		FailReason:      o.FailReason,
		RetryCount:      o.RetryCount,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// Snapshot returns a copy of the order's current state
func (o *ManagedOrder) Snapshot() ManagedOrder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Statistics summarizes order manager activity
type Statistics struct {
	TotalOrders      int     `json:"total_orders"`
	ActiveOrders     int     `json:"active_orders"`
	SuccessfulOrders int     `json:"successful_orders"`
	FailedOrders     int     `json:"failed_orders"`
	SuccessRate      float64 `json:"success_rate"`
	Running          bool    `json:"running"`
}
