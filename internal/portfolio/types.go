package portfolio

import "time"

// TransactionType identifies what a transaction record describes
type TransactionType string

const (
	TransactionOpen     TransactionType = "open_position"
	TransactionIncrease TransactionType = "increase_position"
	TransactionClose    TransactionType = "close_position"
)

// Transaction is an immutable record of one portfolio mutation
type Transaction struct {
	Timestamp  time.Time       `json:"timestamp"`
	Type       TransactionType `json:"type"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Amount     float64         `json:"amount"`
	Price      float64         `json:"price"`
	Commission float64         `json:"commission"`
	PnL        float64         `json:"pnl,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// ValuePoint is one sample of total portfolio value over time
type ValuePoint struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalValue    float64   `json:"total_value"`
	CashBalance   float64   `json:"cash_balance"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// Metrics aggregates portfolio performance over open and closed positions
type Metrics struct {
	CashBalance    float64 `json:"cash_balance"`
	InvestedAmount float64 `json:"invested_amount"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	RealizedPnL    float64 `json:"realized_pnl"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalValue     float64 `json:"total_value"`
	PnLPercentage  float64 `json:"pnl_percentage"`

	NumPositions int `json:"num_positions"`
	NumWinning   int `json:"num_winning_positions"`
	NumLosing    int `json:"num_losing_positions"`

	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
}

// Snapshot is a read-only, deep-copied view of portfolio state handed to
// the risk manager and the query surface.
type Snapshot struct {
	Timestamp      time.Time           `json:"timestamp"`
	CashBalance    float64             `json:"cash_balance"`
	InitialCash    float64             `json:"initial_cash"`
	InvestedAmount float64             `json:"invested_amount"`
	UnrealizedPnL  float64             `json:"unrealized_pnl"`
	TotalValue     float64             `json:"total_value"`
	Positions      map[string]Position `json:"positions"`
	ValueHistory   []ValuePoint        `json:"value_history"`
}

// Config holds the portfolio accounting parameters
type Config struct {
	InitialCash        float64
	CommissionRate     float64
	MaxPositions       int
	ValueHistorySize   int
	ClosedHistorySize  int
	TransactionHistory int
}

// DefaultConfig returns the standard portfolio configuration.
func DefaultConfig() Config {
	return Config{
		InitialCash:        100000.0,
		CommissionRate:     0.001,
		MaxPositions:       20,
		ValueHistorySize:   1000,
		ClosedHistorySize:  500,
		TransactionHistory: 1000,
	}
}

// State is the persisted form of the portfolio, written through the
// storage collaborator.
type State struct {
	Version      string        `json:"version"`
	CashBalance  float64       `json:"cash_balance"`
	InitialCash  float64       `json:"initial_cash"`
	Positions    []Position    `json:"positions"`
	Closed       []Position    `json:"closed_positions"`
	Transactions []Transaction `json:"transactions"`
	LastUpdated  time.Time     `json:"last_updated"`
}

// StateManager abstracts durable storage of portfolio state
type StateManager interface {
	Save(state *State) error
	Load() (*State, error)
	Lock() error
	Unlock() error
}
