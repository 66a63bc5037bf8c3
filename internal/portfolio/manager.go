package portfolio

import (
	"fmt"
	"sync"
	"time"

	tradingerrors "github.com/ducminhle1904/crypto-trading-core/internal/errors"
	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/ring"
)

// Manager is the single authoritative owner of cash balance and open
// positions. Every mutation happens under the write lock, so per-symbol
// operations are applied strictly in invocation order.
type Manager struct {
	mu           sync.RWMutex
	cfg          Config
	cash         float64
	positions    map[string]*Position
	closed       *ring.Buffer[Position]
	transactions *ring.Buffer[Transaction]
	valueHistory *ring.Buffer[ValuePoint]
	store        StateManager
	log          *logger.Logger
}

// NewManager creates a portfolio manager. store may be nil when no
// durability is wanted (tests, backtests).
func NewManager(cfg Config, store StateManager, log *logger.Logger) *Manager {
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = DefaultConfig().MaxPositions
	}
	if cfg.ValueHistorySize <= 0 {
		cfg.ValueHistorySize = DefaultConfig().ValueHistorySize
	}
	if cfg.ClosedHistorySize <= 0 {
		cfg.ClosedHistorySize = DefaultConfig().ClosedHistorySize
	}
	if cfg.TransactionHistory <= 0 {
		cfg.TransactionHistory = DefaultConfig().TransactionHistory
	}

	return &Manager{
		cfg:          cfg,
		cash:         cfg.InitialCash,
		positions:    make(map[string]*Position),
		closed:       ring.New[Position](cfg.ClosedHistorySize),
		transactions: ring.New[Transaction](cfg.TransactionHistory),
		valueHistory: ring.New[ValuePoint](cfg.ValueHistorySize),
		store:        store,
		log:          log,
	}
}

// Initialize loads previously persisted state, if any.
func (m *Manager) Initialize() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Lock(); err != nil {
		return fmt.Errorf("failed to lock portfolio storage: %w", err)
	}

	state, err := m.store.Load()
	if err != nil {
		// First run has no state file; that is not a failure.
		if m.log != nil {
			m.log.Info("no existing portfolio state, starting fresh: %v", err)
		}
		return nil
	}

	m.cash = state.CashBalance
	if state.InitialCash > 0 {
		m.cfg.InitialCash = state.InitialCash
	}
	m.positions = make(map[string]*Position, len(state.Positions))
	for i := range state.Positions {
		pos := state.Positions[i]
		m.positions[pos.Symbol] = &pos
	}
	for _, pos := range state.Closed {
		m.closed.Push(pos)
	}
	for _, tx := range state.Transactions {
		m.transactions.Push(tx)
	}

	if m.log != nil {
		m.log.Info("portfolio state restored: cash=%.2f positions=%d", m.cash, len(m.positions))
	}
	return nil
}

// Close releases the storage lock.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Unlock()
}

// OpenPosition opens a new position or increases an existing one on the
// same side. An opposite-side request nets against the existing position,
// closing it (fully or partially) before any new exposure is opened.
func (m *Manager) OpenPosition(symbol string, side Side, entryPrice, amount, stopLoss, takeProfit float64) error {
	if symbol == "" || entryPrice <= 0 || amount <= 0 {
		return tradingerrors.NewInvalidParameterError("portfolio", "open_position",
			fmt.Sprintf("invalid trade parameters: symbol=%q price=%.4f amount=%.8f", symbol, entryPrice, amount))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.positions[symbol]; ok {
		if existing.Side == side {
			return m.increaseLocked(existing, amount, entryPrice)
		}
		return m.handleOppositeLocked(existing, side, amount, entryPrice, stopLoss, takeProfit)
	}

	return m.openLocked(symbol, side, entryPrice, amount, stopLoss, takeProfit)
}

// openLocked creates a brand-new position. Caller holds m.mu.
func (m *Manager) openLocked(symbol string, side Side, entryPrice, amount, stopLoss, takeProfit float64) error {
	required := amount * entryPrice
	commission := required * m.cfg.CommissionRate
	totalCost := required + commission

	if totalCost > m.cash {
		return tradingerrors.NewInsufficientFundsError("portfolio", totalCost, m.cash)
	}
	if len(m.positions) >= m.cfg.MaxPositions {
		return tradingerrors.NewTooManyPositionsError("portfolio", len(m.positions), m.cfg.MaxPositions)
	}

	position := &Position{
		Symbol:     symbol,
		Side:       side,
		Amount:     amount,
		EntryPrice: entryPrice,
		EntryTime:  time.Now(),
		Status:     StatusOpen,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Commission: commission,
	}
	position.updatePrice(entryPrice)

	m.cash -= totalCost
	m.positions[symbol] = position

	m.transactions.Push(Transaction{
		Timestamp:  time.Now(),
		Type:       TransactionOpen,
		Symbol:     symbol,
		Side:       side,
		Amount:     amount,
		Price:      entryPrice,
		Commission: commission,
	})

	if m.log != nil {
		m.log.Trade("opened %s %s %.8f @ %.2f (commission %.4f)", side, symbol, amount, entryPrice, commission)
	}

	m.persistLocked()
	return nil
}

// increaseLocked adds to an existing same-side position at a weighted
// average entry price. Caller holds m.mu.
func (m *Manager) increaseLocked(position *Position, amount, price float64) error {
	required := amount * price
	commission := required * m.cfg.CommissionRate
	totalCost := required + commission

	if totalCost > m.cash {
		return tradingerrors.NewInsufficientFundsError("portfolio", totalCost, m.cash)
	}

	totalAmount := position.Amount + amount
	weightedPrice := (position.EntryPrice*position.Amount + price*amount) / totalAmount

	position.Amount = totalAmount
	position.EntryPrice = weightedPrice
	position.Commission += commission
	position.updatePrice(price)

	m.cash -= totalCost

	m.transactions.Push(Transaction{
		Timestamp:  time.Now(),
		Type:       TransactionIncrease,
		Symbol:     position.Symbol,
		Side:       position.Side,
		Amount:     amount,
		Price:      price,
		Commission: commission,
	})

	if m.log != nil {
		m.log.Trade("increased %s %s +%.8f @ %.2f, avg %.2f", position.Side, position.Symbol, amount, price, weightedPrice)
	}

	m.persistLocked()
	return nil
}

// handleOppositeLocked nets an opposite-side request against an existing
// position: close first, then open any remainder on the new side.
func (m *Manager) handleOppositeLocked(existing *Position, side Side, amount, price, stopLoss, takeProfit float64) error {
	if amount >= existing.Amount {
		remaining := amount - existing.Amount
		if err := m.closeLocked(existing.Symbol, price, "opposite_trade", existing.Amount); err != nil {
			return err
		}
		if remaining > 0 {
			return m.openLocked(existing.Symbol, side, price, remaining, stopLoss, takeProfit)
		}
		return nil
	}
	return m.closeLocked(existing.Symbol, price, "partial_close", amount)
}

// ClosePosition closes all or part of a position. amount <= 0 closes the
// full position.
func (m *Manager) ClosePosition(symbol string, exitPrice float64, reason string, amount float64) error {
	if exitPrice <= 0 {
		return tradingerrors.NewInvalidParameterError("portfolio", "close_position",
			fmt.Sprintf("exit price must be positive, got %.4f", exitPrice))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeLocked(symbol, exitPrice, reason, amount)
}

func (m *Manager) closeLocked(symbol string, exitPrice float64, reason string, amount float64) error {
	position, ok := m.positions[symbol]
	if !ok {
		return tradingerrors.NewInvalidParameterError("portfolio", "close_position",
			fmt.Sprintf("no open position for %s", symbol))
	}

	closeAmount := amount
	if closeAmount <= 0 || closeAmount > position.Amount {
		closeAmount = position.Amount
	}

	var pnl float64
	if position.Side == SideLong {
		pnl = (exitPrice - position.EntryPrice) * closeAmount
	} else {
		pnl = (position.EntryPrice - exitPrice) * closeAmount
	}

	closeValue := closeAmount * exitPrice
	commission := closeValue * m.cfg.CommissionRate
	netPnL := pnl - commission

	m.cash += closeValue - commission

	if closeAmount >= position.Amount {
		position.RealizedPnL += netPnL
		position.Status = StatusClosed
		position.Amount = 0
		position.updatePrice(exitPrice)
		m.closed.Push(*position)
		delete(m.positions, symbol)

		if m.log != nil {
			m.log.Trade("closed %s %.8f @ %.2f, pnl %.2f (%s)", symbol, closeAmount, exitPrice, netPnL, reason)
		}
	} else {
		closeRatio := closeAmount / position.Amount
		position.RealizedPnL += netPnL
		position.Amount -= closeAmount
		position.Commission *= 1 - closeRatio
		position.Status = StatusPartial
		position.updatePrice(exitPrice)

		if m.log != nil {
			m.log.Trade("partially closed %s %.8f @ %.2f, pnl %.2f, remaining %.8f (%s)",
				symbol, closeAmount, exitPrice, netPnL, position.Amount, reason)
		}
	}

	m.transactions.Push(Transaction{
		Timestamp:  time.Now(),
		Type:       TransactionClose,
		Symbol:     symbol,
		Amount:     closeAmount,
		Price:      exitPrice,
		Commission: commission,
		PnL:        netPnL,
		Reason:     reason,
	})

	m.persistLocked()
	return nil
}

// CloseAllPositions closes every open position at the supplied prices.
// Symbols without a price are skipped and reported.
func (m *Manager) CloseAllPositions(prices map[string]float64, reason string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []string
	for _, symbol := range m.openSymbolsLocked() {
		price, ok := prices[symbol]
		if !ok {
			skipped = append(skipped, symbol)
			if m.log != nil {
				m.log.Warning("no price for %s, skipping close", symbol)
			}
			continue
		}
		if err := m.closeLocked(symbol, price, reason, 0); err != nil && m.log != nil {
			m.log.Error("failed to close %s: %v", symbol, err)
		}
	}
	return skipped
}

func (m *Manager) openSymbolsLocked() []string {
	symbols := make([]string, 0, len(m.positions))
	for symbol := range m.positions {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// ApplyFill is the single mutation entrypoint used by the order manager to
// reconcile an executed fill into the ledger. Buy fills open or increase a
// long position; sell fills net against it.
func (m *Manager) ApplyFill(symbol string, side Side, amount, price float64) error {
	return m.OpenPosition(symbol, side, price, amount, 0, 0)
}

// UpdatePositionPrices recomputes unrealized P&L for all open positions and
// appends a portfolio-value sample.
func (m *Manager) UpdatePositionPrices(prices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, position := range m.positions {
		if price, ok := prices[symbol]; ok && price > 0 {
			position.updatePrice(price)
		}
	}

	m.recordValueLocked()
}

func (m *Manager) recordValueLocked() {
	var invested, unrealized float64
	for _, position := range m.positions {
		invested += position.CostBasis()
		unrealized += position.UnrealizedPnL
	}

	m.valueHistory.Push(ValuePoint{
		Timestamp:     time.Now(),
		TotalValue:    m.cash + invested + unrealized,
		CashBalance:   m.cash,
		UnrealizedPnL: unrealized,
	})
}

// GetPortfolioMetrics aggregates performance over open and closed positions.
func (m *Manager) GetPortfolioMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var metrics Metrics
	metrics.CashBalance = m.cash

	var invested, unrealized, realized float64
	for _, position := range m.positions {
		invested += position.CostBasis()
		unrealized += position.UnrealizedPnL
		realized += position.RealizedPnL
	}

	closed := m.closed.Items()
	for i := range closed {
		realized += closed[i].RealizedPnL
	}

	metrics.InvestedAmount = invested
	metrics.UnrealizedPnL = unrealized
	metrics.RealizedPnL = realized
	metrics.TotalPnL = unrealized + realized
	metrics.TotalValue = m.cash + invested + unrealized
	if m.cfg.InitialCash > 0 {
		metrics.PnLPercentage = metrics.TotalPnL / m.cfg.InitialCash * 100
	}
	metrics.NumPositions = len(m.positions)

	var wins, losses []float64
	for i := range closed {
		if closed[i].Status != StatusClosed {
			continue
		}
		if closed[i].RealizedPnL > 0 {
			wins = append(wins, closed[i].RealizedPnL)
		} else if closed[i].RealizedPnL < 0 {
			losses = append(losses, closed[i].RealizedPnL)
		}
	}

	metrics.NumWinning = len(wins)
	metrics.NumLosing = len(losses)

	totalTrades := 0
	for i := range closed {
		if closed[i].Status == StatusClosed {
			totalTrades++
		}
	}
	if totalTrades > 0 {
		metrics.WinRate = float64(len(wins)) / float64(totalTrades) * 100

		var totalWins, totalLosses float64
		for _, w := range wins {
			totalWins += w
			if w > metrics.LargestWin {
				metrics.LargestWin = w
			}
		}
		for _, l := range losses {
			totalLosses += -l
			if l < metrics.LargestLoss {
				metrics.LargestLoss = l
			}
		}
		if len(wins) > 0 {
			metrics.AvgWin = totalWins / float64(len(wins))
		}
		if len(losses) > 0 {
			metrics.AvgLoss = -totalLosses / float64(len(losses))
		}
		if totalLosses > 0 {
			metrics.ProfitFactor = totalWins / totalLosses
		}
	}

	return metrics
}

// Snapshot returns a deep-copied, read-only view of the portfolio for risk
// evaluation and the query surface.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := make(map[string]Position, len(m.positions))
	var invested, unrealized float64
	for symbol, position := range m.positions {
		positions[symbol] = *position
		invested += position.CostBasis()
		unrealized += position.UnrealizedPnL
	}

	return &Snapshot{
		Timestamp:      time.Now(),
		CashBalance:    m.cash,
		InitialCash:    m.cfg.InitialCash,
		InvestedAmount: invested,
		UnrealizedPnL:  unrealized,
		TotalValue:     m.cash + invested + unrealized,
		Positions:      positions,
		ValueHistory:   m.valueHistory.Items(),
	}
}

// GetPosition returns a copy of the open position for symbol.
func (m *Manager) GetPosition(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	position, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *position, true
}

// CashBalance returns the current cash balance.
func (m *Manager) CashBalance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash
}

// ClosedPositions returns up to limit most recent closed positions.
func (m *Manager) ClosedPositions(limit int) []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed.Last(limit)
}

// TransactionHistory returns up to limit most recent transactions.
func (m *Manager) TransactionHistory(limit int) []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactions.Last(limit)
}

// ValueHistory returns up to limit most recent portfolio-value samples.
func (m *Manager) ValueHistory(limit int) []ValuePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.valueHistory.Last(limit)
}

// persistLocked writes the current state through the storage collaborator.
// Persistence failures are logged, never allowed to corrupt the in-memory
// ledger.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}

	state := &State{
		Version:      "1.0",
		CashBalance:  m.cash,
		InitialCash:  m.cfg.InitialCash,
		Positions:    make([]Position, 0, len(m.positions)),
		Closed:       m.closed.Items(),
		Transactions: m.transactions.Items(),
		LastUpdated:  time.Now(),
	}
	for _, position := range m.positions {
		state.Positions = append(state.Positions, *position)
	}

	if err := m.store.Save(state); err != nil && m.log != nil {
		m.log.Error("failed to persist portfolio state: %v", err)
	}
}
