package reporting

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/crypto-trading-core/internal/orders"
	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// ConsoleReporter renders portfolio, order and risk state as terminal tables.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo creates a reporter writing to the given writer.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintPortfolioSummary renders the headline portfolio metrics.
func (r *ConsoleReporter) PrintPortfolioSummary(metrics portfolio.Metrics) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("PORTFOLIO SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💰 Total Value", fmt.Sprintf("$%.2f", metrics.TotalValue)},
		{"💵 Cash Balance", fmt.Sprintf("$%.2f", metrics.CashBalance)},
		{"📦 Invested", fmt.Sprintf("$%.2f", metrics.InvestedAmount)},
		{"📈 Unrealized P&L", fmt.Sprintf("$%.2f", metrics.UnrealizedPnL)},
		{"💸 Realized P&L", fmt.Sprintf("$%.2f", metrics.RealizedPnL)},
		{"📊 Total P&L", fmt.Sprintf("$%.2f (%.2f%%)", metrics.TotalPnL, metrics.PnLPercentage)},
	})

	t.AppendSeparator()

	winRate := "n/a"
	if metrics.NumWinning+metrics.NumLosing > 0 {
		winRate = fmt.Sprintf("%.1f%%", metrics.WinRate)
	}
	t.AppendRows([]table.Row{
		{"🔓 Open Positions", fmt.Sprintf("%d", metrics.NumPositions)},
		{"🏆 Win Rate", winRate},
		{"⚖️ Profit Factor", formatRatio(metrics.ProfitFactor)},
		{"🟢 Largest Win", fmt.Sprintf("$%.2f", metrics.LargestWin)},
		{"🔴 Largest Loss", fmt.Sprintf("$%.2f", metrics.LargestLoss)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, WidthMax: 30, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintPositions renders open positions, one row per symbol.
func (r *ConsoleReporter) PrintPositions(positions []portfolio.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Symbol", "Side", "Amount", "Entry", "Current", "Unrealized P&L", "P&L %"})

	if len(positions) == 0 {
		t.AppendRow(table.Row{"no open positions", "", "", "", "", "", ""})
	}
	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Symbol,
			strings.ToUpper(string(p.Side)),
			fmt.Sprintf("%.6f", p.Amount),
			fmt.Sprintf("$%.2f", p.EntryPrice),
			fmt.Sprintf("$%.2f", p.CurrentPrice),
			fmt.Sprintf("$%.2f", p.UnrealizedPnL),
			fmt.Sprintf("%.2f%%", p.PnLPercentage()),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintOrders renders active orders with fill progress.
func (r *ConsoleReporter) PrintOrders(active []orders.ManagedOrder) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("ACTIVE ORDERS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Order ID", "Symbol", "Side", "Type", "State", "Filled", "Price", "Age"})

	if len(active) == 0 {
		t.AppendRow(table.Row{"no active orders", "", "", "", "", "", "", ""})
	}
	now := time.Now()
	for _, o := range active {
		price := "market"
		if o.Price > 0 {
			price = fmt.Sprintf("$%.2f", o.Price)
		}
		t.AppendRow(table.Row{
			shortID(o.ID),
			o.Symbol,
			string(o.Side),
			string(o.Type),
			string(o.State),
			fmt.Sprintf("%.6f/%.6f", o.FilledAmount, o.Amount),
			price,
			now.Sub(o.CreatedAt).Round(time.Second).String(),
		})
	}

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintRiskSummary renders risk metrics, limit utilization and alert counts.
func (r *ConsoleReporter) PrintRiskSummary(summary risk.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RISK SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📉 VaR (1d)", fmt.Sprintf("%.2f%%", summary.Metrics.VaR1d*100)},
		{"📉 VaR (5d)", fmt.Sprintf("%.2f%%", summary.Metrics.VaR5d*100)},
		{"🩸 Expected Shortfall", fmt.Sprintf("%.2f%%", summary.Metrics.ExpectedShortfall*100)},
		{"🕳️ Max Drawdown", fmt.Sprintf("%.2f%%", summary.Metrics.MaxDrawdown*100)},
		{"📐 Volatility", fmt.Sprintf("%.2f%%", summary.Metrics.Volatility*100)},
		{"⚡ Sharpe Ratio", formatRatio(summary.Metrics.SharpeRatio)},
		{"🎯 Sortino Ratio", formatRatio(summary.Metrics.SortinoRatio)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"🧮 VaR Limit", formatUtilization(summary.Metrics.VaR1d, summary.Limits.MaxPortfolioRisk)},
		{"🧮 Drawdown Limit", formatUtilization(summary.Metrics.MaxDrawdown, summary.Limits.MaxDrawdown)},
		{"🧮 Risk Budget", formatUtilization(summary.ReservedRisk+summary.CommittedRisk, summary.Limits.MaxPortfolioRisk)},
	})

	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"🔒 Reserved Risk", fmt.Sprintf("%.2f%%", summary.ReservedRisk*100)},
		{"📌 Committed Risk", fmt.Sprintf("%.2f%%", summary.CommittedRisk*100)},
		{"🔔 Active Alerts", fmt.Sprintf("%d (%d critical)", summary.ActiveAlerts, summary.CriticalAlerts)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 22, WidthMax: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintClosedPositions renders the most recent closed positions.
func (r *ConsoleReporter) PrintClosedPositions(closed []portfolio.Position) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("CLOSED POSITIONS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Symbol", "Side", "Amount", "Entry", "Exit", "Realized P&L"})

	if len(closed) == 0 {
		t.AppendRow(table.Row{"no closed positions", "", "", "", "", ""})
	}
	for _, p := range closed {
		t.AppendRow(table.Row{
			p.Symbol,
			strings.ToUpper(string(p.Side)),
			fmt.Sprintf("%.6f", p.Amount),
			fmt.Sprintf("$%.2f", p.EntryPrice),
			fmt.Sprintf("$%.2f", p.CurrentPrice),
			fmt.Sprintf("$%.2f", p.RealizedPnL),
		})
	}

	t.Render()
	fmt.Fprintln(r.out)
}

func formatUtilization(current, limit float64) string {
	if limit <= 0 {
		return "n/a"
	}
	flag := "✅"
	if current >= limit {
		flag = "🚨"
	}
	return fmt.Sprintf("%s %.2f%% of %.2f%% (%.0f%% used)",
		flag, current*100, limit*100, current/limit*100)
}

func formatRatio(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "∞"
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
