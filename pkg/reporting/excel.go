package reporting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/crypto-trading-core/internal/portfolio"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// ExcelReporter writes trading session data to an xlsx workbook.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter.
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// SessionReport bundles everything the workbook export needs.
type SessionReport struct {
	ClosedPositions []portfolio.Position
	Transactions    []portfolio.Transaction
	RiskHistory     []risk.Metrics
	Metrics         portfolio.Metrics
}

// excelStyles holds the style IDs used across sheets.
type excelStyles struct {
	Header   int
	Base     int
	Currency int
	Percent  int
	RedPnL   int
	GreenPnL int
	Summary  int
}

// WriteSessionXLSX writes closed positions, transactions and risk history
// to a workbook at path, creating parent directories as needed.
func (r *ExcelReporter) WriteSessionXLSX(report SessionReport, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const positionsSheet = "Closed Positions"
	const transactionsSheet = "Transactions"
	const riskSheet = "Risk History"

	fx.SetSheetName(fx.GetSheetName(0), positionsSheet)
	fx.NewSheet(transactionsSheet)
	fx.NewSheet(riskSheet)

	styles, err := r.createStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writePositionsSheet(fx, positionsSheet, report, styles); err != nil {
		return err
	}
	if err := r.writeTransactionsSheet(fx, transactionsSheet, report.Transactions, styles); err != nil {
		return err
	}
	if err := r.writeRiskSheet(fx, riskSheet, report.RiskHistory, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	lightBorder := []excelize.Border{
		{Type: "left", Color: "E0E0E0", Style: 1},
		{Type: "right", Color: "E0E0E0", Style: 1},
		{Type: "bottom", Color: "E0E0E0", Style: 1},
	}

	// Header style - dark slate background with white text
	styles.Header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.Base, err = fx.NewStyle(&excelize.Style{Border: lightBorder})
	if err != nil {
		return styles, err
	}

	// Currency style (right aligned, $ format)
	styles.Currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Percentage style (right aligned, % format)
	styles.Percent, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10,
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Red currency style for losing trades
	styles.RedPnL, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "FF0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Green currency style for winning trades
	styles.GreenPnL, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    lightBorder,
	})
	if err != nil {
		return styles, err
	}

	// Summary style (blue background, bold white text)
	styles.Summary, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"4472C4"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 2},
			{Type: "right", Color: "000000", Style: 2},
			{Type: "top", Color: "000000", Style: 2},
			{Type: "bottom", Color: "000000", Style: 2},
		},
	})
	if err != nil {
		return styles, err
	}

	return styles, nil
}

func (r *ExcelReporter) writePositionsSheet(fx *excelize.File, sheet string, report SessionReport, styles excelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 12) // Symbol
	fx.SetColWidth(sheet, "B", "B", 8)  // Side
	fx.SetColWidth(sheet, "C", "C", 14) // Amount
	fx.SetColWidth(sheet, "D", "D", 12) // Entry
	fx.SetColWidth(sheet, "E", "E", 12) // Exit
	fx.SetColWidth(sheet, "F", "F", 18) // Entry Time
	fx.SetColWidth(sheet, "G", "G", 12) // Commission
	fx.SetColWidth(sheet, "H", "H", 14) // Realized PnL

	headers := []string{"Symbol", "Side", "Amount", "Entry Price", "Exit Price", "Entry Time", "Commission", "Realized PnL"}
	writeHeaderRow(fx, sheet, headers, styles.Header)

	row := 2
	for _, p := range report.ClosedPositions {
		setRow(fx, sheet, row, []cellValue{
			{p.Symbol, styles.Base},
			{string(p.Side), styles.Base},
			{p.Amount, styles.Base},
			{p.EntryPrice, styles.Currency},
			{p.CurrentPrice, styles.Currency},
			{p.EntryTime.Format("2006-01-02 15:04:05"), styles.Base},
			{p.Commission, styles.Currency},
			{p.RealizedPnL, pnlStyle(p.RealizedPnL, styles)},
		})
		row++
	}

	// Summary block after the table
	row++
	summaryStart, _ := excelize.CoordinatesToCellName(1, row)
	summaryEnd, _ := excelize.CoordinatesToCellName(2, row)
	fx.MergeCell(sheet, summaryStart, summaryEnd)
	fx.SetCellValue(sheet, summaryStart, "SESSION SUMMARY")
	fx.SetCellStyle(sheet, summaryStart, summaryEnd, styles.Summary)
	row++

	summary := []struct {
		label string
		value interface{}
		style int
	}{
		{"Realized PnL", report.Metrics.RealizedPnL, pnlStyle(report.Metrics.RealizedPnL, styles)},
		{"Total PnL", report.Metrics.TotalPnL, pnlStyle(report.Metrics.TotalPnL, styles)},
		{"Win Rate", report.Metrics.WinRate / 100, styles.Percent},
		{"Largest Win", report.Metrics.LargestWin, styles.GreenPnL},
		{"Largest Loss", report.Metrics.LargestLoss, styles.RedPnL},
	}
	for _, item := range summary {
		setRow(fx, sheet, row, []cellValue{
			{item.label, styles.Base},
			{item.value, item.style},
		})
		row++
	}

	return nil
}

func (r *ExcelReporter) writeTransactionsSheet(fx *excelize.File, sheet string, transactions []portfolio.Transaction, styles excelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 18) // Timestamp
	fx.SetColWidth(sheet, "B", "B", 18) // Type
	fx.SetColWidth(sheet, "C", "C", 12) // Symbol
	fx.SetColWidth(sheet, "D", "D", 8)  // Side
	fx.SetColWidth(sheet, "E", "E", 14) // Amount
	fx.SetColWidth(sheet, "F", "F", 12) // Price
	fx.SetColWidth(sheet, "G", "G", 12) // Commission
	fx.SetColWidth(sheet, "H", "H", 14) // PnL
	fx.SetColWidth(sheet, "I", "I", 20) // Reason

	headers := []string{"Timestamp", "Type", "Symbol", "Side", "Amount", "Price", "Commission", "PnL", "Reason"}
	writeHeaderRow(fx, sheet, headers, styles.Header)

	for i, tx := range transactions {
		row := i + 2
		setRow(fx, sheet, row, []cellValue{
			{tx.Timestamp.Format("2006-01-02 15:04:05"), styles.Base},
			{string(tx.Type), styles.Base},
			{tx.Symbol, styles.Base},
			{string(tx.Side), styles.Base},
			{tx.Amount, styles.Base},
			{tx.Price, styles.Currency},
			{tx.Commission, styles.Currency},
			{tx.PnL, pnlStyle(tx.PnL, styles)},
			{tx.Reason, styles.Base},
		})
	}

	return nil
}

func (r *ExcelReporter) writeRiskSheet(fx *excelize.File, sheet string, history []risk.Metrics, styles excelStyles) error {
	fx.SetColWidth(sheet, "A", "A", 18)
	fx.SetColWidth(sheet, "B", "J", 12)

	headers := []string{
		"Timestamp", "VaR 1d", "VaR 5d", "VaR 10d", "Expected Shortfall",
		"Max Drawdown", "Volatility", "Sharpe", "Sortino", "Observations",
	}
	writeHeaderRow(fx, sheet, headers, styles.Header)

	for i, m := range history {
		row := i + 2
		setRow(fx, sheet, row, []cellValue{
			{m.Timestamp.Format("2006-01-02 15:04:05"), styles.Base},
			{m.VaR1d, styles.Percent},
			{m.VaR5d, styles.Percent},
			{m.VaR10d, styles.Percent},
			{m.ExpectedShortfall, styles.Percent},
			{m.MaxDrawdown, styles.Percent},
			{m.Volatility, styles.Percent},
			{m.SharpeRatio, styles.Base},
			{finiteOrZero(m.SortinoRatio), styles.Base},
			{m.Observations, styles.Base},
		})
	}

	return nil
}

type cellValue struct {
	value interface{}
	style int
}

func writeHeaderRow(fx *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, style)
	}
}

func setRow(fx *excelize.File, sheet string, row int, values []cellValue) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, v.value)
		fx.SetCellStyle(sheet, cell, cell, v.style)
	}
}

func pnlStyle(pnl float64, styles excelStyles) int {
	if pnl < 0 {
		return styles.RedPnL
	}
	return styles.GreenPnL
}

// finiteOrZero guards against Inf leaking into the workbook, which excelize
// would store as a string.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
