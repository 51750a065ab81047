package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExcelReporter writes a session report as a multi-sheet workbook.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter.
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// ExcelStyles holds the style IDs shared across sheets.
type ExcelStyles struct {
	HeaderStyle   int
	CurrencyStyle int
	PercentStyle  int
	PositiveStyle int
	NegativeStyle int
}

// WriteSessionXLSX writes the report to path, creating the directory
// if needed.
func (r *ExcelReporter) WriteSessionXLSX(rep *SessionReport, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const summarySheet = "Summary"
	const positionsSheet = "Positions"
	const allocationsSheet = "Allocations"
	const eventsSheet = "Events"

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	fx.NewSheet(positionsSheet)
	fx.NewSheet(allocationsSheet)
	fx.NewSheet(eventsSheet)

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, summarySheet, rep, styles); err != nil {
		return err
	}
	if err := r.writePositionsSheet(fx, positionsSheet, rep, styles); err != nil {
		return err
	}
	if err := r.writeAllocationsSheet(fx, allocationsSheet, rep, styles); err != nil {
		return err
	}
	if err := r.writeEventsSheet(fx, eventsSheet, rep, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
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

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 7,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 9,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "E0E0E0", Style: 1},
			{Type: "right", Color: "E0E0E0", Style: 1},
			{Type: "bottom", Color: "E0E0E0", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.PositiveStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "006100"},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"C6EFCE"},
			Pattern: 1,
		},
	})
	if err != nil {
		return styles, err
	}

	styles.NegativeStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "9C0006"},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"FFC7CE"},
			Pattern: 1,
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeSummarySheet(fx *excelize.File, sheet string, rep *SessionReport, styles ExcelStyles) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Generated", rep.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Account", rep.AccountID},
		{"Equity", rep.Account.Equity},
		{"Balance", rep.Account.Balance},
		{"Used Margin", rep.Account.UsedMargin},
		{"Free Margin", rep.Account.FreeMargin},
		{"Drawdown %", rep.Risk.DrawdownPercent},
		{"Daily Loss %", rep.DailyLossPercent},
		{"Risk Level", rep.Risk.Level.String()},
		{"Account Tier", rep.Tier.String()},
		{"Account Health", rep.Health.String()},
		{"Emergency Stop", rep.Risk.EmergencyStopActive},
		{"Can Open Trades", rep.Risk.CanOpenNewTrades},
		{"Can Add To Positions", rep.Risk.CanAddToPositions},
		{"Open Positions", len(rep.Positions)},
		{"Total Volume (lots)", rep.TotalVolume()},
		{"Unrealized PnL", rep.TotalUnrealizedPnL()},
	}
	if level, ok := rep.Account.MarginLevel(); ok {
		rows = append(rows, []interface{}{"Margin Level %", level})
	} else {
		rows = append(rows, []interface{}{"Margin Level %", "n/a"})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", styles.HeaderStyle); err != nil {
		return err
	}
	return fx.SetColWidth(sheet, "A", "A", 24)
}

func (r *ExcelReporter) writePositionsSheet(fx *excelize.File, sheet string, rep *SessionReport, styles ExcelStyles) error {
	header := []interface{}{"Ticket", "Symbol", "Direction", "Volume", "Entry", "Stop Loss", "Take Profit", "Unrealized PnL", "Opened"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, p := range rep.Positions {
		row := []interface{}{
			p.Ticket, p.Symbol, p.Direction.String(), p.Volume,
			p.EntryPrice, p.StopLoss, p.TakeProfit, p.UnrealizedPnL,
			p.OpenedAt.Format("2006-01-02 15:04:05"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
		pnlCell, err := excelize.CoordinatesToCellName(8, i+2)
		if err != nil {
			return err
		}
		style := styles.PositiveStyle
		if p.UnrealizedPnL < 0 {
			style = styles.NegativeStyle
		}
		if err := fx.SetCellStyle(sheet, pnlCell, pnlCell, style); err != nil {
			return err
		}
	}
	return fx.SetCellStyle(sheet, "A1", "I1", styles.HeaderStyle)
}

func (r *ExcelReporter) writeAllocationsSheet(fx *excelize.File, sheet string, rep *SessionReport, styles ExcelStyles) error {
	header := []interface{}{"Symbol", "Enabled", "Target Weight %", "Current Weight %", "Allocated Capital", "Risk Budget %", "Volatility", "Sharpe", "Recent Return %"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, a := range rep.Allocations {
		row := []interface{}{
			a.Symbol, a.Enabled, a.TargetWeightPct, a.CurrentWeightPct,
			a.AllocatedCapital, a.RiskBudgetPct,
			a.Stats.Volatility, a.Stats.Sharpe, a.Stats.RecentReturnPct,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetCellStyle(sheet, "A1", "I1", styles.HeaderStyle)
}

func (r *ExcelReporter) writeEventsSheet(fx *excelize.File, sheet string, rep *SessionReport, styles ExcelStyles) error {
	header := []interface{}{"Timestamp", "Event", "Symbol", "Detail"}
	if err := fx.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, e := range rep.Events {
		row := []interface{}{
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.EventType, e.Symbol, e.Detail,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if err := fx.SetColWidth(sheet, "D", "D", 50); err != nil {
		return err
	}
	return fx.SetCellStyle(sheet, "A1", "D1", styles.HeaderStyle)
}
