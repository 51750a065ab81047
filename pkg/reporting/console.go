package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ConsoleReporter prints a session report to a writer in a fixed,
// scan-friendly layout.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo creates a reporter writing to w.
func NewConsoleReporterTo(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: w}
}

// OutputReport prints the full session report.
func (r *ConsoleReporter) OutputReport(rep *SessionReport) {
	fmt.Fprintln(r.out, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(r.out, "🛡️  RISK SESSION REPORT")
	fmt.Fprintln(r.out, strings.Repeat("=", 50))

	fmt.Fprintf(r.out, "🕐 Generated:          %s\n", rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if rep.AccountID != "" {
		fmt.Fprintf(r.out, "🆔 Account:            %s\n", rep.AccountID)
	}
	fmt.Fprintf(r.out, "💰 Equity:             $%.2f\n", rep.Account.Equity)
	fmt.Fprintf(r.out, "💰 Balance:            $%.2f\n", rep.Account.Balance)
	fmt.Fprintf(r.out, "💳 Used Margin:        $%.2f\n", rep.Account.UsedMargin)
	fmt.Fprintf(r.out, "💳 Free Margin:        $%.2f (%.1f%%)\n", rep.Account.FreeMargin, rep.Account.FreeMarginPercent())
	if level, ok := rep.Account.MarginLevel(); ok {
		fmt.Fprintf(r.out, "📊 Margin Level:       %.1f%%\n", level)
	} else {
		fmt.Fprintf(r.out, "📊 Margin Level:       ∞ (no margin in use)\n")
	}
	fmt.Fprintf(r.out, "📉 Drawdown:           %.2f%%\n", rep.Risk.DrawdownPercent)
	fmt.Fprintf(r.out, "📉 Daily Loss:         %.2f%%\n", rep.DailyLossPercent)
	if rep.Risk.WinRateValid {
		fmt.Fprintf(r.out, "🎯 Win Rate:           %.1f%%\n", rep.Risk.WinRatePercent)
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 50))
	fmt.Fprintf(r.out, "🚦 Risk Level:         %s\n", rep.Risk.Level)
	fmt.Fprintf(r.out, "🏦 Account Tier:       %s\n", rep.Tier)
	fmt.Fprintf(r.out, "❤️  Account Health:     %s\n", rep.Health)
	fmt.Fprintf(r.out, "🔓 Can Open Trades:    %s\n", yesNo(rep.Risk.CanOpenNewTrades))
	fmt.Fprintf(r.out, "🔓 Can Add Positions:  %s\n", yesNo(rep.Risk.CanAddToPositions))
	if rep.Risk.EmergencyStopActive {
		fmt.Fprintln(r.out, "🚨 EMERGENCY STOP IS ACTIVE")
	}

	r.printPositions(rep)
	r.printAllocations(rep)
	r.printEvents(rep)
}

func (r *ConsoleReporter) printPositions(rep *SessionReport) {
	fmt.Fprintln(r.out, strings.Repeat("-", 50))
	if len(rep.Positions) == 0 {
		fmt.Fprintln(r.out, "📭 No open positions")
		return
	}
	fmt.Fprintf(r.out, "📋 Open Positions:     %d (%d in profit)\n", len(rep.Positions), rep.WinningPositions())
	fmt.Fprintf(r.out, "📋 Total Volume:       %.2f lots\n", rep.TotalVolume())
	fmt.Fprintf(r.out, "💹 Unrealized PnL:     $%.2f\n", rep.TotalUnrealizedPnL())
	for _, p := range rep.Positions {
		marker := "✅"
		if p.UnrealizedPnL < 0 {
			marker = "❌"
		}
		fmt.Fprintf(r.out, "  %s %-10s %-5s %.2f lots @ %.5f  sl %.5f  pnl $%.2f\n",
			marker, p.Symbol, p.Direction, p.Volume, p.EntryPrice, p.StopLoss, p.UnrealizedPnL)
	}
}

func (r *ConsoleReporter) printAllocations(rep *SessionReport) {
	if len(rep.Allocations) == 0 {
		return
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 50))
	fmt.Fprintln(r.out, "📊 Capital Allocation")
	for _, a := range rep.Allocations {
		state := "✅"
		if !a.Enabled {
			state = "⏸️"
		}
		fmt.Fprintf(r.out, "  %s %-10s target %5.1f%%  current %5.1f%%  $%.2f  risk %.1f%%\n",
			state, a.Symbol, a.TargetWeightPct, a.CurrentWeightPct, a.AllocatedCapital, a.RiskBudgetPct)
	}
}

func (r *ConsoleReporter) printEvents(rep *SessionReport) {
	if len(rep.Events) == 0 {
		return
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 50))
	fmt.Fprintf(r.out, "📜 Allocation Events:  %d\n", len(rep.Events))
	// Most recent last, same order they happened.
	for _, e := range rep.Events {
		fmt.Fprintf(r.out, "  %s  %-20s %-10s %s\n",
			e.Timestamp.Format("15:04:05"), e.EventType, e.Symbol, e.Detail)
	}
}

func yesNo(v bool) string {
	if v {
		return "✅ yes"
	}
	return "❌ no"
}
