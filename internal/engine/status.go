package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PrintRiskStatus renders the periodic human-readable status report:
// account, risk state, allocations and open positions.
func (c *Core) PrintRiskStatus(ctx context.Context) {
	c.FprintRiskStatus(ctx, os.Stdout)
}

// FprintRiskStatus writes the status report to the given writer.
func (c *Core) FprintRiskStatus(ctx context.Context, w io.Writer) {
	snap, err := c.sess.Refresh(ctx)
	if err != nil {
		fmt.Fprintf(w, "⚠️ account unavailable: %v\n", err)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK STATUS")
	t.SetStyle(table.StyleRounded)

	marginLevel, defined := snap.MarginLevel()
	marginStr := "∞ (no margin in use)"
	if defined {
		marginStr = fmt.Sprintf("%.1f%%", marginLevel)
	}

	t.AppendRows([]table.Row{
		{"💰 Equity", fmt.Sprintf("$%.2f", snap.Equity)},
		{"🏦 Balance", fmt.Sprintf("$%.2f", snap.Balance)},
		{"📊 Margin Level", marginStr},
		{"💵 Free Margin", fmt.Sprintf("$%.2f (%.1f%%)", snap.FreeMargin, snap.FreeMarginPercent())},
		{"📉 Drawdown", fmt.Sprintf("%.2f%%", c.sess.DrawdownPercent())},
		{"📅 Daily Loss", fmt.Sprintf("%.2f%%", c.sess.DailyLossPercent())},
	})

	t.AppendSeparator()

	if c.risk != nil {
		st := c.risk.Current()
		t.AppendRows([]table.Row{
			{"🚦 Risk Level", st.Level.String()},
			{"🟢 May Open", yesNo(st.CanOpenNewTrades)},
			{"➕ May Add", yesNo(st.CanAddToPositions)},
			{"🛑 Emergency Stop", yesNo(st.EmergencyStopActive)},
		})
	}

	if c.gate != nil && c.risk != nil {
		perms := c.gate.PermissionsFor(snap.Balance, c.risk.Current())
		health := c.gate.HealthFor(snap, c.sess.DailyLossPercent())
		t.AppendRows([]table.Row{
			{"🏅 Account Tier", fmt.Sprintf("%d (%s)", perms.Tier, perms.Tier)},
			{"❤️ Health", health.String()},
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(w)

	c.printAllocations(w)
	c.printPositions(ctx, w)
}

func (c *Core) printAllocations(w io.Writer) {
	if c.folio == nil {
		return
	}
	allocs := c.folio.Allocations()
	if len(allocs) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("CAPITAL ALLOCATION")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Instrument", "Target %", "Current %", "Capital", "Enabled"})

	for _, a := range allocs {
		t.AppendRow(table.Row{
			a.Symbol,
			fmt.Sprintf("%.1f", a.TargetWeightPct),
			fmt.Sprintf("%.1f", a.CurrentWeightPct),
			fmt.Sprintf("$%.2f", a.AllocatedCapital),
			yesNo(a.Enabled),
		})
	}
	t.Render()
	fmt.Fprintln(w)
}

func (c *Core) printPositions(ctx context.Context, w io.Writer) {
	positions, err := c.broker.OpenPositions(ctx, "")
	if err != nil || len(positions) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Ticket", "Instrument", "Side", "Volume", "Entry", "Stop", "Target", "PnL"})

	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Ticket,
			p.Symbol,
			p.Direction.String(),
			fmt.Sprintf("%.2f", p.Volume),
			fmt.Sprintf("%.5f", p.EntryPrice),
			fmt.Sprintf("%.5f", p.StopLoss),
			fmt.Sprintf("%.5f", p.TakeProfit),
			fmt.Sprintf("%+.2f", p.UnrealizedPnL),
		})
	}
	t.Render()
	fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return "✅ yes"
	}
	return "❌ no"
}
