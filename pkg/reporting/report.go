package reporting

import (
	"time"

	"github.com/algotrader-dev/forex-risk-core/internal/account"
	"github.com/algotrader-dev/forex-risk-core/internal/portfolio"
	"github.com/algotrader-dev/forex-risk-core/internal/riskstate"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// SessionReport is a point-in-time export of everything the risk core
// knows about the account: balances, risk state, tier, capital
// allocation and the open book. It is assembled once per report and
// never mutated afterwards.
type SessionReport struct {
	GeneratedAt time.Time             `json:"generated_at"`
	AccountID   string                `json:"account_id"`
	Account     types.AccountSnapshot `json:"account"`
	Risk        riskstate.State       `json:"risk"`
	Tier        account.Tier          `json:"tier"`
	Health      account.Health        `json:"health"`

	DailyLossPercent float64 `json:"daily_loss_percent"`

	Positions   []types.Position            `json:"positions"`
	Allocations []portfolio.Allocation      `json:"allocations"`
	Events      []portfolio.AllocationEvent `json:"events"`
}

// NewSessionReport stamps a report with the current time and the
// account identifier. Callers fill in the remaining fields from the
// session, controller and optimizer before handing it to a reporter.
func NewSessionReport(accountID string) *SessionReport {
	return &SessionReport{
		GeneratedAt: time.Now().UTC(),
		AccountID:   accountID,
	}
}

// WinningPositions counts open positions currently in profit.
func (r *SessionReport) WinningPositions() int {
	n := 0
	for _, p := range r.Positions {
		if p.UnrealizedPnL > 0 {
			n++
		}
	}
	return n
}

// TotalUnrealizedPnL sums the floating profit of the open book.
func (r *SessionReport) TotalUnrealizedPnL() float64 {
	total := 0.0
	for _, p := range r.Positions {
		total += p.UnrealizedPnL
	}
	return total
}

// TotalVolume sums the open volume in lots across all positions.
func (r *SessionReport) TotalVolume() float64 {
	total := 0.0
	for _, p := range r.Positions {
		total += p.Volume
	}
	return total
}
