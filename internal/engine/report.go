package engine

import (
	"context"

	"github.com/algotrader-dev/forex-risk-core/internal/account"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/pkg/reporting"
)

// GenerateReport assembles a session report from the live state:
// account, risk, tier, health, open book and the allocation history.
func (c *Core) GenerateReport(ctx context.Context) (*reporting.SessionReport, error) {
	snap, err := c.sess.Refresh(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryNetwork, "engine", "report_refresh")
	}

	rep := reporting.NewSessionReport(c.cfg.AccountID)
	rep.Account = snap
	rep.DailyLossPercent = c.sess.DailyLossPercent()
	rep.Tier = account.TierForBalance(snap.Balance)

	if c.risk != nil {
		rep.Risk = c.risk.Current()
	}
	if c.gate != nil {
		rep.Health = c.gate.HealthFor(snap, rep.DailyLossPercent)
	}

	positions, err := c.broker.OpenPositions(ctx, "")
	if err != nil {
		if c.log != nil {
			c.log.LogError("report positions", err)
		}
	} else {
		rep.Positions = positions
	}

	if c.folio != nil {
		rep.Allocations = c.folio.Allocations()
		rep.Events = c.folio.History()
	}

	return rep, nil
}
