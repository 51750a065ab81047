package account

import (
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/riskstate"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Health is the human-readable account condition shown in reports.
type Health int

const (
	HealthCritical Health = iota
	HealthWarning
	HealthGood
	HealthExcellent
)

func (h Health) String() string {
	switch h {
	case HealthCritical:
		return "CRITICAL"
	case HealthWarning:
		return "WARNING"
	case HealthGood:
		return "GOOD"
	default:
		return "EXCELLENT"
	}
}

// Permissions are the coarse trading rights derived from tier and risk
// level together.
type Permissions struct {
	Tier             Tier
	MayOpen          bool
	MayAdd           bool
	MayUseAggressive bool
}

// Gate derives tier, permissions and health from the account state.
type Gate struct {
	cfg config.RiskConfig
}

// NewGate creates the account tier and permission gate.
func NewGate(cfg config.RiskConfig) *Gate {
	return &Gate{cfg: cfg}
}

// PermissionsFor combines the balance tier with the current risk state.
// Aggressive sizing needs both a STANDARD or better tier and a calm
// risk level; the risk state's own gates always bind.
func (g *Gate) PermissionsFor(balance float64, st riskstate.State) Permissions {
	tier := TierForBalance(balance)
	return Permissions{
		Tier:             tier,
		MayOpen:          st.CanOpenNewTrades,
		MayAdd:           st.CanAddToPositions,
		MayUseAggressive: st.CanOpenNewTrades && tier >= TierStandard && st.Level >= riskstate.Low,
	}
}

// HealthFor classifies the account condition from daily loss and margin
// level. A daily loss past the critical threshold is CRITICAL no matter
// how comfortable margin looks.
func (g *Gate) HealthFor(snap types.AccountSnapshot, dailyLossPct float64) Health {
	marginLevel, defined := snap.MarginLevel()

	if dailyLossPct >= g.cfg.DailyLossCritical {
		return HealthCritical
	}
	if defined && marginLevel < g.cfg.MarginCritical {
		return HealthCritical
	}
	if dailyLossPct >= g.cfg.DailyLossWarning {
		return HealthWarning
	}
	if defined && marginLevel < g.cfg.MarginModerate {
		return HealthWarning
	}
	if defined && marginLevel < g.cfg.MarginLow {
		return HealthGood
	}
	if dailyLossPct > 0 {
		return HealthGood
	}
	return HealthExcellent
}
