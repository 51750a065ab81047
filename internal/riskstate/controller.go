package riskstate

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/internal/monitoring"
	"github.com/algotrader-dev/forex-risk-core/internal/session"
)

// Severity picks how much of the book an emergency action closes.
type Severity int

const (
	SeverityHigh Severity = iota
	SeverityEmergency
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "HIGH"
	case SeverityEmergency:
		return "EMERGENCY"
	default:
		return "CRITICAL"
	}
}

// State is the controller's full output for one evaluation cycle.
type State struct {
	Level               Level
	DrawdownPercent     float64
	MarginLevel         float64
	MarginLevelDefined  bool
	WinRatePercent      float64
	WinRateValid        bool
	EmergencyStopActive bool
	CanOpenNewTrades    bool
	CanAddToPositions   bool
}

// Controller combines drawdown, margin and performance signals into a
// single risk level. It is level-triggered: every evaluation restates
// the level from current conditions, and only the emergency-stop latch
// survives until an explicit session reset.
type Controller struct {
	mu   sync.Mutex
	cfg  config.RiskConfig
	sess *session.Context
	exec broker.OrderExecutor
	log  *logger.Logger

	emergencyStopActive bool
	last                State
}

// NewController wires the risk state controller. The executor may be
// nil for read-only uses; emergency stops then latch the flags but
// cannot close positions.
func NewController(cfg config.RiskConfig, sess *session.Context, exec broker.OrderExecutor, log *logger.Logger) (*Controller, error) {
	if sess == nil {
		return nil, errors.NewDependencyError("riskstate", "new_controller", "session context is required")
	}
	return &Controller{cfg: cfg, sess: sess, exec: exec, log: log}, nil
}

// Evaluate refreshes the account view and reclassifies the risk level.
// A refresh failure fails closed: trading flags drop to false while the
// latch and last known level stand.
func (c *Controller) Evaluate(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.sess.Refresh(ctx)
	if err != nil {
		if c.log != nil {
			c.log.LogError("risk state refresh", err)
		}
		st := c.last
		st.CanOpenNewTrades = false
		st.CanAddToPositions = false
		st.EmergencyStopActive = c.emergencyStopActive
		c.last = st
		return st
	}

	st := State{
		DrawdownPercent: c.sess.DrawdownPercent(),
	}
	st.MarginLevel, st.MarginLevelDefined = snap.MarginLevel()
	st.WinRatePercent, st.WinRateValid = c.sess.WinRatePercent()

	level := WorseOf(c.classifyDrawdown(st.DrawdownPercent), c.classifyMargin(st.MarginLevel, st.MarginLevelDefined))
	if st.WinRateValid && st.WinRatePercent < c.cfg.MinWinRate {
		level = level.Worsen()
	}
	st.Level = level

	if level == Critical && !c.emergencyStopActive {
		c.activateEmergencyStopLocked(ctx, SeverityCritical)
	}

	st.EmergencyStopActive = c.emergencyStopActive
	st.CanOpenNewTrades = !c.emergencyStopActive && level >= Moderate
	st.CanAddToPositions = !c.emergencyStopActive && level >= Low

	c.last = st
	return st
}

// Current returns the last evaluated state without refreshing.
func (c *Controller) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// CanOpenNewTrades reports the gate from the last evaluation.
func (c *Controller) CanOpenNewTrades() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.CanOpenNewTrades
}

// CanAddToPositions reports the gate from the last evaluation.
func (c *Controller) CanAddToPositions() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.CanAddToPositions
}

// RiskLevel reports the level from the last evaluation.
func (c *Controller) RiskLevel() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.Level
}

// EmergencyStopActive reports the latch.
func (c *Controller) EmergencyStopActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emergencyStopActive
}

// ActivateEmergencyStop latches the stop and force-closes part of the
// book by severity: the configured fractions for HIGH and EMERGENCY,
// everything for CRITICAL. Losers close first. A rejected close is
// logged and the pass continues; the latch holds regardless.
func (c *Controller) ActivateEmergencyStop(ctx context.Context, severity Severity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activateEmergencyStopLocked(ctx, severity)
	c.last.EmergencyStopActive = true
	c.last.CanOpenNewTrades = false
	c.last.CanAddToPositions = false
}

func (c *Controller) activateEmergencyStopLocked(ctx context.Context, severity Severity) {
	c.emergencyStopActive = true
	monitoring.RecordEmergencyStop()

	fraction := 1.0
	switch severity {
	case SeverityHigh:
		fraction = c.cfg.CloseFractionHigh
	case SeverityEmergency:
		fraction = c.cfg.CloseFractionEmergency
	}

	if c.log != nil {
		c.log.Emergency("emergency stop activated, severity=%s close_fraction=%.0f%%", severity, fraction*100)
	}

	if c.exec == nil {
		if c.log != nil {
			c.log.LogWarning("emergency stop", "no executor configured, positions left open")
		}
		return
	}

	positions, err := c.exec.OpenPositions(ctx, "")
	if err != nil {
		if c.log != nil {
			c.log.LogError("emergency stop list positions", err)
		}
		return
	}
	if len(positions) == 0 {
		return
	}

	// Snapshot sort, losers first, so the worst bleed stops first.
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].UnrealizedPnL < positions[j].UnrealizedPnL
	})

	toClose := int(math.Ceil(fraction * float64(len(positions))))
	if toClose > len(positions) {
		toClose = len(positions)
	}

	for _, pos := range positions[:toClose] {
		if err := c.exec.ClosePosition(ctx, pos.Ticket, 0); err != nil {
			if c.log != nil {
				c.log.LogError("emergency close "+pos.Symbol+" "+pos.Ticket, err)
			}
			continue
		}
		if c.log != nil {
			c.log.LogEmergencyAction("close "+pos.Symbol+" "+pos.Ticket, pos.Volume, 0, severity.String())
		}
	}
}

// ResetEmergencyStop clears the latch. Meant for the start of a new
// trading session, never for automatic recovery.
func (c *Controller) ResetEmergencyStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emergencyStopActive = false
	if c.log != nil {
		c.log.Status("emergency stop latch cleared for new session")
	}
}

func (c *Controller) classifyDrawdown(dd float64) Level {
	switch {
	case dd >= c.cfg.DrawdownCritical:
		return Critical
	case dd >= c.cfg.DrawdownHigh:
		return High
	case dd >= c.cfg.DrawdownModerate:
		return Moderate
	case dd >= c.cfg.DrawdownLow:
		return Low
	default:
		return Optimal
	}
}

func (c *Controller) classifyMargin(level float64, defined bool) Level {
	if !defined {
		// No margin in use, nothing at risk.
		return Optimal
	}
	switch {
	case level < c.cfg.MarginCritical:
		return Critical
	case level < c.cfg.MarginHigh:
		return High
	case level < c.cfg.MarginModerate:
		return Moderate
	case level < c.cfg.MarginLow:
		return Low
	default:
		return Optimal
	}
}
