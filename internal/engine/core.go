package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/algotrader-dev/forex-risk-core/internal/account"
	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/internal/margin"
	"github.com/algotrader-dev/forex-risk-core/internal/monitoring"
	"github.com/algotrader-dev/forex-risk-core/internal/portfolio"
	"github.com/algotrader-dev/forex-risk-core/internal/riskstate"
	"github.com/algotrader-dev/forex-risk-core/internal/session"
	"github.com/algotrader-dev/forex-risk-core/internal/sizing"
	"github.com/algotrader-dev/forex-risk-core/internal/stops"
	"github.com/algotrader-dev/forex-risk-core/internal/trailing"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Decision is the core's answer to one trading opportunity: whether
// the trade may go ahead, at what size, and with what protective
// levels. A denied decision carries the reason.
type Decision struct {
	Approved   bool
	Symbol     string
	Direction  types.Direction
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	RiskLevel  riskstate.Level
	Reason     string
}

// Core wires the full risk pipeline: risk state gate, tier
// permissions, margin validation, sizing and protective levels on the
// way in, trailing and the margin monitor while positions are open,
// the portfolio optimizer on a timer.
type Core struct {
	cfg    *config.Config
	broker broker.Broker
	sess   *session.Context
	risk   *riskstate.Controller
	gate   *account.Gate
	valid  *margin.Validator
	sizer  *sizing.Engine
	stops  *stops.Calculator
	trail  *trailing.Engine
	folio  *portfolio.Optimizer
	log    *logger.Logger
	health *monitoring.HealthChecker

	interval string
	bars     int
}

// Deps carries the collaborators a Core is assembled from. Broker and
// session are mandatory; the rest may be nil and the core degrades to
// denying trades rather than guessing.
type Deps struct {
	Broker    broker.Broker
	Session   *session.Context
	Risk      *riskstate.Controller
	Gate      *account.Gate
	Validator *margin.Validator
	Sizer     *sizing.Engine
	Stops     *stops.Calculator
	Trailing  *trailing.Engine
	Portfolio *portfolio.Optimizer
	Logger    *logger.Logger
	Health    *monitoring.HealthChecker
}

// NewCore assembles the risk core.
func NewCore(cfg *config.Config, deps Deps, interval string) (*Core, error) {
	if cfg == nil {
		return nil, errors.NewConfigurationError("engine", "new_core", "config is required")
	}
	if deps.Broker == nil {
		return nil, errors.NewDependencyError("engine", "new_core", "broker is required")
	}
	if deps.Session == nil {
		return nil, errors.NewDependencyError("engine", "new_core", "session context is required")
	}
	if interval == "" {
		interval = "60"
	}

	bars := cfg.Stops.SwingLookback + 10
	if cfg.Stops.ATRPeriod+1 > bars {
		bars = cfg.Stops.ATRPeriod + 1
	}
	if bars < 60 {
		bars = 60
	}

	return &Core{
		cfg:      cfg,
		broker:   deps.Broker,
		sess:     deps.Session,
		risk:     deps.Risk,
		gate:     deps.Gate,
		valid:    deps.Validator,
		sizer:    deps.Sizer,
		stops:    deps.Stops,
		trail:    deps.Trailing,
		folio:    deps.Portfolio,
		log:      deps.Logger,
		health:   deps.Health,
		interval: interval,
		bars:     bars,
	}, nil
}

// GetTradingDecision runs the full pipeline for one candidate trade.
// The order is fixed: risk gate, tier permissions, protective levels,
// sizing, then projected margin validation. Any missing collaborator
// denies; a trading system fails closed.
func (c *Core) GetTradingDecision(ctx context.Context, symbol string, direction types.Direction, suggestedEntry float64) (Decision, error) {
	deny := func(reason string) Decision {
		monitoring.RecordValidation(symbol, false)
		if c.log != nil {
			c.log.Info("trade %s %s denied: %s", symbol, direction, reason)
		}
		return Decision{Symbol: symbol, Direction: direction, Reason: reason}
	}

	if c.risk == nil || c.gate == nil || c.valid == nil || c.sizer == nil || c.stops == nil {
		return deny("risk pipeline not fully configured"), nil
	}

	st := c.risk.Evaluate(ctx)
	monitoring.UpdateRiskLevel(int(st.Level))
	if !st.CanOpenNewTrades {
		return deny(fmt.Sprintf("risk level %s blocks new trades", st.Level)), nil
	}

	snap := c.sess.Snapshot()
	perms := c.gate.PermissionsFor(snap.Balance, st)
	if !perms.MayOpen {
		return deny(fmt.Sprintf("tier %s may not open at risk level %s", perms.Tier, st.Level)), nil
	}

	if gain := c.sess.DailyGainPercent(); gain >= perms.Tier.ProfitTargetPercent() {
		return deny(fmt.Sprintf("daily profit target %.1f%% reached at %.1f%%, protecting gains",
			perms.Tier.ProfitTargetPercent(), gain)), nil
	}

	if cooling, until := c.sess.InCooldown(symbol); cooling {
		return deny(fmt.Sprintf("instrument in loss cooldown until %s", until.Format(time.RFC3339))), nil
	}

	positions, err := c.broker.OpenPositions(ctx, "")
	if err != nil {
		return Decision{}, errors.Wrap(err, errors.ErrorCategoryDependency, "engine", "open_positions")
	}
	held := make(map[string]bool)
	for _, p := range positions {
		held[p.Symbol] = true
	}
	if !held[symbol] && len(held) >= perms.Tier.MaxConcurrentInstruments() {
		return deny(fmt.Sprintf("tier %s caps concurrent instruments at %d",
			perms.Tier, perms.Tier.MaxConcurrentInstruments())), nil
	}

	info, err := c.broker.SymbolInfo(ctx, symbol)
	if err != nil {
		return Decision{}, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "symbol_info")
	}
	tick, err := c.broker.Tick(ctx, symbol)
	if err != nil {
		return Decision{}, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "tick")
	}
	candles, err := c.broker.Klines(ctx, symbol, c.interval, c.bars)
	if err != nil {
		return Decision{}, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "klines")
	}

	entry := suggestedEntry
	if entry <= 0 {
		if direction == types.Long {
			entry = tick.Ask
		} else {
			entry = tick.Bid
		}
	}

	c.stops.SetATRMultiplier(c.atrMultiplierFor(st.Level))
	in := stops.Input{Info: info, Entry: entry, Direction: direction, Candles: candles}
	stopLoss, err := c.stops.StopLoss(in)
	if err != nil {
		return deny("no valid protective stop: " + err.Error()), nil
	}
	takeProfit, err := c.stops.TakeProfit(in, stopLoss, c.cfg.Stops.DefaultRR)
	if err != nil {
		return deny("no valid profit target: " + err.Error()), nil
	}

	stopDistance := math.Abs(entry - stopLoss)
	riskPercent := c.sizer.RiskPercentFor(perms.Tier)

	var volume float64
	streak := c.sess.Symbol(symbol).ConsecutiveLosses
	if perms.MayUseAggressive && c.cfg.Sizing.MartingaleEnabled && streak > 0 {
		volume, err = c.sizer.CalculateMartingalePositionSize(info, snap.Equity, riskPercent, stopDistance, perms.Tier, streak)
	} else {
		volume, err = c.sizer.CalculatePositionSize(info, snap.Equity, riskPercent, stopDistance, perms.Tier)
	}
	if err != nil {
		return deny("sizing failed: " + err.Error()), nil
	}
	if volume <= 0 {
		return deny("sized volume is zero"), nil
	}

	verdict, err := c.valid.ValidateExposure(ctx, margin.Proposal{
		Info:       info,
		Direction:  direction,
		Volume:     volume,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		Method:     margin.ExposureRisk,
	})
	if err != nil {
		return Decision{}, err
	}
	if !verdict.Allowed {
		monitoring.RecordDenial(verdict.Check)
		return deny(fmt.Sprintf("%s: %s (%.1f vs limit %.1f)",
			verdict.Check, verdict.Reason, verdict.Current, verdict.Limit)), nil
	}

	monitoring.RecordValidation(symbol, true)
	if c.log != nil {
		c.log.Info("trade %s %s approved: volume=%.2f entry=%.5f sl=%.5f tp=%.5f",
			symbol, direction, volume, entry, stopLoss, takeProfit)
	}
	return Decision{
		Approved:   true,
		Symbol:     symbol,
		Direction:  direction,
		Volume:     volume,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		RiskLevel:  st.Level,
	}, nil
}

// GetOptimalStopLoss computes a protective stop for a trade without
// running the rest of the pipeline. Deterministic for identical inputs
// and unchanged market data.
func (c *Core) GetOptimalStopLoss(ctx context.Context, symbol string, direction types.Direction, entry float64) (float64, error) {
	if c.stops == nil {
		return 0, errors.NewDependencyError("engine", "optimal_stop", "stop calculator not configured")
	}
	info, err := c.broker.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "symbol_info")
	}
	candles, err := c.broker.Klines(ctx, symbol, c.interval, c.bars)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "klines")
	}
	return c.stops.StopLoss(stops.Input{Info: info, Entry: entry, Direction: direction, Candles: candles})
}

// GetOptimalTakeProfit derives the profit target paired with a stop.
func (c *Core) GetOptimalTakeProfit(ctx context.Context, symbol string, direction types.Direction, entry, stopLoss float64) (float64, error) {
	if c.stops == nil {
		return 0, errors.NewDependencyError("engine", "optimal_target", "stop calculator not configured")
	}
	info, err := c.broker.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "symbol_info")
	}
	candles, err := c.broker.Klines(ctx, symbol, c.interval, c.bars)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorCategoryMarketData, "engine", "klines")
	}
	in := stops.Input{Info: info, Entry: entry, Direction: direction, Candles: candles}
	return c.stops.TakeProfit(in, stopLoss, c.cfg.Stops.DefaultRR)
}

// UpdateTrailingStops runs one trailing cycle over all open positions.
func (c *Core) UpdateTrailingStops(ctx context.Context) (int, error) {
	if c.trail == nil {
		return 0, nil
	}
	moved, err := c.trail.UpdateAll(ctx)
	if err != nil {
		monitoring.RecordError(string(errors.Categorize(err, "engine", "trailing").Category))
		return 0, err
	}
	return moved, nil
}

// OnTick is the per-tick entry point: re-evaluate risk, advance
// trailing stops, run the margin monitor.
func (c *Core) OnTick(ctx context.Context) {
	if c.risk != nil {
		st := c.risk.Evaluate(ctx)
		monitoring.UpdateRiskLevel(int(st.Level))
		snap := c.sess.Snapshot()
		level, _ := snap.MarginLevel()
		monitoring.UpdateAccount(snap.Equity, level, st.DrawdownPercent)
		if c.health != nil {
			c.health.MarkEvaluation(st.Level.String())
		}
	}

	if _, err := c.UpdateTrailingStops(ctx); err != nil && c.log != nil {
		c.log.LogError("trailing cycle", err)
	}

	if c.valid != nil {
		closed, err := c.valid.Monitor(ctx)
		if err != nil {
			if c.log != nil {
				c.log.LogError("margin monitor", err)
			}
		}
		for range closed {
			monitoring.RecordForcedClose("monitor")
		}
	}
}

// OnTimer is the periodic entry point: rebalance the portfolio when
// due and refresh the per-instrument volume gauges.
func (c *Core) OnTimer(ctx context.Context, now time.Time) {
	if c.folio != nil && c.folio.ShouldRebalance(now) {
		snap := c.sess.Snapshot()
		if _, err := c.folio.Rebalance(ctx, snap.Equity, now); err != nil && c.log != nil {
			c.log.LogError("portfolio rebalance", err)
		}
	}

	positions, err := c.broker.OpenPositions(ctx, "")
	if err != nil {
		return
	}
	volumes := make(map[string]float64)
	for _, p := range positions {
		volumes[p.Symbol] += p.Volume
	}
	for symbol, lots := range volumes {
		monitoring.UpdatePositionVolume(symbol, lots)
	}

	marginPerLot := make(map[string]float64)
	for symbol := range volumes {
		if info, err := c.broker.SymbolInfo(ctx, symbol); err == nil {
			marginPerLot[symbol] = info.MarginPerLot
		}
	}
	c.sess.ObservePositions(positions, marginPerLot)
}

// CanOpenNewTrades reports the risk gate, failing closed when the
// controller is absent.
func (c *Core) CanOpenNewTrades() bool {
	if c.risk == nil {
		return false
	}
	return c.risk.CanOpenNewTrades()
}

// CanAddToPositions reports the add gate, failing closed.
func (c *Core) CanAddToPositions() bool {
	if c.risk == nil {
		return false
	}
	return c.risk.CanAddToPositions()
}

// GetRiskLevel reports the current level. With no controller the
// answer is CRITICAL, the conservative reading.
func (c *Core) GetRiskLevel() riskstate.Level {
	if c.risk == nil {
		return riskstate.Critical
	}
	return c.risk.RiskLevel()
}

// RecordTradeResult feeds a closed trade back into the win-rate and
// streak tracking.
func (c *Core) RecordTradeResult(symbol string, win bool) {
	c.sess.RecordTradeResult(symbol, win)
}

// atrMultiplierFor widens protective stops as conditions worsen, so a
// stressed book is not shaken out by ordinary noise.
func (c *Core) atrMultiplierFor(level riskstate.Level) float64 {
	base := 2.0
	switch level {
	case riskstate.Moderate:
		return base * 1.25
	case riskstate.Low, riskstate.Optimal:
		return base
	default:
		return base * 1.5
	}
}
