package trailing

import (
	"context"
	"fmt"
	"sync"

	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/internal/monitoring"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Engine moves protective stops in the profit direction only. Each open
// position carries a small state machine: trailing stays inactive until
// the position has earned the activation profit, then every cycle the
// configured method proposes a candidate stop and the engine applies it
// only when it strictly tightens the current one.
type Engine struct {
	mu       sync.Mutex
	cfg      config.TrailingConfig
	market   MarketSource
	exec     StopModifier
	log      *logger.Logger
	method   Method
	interval string
	states   map[string]*positionState
}

type positionState struct {
	active    bool
	breakeven bool // stop has reached entry at least once
	lastStop  float64
}

// MarketSource is the market-data capability the engine needs.
type MarketSource interface {
	Tick(ctx context.Context, symbol string) (types.Tick, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error)
}

// StopModifier is the execution capability the engine needs.
type StopModifier interface {
	OpenPositions(ctx context.Context, symbol string) ([]types.Position, error)
	ModifyStops(ctx context.Context, ticket string, stopLoss, takeProfit float64) error
}

// NewEngine builds a trailing engine with the method named in cfg.
// Unknown method names fall back to ATR trailing.
func NewEngine(cfg config.TrailingConfig, market MarketSource, exec StopModifier, log *logger.Logger, interval string) (*Engine, error) {
	if market == nil || exec == nil {
		return nil, errors.NewDependencyError("trailing", "new_engine",
			"market data and executor are required")
	}
	if interval == "" {
		interval = "60"
	}
	return &Engine{
		cfg:      cfg,
		market:   market,
		exec:     exec,
		log:      log,
		method:   buildMethod(cfg),
		interval: interval,
		states:   make(map[string]*positionState),
	}, nil
}

func buildMethod(cfg config.TrailingConfig) Method {
	switch cfg.Method {
	case "fixed":
		return &FixedDistance{Pips: cfg.DistancePips}
	case "ma":
		return NewMovingAverage(cfg.MAPeriod)
	case "highlow":
		return &HighLow{Lookback: cfg.HighLowLookback}
	case "parabolic":
		return NewParabolic(cfg.SARStep, cfg.SARMax)
	default:
		return NewATRDistance(cfg.ATRPeriod, cfg.ATRMultiplier)
	}
}

// MethodName reports the active trailing method.
func (e *Engine) MethodName() string {
	return e.method.Name()
}

// UpdateAll runs one trailing cycle over every open position and
// returns the number of stops that were moved. A failure on one
// position is logged and the loop continues with the rest.
func (e *Engine) UpdateAll(ctx context.Context) (int, error) {
	positions, err := e.exec.OpenPositions(ctx, "")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorCategoryDependency, "trailing", "open_positions")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.dropStale(positions)

	moved := 0
	for _, pos := range positions {
		ok, err := e.updatePosition(ctx, pos)
		if err != nil {
			if e.log != nil {
				e.log.LogError(fmt.Sprintf("trailing %s %s", pos.Symbol, pos.Ticket), err)
			}
			continue
		}
		if ok {
			moved++
		}
	}
	return moved, nil
}

// UpdatePosition runs one trailing cycle for a single position.
func (e *Engine) UpdatePosition(ctx context.Context, pos types.Position) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updatePosition(ctx, pos)
}

func (e *Engine) updatePosition(ctx context.Context, pos types.Position) (bool, error) {
	info, err := e.market.SymbolInfo(ctx, pos.Symbol)
	if err != nil {
		return false, err
	}
	tick, err := e.market.Tick(ctx, pos.Symbol)
	if err != nil {
		return false, err
	}

	// Positions exit on the opposite side of the spread.
	price := tick.Bid
	if pos.Direction == types.Short {
		price = tick.Ask
	}

	st := e.state(pos)

	if !st.active {
		activation := info.PipsToPrice(e.cfg.ActivationPips)
		if pos.ProfitDistance(price) < activation {
			return false, nil
		}
		st.active = true
	}

	candles, err := e.market.Klines(ctx, pos.Symbol, e.interval, e.barsNeeded())
	if err != nil {
		return false, err
	}

	candidate, err := e.method.Candidate(Input{Pos: pos, Info: info, Price: price, Candles: candles})
	if err != nil {
		// A method with no opinion this cycle is not a failure.
		return false, nil
	}

	candidate = e.applyBuffers(pos, info, price, candidate)
	candidate = e.capToMinDistance(pos, info, price, candidate)
	candidate = info.NormalizePrice(candidate)

	if !e.improves(pos, st, candidate) {
		return false, nil
	}

	if err := e.exec.ModifyStops(ctx, pos.Ticket, candidate, 0); err != nil {
		return false, errors.Wrap(err, errors.ErrorCategoryExecution, "trailing", "modify_stops")
	}

	if e.log != nil {
		e.log.LogStopMove(pos.Symbol, pos.Ticket, currentStop(pos, st), candidate)
	}
	monitoring.RecordStopMove(pos.Symbol)
	st.lastStop = candidate
	if pos.ProfitDistance(candidate) >= 0 {
		st.breakeven = true
	}
	return true, nil
}

// applyBuffers pulls the candidate back from price by the fixed pip
// buffer plus a fraction of the open profit, so ordinary noise does not
// tag the stop.
func (e *Engine) applyBuffers(pos types.Position, info types.SymbolInfo, price, candidate float64) float64 {
	sign := pos.Direction.Sign()
	if e.cfg.BufferPips > 0 {
		candidate -= sign * info.PipsToPrice(e.cfg.BufferPips)
	}
	if e.cfg.ProfitBufferPct > 0 {
		profit := pos.ProfitDistance(price)
		if profit > 0 {
			candidate -= sign * profit * e.cfg.ProfitBufferPct / 100
		}
	}
	return candidate
}

// capToMinDistance keeps the candidate at least the broker minimum stop
// distance away from the current price.
func (e *Engine) capToMinDistance(pos types.Position, info types.SymbolInfo, price, candidate float64) float64 {
	if info.MinStopDist <= 0 {
		return candidate
	}
	sign := pos.Direction.Sign()
	limit := price - sign*info.MinStopDist
	if (candidate-limit)*sign > 0 {
		candidate = limit
	}
	return candidate
}

// improves reports whether the candidate strictly tightens the current
// stop. A position with no stop accepts any candidate on the protective
// side of entry, except that once breakeven was reached the stop may
// never fall back into the loss zone.
func (e *Engine) improves(pos types.Position, st *positionState, candidate float64) bool {
	sign := pos.Direction.Sign()
	if st.breakeven && pos.ProfitDistance(candidate) < 0 {
		return false
	}
	current := currentStop(pos, st)
	if current <= 0 {
		return true
	}
	return (candidate-current)*sign > 0
}

// currentStop prefers the broker-reported stop but falls back to the
// last stop this engine set, covering hosts that echo stops with delay.
func currentStop(pos types.Position, st *positionState) float64 {
	if pos.StopLoss > 0 {
		return pos.StopLoss
	}
	return st.lastStop
}

func (e *Engine) state(pos types.Position) *positionState {
	st, ok := e.states[pos.Ticket]
	if !ok {
		st = &positionState{}
		if pos.StopLoss > 0 && pos.ProfitDistance(pos.StopLoss) >= 0 {
			st.breakeven = true
		}
		e.states[pos.Ticket] = st
	}
	return st
}

// dropStale forgets state for tickets that are no longer open, so a
// reused ticket number cannot inherit another position's history.
func (e *Engine) dropStale(open []types.Position) {
	alive := make(map[string]bool, len(open))
	for _, p := range open {
		alive[p.Ticket] = true
	}
	for ticket := range e.states {
		if !alive[ticket] {
			delete(e.states, ticket)
		}
	}
}

// barsNeeded sizes the kline request for the heaviest method in use.
func (e *Engine) barsNeeded() int {
	n := e.cfg.ATRPeriod + 1
	if e.cfg.MAPeriod > n {
		n = e.cfg.MAPeriod
	}
	if e.cfg.HighLowLookback > n {
		n = e.cfg.HighLowLookback
	}
	if n < 50 {
		n = 50
	}
	return n
}
