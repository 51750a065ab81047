package portfolio

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/correlation"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Allocation is the living record for one enabled instrument: target
// and current weight, the capital behind it and its trailing metrics.
type Allocation struct {
	Symbol           string
	Enabled          bool
	TargetWeightPct  float64
	CurrentWeightPct float64
	AllocatedCapital float64
	RiskBudgetPct    float64
	Stats            InstrumentStats
}

// AllocationEvent records one reallocation or rebalance pass, kept
// in memory for the session so reports can show the history.
type AllocationEvent struct {
	Timestamp time.Time
	EventType string // ALLOCATE, REBALANCE, PERFORMANCE_SHIFT, CORRELATION_REDUCE
	Symbol    string
	Detail    string
}

// KlineSource is the market-data capability the optimizer reads.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)
}

// Optimizer distributes capital across the enabled instruments and
// periodically rebalances. Allocation records are created once from
// the configured instrument list and mutated in place by rebalancing.
type Optimizer struct {
	mu     sync.Mutex
	cfg    config.PortfolioConfig
	market KlineSource
	corr   *correlation.Engine
	log    *logger.Logger

	method        WeightMethod
	interval      string
	allocations   map[string]*Allocation
	history       []AllocationEvent
	lastRebalance time.Time
}

// NewOptimizer builds the optimizer over the configured instrument
// list. Unknown method names fall back to inverse volatility.
func NewOptimizer(cfg config.PortfolioConfig, market KlineSource, corr *correlation.Engine, log *logger.Logger, interval string) (*Optimizer, error) {
	if market == nil {
		return nil, errors.NewDependencyError("portfolio", "new_optimizer", "market data source is required")
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.NewConfigurationError("portfolio", "new_optimizer", "no instruments configured")
	}
	if interval == "" {
		interval = "60"
	}

	o := &Optimizer{
		cfg:         cfg,
		market:      market,
		corr:        corr,
		log:         log,
		method:      buildMethod(cfg, nil),
		interval:    interval,
		allocations: make(map[string]*Allocation, len(cfg.Instruments)),
	}
	for _, symbol := range cfg.Instruments {
		o.allocations[symbol] = &Allocation{
			Symbol:        symbol,
			Enabled:       true,
			RiskBudgetPct: cfg.MaxInstrumentRisk,
		}
	}
	return o, nil
}

func buildMethod(cfg config.PortfolioConfig, custom map[string]float64) WeightMethod {
	switch cfg.Method {
	case "equal":
		return EqualWeight{}
	case "sharpe":
		return SharpeProportional{}
	case "kelly":
		return Kelly{Cap: cfg.KellyCap}
	case "custom":
		return Custom{Supplied: custom}
	default:
		return InverseVolatility{}
	}
}

// SetCustomWeights switches the optimizer to externally supplied
// weights for the next allocation pass.
func (o *Optimizer) SetCustomWeights(weights map[string]float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.method = Custom{Supplied: weights}
}

// SetEnabled toggles an instrument in or out of the allocation set.
func (o *Optimizer) SetEnabled(symbol string, enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.allocations[symbol]; ok {
		rec.Enabled = enabled
	}
}

// MethodName reports the active weighting method.
func (o *Optimizer) MethodName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.method.Name()
}

// CalculateCapitalAllocation recomputes target weights for the enabled
// instruments, reduces the weaker member of any over-correlated pair,
// and scales each instrument's capital by its risk budget. Enabled
// target weights always sum to 100 within rounding.
func (o *Optimizer) CalculateCapitalAllocation(ctx context.Context, equity float64) ([]Allocation, error) {
	if equity <= 0 {
		return nil, errors.NewValidationError("portfolio", "allocate", "equity must be positive")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	stats, returns, err := o.collectStats(ctx)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, errors.NewValidationError("portfolio", "allocate", "no enabled instruments")
	}

	raw, err := o.method.Weights(stats)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "portfolio", "allocate")
	}
	weights := normalize(raw)

	o.applyCorrelationReduction(weights, stats, returns)

	for symbol, rec := range o.allocations {
		if !rec.Enabled {
			rec.TargetWeightPct = 0
			rec.AllocatedCapital = 0
			continue
		}
		rec.Stats = stats[symbol]
		rec.TargetWeightPct = weights[symbol]

		budgetFactor := 1.0
		if o.cfg.MaxInstrumentRisk > 0 && rec.RiskBudgetPct < o.cfg.MaxInstrumentRisk {
			budgetFactor = rec.RiskBudgetPct / o.cfg.MaxInstrumentRisk
		}
		rec.AllocatedCapital = equity * rec.TargetWeightPct / 100 * budgetFactor
	}

	o.record("ALLOCATE", "", o.method.Name())
	return o.snapshotLocked(), nil
}

// ShouldRebalance triggers on elapsed time or on any instrument's
// weight drifting past the threshold.
func (o *Optimizer) ShouldRebalance(now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastRebalance.IsZero() || now.Sub(o.lastRebalance) >= o.cfg.RebalanceHours {
		return true
	}
	for _, rec := range o.allocations {
		if !rec.Enabled {
			continue
		}
		if math.Abs(rec.CurrentWeightPct-rec.TargetWeightPct) > o.cfg.DriftThresholdPct {
			return true
		}
	}
	return false
}

// Rebalance recomputes the allocation, applies the performance shift
// and brings current weights to target.
func (o *Optimizer) Rebalance(ctx context.Context, equity float64, now time.Time) ([]Allocation, error) {
	if _, err := o.CalculateCapitalAllocation(ctx, equity); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.applyPerformanceShift()

	for _, rec := range o.allocations {
		if rec.Enabled {
			rec.CurrentWeightPct = rec.TargetWeightPct
			budgetFactor := 1.0
			if o.cfg.MaxInstrumentRisk > 0 && rec.RiskBudgetPct < o.cfg.MaxInstrumentRisk {
				budgetFactor = rec.RiskBudgetPct / o.cfg.MaxInstrumentRisk
			}
			rec.AllocatedCapital = equity * rec.TargetWeightPct / 100 * budgetFactor
		} else {
			rec.CurrentWeightPct = 0
		}
	}
	o.lastRebalance = now
	o.record("REBALANCE", "", "")
	if o.log != nil {
		o.log.Status("portfolio rebalanced, method=%s", o.method.Name())
	}
	return o.snapshotLocked(), nil
}

// ObserveCurrentWeights updates the live weight of each instrument from
// the capital actually deployed, feeding the drift trigger.
func (o *Optimizer) ObserveCurrentWeights(deployed map[string]float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var total float64
	for _, v := range deployed {
		total += v
	}
	if total <= 0 {
		return
	}
	for symbol, rec := range o.allocations {
		rec.CurrentWeightPct = deployed[symbol] / total * 100
	}
}

// Allocations returns a copy of the current records, enabled first,
// sorted by target weight descending.
func (o *Optimizer) Allocations() []Allocation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// History returns the session's allocation events.
func (o *Optimizer) History() []AllocationEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]AllocationEvent, len(o.history))
	copy(out, o.history)
	return out
}

// collectStats pulls klines for every enabled instrument and derives
// its trailing metrics. An instrument whose data cannot be fetched is
// skipped with a log line rather than failing the pass.
func (o *Optimizer) collectStats(ctx context.Context) (map[string]InstrumentStats, map[string][]float64, error) {
	stats := make(map[string]InstrumentStats)
	returns := make(map[string][]float64)

	for symbol, rec := range o.allocations {
		if !rec.Enabled {
			continue
		}
		candles, err := o.market.Klines(ctx, symbol, o.interval, o.cfg.CorrelationLookback+1)
		if err != nil {
			if o.log != nil {
				o.log.LogWarning("portfolio", "%s kline fetch failed, instrument skipped this pass: %v", symbol, err)
			}
			continue
		}
		r := o.returnSeries(candles)
		if len(r) < 2 {
			if o.log != nil {
				o.log.LogWarning("portfolio", "%s has too little history, instrument skipped this pass", symbol)
			}
			continue
		}
		returns[symbol] = r
		stats[symbol] = computeStats(r)
	}
	return stats, returns, nil
}

func (o *Optimizer) returnSeries(candles []types.OHLCV) []float64 {
	if o.corr != nil {
		return o.corr.Returns(candles)
	}
	out := make([]float64, 0, len(candles))
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}

func computeStats(returns []float64) InstrumentStats {
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	vol := math.Sqrt(sq / float64(len(returns)))

	sharpe := 0.0
	if vol > 0 {
		sharpe = mean / vol
	}

	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}

	return InstrumentStats{
		Volatility:      vol,
		MeanReturn:      mean,
		Sharpe:          sharpe,
		RecentReturnPct: (cumulative - 1) * 100,
	}
}

// applyCorrelationReduction cuts the weaker performer of every
// over-correlated pair by the configured fraction and hands the freed
// weight to the rest of the book, keeping the sum at 100.
func (o *Optimizer) applyCorrelationReduction(weights map[string]float64, stats map[string]InstrumentStats, returns map[string][]float64) {
	if o.corr == nil || o.cfg.CorrelationLimit <= 0 || len(returns) < 2 {
		return
	}

	matrix := o.corr.BuildMatrix(returns)
	flagged := correlation.FlagOverCorrelated(matrix, o.cfg.CorrelationLimit)
	if len(flagged) == 0 {
		return
	}

	reduced := make(map[string]bool)
	for _, pair := range flagged {
		weaker := pair.A
		if stats[pair.B].RecentReturnPct < stats[pair.A].RecentReturnPct {
			weaker = pair.B
		}
		if reduced[weaker] {
			continue
		}
		reduced[weaker] = true

		freed := weights[weaker] * o.cfg.CorrelationReduction
		weights[weaker] -= freed
		o.redistribute(weights, reduced, freed)

		o.record("CORRELATION_REDUCE", weaker, pair.A+"/"+pair.B)
		if o.log != nil {
			o.log.Risk("%s and %s correlated %.2f past limit %.2f, %s weight cut %.0f%%",
				pair.A, pair.B, pair.Correlation, o.cfg.CorrelationLimit, weaker, o.cfg.CorrelationReduction*100)
		}
	}
}

// redistribute spreads freed weight across the non-reduced instruments
// proportionally to their current weight.
func (o *Optimizer) redistribute(weights map[string]float64, excluded map[string]bool, freed float64) {
	var base float64
	for symbol, w := range weights {
		if !excluded[symbol] {
			base += w
		}
	}
	if base <= 0 {
		return
	}
	for symbol, w := range weights {
		if !excluded[symbol] {
			weights[symbol] = w + freed*w/base
		}
	}
}

// applyPerformanceShift moves weight from instruments with negative
// recent returns toward those past the outperformance threshold,
// bounded per cycle so the book cannot thrash.
func (o *Optimizer) applyPerformanceShift() {
	if o.cfg.PerformanceShiftPct <= 0 {
		return
	}

	var under, over []*Allocation
	for _, rec := range o.allocations {
		if !rec.Enabled || rec.TargetWeightPct <= 0 {
			continue
		}
		switch {
		case rec.Stats.RecentReturnPct < o.cfg.UnderperformReturn:
			under = append(under, rec)
		case rec.Stats.RecentReturnPct > o.cfg.OutperformReturn:
			over = append(over, rec)
		}
	}
	if len(under) == 0 || len(over) == 0 {
		return
	}

	var pool, overTotal float64
	for _, rec := range under {
		give := rec.TargetWeightPct * o.cfg.PerformanceShiftPct / 100
		rec.TargetWeightPct -= give
		pool += give
		o.record("PERFORMANCE_SHIFT", rec.Symbol, "reduced")
	}
	for _, rec := range over {
		overTotal += rec.TargetWeightPct
	}
	if overTotal <= 0 {
		// Nowhere to put the freed weight; hand it back evenly.
		for _, rec := range over {
			rec.TargetWeightPct += pool / float64(len(over))
		}
		return
	}
	for _, rec := range over {
		rec.TargetWeightPct += pool * rec.TargetWeightPct / overTotal
	}
}

func normalize(raw map[string]float64) map[string]float64 {
	var total float64
	for _, w := range raw {
		total += w
	}
	out := make(map[string]float64, len(raw))
	if total <= 0 {
		even := 100.0 / float64(len(raw))
		for symbol := range raw {
			out[symbol] = even
		}
		return out
	}
	for symbol, w := range raw {
		out[symbol] = w / total * 100
	}
	return out
}

func (o *Optimizer) snapshotLocked() []Allocation {
	out := make([]Allocation, 0, len(o.allocations))
	for _, rec := range o.allocations {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Enabled != out[j].Enabled {
			return out[i].Enabled
		}
		if out[i].TargetWeightPct != out[j].TargetWeightPct {
			return out[i].TargetWeightPct > out[j].TargetWeightPct
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (o *Optimizer) record(event, symbol, detail string) {
	o.history = append(o.history, AllocationEvent{
		Timestamp: time.Now(),
		EventType: event,
		Symbol:    symbol,
		Detail:    detail,
	})
	if len(o.history) > 500 {
		o.history = o.history[len(o.history)-500:]
	}
}
