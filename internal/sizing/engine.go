package sizing

import (
	"fmt"
	"math"

	"github.com/algotrader-dev/forex-risk-core/internal/account"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/internal/stops"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Engine converts a risk budget and a stop distance into a trade
// volume, then walks the result through the broker limits and the
// tier cap table.
type Engine struct {
	cfg config.SizingConfig
	log *logger.Logger
}

// NewEngine creates the position sizing engine.
func NewEngine(cfg config.SizingConfig, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg, log: log}
}

// RiskPercentFor returns the per-trade risk percentage for a tier.
// Smaller accounts risk a higher percentage per trade so the absolute
// position size stays meaningful; this is intentional, not inverted.
func (e *Engine) RiskPercentFor(tier account.Tier) float64 {
	return e.cfg.TierRiskPercent[tier.Index()]
}

// CalculatePositionSize sizes a trade so that the stop being hit loses
// riskPercent of equity. The result is clamped to the broker volume
// rules and capped by the tier and instrument-class table.
func (e *Engine) CalculatePositionSize(info types.SymbolInfo, equity, riskPercent, stopDistance float64, tier account.Tier) (float64, error) {
	if equity <= 0 {
		return 0, errors.NewValidationError("sizing", "position_size", "equity must be positive")
	}
	if riskPercent <= 0 {
		return 0, errors.NewValidationError("sizing", "position_size", "risk percent must be positive")
	}
	if stopDistance <= 0 {
		return 0, errors.NewValidationError("sizing", "position_size",
			fmt.Sprintf("stop distance must be positive, got %.5f", stopDistance))
	}
	if info.Point <= 0 || info.TickValue <= 0 {
		return 0, errors.NewValidationError("sizing", "position_size",
			fmt.Sprintf("symbol %s has no usable point/tick value", info.Symbol))
	}

	riskAmount := equity * riskPercent / 100
	riskPerLot := stopDistance / info.Point * info.TickValue
	volume := riskAmount / riskPerLot

	capped := e.applyTierCap(info, tier, volume)
	final := info.ClampVolume(capped)

	if e.log != nil && final < volume-1e-9 {
		e.log.LogWarning("sizing", "%s volume reduced %.2f -> %.2f (tier %s caps and broker limits)",
			info.Symbol, volume, final, tier)
	}
	return final, nil
}

// CalculateMartingalePositionSize scales the base size by the loss
// streak. The multiplier compounds per consecutive loss but is bounded
// two ways: a streak past the loss cap resets to base size outright,
// and the multiplier itself never exceeds the max risk multiple.
func (e *Engine) CalculateMartingalePositionSize(info types.SymbolInfo, equity, riskPercent, stopDistance float64, tier account.Tier, consecutiveLosses int) (float64, error) {
	base, err := e.CalculatePositionSize(info, equity, riskPercent, stopDistance, tier)
	if err != nil {
		return 0, err
	}
	if !e.cfg.MartingaleEnabled || consecutiveLosses <= 0 {
		return base, nil
	}
	if consecutiveLosses > e.cfg.MaxConsecutiveLosses {
		if e.log != nil {
			e.log.LogWarning("sizing", "%s loss streak %d exceeds cap %d, martingale reset to base size",
				info.Symbol, consecutiveLosses, e.cfg.MaxConsecutiveLosses)
		}
		return base, nil
	}

	multiplier := math.Pow(e.cfg.MartingaleMultiplier, float64(consecutiveLosses))
	if e.cfg.MaxRiskMultiple > 0 && multiplier > e.cfg.MaxRiskMultiple {
		multiplier = e.cfg.MaxRiskMultiple
	}

	volume := e.applyTierCap(info, tier, base*multiplier)
	return info.ClampVolume(volume), nil
}

// applyTierCap bounds the volume by the tier table, with a tighter
// column for historically volatile instruments.
func (e *Engine) applyTierCap(info types.SymbolInfo, tier account.Tier, volume float64) float64 {
	table := e.cfg.TierMaxVolumeMajor
	if stops.IsVolatileInstrument(info.Symbol) {
		table = e.cfg.TierMaxVolumeVolatile
	}
	limit := table[tier.Index()]
	if limit > 0 && volume > limit {
		return limit
	}
	return volume
}
