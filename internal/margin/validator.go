package margin

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/errors"
	"github.com/algotrader-dev/forex-risk-core/internal/logger"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// ExposureMethod selects how a proposed trade's exposure is measured
// against the equity cap.
type ExposureMethod string

const (
	// ExposureMargin measures the margin the position would lock up.
	ExposureMargin ExposureMethod = "margin"
	// ExposureRisk measures the loss implied by the stop being hit.
	ExposureRisk ExposureMethod = "risk"
	// ExposureNotional measures the full contract value.
	ExposureNotional ExposureMethod = "notional"
)

// Proposal is one candidate trade presented for validation.
type Proposal struct {
	Info       types.SymbolInfo
	Direction  types.Direction
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	Method     ExposureMethod
}

// Verdict is the validator's answer: allow or deny plus the metric
// values that drove the decision.
type Verdict struct {
	Allowed bool
	Check   string // the check that denied, empty when allowed
	Reason  string
	Current float64
	Limit   float64
}

// ClosedPosition records one forced close performed by the monitor.
type ClosedPosition struct {
	Ticket string
	Symbol string
	Volume float64
	PnL    float64
}

// Validator runs the pre-trade projected-margin checks and the
// periodic margin monitor with its tiered de-risking.
type Validator struct {
	cfg  config.MarginConfig
	acc  AccountSource
	exec PositionCloser
	log  *logger.Logger
}

// NewValidator wires the exposure and margin safety validator. The
// executor may be nil for a validate-only instance; the monitor then
// reports but cannot de-risk.
func NewValidator(cfg config.MarginConfig, acc AccountSource, exec PositionCloser, log *logger.Logger) (*Validator, error) {
	if acc == nil {
		return nil, errors.NewDependencyError("margin", "new_validator", "account provider is required")
	}
	return &Validator{cfg: cfg, acc: acc, exec: exec, log: log}, nil
}

// AccountSource is the account capability the validator reads.
type AccountSource interface {
	Snapshot(ctx context.Context) (types.AccountSnapshot, error)
}

// PositionCloser is the execution capability the monitor de-risks with.
type PositionCloser interface {
	OpenPositions(ctx context.Context, symbol string) ([]types.Position, error)
	ClosePosition(ctx context.Context, ticket string, volume float64) error
}

// ValidateExposure runs the five safety checks against projected
// post-trade values, cheapest first, stopping at the first failure.
// Every check uses the state the account would be in after the fill,
// so the validator is conservative by construction.
func (v *Validator) ValidateExposure(ctx context.Context, p Proposal) (Verdict, error) {
	if p.Volume <= 0 {
		return Verdict{}, errors.NewValidationError("margin", "validate_exposure", "volume must be positive")
	}
	if p.EntryPrice <= 0 {
		return Verdict{}, errors.NewValidationError("margin", "validate_exposure", "entry price must be positive")
	}

	snap, err := v.acc.Snapshot(ctx)
	if err != nil {
		return Verdict{}, errors.Wrap(err, errors.ErrorCategoryDependency, "margin", "validate_exposure")
	}
	if snap.Equity <= 0 {
		return Verdict{}, errors.NewValidationError("margin", "validate_exposure", "account equity is not positive")
	}

	// 1. Current margin safety, before considering the trade at all.
	// A call-imminent account is liquidated on the spot, not just denied.
	if level, defined := snap.MarginLevel(); defined && level < v.cfg.CallImminentLevel {
		if v.log != nil {
			v.log.Emergency("margin level %.1f%% below call-imminent %.1f%%, liquidating",
				level, v.cfg.CallImminentLevel)
		}
		v.deRisk(ctx, 1.0, "call-imminent")
		return v.deny(p.Info.Symbol, "current_margin", level, v.cfg.CallImminentLevel,
			"margin level below call-imminent threshold, no new risk accepted"), nil
	}

	addedMargin := p.Info.MarginPerLot * p.Volume
	projUsed := snap.UsedMargin + addedMargin
	projFree := snap.Equity - projUsed

	// 2. Projected margin level.
	if projUsed > 0 {
		projLevel := snap.Equity / projUsed * 100
		if projLevel < v.cfg.MinProjectedLevel {
			return v.deny(p.Info.Symbol, "projected_margin", projLevel, v.cfg.MinProjectedLevel,
				"projected margin level below minimum"), nil
		}
	}

	// 3. Projected free margin buffer.
	projFreePct := projFree / snap.Equity * 100
	if projFreePct < v.cfg.MinFreeMarginPct {
		return v.deny(p.Info.Symbol, "projected_free_margin", projFreePct, v.cfg.MinFreeMarginPct,
			"projected free margin below buffer"), nil
	}

	// 4. Exposure by the caller-selected method.
	exposure, err := v.exposurePercent(snap, p, projUsed)
	if err != nil {
		return Verdict{}, err
	}
	if exposure > v.cfg.MaxExposurePct {
		return v.deny(p.Info.Symbol, "exposure", exposure, v.cfg.MaxExposurePct,
			fmt.Sprintf("%s exposure above equity cap", exposureMethodOrDefault(p.Method))), nil
	}

	// 5. Margin usage cap. Enforced on top of the exposure cap; the two
	// are independent floors, not alternatives.
	usagePct := projUsed / snap.Equity * 100
	if usagePct > v.cfg.MaxMarginUsagePct {
		return v.deny(p.Info.Symbol, "margin_usage", usagePct, v.cfg.MaxMarginUsagePct,
			"projected margin usage above cap"), nil
	}

	return Verdict{Allowed: true}, nil
}

// CheckCurrentMarginSafety reports whether the account can carry any
// new risk right now. False triggers emergency liquidation of the
// whole book.
func (v *Validator) CheckCurrentMarginSafety(ctx context.Context) (bool, error) {
	snap, err := v.acc.Snapshot(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorCategoryDependency, "margin", "check_margin_safety")
	}
	level, defined := snap.MarginLevel()
	if !defined {
		// Nothing on margin, nothing to call.
		return true, nil
	}
	if level >= v.cfg.CallImminentLevel {
		return true, nil
	}
	if v.log != nil {
		v.log.Emergency("margin level %.1f%% below call-imminent %.1f%%, liquidating",
			level, v.cfg.CallImminentLevel)
	}
	v.deRisk(ctx, 1.0, "call-imminent")
	return false, nil
}

// Monitor runs one periodic margin pass, independent of any proposed
// trade, and applies tiered de-risking: a quarter of the book at the
// emergency level, half at critical, everything at call-imminent.
// It returns the positions it closed.
func (v *Validator) Monitor(ctx context.Context) ([]ClosedPosition, error) {
	snap, err := v.acc.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryDependency, "margin", "monitor")
	}
	level, defined := snap.MarginLevel()
	if !defined {
		return nil, nil
	}

	var fraction float64
	var band string
	switch {
	case level < v.cfg.CallImminentLevel:
		fraction, band = 1.0, "call-imminent"
	case level < v.cfg.CriticalLevel:
		fraction, band = 0.50, "critical"
	case level < v.cfg.EmergencyLevel:
		fraction, band = 0.25, "emergency"
	default:
		return nil, nil
	}

	if v.log != nil {
		v.log.Risk("margin level %.1f%% in %s band, closing %.0f%% of positions",
			level, band, fraction*100)
	}
	return v.deRisk(ctx, fraction, band), nil
}

// deRisk closes the least profitable fraction of the book. It sorts a
// snapshot of the positions, never the live list, and a rejected close
// moves on to the next position.
func (v *Validator) deRisk(ctx context.Context, fraction float64, band string) []ClosedPosition {
	if v.exec == nil {
		if v.log != nil {
			v.log.LogWarning("margin monitor", "no executor configured, cannot de-risk (%s)", band)
		}
		return nil
	}

	positions, err := v.exec.OpenPositions(ctx, "")
	if err != nil {
		if v.log != nil {
			v.log.LogError("margin monitor list positions", err)
		}
		return nil
	}
	if len(positions) == 0 {
		return nil
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].UnrealizedPnL < positions[j].UnrealizedPnL
	})

	toClose := int(math.Ceil(fraction * float64(len(positions))))
	if toClose > len(positions) {
		toClose = len(positions)
	}

	var closed []ClosedPosition
	for _, pos := range positions[:toClose] {
		if err := v.exec.ClosePosition(ctx, pos.Ticket, 0); err != nil {
			if v.log != nil {
				v.log.LogError("de-risk close "+pos.Symbol+" "+pos.Ticket, err)
			}
			continue
		}
		if v.log != nil {
			v.log.LogEmergencyAction("de-risk close "+pos.Symbol+" "+pos.Ticket, pos.Volume, 0, band)
		}
		closed = append(closed, ClosedPosition{
			Ticket: pos.Ticket, Symbol: pos.Symbol, Volume: pos.Volume, PnL: pos.UnrealizedPnL,
		})
	}
	return closed
}

// exposurePercent measures the proposal against equity using the
// selected method.
func (v *Validator) exposurePercent(snap types.AccountSnapshot, p Proposal, projUsed float64) (float64, error) {
	switch exposureMethodOrDefault(p.Method) {
	case ExposureMargin:
		return projUsed / snap.Equity * 100, nil
	case ExposureRisk:
		if p.StopLoss <= 0 {
			return 0, errors.NewValidationError("margin", "exposure",
				"risk-based exposure needs a stop loss")
		}
		if p.Info.Point <= 0 || p.Info.TickValue <= 0 {
			return 0, errors.NewValidationError("margin", "exposure",
				fmt.Sprintf("symbol %s has no usable point/tick value", p.Info.Symbol))
		}
		dist := math.Abs(p.EntryPrice - p.StopLoss)
		loss := dist / p.Info.Point * p.Info.TickValue * p.Volume
		return loss / snap.Equity * 100, nil
	case ExposureNotional:
		if p.Info.ContractSize <= 0 {
			return 0, errors.NewValidationError("margin", "exposure",
				fmt.Sprintf("symbol %s has no contract size", p.Info.Symbol))
		}
		notional := p.EntryPrice * p.Info.ContractSize * p.Volume
		return notional / snap.Equity * 100, nil
	default:
		return 0, errors.NewValidationError("margin", "exposure",
			fmt.Sprintf("unknown exposure method %q", p.Method))
	}
}

func exposureMethodOrDefault(m ExposureMethod) ExposureMethod {
	if m == "" {
		return ExposureMargin
	}
	return m
}

func (v *Validator) deny(symbol, check string, current, limit float64, reason string) Verdict {
	if v.log != nil {
		v.log.LogDenial(symbol, check, current, limit, reason)
	}
	return Verdict{Allowed: false, Check: check, Reason: reason, Current: current, Limit: limit}
}
