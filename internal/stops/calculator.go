package stops

import (
	"fmt"
	"strings"

	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Calculator applies a configured stop method, then enforces the
// per-instrument minimum distance and normalizes to the instrument's
// price granularity. Identical inputs always produce identical output.
type Calculator struct {
	cfg    config.StopsConfig
	method Method
}

// NewCalculator builds a calculator for the method named in the
// config. Unknown names fall back to the volatility method.
func NewCalculator(cfg config.StopsConfig, methodName string) *Calculator {
	return &Calculator{cfg: cfg, method: buildMethod(cfg, methodName)}
}

func buildMethod(cfg config.StopsConfig, name string) Method {
	atr := NewATRStop(cfg.ATRPeriod, 2.0)
	switch name {
	case "structure":
		return NewStructureStop(cfg.SwingLookback, cfg.StructureBuffer, atr)
	case "ma":
		return NewMAStop(cfg.MAPeriod, cfg.StructureBuffer, atr)
	case "band":
		return NewBandStop(cfg.BandPeriod, cfg.BandDeviation, atr)
	case "fixed":
		return NewFixedStop(cfg.FixedDistancePips)
	default:
		return atr
	}
}

// SetATRMultiplier adjusts the volatility multiple. The risk state
// controller widens stops when the account is under pressure.
func (c *Calculator) SetATRMultiplier(mult float64) {
	if atr, ok := c.method.(*ATRStop); ok && mult > 0 {
		atr.Multiplier = mult
	}
	if st, ok := c.method.(*StructureStop); ok {
		if atr, ok := st.Fallback.(*ATRStop); ok && mult > 0 {
			atr.Multiplier = mult
		}
	}
}

// MethodName reports the active stop method.
func (c *Calculator) MethodName() string {
	return c.method.Name()
}

// StopLoss computes the protective stop for a trade. The raw method
// result is widened to the instrument's minimum distance and snapped
// to the quote granularity.
func (c *Calculator) StopLoss(in Input) (float64, error) {
	if in.Entry <= 0 {
		return 0, fmt.Errorf("invalid entry price %.5f", in.Entry)
	}

	raw, err := c.method.StopPrice(in)
	if err != nil {
		return 0, err
	}

	dist := (in.Entry - raw) * in.Direction.Sign()
	if dist <= 0 {
		return 0, fmt.Errorf("stop %.5f is on the wrong side of entry %.5f", raw, in.Entry)
	}

	minDist := c.MinStopDistance(in.Info)
	if dist < minDist {
		dist = minDist
	}

	return in.Info.NormalizePrice(in.Entry - in.Direction.Sign()*dist), nil
}

// TakeProfit derives the target from the stop distance as a
// risk:reward multiple, enforcing the minimum absolute profit and the
// minimum ratio. A requested ratio below the minimum falls back to the
// minimum rather than producing an unbalanced trade.
func (c *Calculator) TakeProfit(in Input, stopLoss, ratio float64) (float64, error) {
	if stopLoss <= 0 {
		return 0, fmt.Errorf("invalid stop loss %.5f", stopLoss)
	}
	stopDist := (in.Entry - stopLoss) * in.Direction.Sign()
	if stopDist <= 0 {
		return 0, fmt.Errorf("stop %.5f is on the wrong side of entry %.5f", stopLoss, in.Entry)
	}

	if ratio < c.cfg.MinRiskReward {
		ratio = c.cfg.MinRiskReward
	}

	profitDist := stopDist * ratio
	minProfit := in.Info.PipsToPrice(c.cfg.MinProfitPips)
	if profitDist < minProfit {
		profitDist = minProfit
	}
	// Widening to the minimum profit must not push the ratio back
	// under the floor; it can only raise it.

	return in.Info.NormalizePrice(in.Entry + in.Direction.Sign()*profitDist), nil
}

// MinStopDistance returns the enforced minimum stop distance for an
// instrument: the broker's rule or the class minimum, whichever is
// wider. Metals and other volatile instruments get wider minimums
// than major pairs.
func (c *Calculator) MinStopDistance(info types.SymbolInfo) float64 {
	pips := c.cfg.MinStopPipsMajor
	if IsVolatileInstrument(info.Symbol) {
		pips = c.cfg.MinStopPipsMetal
	}
	classMin := info.PipsToPrice(pips)
	if info.MinStopDist > classMin {
		return info.MinStopDist
	}
	return classMin
}

// IsVolatileInstrument reports whether an instrument belongs to the
// wide-stop class (metals, crypto, indices).
func IsVolatileInstrument(symbol string) bool {
	u := strings.ToUpper(symbol)
	for _, marker := range []string{"XAU", "XAG", "GOLD", "SILVER", "BTC", "ETH", "US30", "NAS"} {
		if strings.Contains(u, marker) {
			return true
		}
	}
	return false
}
