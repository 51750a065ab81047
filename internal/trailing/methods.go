package trailing

import (
	"errors"

	"github.com/algotrader-dev/forex-risk-core/internal/indicators"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Input is the per-cycle view a trailing method computes from.
type Input struct {
	Pos     types.Position
	Info    types.SymbolInfo
	Price   float64 // current close-side price for the position
	Candles []types.OHLCV
}

// Method computes a raw candidate stop each cycle. The engine decides
// whether the candidate is an improvement; methods only propose.
type Method interface {
	Name() string
	Candidate(in Input) (float64, error)
}

// FixedDistance trails a constant pip distance behind price.
type FixedDistance struct {
	Pips float64
}

func (m *FixedDistance) Name() string { return "fixed" }

func (m *FixedDistance) Candidate(in Input) (float64, error) {
	if m.Pips <= 0 {
		return 0, errors.New("trailing distance must be positive")
	}
	return in.Price - in.Pos.Direction.Sign()*in.Info.PipsToPrice(m.Pips), nil
}

// ATRDistance trails an ATR multiple behind price.
type ATRDistance struct {
	atr        *indicators.ATR
	Multiplier float64
}

// NewATRDistance creates an ATR-multiple trailing method.
func NewATRDistance(period int, multiplier float64) *ATRDistance {
	return &ATRDistance{atr: indicators.NewATR(period), Multiplier: multiplier}
}

func (m *ATRDistance) Name() string { return "atr" }

func (m *ATRDistance) Candidate(in Input) (float64, error) {
	atr, err := m.atr.Calculate(in.Candles)
	if err != nil {
		return 0, err
	}
	return in.Price - in.Pos.Direction.Sign()*atr*m.Multiplier, nil
}

// MovingAverage trails at a moving average when it sits on the
// protective side of price.
type MovingAverage struct {
	ma *indicators.EMA
}

// NewMovingAverage creates a moving-average trailing method.
func NewMovingAverage(period int) *MovingAverage {
	return &MovingAverage{ma: indicators.NewEMA(period)}
}

func (m *MovingAverage) Name() string { return "ma" }

func (m *MovingAverage) Candidate(in Input) (float64, error) {
	ma, err := m.ma.Calculate(in.Candles)
	if err != nil {
		return 0, err
	}
	if in.Pos.Direction == types.Long && ma >= in.Price {
		return 0, errors.New("moving average above price, no long candidate")
	}
	if in.Pos.Direction == types.Short && ma <= in.Price {
		return 0, errors.New("moving average below price, no short candidate")
	}
	return ma, nil
}

// HighLow trails at the recent bar extreme: the lowest low for longs,
// the highest high for shorts.
type HighLow struct {
	Lookback int
}

func (m *HighLow) Name() string { return "highlow" }

func (m *HighLow) Candidate(in Input) (float64, error) {
	if in.Pos.Direction == types.Long {
		low, ok := indicators.RecentLow(in.Candles, m.Lookback)
		if !ok {
			return 0, errors.New("no bars for recent-low trailing")
		}
		return low, nil
	}
	high, ok := indicators.RecentHigh(in.Candles, m.Lookback)
	if !ok {
		return 0, errors.New("no bars for recent-high trailing")
	}
	return high, nil
}

// Parabolic trails at the parabolic stop-and-reverse level.
type Parabolic struct {
	sar *indicators.ParabolicSAR
}

// NewParabolic creates a parabolic SAR trailing method.
func NewParabolic(step, max float64) *Parabolic {
	return &Parabolic{sar: indicators.NewParabolicSAR(step, max)}
}

func (m *Parabolic) Name() string { return "parabolic" }

func (m *Parabolic) Candidate(in Input) (float64, error) {
	return m.sar.Calculate(in.Candles, in.Pos.Direction)
}
