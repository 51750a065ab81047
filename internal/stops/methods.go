package stops

import (
	"errors"
	"fmt"

	"github.com/algotrader-dev/forex-risk-core/internal/indicators"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Input carries everything a stop method needs to place a protective
// level for one proposed or open trade.
type Input struct {
	Info      types.SymbolInfo
	Entry     float64
	Direction types.Direction
	Candles   []types.OHLCV
}

// Method computes a raw stop-loss price for a trade. Methods are
// selected at configuration time; adding one never touches a
// dispatcher.
type Method interface {
	Name() string
	StopPrice(in Input) (float64, error)
}

// ATRStop places the stop a volatility multiple away from entry.
type ATRStop struct {
	atr        *indicators.ATR
	Multiplier float64
}

// NewATRStop creates a volatility-multiple stop method.
func NewATRStop(period int, multiplier float64) *ATRStop {
	return &ATRStop{atr: indicators.NewATR(period), Multiplier: multiplier}
}

func (s *ATRStop) Name() string { return "atr" }

func (s *ATRStop) StopPrice(in Input) (float64, error) {
	atr, err := s.atr.Calculate(in.Candles)
	if err != nil {
		return 0, err
	}
	if atr <= 0 {
		return 0, errors.New("ATR is zero, cannot derive stop distance")
	}
	return in.Entry - in.Direction.Sign()*atr*s.Multiplier, nil
}

// StructureStop anchors the stop past the nearest swing extreme with a
// buffer. When no swing qualifies it falls back to the recent-bar
// extreme, then to the volatility method.
type StructureStop struct {
	Lookback   int
	Strength   int
	BufferPips float64
	Fallback   Method
}

// NewStructureStop creates a structure-based stop method with the
// given fallback.
func NewStructureStop(lookback int, bufferPips float64, fallback Method) *StructureStop {
	return &StructureStop{
		Lookback:   lookback,
		Strength:   2,
		BufferPips: bufferPips,
		Fallback:   fallback,
	}
}

func (s *StructureStop) Name() string { return "structure" }

func (s *StructureStop) StopPrice(in Input) (float64, error) {
	buffer := in.Info.PipsToPrice(s.BufferPips)

	if in.Direction == types.Long {
		if swing, ok := indicators.FindSwingLow(in.Candles, s.Lookback, s.Strength, in.Entry); ok {
			return swing - buffer, nil
		}
		if low, ok := indicators.RecentLow(in.Candles, s.Lookback/2); ok && low < in.Entry {
			return low - buffer, nil
		}
	} else {
		if swing, ok := indicators.FindSwingHigh(in.Candles, s.Lookback, s.Strength, in.Entry); ok {
			return swing + buffer, nil
		}
		if high, ok := indicators.RecentHigh(in.Candles, s.Lookback/2); ok && high > in.Entry {
			return high + buffer, nil
		}
	}

	if s.Fallback != nil {
		return s.Fallback.StopPrice(in)
	}
	return 0, fmt.Errorf("no structure found for %s and no fallback configured", in.Info.Symbol)
}

// MAStop places the stop at a moving average, provided the average is
// on the protective side of the entry.
type MAStop struct {
	ma         *indicators.EMA
	BufferPips float64
	Fallback   Method
}

// NewMAStop creates a moving-average stop method.
func NewMAStop(period int, bufferPips float64, fallback Method) *MAStop {
	return &MAStop{ma: indicators.NewEMA(period), BufferPips: bufferPips, Fallback: fallback}
}

func (s *MAStop) Name() string { return "ma" }

func (s *MAStop) StopPrice(in Input) (float64, error) {
	ma, err := s.ma.Calculate(in.Candles)
	if err != nil {
		return 0, err
	}
	buffer := in.Info.PipsToPrice(s.BufferPips)

	if in.Direction == types.Long && ma < in.Entry {
		return ma - buffer, nil
	}
	if in.Direction == types.Short && ma > in.Entry {
		return ma + buffer, nil
	}
	if s.Fallback != nil {
		return s.Fallback.StopPrice(in)
	}
	return 0, fmt.Errorf("moving average on wrong side of entry for %s", in.Info.Symbol)
}

// BandStop places the stop at the opposite statistical band.
type BandStop struct {
	bands    *indicators.BollingerBands
	Fallback Method
}

// NewBandStop creates a band-offset stop method.
func NewBandStop(period int, deviation float64, fallback Method) *BandStop {
	return &BandStop{bands: indicators.NewBollingerBands(period, deviation), Fallback: fallback}
}

func (s *BandStop) Name() string { return "band" }

func (s *BandStop) StopPrice(in Input) (float64, error) {
	bands, err := s.bands.Calculate(in.Candles)
	if err != nil {
		return 0, err
	}

	if in.Direction == types.Long && bands.Lower < in.Entry {
		return bands.Lower, nil
	}
	if in.Direction == types.Short && bands.Upper > in.Entry {
		return bands.Upper, nil
	}
	if s.Fallback != nil {
		return s.Fallback.StopPrice(in)
	}
	return 0, fmt.Errorf("band on wrong side of entry for %s", in.Info.Symbol)
}

// FixedStop places the stop a fixed pip distance from entry.
type FixedStop struct {
	DistancePips float64
}

// NewFixedStop creates a fixed-distance stop method.
func NewFixedStop(distancePips float64) *FixedStop {
	return &FixedStop{DistancePips: distancePips}
}

func (s *FixedStop) Name() string { return "fixed" }

func (s *FixedStop) StopPrice(in Input) (float64, error) {
	if s.DistancePips <= 0 {
		return 0, errors.New("fixed stop distance must be positive")
	}
	return in.Entry - in.Direction.Sign()*in.Info.PipsToPrice(s.DistancePips), nil
}
