package indicators

import (
	"errors"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// SMA is a simple moving average over closing prices.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

// Calculate returns the SMA of the most recent period closes.
func (s *SMA) Calculate(data []types.OHLCV) (float64, error) {
	if s.period <= 0 {
		return 0, errors.New("SMA period must be positive")
	}
	if len(data) < s.period {
		return 0, errors.New("insufficient data points for SMA calculation")
	}

	var sum float64
	for i := len(data) - s.period; i < len(data); i++ {
		sum += data[i].Close
	}
	return sum / float64(s.period), nil
}

// GetName returns the indicator name
func (s *SMA) GetName() string {
	return "SMA"
}

// GetRequiredPeriods returns the minimum number of bars needed.
func (s *SMA) GetRequiredPeriods() int {
	return s.period
}

// EMA is an exponential moving average over closing prices.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

// Calculate returns the EMA of the most recent bar, seeded with an SMA
// of the first period closes.
func (e *EMA) Calculate(data []types.OHLCV) (float64, error) {
	if e.period <= 0 {
		return 0, errors.New("EMA period must be positive")
	}
	if len(data) < e.period {
		return 0, errors.New("insufficient data points for EMA calculation")
	}

	var sum float64
	for i := 0; i < e.period; i++ {
		sum += data[i].Close
	}
	ema := sum / float64(e.period)

	multiplier := 2.0 / (float64(e.period) + 1.0)
	for i := e.period; i < len(data); i++ {
		ema = (data[i].Close-ema)*multiplier + ema
	}

	return ema, nil
}

// GetName returns the indicator name
func (e *EMA) GetName() string {
	return "EMA"
}

// GetRequiredPeriods returns the minimum number of bars needed.
func (e *EMA) GetRequiredPeriods() int {
	return e.period
}
