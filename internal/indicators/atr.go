package indicators

import (
	"errors"
	"math"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// ATR is the Average True Range volatility indicator using Wilder's
// smoothing. It is computed statelessly over the supplied series so
// repeated calls with identical data return identical values.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Calculate returns the ATR of the most recent bar.
func (a *ATR) Calculate(data []types.OHLCV) (float64, error) {
	if a.period <= 0 {
		return 0, errors.New("ATR period must be positive")
	}
	if len(data) < a.period+1 {
		return 0, errors.New("insufficient data points for ATR calculation")
	}

	// Seed with a simple average of the first period true ranges, then
	// apply Wilder smoothing over the rest.
	var sum float64
	for i := 1; i <= a.period; i++ {
		sum += trueRange(data[i], data[i-1].Close)
	}
	atr := sum / float64(a.period)

	for i := a.period + 1; i < len(data); i++ {
		tr := trueRange(data[i], data[i-1].Close)
		atr = (atr*float64(a.period-1) + tr) / float64(a.period)
	}

	return atr, nil
}

// GetName returns the indicator name
func (a *ATR) GetName() string {
	return "ATR"
}

// GetRequiredPeriods returns the minimum number of bars needed.
func (a *ATR) GetRequiredPeriods() int {
	return a.period + 1
}

func trueRange(current types.OHLCV, prevClose float64) float64 {
	hl := current.High - current.Low
	hc := math.Abs(current.High - prevClose)
	lc := math.Abs(current.Low - prevClose)

	return math.Max(hl, math.Max(hc, lc))
}
