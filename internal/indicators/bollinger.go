package indicators

import (
	"errors"
	"math"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// BollingerBands computes the statistical band envelope around an SMA.
type BollingerBands struct {
	period    int
	deviation float64
}

// BandValues holds the three band prices for one bar.
type BandValues struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// NewBollingerBands creates a new Bollinger Bands indicator
func NewBollingerBands(period int, deviation float64) *BollingerBands {
	return &BollingerBands{period: period, deviation: deviation}
}

// Calculate returns the band values for the most recent bar.
func (b *BollingerBands) Calculate(data []types.OHLCV) (BandValues, error) {
	if b.period <= 0 {
		return BandValues{}, errors.New("Bollinger period must be positive")
	}
	if len(data) < b.period {
		return BandValues{}, errors.New("insufficient data points for Bollinger calculation")
	}

	window := data[len(data)-b.period:]

	var sum float64
	for _, c := range window {
		sum += c.Close
	}
	mean := sum / float64(b.period)

	var variance float64
	for _, c := range window {
		diff := c.Close - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(b.period))

	return BandValues{
		Upper:  mean + b.deviation*stdDev,
		Middle: mean,
		Lower:  mean - b.deviation*stdDev,
	}, nil
}

// GetName returns the indicator name
func (b *BollingerBands) GetName() string {
	return "BollingerBands"
}

// GetRequiredPeriods returns the minimum number of bars needed.
func (b *BollingerBands) GetRequiredPeriods() int {
	return b.period
}
