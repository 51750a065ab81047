package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func barsFromCloses(closes []float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = types.OHLCV{
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    100,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestSMACalculate(t *testing.T) {
	sma := NewSMA(3)

	v, err := sma.Calculate(barsFromCloses([]float64{10, 20, 30, 40, 50}))
	require.NoError(t, err)
	assert.InDelta(t, 40.0, v, 1e-9, "mean of the last three closes")

	_, err = sma.Calculate(barsFromCloses([]float64{10, 20}))
	assert.Error(t, err)
}

func TestEMAConvergesTowardConstant(t *testing.T) {
	ema := NewEMA(5)

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	v, err := ema.Calculate(barsFromCloses(closes))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, v, 1e-9)

	// A rising series keeps the EMA below the last close.
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	v, err = ema.Calculate(barsFromCloses(rising))
	require.NoError(t, err)
	assert.Less(t, v, rising[len(rising)-1])
	assert.Greater(t, v, rising[0])
}

func TestATRFlatRange(t *testing.T) {
	atr := NewATR(14)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	// Every bar has a constant high-low range of 1.0.
	v, err := atr.Calculate(barsFromCloses(closes))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-9)

	_, err = atr.Calculate(barsFromCloses(closes[:14]))
	assert.Error(t, err, "needs period+1 bars")
}

func TestBollingerBandsSymmetry(t *testing.T) {
	bands := NewBollingerBands(20, 2.0)

	closes := make([]float64, 25)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 99
		} else {
			closes[i] = 101
		}
	}
	v, err := bands.Calculate(barsFromCloses(closes))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, v.Middle, 1e-9)
	assert.InDelta(t, v.Middle-v.Lower, v.Upper-v.Middle, 1e-9)
	assert.Greater(t, v.Upper, v.Lower)
}

func TestSwingDetection(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	bars := barsFromCloses(closes)
	bars[20].Low = 95
	bars[10].High = 105

	low, ok := FindSwingLow(bars, 25, 2, 100)
	require.True(t, ok)
	assert.InDelta(t, 95.0, low, 1e-9)

	high, ok := FindSwingHigh(bars, 25, 2, 100)
	require.True(t, ok)
	assert.InDelta(t, 105.0, high, 1e-9)

	_, ok = FindSwingLow(bars, 25, 2, 90)
	assert.False(t, ok, "no swing below the reference")
}

func TestRecentExtremes(t *testing.T) {
	bars := barsFromCloses([]float64{100, 98, 103, 101})

	low, ok := RecentLow(bars, 3)
	require.True(t, ok)
	assert.InDelta(t, 97.5, low, 1e-9)

	high, ok := RecentHigh(bars, 4)
	require.True(t, ok)
	assert.InDelta(t, 103.5, high, 1e-9)

	_, ok = RecentLow(nil, 3)
	assert.False(t, ok)
}
