package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func candlesFromCloses(closes []float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = types.OHLCV{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

func TestReturnsWindowAndZeroCloseSkipped(t *testing.T) {
	e := NewEngine(3, time.Minute)

	returns := e.Returns(candlesFromCloses([]float64{100, 110, 121, 133.1, 146.41}))
	require.Len(t, returns, 3)
	for _, r := range returns {
		assert.InDelta(t, 0.10, r, 1e-9)
	}

	assert.Nil(t, e.Returns(candlesFromCloses([]float64{100})))

	withZero := e.Returns(candlesFromCloses([]float64{100, 0, 110, 121}))
	assert.Len(t, withZero, 2)
}

func TestPairwiseCorrelation(t *testing.T) {
	e := NewEngine(10, time.Minute)

	up := []float64{0.01, 0.02, -0.01, 0.03, -0.02}
	down := []float64{-0.01, -0.02, 0.01, -0.03, 0.02}

	corr, err := e.Pairwise(up, up)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr, 1e-9)

	corr, err = e.Pairwise(up, down)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, corr, 1e-9)

	_, err = e.Pairwise([]float64{0.01}, up)
	assert.Error(t, err)

	_, err = e.Pairwise([]float64{0.01, 0.01, 0.01}, []float64{0.01, 0.02, 0.03})
	assert.Error(t, err, "zero variance series cannot correlate")
}

func TestPairwiseAlignsOnRecentValues(t *testing.T) {
	e := NewEngine(10, time.Minute)

	long := []float64{9, -9, 0.01, 0.02, -0.01}
	short := []float64{0.01, 0.02, -0.01}

	corr, err := e.Pairwise(long, short)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr, 1e-9)
}

func TestBuildMatrixAndCache(t *testing.T) {
	e := NewEngine(10, time.Minute)

	returns := map[string][]float64{
		"EURUSD": {0.01, 0.02, -0.01, 0.03},
		"GBPUSD": {0.01, 0.02, -0.01, 0.03},
		"USDJPY": {-0.01, -0.02, 0.01, -0.03},
	}
	m := e.BuildMatrix(returns)

	assert.InDelta(t, 1.0, m["EURUSD"]["EURUSD"], 1e-9)
	assert.InDelta(t, 1.0, m["EURUSD"]["GBPUSD"], 1e-9)
	assert.InDelta(t, -1.0, m["GBPUSD"]["USDJPY"], 1e-9)
	assert.InDelta(t, m["EURUSD"]["USDJPY"], m["USDJPY"]["EURUSD"], 1e-9)

	cached, ok := e.CachedMatrix()
	require.True(t, ok)
	assert.InDelta(t, m["EURUSD"]["GBPUSD"], cached["EURUSD"]["GBPUSD"], 1e-9)
}

func TestCachedMatrixExpires(t *testing.T) {
	e := NewEngine(10, time.Nanosecond)
	e.BuildMatrix(map[string][]float64{
		"EURUSD": {0.01, -0.01, 0.02},
		"GBPUSD": {0.02, -0.02, 0.01},
	})

	time.Sleep(time.Millisecond)
	_, ok := e.CachedMatrix()
	assert.False(t, ok)
}

func TestFlagOverCorrelated(t *testing.T) {
	m := Matrix{
		"EURUSD": {"EURUSD": 1, "GBPUSD": 0.95, "USDJPY": 0.10},
		"GBPUSD": {"EURUSD": 0.95, "GBPUSD": 1, "USDJPY": -0.80},
		"USDJPY": {"EURUSD": 0.10, "GBPUSD": -0.80, "USDJPY": 1},
	}

	pairs := FlagOverCorrelated(m, 0.7)
	require.Len(t, pairs, 2)
	assert.Equal(t, "EURUSD", pairs[0].A)
	assert.Equal(t, "GBPUSD", pairs[0].B)
	assert.InDelta(t, 0.95, pairs[0].Correlation, 1e-9)
	assert.InDelta(t, -0.80, pairs[1].Correlation, 1e-9, "negative correlation flagged by magnitude")

	assert.Empty(t, FlagOverCorrelated(m, 0.99))
}

func TestDiversificationScore(t *testing.T) {
	perfect := Matrix{
		"A": {"A": 1, "B": 0},
		"B": {"A": 0, "B": 1},
	}
	assert.InDelta(t, 1.0, DiversificationScore(perfect), 1e-9)

	lockstep := Matrix{
		"A": {"A": 1, "B": 1},
		"B": {"A": 1, "B": 1},
	}
	assert.InDelta(t, 0.0, DiversificationScore(lockstep), 1e-9)

	assert.InDelta(t, 1.0, DiversificationScore(Matrix{}), 1e-9)
}

func TestRecommendLeastCorrelated(t *testing.T) {
	m := Matrix{
		"EURUSD": {"EURUSD": 1, "GBPUSD": 0.9, "XAUUSD": 0.2},
		"GBPUSD": {"EURUSD": 0.9, "GBPUSD": 1, "XAUUSD": 0.3},
		"XAUUSD": {"EURUSD": 0.2, "GBPUSD": 0.3, "XAUUSD": 1},
	}

	pick, ok := RecommendLeastCorrelated(m, []string{"EURUSD"}, []string{"GBPUSD", "XAUUSD"})
	require.True(t, ok)
	assert.Equal(t, "XAUUSD", pick)

	_, ok = RecommendLeastCorrelated(m, []string{"EURUSD"}, nil)
	assert.False(t, ok)

	pick, ok = RecommendLeastCorrelated(m, []string{"EURUSD"}, []string{"NZDUSD", "GBPUSD"})
	require.True(t, ok)
	assert.Equal(t, "NZDUSD", pick, "unknown instrument is treated as uncorrelated")
}
