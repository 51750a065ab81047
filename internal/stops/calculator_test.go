package stops

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func testStopsConfig() config.StopsConfig {
	return config.StopsConfig{
		ATRPeriod:         14,
		MAPeriod:          20,
		BandPeriod:        20,
		BandDeviation:     2.0,
		SwingLookback:     20,
		StructureBuffer:   2,
		FixedDistancePips: 20,
		MinRiskReward:     1.5,
		DefaultRR:         2.0,
		MinProfitPips:     10,
		MinStopPipsMajor:  10,
		MinStopPipsMetal:  30,
	}
}

func eurusdInfo() types.SymbolInfo {
	return types.SymbolInfo{
		Symbol:    "EURUSD",
		Digits:    5,
		Point:     0.00001,
		PipSize:   0.0001,
		TickValue: 0.1,
	}
}

// rangedCandles produces bars with a constant 10-pip true range, so
// the ATR over them is exactly 0.0010.
func rangedCandles(n int, base float64) []types.OHLCV {
	out := make([]types.OHLCV, n)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = types.OHLCV{
			Open:      base + 0.0005,
			High:      base + 0.0010,
			Low:       base,
			Close:     base + 0.0005,
			Volume:    100,
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestFixedStopBothSides(t *testing.T) {
	c := NewCalculator(testStopsConfig(), "fixed")
	info := eurusdInfo()
	candles := rangedCandles(30, 1.0990)

	long, err := c.StopLoss(Input{Info: info, Entry: 1.10000, Direction: types.Long, Candles: candles})
	require.NoError(t, err)
	assert.InDelta(t, 1.09800, long, 1e-9)

	short, err := c.StopLoss(Input{Info: info, Entry: 1.10000, Direction: types.Short, Candles: candles})
	require.NoError(t, err)
	assert.InDelta(t, 1.10200, short, 1e-9)
}

func TestATRStopUsesVolatilityMultiple(t *testing.T) {
	c := NewCalculator(testStopsConfig(), "atr")
	in := Input{Info: eurusdInfo(), Entry: 1.10000, Direction: types.Long, Candles: rangedCandles(30, 1.0990)}

	stop, err := c.StopLoss(in)
	require.NoError(t, err)
	assert.InDelta(t, 1.09800, stop, 1e-9, "2x a 10-pip ATR")

	again, err := c.StopLoss(in)
	require.NoError(t, err)
	assert.Equal(t, stop, again, "identical inputs give identical stops")
}

func TestSetATRMultiplierWidensStop(t *testing.T) {
	c := NewCalculator(testStopsConfig(), "atr")
	in := Input{Info: eurusdInfo(), Entry: 1.10000, Direction: types.Long, Candles: rangedCandles(30, 1.0990)}

	c.SetATRMultiplier(3.0)
	stop, err := c.StopLoss(in)
	require.NoError(t, err)
	assert.InDelta(t, 1.09700, stop, 1e-9)
}

func TestMinimumStopDistanceEnforced(t *testing.T) {
	cfg := testStopsConfig()
	cfg.FixedDistancePips = 2
	c := NewCalculator(cfg, "fixed")

	stop, err := c.StopLoss(Input{Info: eurusdInfo(), Entry: 1.10000, Direction: types.Long, Candles: rangedCandles(30, 1.0990)})
	require.NoError(t, err)
	assert.InDelta(t, 1.09900, stop, 1e-9, "2-pip request widened to the 10-pip class minimum")
}

func TestVolatileInstrumentGetsWiderMinimum(t *testing.T) {
	cfg := testStopsConfig()
	c := NewCalculator(cfg, "fixed")
	gold := types.SymbolInfo{
		Symbol:  "XAUUSD",
		Digits:  2,
		Point:   0.01,
		PipSize: 0.1,
	}

	// 20 fixed pips is 2.0 in price; the metal minimum of 30 pips (3.0)
	// wins.
	stop, err := c.StopLoss(Input{Info: gold, Entry: 2000.00, Direction: types.Long})
	require.NoError(t, err)
	assert.InDelta(t, 1997.00, stop, 1e-9)
}

func TestStructureStopAnchorsPastSwingLow(t *testing.T) {
	c := NewCalculator(testStopsConfig(), "structure")
	info := eurusdInfo()

	candles := rangedCandles(30, 1.0990)
	// Carve a swing low at bar 24: strictly below the two bars either
	// side and outside the unconfirmed tail.
	candles[24].Low = 1.09700

	stop, err := c.StopLoss(Input{Info: info, Entry: 1.10000, Direction: types.Long, Candles: candles})
	require.NoError(t, err)
	assert.InDelta(t, 1.09680, stop, 1e-9, "swing low minus the 2-pip buffer")
}

func TestTakeProfitRatioAndFloors(t *testing.T) {
	c := NewCalculator(testStopsConfig(), "fixed")
	info := eurusdInfo()
	in := Input{Info: info, Entry: 1.10000, Direction: types.Long, Candles: rangedCandles(30, 1.0990)}

	stop, err := c.StopLoss(in)
	require.NoError(t, err)

	tp, err := c.TakeProfit(in, stop, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.10400, tp, 1e-9, "2R on a 20-pip stop")

	// A requested ratio under the floor falls back to the minimum.
	tp, err = c.TakeProfit(in, stop, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 1.10300, tp, 1e-9)

	_, err = c.TakeProfit(in, 1.10100, 2.0)
	assert.Error(t, err, "stop on the wrong side of entry")
}

func TestTakeProfitMinimumProfitDistance(t *testing.T) {
	cfg := testStopsConfig()
	cfg.MinProfitPips = 50
	c := NewCalculator(cfg, "fixed")
	in := Input{Info: eurusdInfo(), Entry: 1.10000, Direction: types.Long, Candles: rangedCandles(30, 1.0990)}

	stop, err := c.StopLoss(in)
	require.NoError(t, err)

	tp, err := c.TakeProfit(in, stop, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.10500, tp, 1e-9, "50-pip profit floor beats 1.5R of 20 pips")
}

func TestStopLossRejectsBadEntry(t *testing.T) {
	c := NewCalculator(testStopsConfig(), "fixed")
	_, err := c.StopLoss(Input{Info: eurusdInfo(), Entry: 0, Direction: types.Long})
	assert.Error(t, err)
}

func TestIsVolatileInstrument(t *testing.T) {
	assert.True(t, IsVolatileInstrument("XAUUSD"))
	assert.True(t, IsVolatileInstrument("btcusdt"))
	assert.True(t, IsVolatileInstrument("US30"))
	assert.False(t, IsVolatileInstrument("EURUSD"))
	assert.False(t, IsVolatileInstrument("USDJPY"))
}
