package trailing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func eurusdInfo() types.SymbolInfo {
	return types.SymbolInfo{
		Symbol:       "EURUSD",
		Digits:       5,
		Point:        0.00001,
		PipSize:      0.0001,
		TickValue:    1.0,
		MinVolume:    0.01,
		MaxVolume:    100,
		VolumeStep:   0.01,
		MinStopDist:  0.0005,
		MarginPerLot: 1000,
	}
}

func flatCandles(n int, close float64) []types.OHLCV {
	out := make([]types.OHLCV, n)
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := range out {
		out[i] = types.OHLCV{
			Timestamp: ts.Add(time.Duration(i) * time.Hour),
			Open:      close,
			High:      close + 0.0010,
			Low:       close - 0.0010,
			Close:     close,
			Volume:    1000,
		}
	}
	return out
}

func fixedTrailConfig() config.TrailingConfig {
	return config.TrailingConfig{
		Method:         "fixed",
		DistancePips:   20,
		ActivationPips: 15,
		ATRPeriod:      14,
		ATRMultiplier:  2.0,
	}
}

func newTestEngine(t *testing.T, cfg config.TrailingConfig, sim *broker.Sim) *Engine {
	t.Helper()
	eng, err := NewEngine(cfg, sim, sim, nil, "60")
	require.NoError(t, err)
	return eng
}

func TestNewEngineRequiresCollaborators(t *testing.T) {
	_, err := NewEngine(fixedTrailConfig(), nil, nil, nil, "60")
	assert.Error(t, err)
}

func TestTrailingInactiveBelowActivation(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10100, 1.10110) // 10 pips of profit, activation is 15
	sim.SetKlines("EURUSD", flatCandles(60, 1.10100))
	ticket := sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, fixedTrailConfig(), sim)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)

	positions, _ := sim.OpenPositions(context.Background(), "")
	require.Len(t, positions, 1)
	assert.Zero(t, positions[0].StopLoss)
	_ = ticket
}

func TestTrailingMovesStopOnceActivated(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10300, 1.10310) // 30 pips of profit
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	ticket := sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, fixedTrailConfig(), sim)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	positions, _ := sim.OpenPositions(context.Background(), "")
	require.Len(t, positions, 1)
	// 20 pips behind the bid.
	assert.InDelta(t, 1.10100, positions[0].StopLoss, 1e-9)
	_ = ticket
}

func TestTrailingNeverLoosensLong(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	ticket := sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, fixedTrailConfig(), sim)

	// Price advances, stop follows.
	sim.SetTick("EURUSD", 1.10400, 1.10410)
	_, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	positions, _ := sim.OpenPositions(context.Background(), "")
	first := positions[0].StopLoss
	assert.InDelta(t, 1.10200, first, 1e-9)

	// Price retreats, candidate would loosen the stop; nothing moves.
	sim.SetTick("EURUSD", 1.10250, 1.10260)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
	positions, _ = sim.OpenPositions(context.Background(), "")
	assert.Equal(t, first, positions[0].StopLoss)
	_ = ticket
}

func TestTrailingNeverLoosensShort(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetKlines("EURUSD", flatCandles(60, 1.09600))
	sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Short, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, fixedTrailConfig(), sim)

	sim.SetTick("EURUSD", 1.09590, 1.09600)
	_, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	positions, _ := sim.OpenPositions(context.Background(), "")
	first := positions[0].StopLoss
	assert.InDelta(t, 1.09800, first, 1e-9)

	// Shorts tighten downward only.
	sim.SetTick("EURUSD", 1.09690, 1.09700)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
	positions, _ = sim.OpenPositions(context.Background(), "")
	assert.Equal(t, first, positions[0].StopLoss)
}

func TestTrailingHoldsBreakevenAfterReached(t *testing.T) {
	cfg := fixedTrailConfig()
	cfg.DistancePips = 40

	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetKlines("EURUSD", flatCandles(60, 1.10500))
	sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10,
		EntryPrice: 1.10000, StopLoss: 1.10050, // already beyond entry
	})

	eng := newTestEngine(t, cfg, sim)

	// A 40-pip trail from here would land below entry; breakeven holds.
	sim.SetTick("EURUSD", 1.10300, 1.10310)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
	positions, _ := sim.OpenPositions(context.Background(), "")
	assert.InDelta(t, 1.10050, positions[0].StopLoss, 1e-9)
}

func TestTrailingRespectsBrokerMinStopDistance(t *testing.T) {
	cfg := fixedTrailConfig()
	cfg.DistancePips = 2 // closer than the 5-pip broker minimum

	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10300, 1.10310)
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, cfg, sim)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	positions, _ := sim.OpenPositions(context.Background(), "")
	assert.InDelta(t, 1.10300-0.0005, positions[0].StopLoss, 1e-9)
}

func TestTrailingBuffersWidenTheStop(t *testing.T) {
	cfg := fixedTrailConfig()
	cfg.BufferPips = 3

	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10300, 1.10310)
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, cfg, sim)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	positions, _ := sim.OpenPositions(context.Background(), "")
	// 20-pip trail plus the 3-pip buffer.
	assert.InDelta(t, 1.10070, positions[0].StopLoss, 1e-9)
}

func TestTrailingContinuesAfterBrokerRejection(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10300, 1.10310)
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})
	sim.RejectModify = true

	eng := newTestEngine(t, fixedTrailConfig(), sim)
	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err) // per-position failures do not fail the cycle
	assert.Equal(t, 0, moved)

	// Broker recovers; the next cycle applies the move.
	sim.RejectModify = false
	moved, err = eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
}

func TestTrailingHighLowMethod(t *testing.T) {
	cfg := fixedTrailConfig()
	cfg.Method = "highlow"
	cfg.HighLowLookback = 10

	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10300, 1.10310)
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, cfg, sim)
	require.Equal(t, "highlow", eng.MethodName())

	moved, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	positions, _ := sim.OpenPositions(context.Background(), "")
	// Recent low of the flat series.
	assert.InDelta(t, 1.10300-0.0010, positions[0].StopLoss, 1e-9)
}

func TestTrailingStateDroppedForClosedPositions(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(eurusdInfo())
	sim.SetTick("EURUSD", 1.10300, 1.10310)
	sim.SetKlines("EURUSD", flatCandles(60, 1.10300))
	ticket := sim.AddPosition(types.Position{
		Symbol: "EURUSD", Direction: types.Long, Volume: 0.10, EntryPrice: 1.10000,
	})

	eng := newTestEngine(t, fixedTrailConfig(), sim)
	_, err := eng.UpdateAll(context.Background())
	require.NoError(t, err)
	require.NoError(t, sim.ClosePosition(context.Background(), ticket, 0))

	_, err = eng.UpdateAll(context.Background())
	require.NoError(t, err)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	assert.Empty(t, eng.states)
}
