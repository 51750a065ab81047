package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func newTestContext(t *testing.T, balance float64) (*Context, *broker.Sim) {
	t.Helper()
	sim := broker.NewSim(balance, 100)
	sess := NewContext(sim, time.Minute, 20)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	return sess, sim
}

func TestRefreshCachesWithinTTL(t *testing.T) {
	sess, sim := newTestContext(t, 10000)

	sim.SetBalance(5000)
	snap, err := sess.Refresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000, snap.Balance, 1e-9, "cached snapshot served inside the TTL")

	snap, err = sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5000, snap.Balance, 1e-9)
}

func TestDrawdownFromSessionPeak(t *testing.T) {
	sess, sim := newTestContext(t, 10000)
	assert.InDelta(t, 0, sess.DrawdownPercent(), 1e-9)

	sim.SetBalance(12000)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, sess.DrawdownPercent(), 1e-9)

	sim.SetBalance(9000)
	_, err = sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 25.0, sess.DrawdownPercent(), 1e-9, "9000 against a 12000 peak")
}

func TestDailyLossPercent(t *testing.T) {
	sess, sim := newTestContext(t, 10000)

	sim.SetBalance(9600)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, sess.DailyLossPercent(), 1e-9)

	// Gains never report as negative loss.
	sim.SetBalance(11000)
	_, err = sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, sess.DailyLossPercent(), 1e-9)
}

func TestWinRateNeedsHalfWindow(t *testing.T) {
	sess, _ := newTestContext(t, 10000)

	for i := 0; i < 9; i++ {
		sess.RecordTradeResult("EURUSD", true)
	}
	_, ok := sess.WinRatePercent()
	assert.False(t, ok, "nine trades against a 20-window is not enough")

	sess.RecordTradeResult("EURUSD", false)
	rate, ok := sess.WinRatePercent()
	require.True(t, ok)
	assert.InDelta(t, 90.0, rate, 1e-9)
}

func TestWinRateWindowSlides(t *testing.T) {
	sess, _ := newTestContext(t, 10000)

	for i := 0; i < 20; i++ {
		sess.RecordTradeResult("EURUSD", false)
	}
	for i := 0; i < 20; i++ {
		sess.RecordTradeResult("EURUSD", true)
	}
	rate, ok := sess.WinRatePercent()
	require.True(t, ok)
	assert.InDelta(t, 100.0, rate, 1e-9, "old losses fell out of the window")
}

func TestStreakTracking(t *testing.T) {
	sess, _ := newTestContext(t, 10000)

	sess.RecordTradeResult("EURUSD", false)
	sess.RecordTradeResult("EURUSD", false)
	sess.RecordTradeResult("GBPUSD", true)

	assert.Equal(t, 2, sess.Symbol("EURUSD").ConsecutiveLosses)
	assert.Equal(t, 0, sess.Symbol("EURUSD").ConsecutiveWins)
	assert.Equal(t, 1, sess.Symbol("GBPUSD").ConsecutiveWins)

	sess.RecordTradeResult("EURUSD", true)
	assert.Equal(t, 0, sess.Symbol("EURUSD").ConsecutiveLosses)
	assert.Equal(t, 1, sess.Symbol("EURUSD").ConsecutiveWins)
}

func TestDailyGainPercent(t *testing.T) {
	sess, sim := newTestContext(t, 10000)
	assert.InDelta(t, 0, sess.DailyGainPercent(), 1e-9)

	sim.SetBalance(10500)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 5.0, sess.DailyGainPercent(), 1e-9)

	// Losing days never report a negative gain.
	sim.SetBalance(9000)
	_, err = sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0, sess.DailyGainPercent(), 1e-9)
}

func TestLossStreakParksInstrument(t *testing.T) {
	sess, _ := newTestContext(t, 10000)
	sess.SetCooldownPolicy(3, time.Hour)

	sess.RecordTradeResult("EURUSD", false)
	sess.RecordTradeResult("EURUSD", false)
	cooling, _ := sess.InCooldown("EURUSD")
	assert.False(t, cooling, "two losses stay short of the streak")

	sess.RecordTradeResult("EURUSD", false)
	cooling, until := sess.InCooldown("EURUSD")
	assert.True(t, cooling)
	assert.WithinDuration(t, time.Now().Add(time.Hour), until, time.Minute)

	cooling, _ = sess.InCooldown("GBPUSD")
	assert.False(t, cooling, "streaks are per instrument")
}

func TestCooldownDisabledByPolicy(t *testing.T) {
	sess, _ := newTestContext(t, 10000)
	sess.SetCooldownPolicy(0, time.Hour)

	for i := 0; i < 10; i++ {
		sess.RecordTradeResult("EURUSD", false)
	}
	cooling, _ := sess.InCooldown("EURUSD")
	assert.False(t, cooling)
}

func TestObservePositionsTracksCountsAndExposure(t *testing.T) {
	sess, _ := newTestContext(t, 10000)

	sess.ObservePositions([]types.Position{
		{Symbol: "EURUSD", Volume: 0.5},
		{Symbol: "EURUSD", Volume: 0.5},
		{Symbol: "GBPUSD", Volume: 0.2},
	}, map[string]float64{"EURUSD": 1000, "GBPUSD": 1200})

	eur := sess.Symbol("EURUSD")
	assert.Equal(t, 2, eur.PositionCount)
	assert.InDelta(t, 10.0, eur.ExposurePct, 1e-9, "1000 of margin against 10000 equity")
	gbp := sess.Symbol("GBPUSD")
	assert.Equal(t, 1, gbp.PositionCount)
	assert.InDelta(t, 2.4, gbp.ExposurePct, 1e-9)

	// A flat book zeroes the records without dropping them.
	sess.ObservePositions(nil, nil)
	assert.Equal(t, 0, sess.Symbol("EURUSD").PositionCount)
	assert.InDelta(t, 0, sess.Symbol("EURUSD").ExposurePct, 1e-9)
}

func TestResetClearsSessionState(t *testing.T) {
	sess, sim := newTestContext(t, 10000)

	sim.SetBalance(8000)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	sess.RecordTradeResult("EURUSD", false)

	sess.Reset()

	assert.InDelta(t, 0, sess.DrawdownPercent(), 1e-9)
	assert.Empty(t, sess.Symbols())
	_, ok := sess.WinRatePercent()
	assert.False(t, ok)
	assert.True(t, sess.Snapshot().Taken.IsZero())
}

func TestForceRefreshWithoutAccount(t *testing.T) {
	sess := NewContext(nil, time.Minute, 20)
	_, err := sess.ForceRefresh(context.Background())
	assert.Error(t, err)
}
