package riskstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/session"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		DrawdownCritical: 15, DrawdownHigh: 10, DrawdownModerate: 5, DrawdownLow: 2,
		MarginCritical: 100, MarginHigh: 150, MarginModerate: 200, MarginLow: 300,
		MinWinRate: 35, WinRateWindow: 20,
		DailyLossCritical: 5, DailyLossWarning: 3,
		CloseFractionHigh: 0.50, CloseFractionEmergency: 0.75,
	}
}

func marginSymbol(marginPerLot float64) types.SymbolInfo {
	return types.SymbolInfo{
		Symbol: "EURUSD", Digits: 5, Point: 0.00001, PipSize: 0.0001,
		TickValue: 1, MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01,
		MarginPerLot: marginPerLot,
	}
}

func newControllerWithSim(t *testing.T, sim *broker.Sim) (*Controller, *session.Context) {
	t.Helper()
	sess := session.NewContext(sim, 0, 20)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)
	ctrl, err := NewController(testRiskConfig(), sess, sim, nil)
	require.NoError(t, err)
	return ctrl, sess
}

func TestLevelStringsAndOrdering(t *testing.T) {
	assert.Equal(t, "CRITICAL", Critical.String())
	assert.Equal(t, "OPTIMAL", Optimal.String())
	assert.Equal(t, Critical, WorseOf(Critical, Optimal))
	assert.Equal(t, Moderate, WorseOf(Low, Moderate))
	assert.Equal(t, Critical, Critical.Worsen())
	assert.Equal(t, Moderate, Low.Worsen())
}

func TestHealthyAccountIsOptimal(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	ctrl, _ := newControllerWithSim(t, sim)

	st := ctrl.Evaluate(context.Background())
	assert.Equal(t, Optimal, st.Level)
	assert.True(t, st.CanOpenNewTrades)
	assert.True(t, st.CanAddToPositions)
	assert.False(t, st.EmergencyStopActive)
}

func TestDrawdownClassification(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		want    Level
	}{
		{"three percent", 9700, Low},
		{"seven percent", 9300, Moderate},
		{"twelve percent", 8800, High},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := broker.NewSim(10000, 100)
			ctrl, sess := newControllerWithSim(t, sim)

			sim.SetBalance(tc.balance)
			_, err := sess.ForceRefresh(context.Background())
			require.NoError(t, err)

			st := ctrl.Evaluate(context.Background())
			assert.Equal(t, tc.want, st.Level)
		})
	}
}

func TestMarginClassificationTakesWorse(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(marginSymbol(1000))
	// Used margin 8000 against 10000 equity: margin level 125%, HIGH.
	sim.AddPosition(types.Position{Symbol: "EURUSD", Direction: types.Long, Volume: 8, EntryPrice: 1.1})
	ctrl, sess := newControllerWithSim(t, sim)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)

	st := ctrl.Evaluate(context.Background())
	assert.Equal(t, High, st.Level)
	assert.False(t, st.CanOpenNewTrades)
	assert.False(t, st.CanAddToPositions)
	assert.False(t, st.EmergencyStopActive)
}

func TestPoorWinRateWorsensLevel(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	ctrl, sess := newControllerWithSim(t, sim)

	// 2 wins out of 12 is far below the 35% floor.
	for i := 0; i < 12; i++ {
		sess.RecordTradeResult("EURUSD", i < 2)
	}

	st := ctrl.Evaluate(context.Background())
	assert.Equal(t, Low, st.Level) // OPTIMAL worsened one step
}

func TestCriticalMarginTriggersEmergencyStop(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(marginSymbol(1000))
	t1 := sim.AddPosition(types.Position{Symbol: "EURUSD", Direction: types.Long, Volume: 6, EntryPrice: 1.1})
	t2 := sim.AddPosition(types.Position{Symbol: "EURUSD", Direction: types.Short, Volume: 6, EntryPrice: 1.1})
	// Equity 10000 against 12000 used margin: margin level 83%, CRITICAL.
	ctrl, sess := newControllerWithSim(t, sim)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)

	st := ctrl.Evaluate(context.Background())
	assert.Equal(t, Critical, st.Level)
	assert.True(t, st.EmergencyStopActive)
	assert.False(t, st.CanOpenNewTrades)
	assert.False(t, st.CanAddToPositions)

	// CRITICAL severity closes the whole book.
	positions, _ := sim.OpenPositions(context.Background(), "")
	assert.Empty(t, positions)
	_, _ = t1, t2
}

func TestEmergencyStopClosesLosersFirst(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(marginSymbol(100))
	worst := sim.AddPosition(types.Position{Symbol: "EURUSD", Direction: types.Long, Volume: 1, EntryPrice: 1.1})
	best := sim.AddPosition(types.Position{Symbol: "EURUSD", Direction: types.Long, Volume: 1, EntryPrice: 1.1})
	sim.SetUnrealized(worst, -300)
	sim.SetUnrealized(best, 250)

	ctrl, _ := newControllerWithSim(t, sim)
	ctrl.ActivateEmergencyStop(context.Background(), SeverityHigh) // 50% of two positions

	positions, _ := sim.OpenPositions(context.Background(), "")
	require.Len(t, positions, 1)
	assert.Equal(t, best, positions[0].Ticket)
	assert.True(t, ctrl.EmergencyStopActive())
	assert.False(t, ctrl.CanOpenNewTrades())
}

func TestEmergencyLatchHoldsUntilReset(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	ctrl, _ := newControllerWithSim(t, sim)

	ctrl.ActivateEmergencyStop(context.Background(), SeverityCritical)

	// Conditions are fine, but the latch keeps trading shut.
	st := ctrl.Evaluate(context.Background())
	assert.Equal(t, Optimal, st.Level)
	assert.True(t, st.EmergencyStopActive)
	assert.False(t, st.CanOpenNewTrades)

	ctrl.ResetEmergencyStop()
	st = ctrl.Evaluate(context.Background())
	assert.False(t, st.EmergencyStopActive)
	assert.True(t, st.CanOpenNewTrades)
}

func TestEmergencyStopContinuesPastRejectedClose(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sim.SetSymbolInfo(marginSymbol(100))
	sim.AddPosition(types.Position{Symbol: "EURUSD", Direction: types.Long, Volume: 1, EntryPrice: 1.1})
	sim.RejectClose = true

	ctrl, _ := newControllerWithSim(t, sim)
	ctrl.ActivateEmergencyStop(context.Background(), SeverityCritical)

	// The close failed but the latch still protects the account.
	assert.True(t, ctrl.EmergencyStopActive())
	positions, _ := sim.OpenPositions(context.Background(), "")
	assert.Len(t, positions, 1)
}

func TestMissingExecutorFailsClosed(t *testing.T) {
	sim := broker.NewSim(10000, 100)
	sess := session.NewContext(sim, 0, 20)
	_, err := sess.ForceRefresh(context.Background())
	require.NoError(t, err)

	ctrl, err := NewController(testRiskConfig(), sess, nil, nil)
	require.NoError(t, err)

	ctrl.ActivateEmergencyStop(context.Background(), SeverityCritical)
	assert.True(t, ctrl.EmergencyStopActive())
	assert.False(t, ctrl.CanOpenNewTrades())
}
