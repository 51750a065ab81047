package account

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/algotrader-dev/forex-risk-core/internal/config"
	"github.com/algotrader-dev/forex-risk-core/internal/riskstate"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

func gateConfig() config.RiskConfig {
	return config.RiskConfig{
		MarginCritical: 100, MarginHigh: 150, MarginModerate: 200, MarginLow: 300,
		DailyLossCritical: 5, DailyLossWarning: 3,
	}
}

func TestTierForBalanceBands(t *testing.T) {
	cases := []struct {
		balance float64
		want    Tier
	}{
		{0, TierMicro},
		{999.99, TierMicro},
		{1000, TierMini},
		{4999, TierMini},
		{5000, TierStandard},
		{24999, TierStandard},
		{25000, TierPro},
		{99999, TierPro},
		{100000, TierInst},
		{2_500_000, TierInst},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierForBalance(tc.balance), "balance %.2f", tc.balance)
	}
}

func TestTierIsMonotonicInBalance(t *testing.T) {
	prev := TierForBalance(0)
	for balance := 100.0; balance <= 200_000; balance += 100 {
		cur := TierForBalance(balance)
		assert.GreaterOrEqual(t, int(cur), int(prev), "balance %.0f", balance)
		prev = cur
	}
}

func TestTierTables(t *testing.T) {
	assert.Equal(t, 0, TierMicro.Index())
	assert.Equal(t, 4, TierInst.Index())
	assert.Equal(t, 1, TierMicro.MaxConcurrentInstruments())
	assert.Equal(t, 6, TierInst.MaxConcurrentInstruments())
	assert.Greater(t, TierMicro.ProfitTargetPercent(), TierInst.ProfitTargetPercent())
}

func TestAggressiveSizingNeedsTierAndCalm(t *testing.T) {
	gate := NewGate(gateConfig())
	calm := riskstate.State{Level: riskstate.Optimal, CanOpenNewTrades: true, CanAddToPositions: true}
	stressed := riskstate.State{Level: riskstate.Moderate, CanOpenNewTrades: true, CanAddToPositions: true}

	// Tier too small for aggressive sizing.
	p := gate.PermissionsFor(800, calm)
	assert.True(t, p.MayOpen)
	assert.False(t, p.MayUseAggressive)

	// Tier fine, risk level not calm enough.
	p = gate.PermissionsFor(10_000, stressed)
	assert.True(t, p.MayOpen)
	assert.False(t, p.MayUseAggressive)

	// Both conditions met.
	p = gate.PermissionsFor(10_000, calm)
	assert.True(t, p.MayUseAggressive)
}

func TestPermissionsFollowRiskGates(t *testing.T) {
	gate := NewGate(gateConfig())
	halted := riskstate.State{Level: riskstate.Critical, EmergencyStopActive: true}

	p := gate.PermissionsFor(50_000, halted)
	assert.False(t, p.MayOpen)
	assert.False(t, p.MayAdd)
	assert.False(t, p.MayUseAggressive)
	assert.Equal(t, TierPro, p.Tier)
}

func TestHealthClassification(t *testing.T) {
	gate := NewGate(gateConfig())

	healthy := types.AccountSnapshot{Equity: 10_000, UsedMargin: 0}
	assert.Equal(t, HealthExcellent, gate.HealthFor(healthy, 0))

	// Daily loss past critical dominates comfortable margin.
	assert.Equal(t, HealthCritical, gate.HealthFor(healthy, 6))

	// Margin below call threshold is CRITICAL regardless of daily loss.
	squeezed := types.AccountSnapshot{Equity: 950, UsedMargin: 1000}
	assert.Equal(t, HealthCritical, gate.HealthFor(squeezed, 0))

	// Warning band: moderate daily loss.
	assert.Equal(t, HealthWarning, gate.HealthFor(healthy, 3.5))

	// Warning band: thin margin.
	thin := types.AccountSnapshot{Equity: 1800, UsedMargin: 1000}
	assert.Equal(t, HealthWarning, gate.HealthFor(thin, 0))

	// Good: some margin in use but comfortable.
	comfortable := types.AccountSnapshot{Equity: 2500, UsedMargin: 1000}
	assert.Equal(t, HealthGood, gate.HealthFor(comfortable, 0))
}
