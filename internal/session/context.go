package session

import (
	"context"
	"sync"
	"time"

	"github.com/algotrader-dev/forex-risk-core/internal/broker"
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Context owns the session-wide mutable state: the cached account
// snapshot, equity peak, daily anchor, per-instrument risk records and
// the recent trade results used for win-rate. It is constructed once
// per trading session and passed by reference; nothing in the core
// keeps package-level state.
type Context struct {
	mu sync.RWMutex

	account  broker.AccountProvider
	snapshot types.AccountSnapshot
	ttl      time.Duration

	peakEquity  float64
	dayStart    time.Time
	dayStartBal float64

	symbols map[string]*SymbolRisk

	results       []bool // true = win, newest last
	resultsWindow int

	cooldownLosses   int
	cooldownDuration time.Duration

	startedAt time.Time
}

// SymbolRisk is the per-instrument risk record, created lazily on
// first reference and kept for the session lifetime.
type SymbolRisk struct {
	Symbol            string
	ExposurePct       float64
	PositionCount     int
	CooldownUntil     time.Time
	ConsecutiveWins   int
	ConsecutiveLosses int
}

// NewContext creates a session context over an account provider.
// ttl bounds how stale a cached snapshot may get before Refresh
// re-reads from the host.
func NewContext(account broker.AccountProvider, ttl time.Duration, winRateWindow int) *Context {
	if winRateWindow <= 0 {
		winRateWindow = 20
	}
	return &Context{
		account:          account,
		ttl:              ttl,
		symbols:          make(map[string]*SymbolRisk),
		resultsWindow:    winRateWindow,
		cooldownLosses:   3,
		cooldownDuration: 30 * time.Minute,
		startedAt:        time.Now(),
		dayStart:         time.Now().Truncate(24 * time.Hour),
	}
}

// SetCooldownPolicy overrides the loss streak that parks an instrument
// and how long it stays parked. losses <= 0 disables the cooldown.
func (c *Context) SetCooldownPolicy(losses int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldownLosses = losses
	c.cooldownDuration = duration
}

// Refresh returns the current account snapshot, re-reading from the
// host when the cached one is older than the TTL. Critical callers
// that must not act on stale data use ForceRefresh.
func (c *Context) Refresh(ctx context.Context) (types.AccountSnapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	fresh := !snap.Taken.IsZero() && snap.Age() < c.ttl
	c.mu.RUnlock()

	if fresh {
		return snap, nil
	}
	return c.ForceRefresh(ctx)
}

// ForceRefresh always re-reads the account from the host and updates
// the drawdown peak and daily anchor.
func (c *Context) ForceRefresh(ctx context.Context) (types.AccountSnapshot, error) {
	if c.account == nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.snapshot, errMissingAccount
	}

	snap, err := c.account.Snapshot(ctx)
	if err != nil {
		return types.AccountSnapshot{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = snap
	if snap.Equity > c.peakEquity {
		c.peakEquity = snap.Equity
	}

	today := time.Now().Truncate(24 * time.Hour)
	if today.After(c.dayStart) || c.dayStartBal == 0 {
		c.dayStart = today
		c.dayStartBal = snap.Balance
	}

	return snap, nil
}

// Snapshot returns the cached snapshot without refreshing.
func (c *Context) Snapshot() types.AccountSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// DrawdownPercent returns the decline of current equity from the
// session peak, in percent. Zero when no peak is established yet.
func (c *Context) DrawdownPercent() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.peakEquity <= 0 {
		return 0
	}
	dd := (c.peakEquity - c.snapshot.Equity) / c.peakEquity * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyLossPercent returns today's loss as a percent of the balance at
// the start of the day. Positive values mean money lost.
func (c *Context) DailyLossPercent() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dayStartBal <= 0 {
		return 0
	}
	loss := (c.dayStartBal - c.snapshot.Equity) / c.dayStartBal * 100
	if loss < 0 {
		return 0
	}
	return loss
}

// DailyGainPercent returns today's gain as a percent of the balance at
// the start of the day. Losing days return 0.
func (c *Context) DailyGainPercent() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dayStartBal <= 0 {
		return 0
	}
	gain := (c.snapshot.Equity - c.dayStartBal) / c.dayStartBal * 100
	if gain < 0 {
		return 0
	}
	return gain
}

// Symbol returns the risk record for an instrument, creating it on
// first reference.
func (c *Context) Symbol(symbol string) *SymbolRisk {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.symbols[symbol]
	if !ok {
		rec = &SymbolRisk{Symbol: symbol}
		c.symbols[symbol] = rec
	}
	return rec
}

// Symbols returns a snapshot copy of all known symbol records.
func (c *Context) Symbols() []SymbolRisk {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]SymbolRisk, 0, len(c.symbols))
	for _, rec := range c.symbols {
		out = append(out, *rec)
	}
	return out
}

// RecordTradeResult appends a closed-trade outcome and updates the
// instrument's streak counters.
func (c *Context) RecordTradeResult(symbol string, win bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, win)
	if len(c.results) > c.resultsWindow {
		c.results = c.results[len(c.results)-c.resultsWindow:]
	}

	rec, ok := c.symbols[symbol]
	if !ok {
		rec = &SymbolRisk{Symbol: symbol}
		c.symbols[symbol] = rec
	}
	if win {
		rec.ConsecutiveWins++
		rec.ConsecutiveLosses = 0
	} else {
		rec.ConsecutiveLosses++
		rec.ConsecutiveWins = 0
		if c.cooldownLosses > 0 && rec.ConsecutiveLosses >= c.cooldownLosses {
			rec.CooldownUntil = time.Now().Add(c.cooldownDuration)
		}
	}
}

// InCooldown reports whether the instrument is parked after a loss
// streak, and until when.
func (c *Context) InCooldown(symbol string) (bool, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.symbols[symbol]
	if !ok || !time.Now().Before(rec.CooldownUntil) {
		return false, time.Time{}
	}
	return true, rec.CooldownUntil
}

// ObservePositions refreshes the per-instrument position counts and
// exposure from the latest open book. marginPerLot maps each symbol to
// the margin one lot locks; symbols with no entry keep a zero exposure
// for the cycle.
func (c *Context) ObservePositions(positions []types.Position, marginPerLot map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.symbols {
		rec.PositionCount = 0
		rec.ExposurePct = 0
	}
	equity := c.snapshot.Equity
	for _, pos := range positions {
		rec, ok := c.symbols[pos.Symbol]
		if !ok {
			rec = &SymbolRisk{Symbol: pos.Symbol}
			c.symbols[pos.Symbol] = rec
		}
		rec.PositionCount++
		if equity > 0 {
			rec.ExposurePct += pos.Volume * marginPerLot[pos.Symbol] / equity * 100
		}
	}
}

// WinRatePercent returns the win rate over the recent window. The
// second return is false until enough trades exist to be meaningful
// (half the window).
func (c *Context) WinRatePercent() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.results) < c.resultsWindow/2 {
		return 0, false
	}
	wins := 0
	for _, w := range c.results {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(c.results)) * 100, true
}

// StartedAt reports when the session began.
func (c *Context) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// Reset clears session state for a full reinitialization: the peak,
// symbol records and results are dropped, the account cache is
// invalidated.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = types.AccountSnapshot{}
	c.peakEquity = 0
	c.dayStartBal = 0
	c.symbols = make(map[string]*SymbolRisk)
	c.results = nil
	c.startedAt = time.Now()
}
