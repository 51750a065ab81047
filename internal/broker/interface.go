package broker

import (
	"context"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// The core consumes its host platform through three narrow
// capabilities. Components depend only on the capability they need so
// each one can be substituted independently in tests.

// MarketData provides quotes, history and instrument trading rules.
type MarketData interface {
	// Tick returns the current bid/ask for an instrument.
	Tick(ctx context.Context, symbol string) (types.Tick, error)

	// Klines returns up to limit recent bars for the given interval,
	// oldest first.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]types.OHLCV, error)

	// SymbolInfo returns the broker trading rules for an instrument.
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolInfo, error)
}

// AccountProvider exposes the broker account state.
type AccountProvider interface {
	// Snapshot reads a fresh account snapshot from the host.
	Snapshot(ctx context.Context) (types.AccountSnapshot, error)
}

// OrderExecutor exposes the position primitives the core is allowed to
// drive: reading open positions, moving protective levels and closing.
// Opening positions stays with the host; the core only authorizes.
type OrderExecutor interface {
	// OpenPositions lists open positions, optionally filtered by symbol
	// (empty symbol means all).
	OpenPositions(ctx context.Context, symbol string) ([]types.Position, error)

	// ModifyStops proposes new protective levels for a position. A zero
	// value leaves that level unchanged.
	ModifyStops(ctx context.Context, ticket string, stopLoss, takeProfit float64) error

	// ClosePosition closes volume lots of a position; volume <= 0
	// closes it entirely.
	ClosePosition(ctx context.Context, ticket string, volume float64) error
}

// Broker bundles the three capabilities for callers that need all of
// them, such as the engine facade and the live adapters.
type Broker interface {
	MarketData
	AccountProvider
	OrderExecutor
}
