package types

import (
	"math"
	"time"
)

// Direction is the side of a position or proposed trade.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// Sign returns +1 for long and -1 for short, so price math can be
// written once for both directions.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// AccountSnapshot is a point-in-time view of the broker account.
// It is read fresh from the host each evaluation cycle and never
// written back.
type AccountSnapshot struct {
	Equity     float64
	Balance    float64
	UsedMargin float64
	FreeMargin float64
	Leverage   float64
	Taken      time.Time
}

// MarginLevel returns equity/usedMargin as a percentage. The second
// return is false when used margin is zero, in which case the margin
// level is undefined and callers must treat the account as safe.
func (a AccountSnapshot) MarginLevel() (float64, bool) {
	if a.UsedMargin <= 0 {
		return 0, false
	}
	return a.Equity / a.UsedMargin * 100, true
}

// FreeMarginPercent returns free margin as a percentage of equity.
func (a AccountSnapshot) FreeMarginPercent() float64 {
	if a.Equity <= 0 {
		return 0
	}
	return a.FreeMargin / a.Equity * 100
}

// Age reports how long ago the snapshot was taken.
func (a AccountSnapshot) Age() time.Duration {
	return time.Since(a.Taken)
}

// Position is an open position owned by the host platform. The core
// only reads it and proposes stop/target modifications keyed by Ticket.
type Position struct {
	Ticket        string
	Symbol        string
	Direction     Direction
	Volume        float64
	EntryPrice    float64
	StopLoss      float64
	TakeProfit    float64
	UnrealizedPnL float64
	OpenedAt      time.Time
}

// ProfitDistance returns the current profit of the position expressed
// in price distance from entry. Positive means in profit.
func (p Position) ProfitDistance(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Direction.Sign()
}

// SymbolInfo carries the broker-reported trading rules for one
// instrument: price granularity, per-unit values and volume limits.
type SymbolInfo struct {
	Symbol       string
	Digits       int
	Point        float64 // smallest price increment
	PipSize      float64 // conventional pip (10 points on 5-digit FX)
	TickValue    float64 // account-currency value of one point per lot
	ContractSize float64
	MinVolume    float64
	MaxVolume    float64
	VolumeStep   float64
	MinStopDist  float64 // broker minimum stop distance in price terms
	MarginPerLot float64 // margin required to hold one lot
}

// NormalizePrice rounds a price to the instrument's quote granularity.
func (s SymbolInfo) NormalizePrice(price float64) float64 {
	if s.Point <= 0 {
		return price
	}
	factor := math.Pow(10, float64(s.Digits))
	return math.Round(price*factor) / factor
}

// ClampVolume snaps a volume down to the nearest step and bounds it by
// the broker min/max. Volumes below the minimum clamp up to the
// minimum; a non-positive request returns zero.
func (s SymbolInfo) ClampVolume(volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	if s.VolumeStep > 0 {
		volume = math.Floor(volume/s.VolumeStep) * s.VolumeStep
	}
	if volume < s.MinVolume {
		volume = s.MinVolume
	}
	if s.MaxVolume > 0 && volume > s.MaxVolume {
		volume = s.MaxVolume
	}
	// Re-snap after clamping so min/max that are off-step cannot leak
	// an unaligned volume through.
	if s.VolumeStep > 0 {
		volume = math.Round(volume/s.VolumeStep) * s.VolumeStep
	}
	return volume
}

// PipsToPrice converts a distance in pips to absolute price terms.
func (s SymbolInfo) PipsToPrice(pips float64) float64 {
	return pips * s.PipSize
}

// PriceToPips converts an absolute price distance to pips.
func (s SymbolInfo) PriceToPips(dist float64) float64 {
	if s.PipSize <= 0 {
		return 0
	}
	return dist / s.PipSize
}
