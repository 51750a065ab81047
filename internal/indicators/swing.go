package indicators

import (
	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// Swing point detection for structure-based protective levels. A swing
// low is a bar whose low is strictly below the strength bars on either
// side; symmetric for swing highs.

// FindSwingLow scans the most recent lookback bars (excluding the
// still-forming last bar) for the nearest swing low below the reference
// price. Returns false when no qualifying swing exists.
func FindSwingLow(data []types.OHLCV, lookback, strength int, reference float64) (float64, bool) {
	if strength < 1 {
		strength = 1
	}
	start := len(data) - lookback
	if start < strength {
		start = strength
	}
	best := 0.0
	found := false
	for i := len(data) - 2 - strength; i >= start; i-- {
		if !isSwingLow(data, i, strength) {
			continue
		}
		low := data[i].Low
		if low >= reference {
			continue
		}
		// Nearest qualifying swing below the reference wins.
		if !found || low > best {
			best = low
			found = true
		}
	}
	return best, found
}

// FindSwingHigh is the short-side counterpart of FindSwingLow.
func FindSwingHigh(data []types.OHLCV, lookback, strength int, reference float64) (float64, bool) {
	if strength < 1 {
		strength = 1
	}
	start := len(data) - lookback
	if start < strength {
		start = strength
	}
	best := 0.0
	found := false
	for i := len(data) - 2 - strength; i >= start; i-- {
		if !isSwingHigh(data, i, strength) {
			continue
		}
		high := data[i].High
		if high <= reference {
			continue
		}
		if !found || high < best {
			best = high
			found = true
		}
	}
	return best, found
}

// RecentLow returns the lowest low of the last n completed bars.
func RecentLow(data []types.OHLCV, n int) (float64, bool) {
	if len(data) == 0 || n <= 0 {
		return 0, false
	}
	start := len(data) - n
	if start < 0 {
		start = 0
	}
	low := data[start].Low
	for _, c := range data[start:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low, true
}

// RecentHigh returns the highest high of the last n completed bars.
func RecentHigh(data []types.OHLCV, n int) (float64, bool) {
	if len(data) == 0 || n <= 0 {
		return 0, false
	}
	start := len(data) - n
	if start < 0 {
		start = 0
	}
	high := data[start].High
	for _, c := range data[start:] {
		if c.High > high {
			high = c.High
		}
	}
	return high, true
}

func isSwingLow(data []types.OHLCV, i, strength int) bool {
	if i-strength < 0 || i+strength >= len(data) {
		return false
	}
	for j := 1; j <= strength; j++ {
		if data[i].Low >= data[i-j].Low || data[i].Low >= data[i+j].Low {
			return false
		}
	}
	return true
}

func isSwingHigh(data []types.OHLCV, i, strength int) bool {
	if i-strength < 0 || i+strength >= len(data) {
		return false
	}
	for j := 1; j <= strength; j++ {
		if data[i].High <= data[i-j].High || data[i].High <= data[i+j].High {
			return false
		}
	}
	return true
}
