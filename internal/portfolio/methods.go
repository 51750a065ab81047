package portfolio

import (
	"fmt"
	"math"
)

// InstrumentStats are the trailing performance metrics a weighting
// method works from, computed over the configured lookback.
type InstrumentStats struct {
	Volatility      float64 // standard deviation of per-bar returns
	MeanReturn      float64 // mean per-bar return
	Sharpe          float64 // mean return over volatility
	RecentReturnPct float64 // cumulative return over the lookback, percent
}

// WeightMethod turns per-instrument stats into raw target weights.
// Weights need not sum to anything; the optimizer normalizes.
type WeightMethod interface {
	Name() string
	Weights(stats map[string]InstrumentStats) (map[string]float64, error)
}

// EqualWeight gives every enabled instrument the same share.
type EqualWeight struct{}

func (EqualWeight) Name() string { return "equal" }

func (EqualWeight) Weights(stats map[string]InstrumentStats) (map[string]float64, error) {
	out := make(map[string]float64, len(stats))
	for symbol := range stats {
		out[symbol] = 1
	}
	return out, nil
}

// InverseVolatility weights instruments by the reciprocal of their
// volatility, so calmer instruments carry more capital.
type InverseVolatility struct{}

func (InverseVolatility) Name() string { return "inverse_volatility" }

func (InverseVolatility) Weights(stats map[string]InstrumentStats) (map[string]float64, error) {
	out := make(map[string]float64, len(stats))
	for symbol, st := range stats {
		if st.Volatility <= 0 {
			// A flat series has no measurable risk; treat it as average
			// rather than letting it swallow the book.
			out[symbol] = 1
			continue
		}
		out[symbol] = 1 / st.Volatility
	}
	return out, nil
}

// SharpeProportional weights by risk-adjusted return. Instruments with
// non-positive Sharpe get a small floor weight instead of zero so they
// stay in the book and can recover.
type SharpeProportional struct{}

func (SharpeProportional) Name() string { return "sharpe" }

func (SharpeProportional) Weights(stats map[string]InstrumentStats) (map[string]float64, error) {
	const floor = 0.1
	out := make(map[string]float64, len(stats))
	for symbol, st := range stats {
		if st.Sharpe <= 0 || math.IsNaN(st.Sharpe) {
			out[symbol] = floor
			continue
		}
		out[symbol] = floor + st.Sharpe
	}
	return out, nil
}

// Kelly sizes by the simplified Kelly fraction, mean return over
// variance, hard-capped so no single estimate error can concentrate
// the book.
type Kelly struct {
	Cap float64 // maximum fraction per instrument, e.g. 0.25
}

func (k Kelly) Name() string { return "kelly" }

func (k Kelly) Weights(stats map[string]InstrumentStats) (map[string]float64, error) {
	limit := k.Cap
	if limit <= 0 {
		limit = 0.25
	}
	out := make(map[string]float64, len(stats))
	for symbol, st := range stats {
		variance := st.Volatility * st.Volatility
		if variance <= 0 || st.MeanReturn <= 0 {
			out[symbol] = 0.01
			continue
		}
		f := st.MeanReturn / variance
		if f > limit {
			f = limit
		}
		out[symbol] = f
	}
	return out, nil
}

// Custom uses externally supplied weights, for operators who want to
// pin the allocation by hand.
type Custom struct {
	Supplied map[string]float64
}

func (Custom) Name() string { return "custom" }

func (c Custom) Weights(stats map[string]InstrumentStats) (map[string]float64, error) {
	if len(c.Supplied) == 0 {
		return nil, fmt.Errorf("custom weighting selected but no weights supplied")
	}
	out := make(map[string]float64, len(stats))
	for symbol := range stats {
		w, ok := c.Supplied[symbol]
		if !ok || w < 0 {
			return nil, fmt.Errorf("custom weights missing instrument %s", symbol)
		}
		out[symbol] = w
	}
	return out, nil
}
