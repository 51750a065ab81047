package indicators

import (
	"errors"

	"github.com/algotrader-dev/forex-risk-core/pkg/types"
)

// ParabolicSAR computes the stop-and-reverse level used by the
// parabolic trailing method. Only the latest SAR value is exposed; the
// trailing engine re-derives it from the series each cycle.
type ParabolicSAR struct {
	step float64
	max  float64
}

// NewParabolicSAR creates a new Parabolic SAR indicator
func NewParabolicSAR(step, max float64) *ParabolicSAR {
	return &ParabolicSAR{step: step, max: max}
}

// Calculate returns the SAR for the latest bar given the position
// direction. For longs the SAR trails below price, for shorts above.
func (p *ParabolicSAR) Calculate(data []types.OHLCV, direction types.Direction) (float64, error) {
	if len(data) < 3 {
		return 0, errors.New("insufficient data points for SAR calculation")
	}

	af := p.step
	var sar, ep float64

	if direction == types.Long {
		sar = data[0].Low
		ep = data[0].High
		for i := 1; i < len(data); i++ {
			sar = sar + af*(ep-sar)
			// SAR must stay below the prior two lows.
			if sar > data[i-1].Low {
				sar = data[i-1].Low
			}
			if i >= 2 && sar > data[i-2].Low {
				sar = data[i-2].Low
			}
			if data[i].High > ep {
				ep = data[i].High
				af += p.step
				if af > p.max {
					af = p.max
				}
			}
		}
	} else {
		sar = data[0].High
		ep = data[0].Low
		for i := 1; i < len(data); i++ {
			sar = sar + af*(ep-sar)
			if sar < data[i-1].High {
				sar = data[i-1].High
			}
			if i >= 2 && sar < data[i-2].High {
				sar = data[i-2].High
			}
			if data[i].Low < ep {
				ep = data[i].Low
				af += p.step
				if af > p.max {
					af = p.max
				}
			}
		}
	}

	return sar, nil
}

// GetName returns the indicator name
func (p *ParabolicSAR) GetName() string {
	return "ParabolicSAR"
}
