package riskstate

// Level is the single risk classification that gates every other
// component. Ordering matters: lower values are worse.
type Level int

const (
	Critical Level = iota
	High
	Moderate
	Low
	Optimal
)

func (l Level) String() string {
	switch l {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	case Moderate:
		return "MODERATE"
	case Low:
		return "LOW"
	default:
		return "OPTIMAL"
	}
}

// WorseOf returns the more severe of two levels.
func WorseOf(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}

// Worsen steps a level one notch toward CRITICAL.
func (l Level) Worsen() Level {
	if l == Critical {
		return Critical
	}
	return l - 1
}
