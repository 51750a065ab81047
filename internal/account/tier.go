package account

// Tier is the coarse account-size classification, 1 through 5.
// It is a pure function of balance and monotonic in it.
type Tier int

const (
	TierMicro    Tier = 1 // under $1,000
	TierMini     Tier = 2 // under $5,000
	TierStandard Tier = 3 // under $25,000
	TierPro      Tier = 4 // under $100,000
	TierInst     Tier = 5 // $100,000 and up
)

// Balance thresholds separating the tiers, in account currency.
const (
	tierMiniFloor     = 1_000.0
	tierStandardFloor = 5_000.0
	tierProFloor      = 25_000.0
	tierInstFloor     = 100_000.0
)

func (t Tier) String() string {
	switch t {
	case TierMicro:
		return "MICRO"
	case TierMini:
		return "MINI"
	case TierStandard:
		return "STANDARD"
	case TierPro:
		return "PRO"
	default:
		return "INSTITUTIONAL"
	}
}

// Index returns the zero-based tier index for table lookups.
func (t Tier) Index() int {
	i := int(t) - 1
	if i < 0 {
		return 0
	}
	if i > 4 {
		return 4
	}
	return i
}

// TierForBalance classifies a balance into one of the five tiers.
func TierForBalance(balance float64) Tier {
	switch {
	case balance >= tierInstFloor:
		return TierInst
	case balance >= tierProFloor:
		return TierPro
	case balance >= tierStandardFloor:
		return TierStandard
	case balance >= tierMiniFloor:
		return TierMini
	default:
		return TierMicro
	}
}

// MaxConcurrentInstruments is how many instruments a tier may hold
// positions in at once.
func (t Tier) MaxConcurrentInstruments() int {
	switch t {
	case TierMicro:
		return 1
	case TierMini:
		return 2
	case TierStandard:
		return 3
	case TierPro:
		return 4
	default:
		return 6
	}
}

// ProfitTargetPercent is the daily gain, as a percent of the day-start
// balance, at which the tier stops opening new risk and banks the day.
// Smaller accounts chase larger relative moves.
func (t Tier) ProfitTargetPercent() float64 {
	switch t {
	case TierMicro:
		return 6.0
	case TierMini:
		return 5.0
	case TierStandard:
		return 4.0
	case TierPro:
		return 3.0
	default:
		return 2.0
	}
}
