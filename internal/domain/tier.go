package domain

// Tier is an ordinal priority bucket. Lower ordinals are serviced first.
// The gaps between tiers leave room for fan-out staggering, which bumps
// the ordinal by one per batch without crossing into the next tier above.
type Tier int

const (
	TierCritical Tier = 1
	TierHigh     Tier = 3
	TierNormal   Tier = 5
	TierLow      Tier = 10
)

func (t Tier) String() string {
	switch {
	case t <= TierCritical:
		return "critical"
	case t <= TierHigh:
		return "high"
	case t <= TierNormal:
		return "normal"
	default:
		return "low"
	}
}

// TierOf buckets an arbitrary priority ordinal into its tier.
func TierOf(priority int) Tier {
	switch {
	case priority <= int(TierCritical):
		return TierCritical
	case priority <= int(TierHigh):
		return TierHigh
	case priority <= int(TierNormal):
		return TierNormal
	default:
		return TierLow
	}
}

// Tiers in service order, for bucketing in reporters.
var Tiers = []Tier{TierCritical, TierHigh, TierNormal, TierLow}
