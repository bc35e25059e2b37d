package models

// Tier buckets a TruthScore for display and copy-trading gating.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
)

// TruthScore is the composite reputation projection for one wallet.
// It is recomputed on demand from the TraderAggregate and only ever cached,
// never stored as a source of truth.
type TruthScore struct {
	Address          string  `json:"address"`
	SkillScore       float64 `json:"skillScore"`       // Wilson-bounded win rate, 0-500
	ActivityScore    float64 `json:"activityScore"`    // log-scaled win count, 0-500
	VolumeBonus      float64 `json:"volumeBonus"`      // log-scaled volume, 0-200
	ConsistencyBonus float64 `json:"consistencyBonus"` // Sharpe-like ratio, 0-100
	Total            float64 `json:"total"`            // capped at 1300
	Tier             Tier    `json:"tier"`
	Eligible         bool    `json:"eligible"`      // meets the public-ranking minimum
	DisplayTotal     float64 `json:"displayTotal"`  // total after visibility gating
	WilsonLowerBound float64 `json:"wilsonLowerBound"`
}
