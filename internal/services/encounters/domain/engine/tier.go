package engine

// DamageFactorByTier scales an action's base damage by ability tier.
// Treat as read-only.
var DamageFactorByTier = map[Tier]float64{
	TierBasic:    1,
	TierMid:      1.5,
	TierAdvanced: 2,
}

// TierFactor returns the damage factor for tier. Unknown tiers scale like basic.
func TierFactor(tier Tier) float64 {
	if factor, ok := DamageFactorByTier[tier]; ok {
		return factor
	}
	return DamageFactorByTier[TierBasic]
}
