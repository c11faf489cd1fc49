package engine

import "testing"

func TestDamageFactorByTier(t *testing.T) {
	t.Parallel()

	want := map[Tier]float64{TierBasic: 1, TierMid: 1.5, TierAdvanced: 2}
	if len(DamageFactorByTier) != len(want) {
		t.Fatalf("len(DamageFactorByTier) = %d, want %d", len(DamageFactorByTier), len(want))
	}
	for tier, factor := range want {
		if got := DamageFactorByTier[tier]; got != factor {
			t.Fatalf("DamageFactorByTier[%q] = %v, want %v", tier, got, factor)
		}
		if !tier.Valid() {
			t.Fatalf("%q.Valid() = false", tier)
		}
	}
	if got := TierFactor("legendary"); got != 1 {
		t.Fatalf("TierFactor(unknown) = %v, want 1", got)
	}
	if Tier("legendary").Valid() {
		t.Fatal("unknown tier reported valid")
	}
}
