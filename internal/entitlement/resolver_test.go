// AngelaMos | 2026
// resolver_test.go

package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carterperez-dev/acey-control-center/internal/skill"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

func newResolver() *Resolver {
	return NewResolver(tier.Default())
}

func TestCanInstall(t *testing.T) {
	r := newResolver()
	creator := skill.UserAccess{UserID: "u1", TierID: tier.Creator}

	tests := []struct {
		name   string
		skill  skill.Skill
		access skill.UserAccess
		want   Decision
	}{
		{
			name:   "eligible",
			skill:  skill.Skill{ID: "s1", RequiredTierID: tier.Free},
			access: creator,
			want:   Allow(),
		},
		{
			name:   "same tier",
			skill:  skill.Skill{ID: "s1", RequiredTierID: tier.Creator},
			access: creator,
			want:   Allow(),
		},
		{
			name:   "already installed wins over tier",
			skill:  skill.Skill{ID: "s1", RequiredTierID: tier.Enterprise, Installed: true},
			access: creator,
			want:   Reject(ReasonAlreadyInstalled),
		},
		{
			name:   "tier too low",
			skill:  skill.Skill{ID: "s1", RequiredTierID: tier.Pro},
			access: creator,
			want:   Reject(ReasonTierRequired),
		},
		{
			name:   "unknown required tier is ineligible for everyone",
			skill:  skill.Skill{ID: "s1", RequiredTierID: "legendary"},
			access: skill.UserAccess{TierID: tier.Enterprise},
			want:   Reject(ReasonTierRequired),
		},
		{
			name:   "unknown user tier",
			skill:  skill.Skill{ID: "s1", RequiredTierID: tier.Free},
			access: skill.UserAccess{TierID: "mystery"},
			want:   Reject(ReasonTierRequired),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.CanInstall(tt.skill, tt.access))
		})
	}
}

func TestCanPrePurchaseIgnoresTier(t *testing.T) {
	r := newResolver()

	assert.Equal(t, Allow(), r.CanPrePurchase(skill.Skill{RequiredTierID: tier.Enterprise}))
	assert.Equal(t, Allow(), r.CanPrePurchase(skill.Skill{RequiredTierID: "unknown"}))
	assert.Equal(t,
		Reject(ReasonAlreadyPrePurchased),
		r.CanPrePurchase(skill.Skill{PrePurchased: true}),
	)
}

func TestCanWishlistAlwaysAllows(t *testing.T) {
	r := newResolver()

	assert.True(t, r.CanWishlist(skill.Skill{}).Allowed)
	assert.True(t, r.CanWishlist(skill.Skill{Wishlisted: true, Installed: true}).Allowed)
}

func TestCanStartTrial(t *testing.T) {
	r := newResolver()

	tests := []struct {
		name   string
		skill  skill.Skill
		trials int
		want   Decision
	}{
		{"allowed", skill.Skill{}, 2, Allow()},
		{"no trials left", skill.Skill{}, 0, Reject(ReasonNoTrialRemaining)},
		{"negative trials", skill.Skill{}, -1, Reject(ReasonNoTrialRemaining)},
		{"trial check precedes install check", skill.Skill{Installed: true}, 0, Reject(ReasonNoTrialRemaining)},
		{"installed", skill.Skill{Installed: true}, 1, Reject(ReasonAlreadyInstalled)},
		{"trial running", skill.Skill{TrialActive: true}, 1, Reject(ReasonTrialActive)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access := skill.UserAccess{TierID: tier.Free, TrialRemaining: tt.trials}
			assert.Equal(t, tt.want, r.CanStartTrial(tt.skill, access))
		})
	}
}

func TestCanUpgrade(t *testing.T) {
	r := newResolver()
	access := skill.UserAccess{TierID: tier.CreatorPlus}

	assert.Equal(t, Allow(), r.CanUpgrade(access, tier.Pro))
	assert.Equal(t, Reject(ReasonNotAnUpgrade), r.CanUpgrade(access, tier.CreatorPlus))
	assert.Equal(t, Reject(ReasonNotAnUpgrade), r.CanUpgrade(access, tier.Free))
	assert.Equal(t, Reject(ReasonUnknownTier), r.CanUpgrade(access, "diamond"))
}

func TestNewlyEligible(t *testing.T) {
	r := newResolver()
	skills := []skill.Skill{
		{ID: "free-skill", RequiredTierID: tier.Free},
		{ID: "creator-skill", RequiredTierID: tier.Creator},
		{ID: "pro-skill", RequiredTierID: tier.Pro},
		{ID: "pro-installed", RequiredTierID: tier.Pro, Installed: true},
		{ID: "enterprise-skill", RequiredTierID: tier.Enterprise},
		{ID: "broken", RequiredTierID: "missing"},
	}

	got := r.NewlyEligible(skills, tier.Free, tier.Pro)

	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"creator-skill", "pro-skill"}, ids)
}
