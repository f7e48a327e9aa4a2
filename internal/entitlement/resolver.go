// AngelaMos | 2026
// resolver.go

package entitlement

import (
	"github.com/carterperez-dev/acey-control-center/internal/skill"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

// Reason is the machine-readable code attached to a rejected Decision.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonAlreadyInstalled    Reason = "ALREADY_INSTALLED"
	ReasonTierRequired        Reason = "TIER_REQUIRED"
	ReasonAlreadyPrePurchased Reason = "ALREADY_PRE_PURCHASED"
	ReasonNoTrialRemaining    Reason = "NO_TRIAL_REMAINING"
	ReasonTrialActive         Reason = "TRIAL_ACTIVE"
	ReasonOperationInProgress Reason = "OPERATION_IN_PROGRESS"
	ReasonUnknownSkill        Reason = "UNKNOWN_SKILL"
	ReasonUnknownTier         Reason = "UNKNOWN_TIER"
	ReasonNotAnUpgrade        Reason = "NOT_AN_UPGRADE"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason_code,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Reject(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Resolver decides whether an action is currently permitted. Every check is
// synchronous and side-effect free so a rejection costs no network traffic.
type Resolver struct {
	tiers *tier.Hierarchy
}

func NewResolver(tiers *tier.Hierarchy) *Resolver {
	return &Resolver{tiers: tiers}
}

func (r *Resolver) Tiers() *tier.Hierarchy {
	return r.tiers
}

func (r *Resolver) CanInstall(s skill.Skill, access skill.UserAccess) Decision {
	if s.Installed {
		return Reject(ReasonAlreadyInstalled)
	}
	if !r.tiers.IsEligible(s.RequiredTierID, access.TierID) {
		return Reject(ReasonTierRequired)
	}
	return Allow()
}

// CanPrePurchase is tier-independent: pre-purchase is how a user unlocks a
// future skill early.
func (r *Resolver) CanPrePurchase(s skill.Skill) Decision {
	if s.PrePurchased {
		return Reject(ReasonAlreadyPrePurchased)
	}
	return Allow()
}

// CanWishlist always allows; wishlisting toggles.
func (r *Resolver) CanWishlist(skill.Skill) Decision {
	return Allow()
}

func (r *Resolver) CanStartTrial(s skill.Skill, access skill.UserAccess) Decision {
	if access.TrialRemaining <= 0 {
		return Reject(ReasonNoTrialRemaining)
	}
	if s.Installed {
		return Reject(ReasonAlreadyInstalled)
	}
	if s.TrialActive {
		return Reject(ReasonTrialActive)
	}
	return Allow()
}

func (r *Resolver) CanUpgrade(access skill.UserAccess, targetTierID string) Decision {
	if !r.tiers.Known(targetTierID) {
		return Reject(ReasonUnknownTier)
	}
	if r.tiers.Rank(targetTierID) <= r.tiers.Rank(access.TierID) {
		return Reject(ReasonNotAnUpgrade)
	}
	return Allow()
}

// NewlyEligible lists the skills that fromTierID could not install but
// toTierID can, skipping skills already installed. Order follows skills.
func (r *Resolver) NewlyEligible(skills []skill.Skill, fromTierID, toTierID string) []skill.Skill {
	var out []skill.Skill
	for _, s := range skills {
		if s.Installed {
			continue
		}
		if r.tiers.IsEligible(s.RequiredTierID, fromTierID) {
			continue
		}
		if r.tiers.IsEligible(s.RequiredTierID, toTierID) {
			out = append(out, s)
		}
	}
	return out
}
