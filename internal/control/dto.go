// AngelaMos | 2026
// dto.go

package control

import (
	"time"

	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/lifecycle"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

type UpgradeTierRequest struct {
	TierID string `json:"tier_id" validate:"required,max=64"`
}

// SkillResponse is a catalog skill as the presentation layer renders it:
// flags from the snapshot plus the in-flight action and eligibility.
type SkillResponse struct {
	skill.Skill
	Eligible    bool                    `json:"eligible"`
	Released    bool                    `json:"released"`
	Pending     lifecycle.Operation     `json:"pending,omitempty"`
	Preparation skill.PreparationStatus `json:"preparation,omitempty"`
}

// BundleResponse reports whether the subject is in the catalog. Unknown
// subjects resolve to the neutral bundle.
type BundleResponse struct {
	permission.Bundle
	Known bool `json:"known"`
}

type SkillListResponse struct {
	Skills  []SkillResponse `json:"skills"`
	Version uint64          `json:"version"`
}

type AccessResponse struct {
	skill.UserAccess
	Tier               tier.Tier `json:"tier"`
	PendingTierUpgrade bool      `json:"pending_tier_upgrade"`
	Version            uint64    `json:"version"`
}

type ActionResponse struct {
	Skill   SkillResponse `json:"skill"`
	Version uint64        `json:"version"`
}

type PreparationResponse struct {
	SkillID string                  `json:"skill_id"`
	Status  skill.PreparationStatus `json:"status"`
}

type ReconcileResponse struct {
	Local      dashboard.Stats      `json:"local"`
	Mismatches []dashboard.Mismatch `json:"mismatches"`
	InSync     bool                 `json:"in_sync"`
}

type NotificationListResponse struct {
	Events []notification.Event `json:"events"`
	Unread int                  `json:"unread"`
}

type MarkReadResponse struct {
	Marked bool `json:"marked"`
}

func toSkillResponse(snap lifecycle.Snapshot, sk skill.Skill, tiers *tier.Hierarchy, now time.Time) SkillResponse {
	resp := SkillResponse{
		Skill:    sk,
		Eligible: tiers.IsEligible(sk.RequiredTierID, snap.Access().TierID),
		Released: sk.IsReleased(now),
	}
	if sk.PrePurchased {
		resp.Preparation = snap.Preparation(sk.ID)
	}
	if op, ok := snap.Pending(sk.ID); ok {
		resp.Pending = op
	}
	return resp
}

func toSkillList(snap lifecycle.Snapshot, tiers *tier.Hierarchy, now time.Time) SkillListResponse {
	skills := snap.Skills()
	out := make([]SkillResponse, 0, len(skills))
	for _, sk := range skills {
		out = append(out, toSkillResponse(snap, sk, tiers, now))
	}
	return SkillListResponse{Skills: out, Version: snap.Version()}
}

func toAccessResponse(snap lifecycle.Snapshot, tiers *tier.Hierarchy) AccessResponse {
	access := snap.Access()
	t, ok := tiers.Lookup(access.TierID)
	if !ok {
		t = tier.Tier{ID: access.TierID, Rank: tier.UnknownRank}
	}
	return AccessResponse{
		UserAccess:         access,
		Tier:               t,
		PendingTierUpgrade: snap.PendingTierUpgrade(),
		Version:            snap.Version(),
	}
}
