// AngelaMos | 2026
// client.go

package collaborator

import (
	"context"

	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

// GenericFailureMessage is surfaced when a collaborator fails without a message.
const GenericFailureMessage = "request failed"

type InstallResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type PrePurchaseResult struct {
	Success         bool   `json:"success"`
	DiscountApplied int    `json:"discount_applied,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ActionResult answers wishlist and trial requests.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type UpgradeResult struct {
	Success        bool          `json:"success"`
	UnlockedSkills []skill.Skill `json:"unlocked_skills,omitempty"`
	Message        string        `json:"message,omitempty"`
}

type Action string

const (
	ActionInstall     Action = "install"
	ActionTierUpgrade Action = "tier_upgrade"
	ActionPrePurchase Action = "pre_purchase"
	ActionTrial       Action = "trial"
)

// OrchestrationPayload carries a permission bundle to the assistant
// orchestrator. Exactly one of TierID and SkillID is set.
type OrchestrationPayload struct {
	UserID        string   `json:"user_id"`
	TierID        string   `json:"tier_id,omitempty"`
	SkillID       string   `json:"skill_id,omitempty"`
	Action        Action   `json:"action"`
	Permissions   []string `json:"permissions"`
	TrustLevel    int      `json:"trust_level"`
	DatasetAccess []string `json:"dataset_access"`
}

type Ack struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

// Client is everything the core needs from the backend. Implementations
// must be safe for concurrent use.
type Client interface {
	FetchSkills(ctx context.Context, userID string) ([]skill.Skill, error)
	FetchUserAccess(ctx context.Context, userID string) (skill.UserAccess, error)
	InstallSkill(ctx context.Context, userID, skillID string) (InstallResult, error)
	PrePurchaseSkill(ctx context.Context, userID, skillID string) (PrePurchaseResult, error)
	WishlistSkill(ctx context.Context, userID, skillID string) (ActionResult, error)
	StartTrial(ctx context.Context, userID, skillID string) (ActionResult, error)
	UpgradeTier(ctx context.Context, userID, tierID string) (UpgradeResult, error)
	OrchestrateAssistantUpgrade(ctx context.Context, payload OrchestrationPayload) (Ack, error)
	FetchPreparationStatus(ctx context.Context, userID, skillID string) (skill.PreparationStatus, error)
	FetchDashboardStats(ctx context.Context, userID string) (dashboard.Stats, error)
	FetchRecentEvents(ctx context.Context) ([]notification.Event, error)
}

// FailureMessage returns msg, or GenericFailureMessage when msg is empty.
func FailureMessage(msg string) string {
	if msg == "" {
		return GenericFailureMessage
	}
	return msg
}
