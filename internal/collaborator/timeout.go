// AngelaMos | 2026
// timeout.go

package collaborator

import (
	"context"
	"time"

	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

// WithTimeout bounds every call to c by d. Sessions detach action calls
// from the request context, so this is what stops a hung backend from
// holding a pending entry forever. A non-positive d returns c unchanged.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{next: c, timeout: d}
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func bounded[T any](
	ctx context.Context,
	d time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (t *timeoutClient) FetchSkills(ctx context.Context, userID string) ([]skill.Skill, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) ([]skill.Skill, error) {
		return t.next.FetchSkills(ctx, userID)
	})
}

func (t *timeoutClient) FetchUserAccess(ctx context.Context, userID string) (skill.UserAccess, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (skill.UserAccess, error) {
		return t.next.FetchUserAccess(ctx, userID)
	})
}

func (t *timeoutClient) InstallSkill(ctx context.Context, userID, skillID string) (InstallResult, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (InstallResult, error) {
		return t.next.InstallSkill(ctx, userID, skillID)
	})
}

func (t *timeoutClient) PrePurchaseSkill(ctx context.Context, userID, skillID string) (PrePurchaseResult, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (PrePurchaseResult, error) {
		return t.next.PrePurchaseSkill(ctx, userID, skillID)
	})
}

func (t *timeoutClient) WishlistSkill(ctx context.Context, userID, skillID string) (ActionResult, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (ActionResult, error) {
		return t.next.WishlistSkill(ctx, userID, skillID)
	})
}

func (t *timeoutClient) StartTrial(ctx context.Context, userID, skillID string) (ActionResult, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (ActionResult, error) {
		return t.next.StartTrial(ctx, userID, skillID)
	})
}

func (t *timeoutClient) UpgradeTier(ctx context.Context, userID, tierID string) (UpgradeResult, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (UpgradeResult, error) {
		return t.next.UpgradeTier(ctx, userID, tierID)
	})
}

func (t *timeoutClient) OrchestrateAssistantUpgrade(ctx context.Context, payload OrchestrationPayload) (Ack, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (Ack, error) {
		return t.next.OrchestrateAssistantUpgrade(ctx, payload)
	})
}

func (t *timeoutClient) FetchPreparationStatus(ctx context.Context, userID, skillID string) (skill.PreparationStatus, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (skill.PreparationStatus, error) {
		return t.next.FetchPreparationStatus(ctx, userID, skillID)
	})
}

func (t *timeoutClient) FetchDashboardStats(ctx context.Context, userID string) (dashboard.Stats, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) (dashboard.Stats, error) {
		return t.next.FetchDashboardStats(ctx, userID)
	})
}

func (t *timeoutClient) FetchRecentEvents(ctx context.Context) ([]notification.Event, error) {
	return bounded(ctx, t.timeout, func(ctx context.Context) ([]notification.Event, error) {
		return t.next.FetchRecentEvents(ctx)
	})
}
