// AngelaMos | 2026
// service.go

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/carterperez-dev/acey-control-center/internal/collaborator"
	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/entitlement"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

// Messages returned to the caller with success=false.
const (
	msgSkillNotFound       = "skill not found"
	msgTierRequired        = "current tier does not include this skill"
	msgAlreadyPrePurchased = "skill already pre-purchased"
	msgNoTrialRemaining    = "no trials remaining"
	msgUnknownTier         = "unknown tier"
	msgNotAnUpgrade        = "target tier is not an upgrade"
)

// Service is the reference backend behind collaborator.Client: entitlement
// state in Postgres, preparation workflow, orchestration stream and recent
// events in Redis. It re-checks every rule itself rather than trusting the
// caller.
type Service struct {
	repo    Repository
	rules   *entitlement.Resolver
	bundles *permission.Resolver
	prep    *PreparationTracker
	orch    *Orchestrator
	events  *EventLog
	logger  *slog.Logger
}

func NewService(
	repo Repository,
	rules *entitlement.Resolver,
	bundles *permission.Resolver,
	prep *PreparationTracker,
	orch *Orchestrator,
	events *EventLog,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:    repo,
		rules:   rules,
		bundles: bundles,
		prep:    prep,
		orch:    orch,
		events:  events,
		logger:  logger,
	}
}

func (s *Service) FetchSkills(ctx context.Context, userID string) ([]skill.Skill, error) {
	return s.repo.ListSkills(ctx, userID)
}

func (s *Service) FetchUserAccess(ctx context.Context, userID string) (skill.UserAccess, error) {
	return s.repo.GetAccess(ctx, userID)
}

func (s *Service) InstallSkill(
	ctx context.Context,
	userID, skillID string,
) (collaborator.InstallResult, error) {
	sk, access, err := s.load(ctx, userID, skillID)
	if errors.Is(err, core.ErrNotFound) {
		return collaborator.InstallResult{Message: msgSkillNotFound}, nil
	}
	if err != nil {
		return collaborator.InstallResult{}, fmt.Errorf("install skill: %w", err)
	}

	// Reinstalling is a no-op on the backend.
	if !sk.Installed {
		if !s.rules.CanInstall(sk, access).Allowed {
			return collaborator.InstallResult{Message: msgTierRequired}, nil
		}
		if err := s.repo.MarkInstalled(ctx, userID, skillID); err != nil {
			return collaborator.InstallResult{}, fmt.Errorf("install skill: %w", err)
		}
	}

	s.record(ctx, notification.TypeSkillInstalled, map[string]any{
		"user_id":  userID,
		"skill_id": skillID,
	})

	return collaborator.InstallResult{Success: true, Message: "installed"}, nil
}

func (s *Service) PrePurchaseSkill(
	ctx context.Context,
	userID, skillID string,
) (collaborator.PrePurchaseResult, error) {
	sk, _, err := s.load(ctx, userID, skillID)
	if errors.Is(err, core.ErrNotFound) {
		return collaborator.PrePurchaseResult{Error: msgSkillNotFound}, nil
	}
	if err != nil {
		return collaborator.PrePurchaseResult{}, fmt.Errorf("pre-purchase skill: %w", err)
	}

	err = s.repo.MarkPrePurchased(ctx, userID, skillID, sk.DiscountPercent)
	if errors.Is(err, core.ErrDuplicateKey) {
		return collaborator.PrePurchaseResult{Error: msgAlreadyPrePurchased}, nil
	}
	if err != nil {
		return collaborator.PrePurchaseResult{}, fmt.Errorf("pre-purchase skill: %w", err)
	}

	if err := s.prep.Start(ctx, userID, skillID); err != nil {
		s.logger.Warn("preparation not started", "user_id", userID, "skill_id", skillID, "error", err)
		if err := s.prep.Fail(ctx, userID, skillID); err != nil {
			s.logger.Error("mark preparation failed", "user_id", userID, "skill_id", skillID, "error", err)
		}
	}

	s.record(ctx, notification.TypeSkillPrePurchased, map[string]any{
		"user_id":          userID,
		"skill_id":         skillID,
		"discount_applied": sk.DiscountPercent,
	})

	return collaborator.PrePurchaseResult{Success: true, DiscountApplied: sk.DiscountPercent}, nil
}

func (s *Service) WishlistSkill(
	ctx context.Context,
	userID, skillID string,
) (collaborator.ActionResult, error) {
	if _, _, err := s.load(ctx, userID, skillID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return collaborator.ActionResult{Error: msgSkillNotFound}, nil
		}
		return collaborator.ActionResult{}, fmt.Errorf("wishlist skill: %w", err)
	}

	wishlisted, err := s.repo.ToggleWishlist(ctx, userID, skillID)
	if err != nil {
		return collaborator.ActionResult{}, fmt.Errorf("wishlist skill: %w", err)
	}

	s.record(ctx, notification.TypeWishlistChanged, map[string]any{
		"user_id":    userID,
		"skill_id":   skillID,
		"wishlisted": wishlisted,
	})

	return collaborator.ActionResult{Success: true}, nil
}

func (s *Service) StartTrial(
	ctx context.Context,
	userID, skillID string,
) (collaborator.ActionResult, error) {
	sk, access, err := s.load(ctx, userID, skillID)
	if errors.Is(err, core.ErrNotFound) {
		return collaborator.ActionResult{Error: msgSkillNotFound}, nil
	}
	if err != nil {
		return collaborator.ActionResult{}, fmt.Errorf("start trial: %w", err)
	}

	if d := s.rules.CanStartTrial(sk, access); !d.Allowed {
		return collaborator.ActionResult{Error: string(d.Reason)}, nil
	}

	err = s.repo.StartTrial(ctx, userID, skillID)
	if errors.Is(err, ErrNoTrialRemaining) {
		return collaborator.ActionResult{Error: msgNoTrialRemaining}, nil
	}
	if err != nil {
		return collaborator.ActionResult{}, fmt.Errorf("start trial: %w", err)
	}

	s.record(ctx, notification.TypeTrialStarted, map[string]any{
		"user_id":  userID,
		"skill_id": skillID,
	})

	return collaborator.ActionResult{Success: true}, nil
}

// UpgradeTier switches the user's tier and reports the skills the new tier
// unlocks. It does not install them.
func (s *Service) UpgradeTier(
	ctx context.Context,
	userID, tierID string,
) (collaborator.UpgradeResult, error) {
	access, err := s.repo.GetAccess(ctx, userID)
	if err != nil {
		return collaborator.UpgradeResult{}, fmt.Errorf("upgrade tier: %w", err)
	}

	switch d := s.rules.CanUpgrade(access, tierID); d.Reason {
	case entitlement.ReasonNone:
	case entitlement.ReasonUnknownTier:
		return collaborator.UpgradeResult{Message: msgUnknownTier}, nil
	default:
		return collaborator.UpgradeResult{Message: msgNotAnUpgrade}, nil
	}

	skills, err := s.repo.ListSkills(ctx, userID)
	if err != nil {
		return collaborator.UpgradeResult{}, fmt.Errorf("upgrade tier: %w", err)
	}

	if err := s.repo.SetTier(ctx, userID, tierID); err != nil {
		return collaborator.UpgradeResult{}, fmt.Errorf("upgrade tier: %w", err)
	}

	unlocked := s.rules.NewlyEligible(skills, access.TierID, tierID)

	s.record(ctx, notification.TypeTierUpgraded, map[string]any{
		"user_id":      userID,
		"from_tier_id": access.TierID,
		"tier_id":      tierID,
	})

	return collaborator.UpgradeResult{
		Success:        true,
		UnlockedSkills: unlocked,
		Message:        fmt.Sprintf("upgraded to %s", tierID),
	}, nil
}

func (s *Service) OrchestrateAssistantUpgrade(
	ctx context.Context,
	payload collaborator.OrchestrationPayload,
) (collaborator.Ack, error) {
	if (payload.TierID == "") == (payload.SkillID == "") {
		return collaborator.Ack{}, fmt.Errorf("orchestrate: exactly one of tier and skill: %w", core.ErrInvalidInput)
	}

	granted := s.bundles.ResolveForSkill(payload.SkillID)
	if payload.TierID != "" {
		granted = s.bundles.ResolveForTier(payload.TierID)
	}
	if err := withinBundle(payload, granted); err != nil {
		return collaborator.Ack{}, fmt.Errorf("orchestrate: %w", err)
	}

	return s.orch.Publish(ctx, payload)
}

// withinBundle rejects payloads that grant more than the catalog bundle of
// their subject.
func withinBundle(p collaborator.OrchestrationPayload, b permission.Bundle) error {
	if limit := max(b.TrustLevel, permission.NeutralTrustLevel); p.TrustLevel > limit {
		return fmt.Errorf("trust level %d above %d: %w", p.TrustLevel, limit, core.ErrInvalidInput)
	}
	for _, perm := range p.Permissions {
		if !b.HasPermission(perm) {
			return fmt.Errorf("permission %q not granted: %w", perm, core.ErrInvalidInput)
		}
	}
	for _, ds := range p.DatasetAccess {
		if !b.HasDataset(ds) {
			return fmt.Errorf("dataset %q not granted: %w", ds, core.ErrInvalidInput)
		}
	}
	return nil
}

// FetchPreparationStatus polls the workflow started by userID's
// pre-purchase of skillID. Workflows are per purchase, so one buyer's polls
// never advance another's.
func (s *Service) FetchPreparationStatus(
	ctx context.Context,
	userID, skillID string,
) (skill.PreparationStatus, error) {
	return s.prep.Poll(ctx, userID, skillID)
}

// FetchDashboardStats builds stats from database aggregates. Trust and
// dataset totals come from the permission catalog, which the database does
// not hold.
func (s *Service) FetchDashboardStats(
	ctx context.Context,
	userID string,
) (dashboard.Stats, error) {
	totals, err := s.repo.Totals(ctx, userID)
	if err != nil {
		return dashboard.Stats{}, fmt.Errorf("dashboard stats: %w", err)
	}

	skills, err := s.repo.ListSkills(ctx, userID)
	if err != nil {
		return dashboard.Stats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	access, err := s.repo.GetAccess(ctx, userID)
	if err != nil {
		return dashboard.Stats{}, fmt.Errorf("dashboard stats: %w", err)
	}

	stats := dashboard.Compute(skills, access, s.bundles)
	stats.InstalledSkills = totals.Installed
	stats.PrePurchasedSkills = totals.PrePurchased
	stats.WishlistedSkills = totals.Wishlisted
	stats.TotalSavings = totals.Savings

	return stats, nil
}

func (s *Service) FetchRecentEvents(ctx context.Context) ([]notification.Event, error) {
	return s.events.Recent(ctx)
}

func (s *Service) load(
	ctx context.Context,
	userID, skillID string,
) (skill.Skill, skill.UserAccess, error) {
	sk, err := s.repo.GetSkill(ctx, userID, skillID)
	if err != nil {
		return skill.Skill{}, skill.UserAccess{}, err
	}

	access, err := s.repo.GetAccess(ctx, userID)
	if err != nil {
		return skill.Skill{}, skill.UserAccess{}, err
	}

	return sk, access, nil
}

func (s *Service) record(ctx context.Context, eventType string, data map[string]any) {
	if err := s.events.Append(ctx, eventType, data); err != nil {
		s.logger.Warn("record platform event", "type", eventType, "error", err)
	}
}

var _ collaborator.Client = (*Service)(nil)
