// AngelaMos | 2026
// session.go

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/acey-control-center/internal/collaborator"
	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/entitlement"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

const defaultUpgradeConcurrency = 4

// Locker guards a collaborator call across processes. Acquire returns
// core.ErrLockConflict when another holder owns key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

type Config struct {
	Client             collaborator.Client
	Machine            *Machine
	Bundles            *permission.Resolver
	Locker             Locker
	Logger             *slog.Logger
	Tracer             trace.Tracer
	UpgradeConcurrency int
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("lifecycle")
	}
	if c.UpgradeConcurrency <= 0 {
		c.UpgradeConcurrency = defaultUpgradeConcurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Session is the single logical actor for one user. It holds the current
// Snapshot and serializes every commit against it; collaborator calls run
// outside the lock.
type Session struct {
	userID string
	cfg    Config
	logger *slog.Logger
	events *notification.Store

	mu           sync.Mutex
	snap         Snapshot
	stats        dashboard.Stats
	statsVersion uint64

	lastUsed atomic.Int64
}

// UpgradeResult lists what the auto-install batch did per skill. Skills the
// user was already installing when the batch reached them are pending, not
// failed: the user's own install decides their outcome.
type UpgradeResult struct {
	FromTierID        string            `json:"from_tier_id"`
	TierID            string            `json:"tier_id"`
	InstalledSkillIDs []string          `json:"installed_skill_ids"`
	PendingSkillIDs   []string          `json:"pending_skill_ids"`
	FailedSkillIDs    []string          `json:"failed_skill_ids"`
	Failures          map[string]string `json:"failures,omitempty"`
	Snapshot          Snapshot          `json:"snapshot"`
}

// Open loads a user's skills, access and recent events from the collaborator.
func Open(ctx context.Context, userID string, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	var (
		skills []skill.Skill
		access skill.UserAccess
		recent []notification.Event
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		skills, err = cfg.Client.FetchSkills(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch skills: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		access, err = cfg.Client.FetchUserAccess(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch user access: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		recent, err = cfg.Client.FetchRecentEvents(gctx)
		if err != nil {
			return fmt.Errorf("fetch recent events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("open session %s: %w", userID, err)
	}

	if access.UserID == "" {
		access.UserID = userID
	}

	events := notification.NewStore()
	for _, e := range recent {
		events.Record(e)
	}

	s := &Session{
		userID: userID,
		cfg:    cfg,
		logger: cfg.Logger.With("user_id", userID),
		events: events,
		snap:   NewSnapshot(access, skills),
	}
	s.touch()

	return s, nil
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch() {
	s.lastUsed.Store(s.cfg.Now().UnixNano())
}

// Busy reports whether any collaborator call is still in flight.
func (s *Session) Busy() bool {
	return s.Snapshot().PendingCount() > 0
}

func (s *Session) role() skill.Role {
	return s.Snapshot().access.Role
}

// Install installs skillID after the collaborator confirms. Installing an
// installed skill is rejected with ALREADY_INSTALLED and makes no call.
func (s *Session) Install(ctx context.Context, skillID string) (Snapshot, error) {
	return s.execute(ctx, attempt{
		op:        OpInstall,
		subjectID: skillID,
		call: func(ctx context.Context) outcome {
			res, err := s.cfg.Client.InstallSkill(ctx, s.userID, skillID)
			return outcomeOf(res.Success, res.Message, err)
		},
		confirm: func(snap Snapshot, _ outcome) Snapshot {
			return s.cfg.Machine.ConfirmInstall(snap, skillID)
		},
		orchestrate: collaborator.ActionInstall,
		event:       notification.TypeSkillInstalled,
		failedEvent: notification.TypeInstallFailed,
	})
}

// PrePurchase is tier-independent. On success the skill's savings count
// towards the dashboard and its preparation workflow starts at not_started.
func (s *Session) PrePurchase(ctx context.Context, skillID string) (Snapshot, error) {
	return s.execute(ctx, attempt{
		op:        OpPrePurchase,
		subjectID: skillID,
		call: func(ctx context.Context) outcome {
			res, err := s.cfg.Client.PrePurchaseSkill(ctx, s.userID, skillID)
			out := outcomeOf(res.Success, res.Error, err)
			out.discount = res.DiscountApplied
			return out
		},
		confirm: func(snap Snapshot, out outcome) Snapshot {
			return s.cfg.Machine.ConfirmPrePurchase(snap, skillID, out.discount)
		},
		orchestrate: collaborator.ActionPrePurchase,
		event:       notification.TypeSkillPrePurchased,
	})
}

// Wishlist toggles the wishlist flag. It is never rejected by entitlement.
func (s *Session) Wishlist(ctx context.Context, skillID string) (Snapshot, error) {
	return s.execute(ctx, attempt{
		op:        OpWishlist,
		subjectID: skillID,
		call: func(ctx context.Context) outcome {
			res, err := s.cfg.Client.WishlistSkill(ctx, s.userID, skillID)
			return outcomeOf(res.Success, res.Error, err)
		},
		confirm: func(snap Snapshot, _ outcome) Snapshot {
			return s.cfg.Machine.ConfirmWishlist(snap, skillID)
		},
		event: notification.TypeWishlistChanged,
	})
}

func (s *Session) StartTrial(ctx context.Context, skillID string) (Snapshot, error) {
	return s.execute(ctx, attempt{
		op:        OpTrial,
		subjectID: skillID,
		call: func(ctx context.Context) outcome {
			res, err := s.cfg.Client.StartTrial(ctx, s.userID, skillID)
			return outcomeOf(res.Success, res.Error, err)
		},
		confirm: func(snap Snapshot, _ outcome) Snapshot {
			return s.cfg.Machine.ConfirmTrial(snap, skillID)
		},
		orchestrate: collaborator.ActionTrial,
		event:       notification.TypeTrialStarted,
	})
}

// UpgradeTier moves the user to tierID and then auto-installs every skill the
// new tier makes eligible. Each install is independent: failures are listed
// in the result and never roll back the tier change or other installs.
func (s *Session) UpgradeTier(ctx context.Context, tierID string) (UpgradeResult, error) {
	s.touch()

	ctx, span := s.cfg.Tracer.Start(ctx, "lifecycle.tier_upgrade", trace.WithAttributes(
		attribute.String("user.id", s.userID),
		attribute.String("tier.id", tierID),
	))
	defer span.End()

	if err := s.begin(OpTierUpgrade, tierID); err != nil {
		core.SetSpanError(ctx, err)
		return UpgradeResult{Snapshot: s.Snapshot()}, err
	}

	callCtx := context.WithoutCancel(ctx)

	release, err := s.acquire(callCtx, OpTierUpgrade, tierID)
	if err != nil {
		snap := s.commit(func(snap Snapshot) Snapshot {
			return s.cfg.Machine.Abort(snap, OpTierUpgrade, tierID)
		})
		core.SetSpanError(ctx, err)
		return UpgradeResult{Snapshot: snap}, err
	}
	defer release()

	res, callErr := s.cfg.Client.UpgradeTier(callCtx, s.userID, tierID)
	if callErr != nil || !res.Success {
		snap := s.commit(func(snap Snapshot) Snapshot {
			return s.cfg.Machine.Abort(snap, OpTierUpgrade, tierID)
		})
		cerr := &CollaboratorError{
			Op:        OpTierUpgrade,
			SubjectID: tierID,
			Message:   failureText(res.Message, callErr),
			Err:       callErr,
		}
		s.logger.Warn("tier upgrade failed", "tier_id", tierID, "error", cerr.Message)
		core.SetSpanError(ctx, cerr)
		return UpgradeResult{Snapshot: snap}, cerr
	}

	var fromTierID string
	snap := s.commit(func(snap Snapshot) Snapshot {
		fromTierID = snap.access.TierID
		return s.cfg.Machine.ConfirmTierUpgrade(snap, tierID, res.UnlockedSkills)
	})

	s.orchestrate(callCtx, collaborator.OrchestrationPayload{
		UserID: s.userID,
		TierID: tierID,
		Action: collaborator.ActionTierUpgrade,
	}, s.cfg.Bundles.ResolveForTier(tierID))

	eligible := s.cfg.Machine.Rules().NewlyEligible(snap.Skills(), fromTierID, tierID)
	outcomes := s.installBatch(callCtx, eligible)

	result := UpgradeResult{
		FromTierID:        fromTierID,
		TierID:            tierID,
		InstalledSkillIDs: []string{},
		PendingSkillIDs:   []string{},
		FailedSkillIDs:    []string{},
	}
	for i, sk := range eligible {
		switch out := outcomes[i]; out.state {
		case batchInstalled:
			result.InstalledSkillIDs = append(result.InstalledSkillIDs, sk.ID)
		case batchPending:
			result.PendingSkillIDs = append(result.PendingSkillIDs, sk.ID)
		default:
			if result.Failures == nil {
				result.Failures = make(map[string]string)
			}
			result.FailedSkillIDs = append(result.FailedSkillIDs, sk.ID)
			result.Failures[sk.ID] = out.reason
		}
	}
	result.Snapshot = s.Snapshot()

	s.events.Record(notification.Event{
		Type: notification.TypeTierUpgraded,
		Data: map[string]any{
			"from_tier_id":     fromTierID,
			"tier_id":          tierID,
			"installed_skills": result.InstalledSkillIDs,
			"pending_skills":   result.PendingSkillIDs,
			"failed_skills":    result.FailedSkillIDs,
		},
	})

	span.SetAttributes(
		attribute.Int("upgrade.installed", len(result.InstalledSkillIDs)),
		attribute.Int("upgrade.pending", len(result.PendingSkillIDs)),
		attribute.Int("upgrade.failed", len(result.FailedSkillIDs)),
	)
	if len(result.FailedSkillIDs) > 0 {
		s.logger.Warn("tier upgrade partially installed",
			"tier_id", tierID,
			"failed", result.FailedSkillIDs,
		)
	}

	return result, nil
}

type batchState int

const (
	batchInstalled batchState = iota
	batchPending
	batchFailed
)

type batchOutcome struct {
	state  batchState
	reason string
}

// installBatch runs one install per skill and returns the outcome at the
// skill's index. A skill the user installed first counts as installed, and
// one whose install is still in flight counts as pending.
func (s *Session) installBatch(ctx context.Context, skills []skill.Skill) []batchOutcome {
	outcomes := make([]batchOutcome, len(skills))

	var g errgroup.Group
	g.SetLimit(s.cfg.UpgradeConcurrency)

	for i, sk := range skills {
		g.Go(func() error {
			_, err := s.Install(ctx, sk.ID)
			outcomes[i] = classifyBatchInstall(err)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return an error

	return outcomes
}

func classifyBatchInstall(err error) batchOutcome {
	if err == nil {
		return batchOutcome{state: batchInstalled}
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		switch rejected.Reason {
		case entitlement.ReasonAlreadyInstalled:
			return batchOutcome{state: batchInstalled}
		case entitlement.ReasonOperationInProgress:
			return batchOutcome{state: batchPending}
		}
	}
	return batchOutcome{state: batchFailed, reason: failureReason(err)}
}

// PreparationStatus polls the preparation workflow of skillID and records
// what it observed.
func (s *Session) PreparationStatus(ctx context.Context, skillID string) (skill.PreparationStatus, error) {
	s.touch()

	status, err := s.cfg.Client.FetchPreparationStatus(ctx, s.userID, skillID)
	if err != nil {
		return "", fmt.Errorf("fetch preparation status: %w: %w", core.ErrCollaboratorFailure, err)
	}
	if !status.Valid() {
		return "", fmt.Errorf("preparation status %q: %w", status, core.ErrCollaboratorFailure)
	}

	var previous skill.PreparationStatus
	s.commit(func(snap Snapshot) Snapshot {
		previous = snap.Preparation(skillID)
		return s.cfg.Machine.ObservePreparation(snap, skillID, status)
	})

	if previous != status {
		if !previous.CanAdvanceTo(status) {
			s.logger.Warn("preparation skipped a state",
				"skill_id", skillID,
				"from", previous,
				"to", status,
			)
		}
		s.events.Record(notification.Event{
			Type: notification.TypePreparationChange,
			Data: map[string]any{"skill_id": skillID, "from": string(previous), "to": string(status)},
		})
	}

	return status, nil
}

// Dashboard returns stats for the current snapshot. The cached value is
// dropped as soon as the snapshot changes.
func (s *Session) Dashboard() dashboard.Stats {
	s.touch()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.statsVersion != s.snap.version {
		s.stats = dashboard.Compute(s.snap.skills, s.snap.access, s.cfg.Bundles)
		s.statsVersion = s.snap.version
	}
	return s.stats
}

// ReconcileDashboard fetches the collaborator's stats and lists where they
// disagree with the local aggregation.
func (s *Session) ReconcileDashboard(ctx context.Context) (dashboard.Stats, []dashboard.Mismatch, error) {
	local := s.Dashboard()

	remote, err := s.cfg.Client.FetchDashboardStats(ctx, s.userID)
	if err != nil {
		return local, nil, fmt.Errorf("fetch dashboard stats: %w", err)
	}

	mismatches := dashboard.Reconcile(local, remote)
	if len(mismatches) > 0 {
		s.logger.Info("dashboard stats out of date", "mismatches", len(mismatches))
	}
	return local, mismatches, nil
}

func (s *Session) Notifications() []notification.Event {
	s.touch()
	return s.events.List(s.role())
}

func (s *Session) UnreadNotifications() int {
	return s.events.Unread(s.role())
}

func (s *Session) MarkNotificationRead(id string) bool {
	s.touch()
	return s.events.MarkRead(s.role(), id)
}

func (s *Session) ClearNotifications() {
	s.touch()
	s.events.ClearAll(s.role())
}

// outcome is what one collaborator call reported.
type outcome struct {
	ok       bool
	message  string
	err      error
	discount int
}

func outcomeOf(success bool, msg string, err error) outcome {
	if err == nil && success {
		return outcome{ok: true}
	}
	return outcome{message: failureText(msg, err), err: err}
}

type attempt struct {
	op          Operation
	subjectID   string
	call        func(ctx context.Context) outcome
	confirm     func(Snapshot, outcome) Snapshot
	orchestrate collaborator.Action
	event       string
	failedEvent string
}

func (s *Session) execute(ctx context.Context, a attempt) (Snapshot, error) {
	s.touch()

	ctx, span := s.cfg.Tracer.Start(ctx, "lifecycle."+string(a.op), trace.WithAttributes(
		attribute.String("user.id", s.userID),
		attribute.String("skill.id", a.subjectID),
	))
	defer span.End()

	if err := s.begin(a.op, a.subjectID); err != nil {
		core.SetSpanError(ctx, err)
		return s.Snapshot(), err
	}

	// Once issued, a call's result is always applied.
	callCtx := context.WithoutCancel(ctx)

	release, err := s.acquire(callCtx, a.op, a.subjectID)
	if err != nil {
		snap := s.commit(func(snap Snapshot) Snapshot {
			return s.cfg.Machine.Abort(snap, a.op, a.subjectID)
		})
		core.SetSpanError(ctx, err)
		return snap, err
	}
	defer release()

	out := a.call(callCtx)
	if !out.ok {
		snap := s.commit(func(snap Snapshot) Snapshot {
			return s.cfg.Machine.Abort(snap, a.op, a.subjectID)
		})
		cerr := &CollaboratorError{Op: a.op, SubjectID: a.subjectID, Message: out.message, Err: out.err}
		s.logger.Warn("collaborator rejected action",
			"op", a.op,
			"skill_id", a.subjectID,
			"error", out.message,
		)
		if a.failedEvent != "" {
			s.events.Record(notification.Event{
				Type: a.failedEvent,
				Data: map[string]any{"skill_id": a.subjectID, "message": out.message},
			})
		}
		core.SetSpanError(ctx, cerr)
		return snap, cerr
	}

	snap := s.commit(func(snap Snapshot) Snapshot {
		return a.confirm(snap, out)
	})

	if a.orchestrate != "" {
		s.orchestrate(callCtx, collaborator.OrchestrationPayload{
			UserID:  s.userID,
			SkillID: a.subjectID,
			Action:  a.orchestrate,
		}, s.cfg.Bundles.ResolveForInstall(a.subjectID))
	}

	if a.event != "" {
		data := map[string]any{"skill_id": a.subjectID}
		if a.op == OpWishlist {
			sk, _ := snap.Skill(a.subjectID)
			data["wishlisted"] = sk.Wishlisted
		}
		s.events.Record(notification.Event{Type: a.event, Data: data})
	}

	core.AddSpanEvent(ctx, "committed", attribute.Int64("snapshot.version", int64(snap.Version())))
	s.logger.Debug("action committed", "op", a.op, "skill_id", a.subjectID, "version", snap.Version())
	return snap, nil
}

func (s *Session) begin(op Operation, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, decision := s.cfg.Machine.Begin(s.snap, op, subjectID)
	if !decision.Allowed {
		return &RejectedError{Op: op, SubjectID: subjectID, Reason: decision.Reason}
	}
	s.snap = next
	return nil
}

func (s *Session) commit(fn func(Snapshot) Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = fn(s.snap)
	return s.snap
}

// acquire takes the cross-process lock for a call. A held lock rejects with
// OPERATION_IN_PROGRESS; any other lock failure is logged and the in-memory
// pending guard alone applies.
func (s *Session) acquire(ctx context.Context, op Operation, subjectID string) (func(), error) {
	noop := func() {}
	if s.cfg.Locker == nil {
		return noop, nil
	}

	key := s.userID + ":" + subjectID
	if op == OpTierUpgrade {
		key = s.userID + ":tier"
	}

	unlock, err := s.cfg.Locker.Acquire(ctx, key)
	if errors.Is(err, core.ErrLockConflict) {
		return nil, &RejectedError{Op: op, SubjectID: subjectID, Reason: entitlement.ReasonOperationInProgress}
	}
	if err != nil {
		s.logger.Warn("in-flight lock unavailable", "key", key, "error", err)
		core.AddSpanEvent(ctx, "lock.fail_open", attribute.String("lock.key", key))
		return noop, nil
	}

	return func() {
		if err := unlock(ctx); err != nil {
			s.logger.Warn("release in-flight lock", "key", key, "error", err)
		}
	}, nil
}

func (s *Session) orchestrate(ctx context.Context, payload collaborator.OrchestrationPayload, b permission.Bundle) {
	payload.Permissions = b.Permissions
	payload.TrustLevel = b.TrustLevel
	payload.DatasetAccess = b.DatasetAccess

	ack, err := s.cfg.Client.OrchestrateAssistantUpgrade(ctx, payload)
	if err != nil {
		s.logger.Warn("orchestrate assistant upgrade",
			"action", payload.Action,
			"error", err,
		)
		return
	}
	if !ack.Accepted {
		s.logger.Warn("assistant upgrade not accepted", "action", payload.Action, "ack_id", ack.ID)
	}
}

func failureText(msg string, err error) string {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return collaborator.FailureMessage(msg)
}

// failureReason is the text reported for one failed batch install.
func failureReason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return string(rejected.Reason)
	}
	var cerr *CollaboratorError
	if errors.As(err, &cerr) {
		return cerr.Message
	}
	return err.Error()
}
