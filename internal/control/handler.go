// AngelaMos | 2026
// handler.go

package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/lifecycle"
	"github.com/carterperez-dev/acey-control-center/internal/middleware"
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

// Sessions hands out the live session of a user, opening it on first use.
type Sessions interface {
	Get(ctx context.Context, userID string) (*lifecycle.Session, error)
}

type Handler struct {
	sessions  Sessions
	tiers     *tier.Hierarchy
	bundles   *permission.Resolver
	validator *validator.Validate
	logger    *slog.Logger
}

func NewHandler(
	sessions Sessions,
	tiers *tier.Hierarchy,
	bundles *permission.Resolver,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sessions:  sessions,
		tiers:     tiers,
		bundles:   bundles,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	limiters ...func(http.Handler) http.Handler,
) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/tiers", h.ListTiers)
		r.Get("/bundles/tiers/{tierID}", h.GetTierBundle)
		r.Get("/bundles/skills/{skillID}", h.GetSkillBundle)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Use(limiters...)

			r.Get("/access", h.GetAccess)

			r.Get("/skills", h.ListSkills)
			r.Get("/skills/{skillID}", h.GetSkill)
			r.Post("/skills/{skillID}/install", h.Install)
			r.Post("/skills/{skillID}/pre-purchase", h.PrePurchase)
			r.Post("/skills/{skillID}/wishlist", h.Wishlist)
			r.Post("/skills/{skillID}/trial", h.StartTrial)
			r.Get("/skills/{skillID}/preparation", h.GetPreparation)

			r.Post("/tier/upgrade", h.UpgradeTier)

			r.Get("/dashboard", h.GetDashboard)
			r.Get("/dashboard/reconcile", h.ReconcileDashboard)

			r.Get("/notifications", h.ListNotifications)
			r.Post("/notifications/{eventID}/read", h.MarkNotificationRead)
			r.Delete("/notifications", h.ClearNotifications)
		})
	})
}

func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.tiers.Tiers())
}

// GetTierBundle answers with the neutral bundle for ids the catalog does
// not know.
func (h *Handler) GetTierBundle(w http.ResponseWriter, r *http.Request) {
	tierID := chi.URLParam(r, "tierID")
	core.OK(w, BundleResponse{
		Bundle: h.bundles.ResolveForTier(tierID),
		Known:  h.tiers.Known(tierID),
	})
}

func (h *Handler) GetSkillBundle(w http.ResponseWriter, r *http.Request) {
	skillID := chi.URLParam(r, "skillID")
	core.OK(w, BundleResponse{
		Bundle: h.bundles.ResolveForSkill(skillID),
		Known:  h.bundles.KnowsSkill(skillID),
	})
}

func (h *Handler) GetAccess(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	core.OK(w, toAccessResponse(s.Snapshot(), h.tiers))
}

func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	core.OK(w, toSkillList(s.Snapshot(), h.tiers, time.Now()))
}

func (h *Handler) GetSkill(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap := s.Snapshot()
	sk, found := snap.Skill(chi.URLParam(r, "skillID"))
	if !found {
		core.NotFound(w, "skill")
		return
	}

	core.OK(w, toSkillResponse(snap, sk, h.tiers, time.Now()))
}

func (h *Handler) Install(w http.ResponseWriter, r *http.Request) {
	h.skillAction(w, r, (*lifecycle.Session).Install)
}

func (h *Handler) PrePurchase(w http.ResponseWriter, r *http.Request) {
	h.skillAction(w, r, (*lifecycle.Session).PrePurchase)
}

func (h *Handler) Wishlist(w http.ResponseWriter, r *http.Request) {
	h.skillAction(w, r, (*lifecycle.Session).Wishlist)
}

func (h *Handler) StartTrial(w http.ResponseWriter, r *http.Request) {
	h.skillAction(w, r, (*lifecycle.Session).StartTrial)
}

type skillActionFunc func(*lifecycle.Session, context.Context, string) (lifecycle.Snapshot, error)

func (h *Handler) skillAction(w http.ResponseWriter, r *http.Request, action skillActionFunc) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	skillID := chi.URLParam(r, "skillID")
	snap, err := action(s, r.Context(), skillID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sk, _ := snap.Skill(skillID)
	core.OK(w, ActionResponse{
		Skill:   toSkillResponse(snap, sk, h.tiers, time.Now()),
		Version: snap.Version(),
	})
}

func (h *Handler) GetPreparation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	skillID := chi.URLParam(r, "skillID")
	if _, found := s.Snapshot().Skill(skillID); !found {
		core.NotFound(w, "skill")
		return
	}

	status, err := s.PreparationStatus(r.Context(), skillID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, PreparationResponse{SkillID: skillID, Status: status})
}

// UpgradeTier answers 200 even when some auto-installs failed; the result
// lists them.
func (h *Handler) UpgradeTier(w http.ResponseWriter, r *http.Request) {
	var req UpgradeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	result, err := s.UpgradeTier(r.Context(), req.TierID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	core.OK(w, result)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	core.OK(w, s.Dashboard())
}

func (h *Handler) ReconcileDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	local, mismatches, err := s.ReconcileDashboard(r.Context())
	if err != nil {
		h.logger.Warn("reconcile dashboard", "user_id", s.UserID(), "error", err)
		core.BadGateway(w, "dashboard stats unavailable")
		return
	}

	if mismatches == nil {
		mismatches = []dashboard.Mismatch{}
	}
	core.OK(w, ReconcileResponse{
		Local:      local,
		Mismatches: mismatches,
		InSync:     len(mismatches) == 0,
	})
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	core.OK(w, NotificationListResponse{
		Events: s.Notifications(),
		Unread: s.UnreadNotifications(),
	})
}

// MarkNotificationRead reports marked=false for unknown ids and for callers
// who are not the owner.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	core.OK(w, MarkReadResponse{Marked: s.MarkNotificationRead(chi.URLParam(r, "eventID"))})
}

func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	s.ClearNotifications()
	core.NoContent(w)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*lifecycle.Session, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		core.JSONError(w, core.UnauthorizedError("authentication required"))
		return nil, false
	}

	s, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("open session", "user_id", userID, "error", err)
		core.BadGateway(w, "entitlements unavailable")
		return nil, false
	}

	return s, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rejected *lifecycle.RejectedError
	if errors.As(err, &rejected) {
		core.Conflict(w, string(rejected.Reason), err.Error())
		return
	}

	var cerr *lifecycle.CollaboratorError
	if errors.As(err, &cerr) {
		core.BadGateway(w, cerr.Message)
		return
	}

	if errors.Is(err, core.ErrCollaboratorFailure) {
		h.logger.Warn("collaborator failure", "error", err)
		core.BadGateway(w, "collaborator request failed")
		return
	}

	core.InternalServerError(w, err)
}
