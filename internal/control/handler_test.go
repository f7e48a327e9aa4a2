// AngelaMos | 2026
// handler_test.go

package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/acey-control-center/internal/collaborator/collaboratortest"
	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/entitlement"
	"github.com/carterperez-dev/acey-control-center/internal/lifecycle"
	"github.com/carterperez-dev/acey-control-center/internal/middleware"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

const bearer = "Bearer u1-token"

type tokens map[string]*middleware.AccessTokenClaims

func (t tokens) VerifyAccessToken(_ context.Context, token string) (*middleware.AccessTokenClaims, error) {
	if c, ok := t[token]; ok {
		return c, nil
	}
	return nil, core.ErrTokenInvalid
}

type envelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *core.AppError `json:"error"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func testSkills() []skill.Skill {
	return []skill.Skill{
		{ID: "chat-moderator", RequiredTierID: tier.Free, PriceCents: 1000},
		{ID: "stream-highlights", RequiredTierID: tier.Creator, PriceCents: 2000},
		{
			ID:              "poker-coach",
			RequiredTierID:  tier.Pro,
			PriceCents:      2500,
			DiscountPercent: 20,
			ReleaseDate:     time.Now().Add(30 * 24 * time.Hour),
		},
	}
}

func newServer(t *testing.T, fake *collaboratortest.Fake) http.Handler {
	t.Helper()

	cat, err := permission.LoadCatalog("")
	require.NoError(t, err)
	h, err := cat.Hierarchy()
	require.NoError(t, err)
	bundles := permission.NewResolver(cat)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := lifecycle.NewRegistry(lifecycle.Config{
		Client:  fake,
		Machine: lifecycle.NewMachine(entitlement.NewResolver(h)),
		Bundles: bundles,
		Logger:  logger,
	}, time.Hour)

	auth := middleware.Authenticator(tokens{
		"u1-token": {UserID: "u1", Role: "owner", Tier: tier.Free},
	})

	r := chi.NewRouter()
	NewHandler(registry, h, bundles, logger).RegisterRoutes(r, auth)
	return r
}

func newFake(tierID string) *collaboratortest.Fake {
	return collaboratortest.New(skill.UserAccess{
		UserID:         "u1",
		TierID:         tierID,
		Role:           skill.RoleOwner,
		TrialRemaining: 1,
	}, testSkills()...)
}

func call(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", bearer)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestPublicCatalogRoutes(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	req := httptest.NewRequest(http.MethodGet, "/v1/tiers", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	tiers := decode[[]tier.Tier](t, rec)
	require.Len(t, tiers.Data, 5)
	assert.Equal(t, tier.Free, tiers.Data[0].ID)
	assert.Equal(t, tier.Enterprise, tiers.Data[4].ID)

	req = httptest.NewRequest(http.MethodGet, "/v1/bundles/skills/not-in-catalog", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	bundle := decode[BundleResponse](t, rec)
	assert.False(t, bundle.Data.Known)
	assert.Equal(t, permission.NeutralTrustLevel, bundle.Data.TrustLevel)
	assert.Empty(t, bundle.Data.Permissions)

	req = httptest.NewRequest(http.MethodGet, "/v1/bundles/tiers/pro", nil)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	bundle = decode[BundleResponse](t, rec)
	assert.True(t, bundle.Data.Known)
	assert.Equal(t, "pro", bundle.Data.SubjectID)
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/skills", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListSkillsAndAccess(t *testing.T) {
	srv := newServer(t, newFake(tier.Creator))

	rec := call(srv, http.MethodGet, "/v1/skills", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[SkillListResponse](t, rec)
	require.Len(t, list.Data.Skills, 3)

	eligible := map[string]bool{}
	released := map[string]bool{}
	for _, sk := range list.Data.Skills {
		eligible[sk.ID] = sk.Eligible
		released[sk.ID] = sk.Released
	}
	assert.True(t, eligible["chat-moderator"])
	assert.True(t, eligible["stream-highlights"])
	assert.False(t, eligible["poker-coach"])
	assert.True(t, released["chat-moderator"])
	assert.False(t, released["poker-coach"])

	rec = call(srv, http.MethodGet, "/v1/access", "")
	require.Equal(t, http.StatusOK, rec.Code)
	access := decode[AccessResponse](t, rec)
	assert.Equal(t, tier.Creator, access.Data.TierID)
	assert.Equal(t, tier.Creator, access.Data.Tier.ID)
	assert.False(t, access.Data.PendingTierUpgrade)

	rec = call(srv, http.MethodGet, "/v1/skills/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstallThenReinstallConflicts(t *testing.T) {
	fake := newFake(tier.Free)
	srv := newServer(t, fake)

	rec := call(srv, http.MethodPost, "/v1/skills/chat-moderator/install", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ActionResponse](t, rec)
	assert.True(t, resp.Data.Skill.Installed)
	assert.Empty(t, resp.Data.Skill.Pending)

	rec = call(srv, http.MethodPost, "/v1/skills/chat-moderator/install", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[any](t, rec)
	require.NotNil(t, conflict.Error)
	assert.Equal(t, string(entitlement.ReasonAlreadyInstalled), conflict.Error.Code)

	assert.Equal(t, 1, fake.Calls(collaboratortest.MethodInstall, "chat-moderator"))
}

func TestInstallBelowTierConflicts(t *testing.T) {
	fake := newFake(tier.Free)
	srv := newServer(t, fake)

	rec := call(srv, http.MethodPost, "/v1/skills/stream-highlights/install", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(entitlement.ReasonTierRequired), decode[any](t, rec).Error.Code)
	assert.Zero(t, fake.Calls(collaboratortest.MethodInstall, "stream-highlights"))
}

func TestCollaboratorFailureIsBadGateway(t *testing.T) {
	fake := newFake(tier.Free)
	fake.Fail(collaboratortest.MethodInstall, "chat-moderator", collaboratortest.Failure{Message: "out of seats"})
	srv := newServer(t, fake)

	rec := call(srv, http.MethodPost, "/v1/skills/chat-moderator/install", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	env := decode[any](t, rec)
	assert.Equal(t, "out of seats", env.Error.Message)

	rec = call(srv, http.MethodGet, "/v1/skills/chat-moderator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SkillResponse](t, rec).Data.Installed)
}

func TestPrePurchaseAndPreparation(t *testing.T) {
	fake := newFake(tier.Free)
	fake.Preparation["poker-coach"] = []skill.PreparationStatus{
		skill.PreparationPreparing,
		skill.PreparationReady,
	}
	srv := newServer(t, fake)

	rec := call(srv, http.MethodPost, "/v1/skills/poker-coach/pre-purchase", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ActionResponse](t, rec)
	assert.True(t, resp.Data.Skill.PrePurchased)
	assert.Equal(t, skill.PreparationNotStarted, resp.Data.Skill.Preparation)

	rec = call(srv, http.MethodGet, "/v1/skills/poker-coach/preparation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, skill.PreparationPreparing, decode[PreparationResponse](t, rec).Data.Status)

	rec = call(srv, http.MethodGet, "/v1/skills/poker-coach/preparation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, skill.PreparationReady, decode[PreparationResponse](t, rec).Data.Status)

	rec = call(srv, http.MethodGet, "/v1/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[dashboard.Stats](t, rec)
	assert.Equal(t, int64(500), stats.Data.TotalSavings)
	assert.Equal(t, 1, stats.Data.PrePurchasedSkills)
}

func TestPreparationUnknownSkill(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	rec := call(srv, http.MethodGet, "/v1/skills/nope/preparation", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreparationCollaboratorDown(t *testing.T) {
	fake := newFake(tier.Free)
	fake.Fail(collaboratortest.MethodPreparation, "poker-coach", collaboratortest.Failure{})
	srv := newServer(t, fake)

	rec := call(srv, http.MethodGet, "/v1/skills/poker-coach/preparation", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWishlistToggles(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	rec := call(srv, http.MethodPost, "/v1/skills/poker-coach/wishlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ActionResponse](t, rec).Data.Skill.Wishlisted)

	rec = call(srv, http.MethodPost, "/v1/skills/poker-coach/wishlist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ActionResponse](t, rec).Data.Skill.Wishlisted)
}

func TestTrialAllowanceExhausted(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	rec := call(srv, http.MethodPost, "/v1/skills/stream-highlights/trial", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ActionResponse](t, rec).Data.Skill.TrialActive)

	rec = call(srv, http.MethodPost, "/v1/skills/poker-coach/trial", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(entitlement.ReasonNoTrialRemaining), decode[any](t, rec).Error.Code)
}

func TestUpgradeTierValidation(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	rec := call(srv, http.MethodPost, "/v1/tier/upgrade", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(srv, http.MethodPost, "/v1/tier/upgrade", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[any](t, rec).Error.Message, "required")

	rec = call(srv, http.MethodPost, "/v1/tier/upgrade", `{"tier_id":"platinum"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(entitlement.ReasonUnknownTier), decode[any](t, rec).Error.Code)
}

func TestUpgradeTierPartialFailure(t *testing.T) {
	fake := newFake(tier.Free)
	fake.Fail(collaboratortest.MethodInstall, "poker-coach", collaboratortest.Failure{Message: "region locked"})
	srv := newServer(t, fake)

	rec := call(srv, http.MethodPost, "/v1/tier/upgrade", `{"tier_id":"pro"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[lifecycleUpgrade](t, rec).Data
	assert.Equal(t, tier.Free, result.FromTierID)
	assert.Equal(t, tier.Pro, result.TierID)
	assert.Equal(t, []string{"stream-highlights"}, result.InstalledSkillIDs)
	assert.Equal(t, []string{"poker-coach"}, result.FailedSkillIDs)
	assert.Empty(t, result.PendingSkillIDs)
	assert.Equal(t, "region locked", result.Failures["poker-coach"])

	rec = call(srv, http.MethodGet, "/v1/access", "")
	assert.Equal(t, tier.Pro, decode[AccessResponse](t, rec).Data.TierID)
}

// lifecycleUpgrade mirrors lifecycle.UpgradeResult without the snapshot,
// which only marshals.
type lifecycleUpgrade struct {
	FromTierID        string            `json:"from_tier_id"`
	TierID            string            `json:"tier_id"`
	InstalledSkillIDs []string          `json:"installed_skill_ids"`
	PendingSkillIDs   []string          `json:"pending_skill_ids"`
	FailedSkillIDs    []string          `json:"failed_skill_ids"`
	Failures          map[string]string `json:"failures"`
}

func TestReconcileReportsDrift(t *testing.T) {
	fake := newFake(tier.Free)
	fake.Stats = dashboard.Stats{InstalledSkills: 4}
	srv := newServer(t, fake)

	rec := call(srv, http.MethodGet, "/v1/dashboard/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReconcileResponse](t, rec).Data
	assert.False(t, resp.InSync)
	require.NotEmpty(t, resp.Mismatches)
	assert.Equal(t, int64(0), resp.Mismatches[0].Local)
}

func TestNotificationsLifecycle(t *testing.T) {
	srv := newServer(t, newFake(tier.Free))

	rec := call(srv, http.MethodPost, "/v1/skills/chat-moderator/install", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(srv, http.MethodGet, "/v1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[NotificationListResponse](t, rec).Data
	require.Len(t, list.Events, 1)
	assert.Equal(t, notification.TypeSkillInstalled, list.Events[0].Type)
	assert.Equal(t, 1, list.Unread)

	rec = call(srv, http.MethodPost, "/v1/notifications/"+list.Events[0].ID+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[MarkReadResponse](t, rec).Data.Marked)

	rec = call(srv, http.MethodPost, "/v1/notifications/missing/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[MarkReadResponse](t, rec).Data.Marked)

	rec = call(srv, http.MethodDelete, "/v1/notifications", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(srv, http.MethodGet, "/v1/notifications", "")
	assert.Empty(t, decode[NotificationListResponse](t, rec).Data.Events)
}

func TestSessionOpenFailureIsBadGateway(t *testing.T) {
	fake := newFake(tier.Free)
	fake.Fail(collaboratortest.MethodFetchSkills, "u1", collaboratortest.Failure{})
	srv := newServer(t, fake)

	rec := call(srv, http.MethodGet, "/v1/skills", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
