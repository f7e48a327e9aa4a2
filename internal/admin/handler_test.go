// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/middleware"
)

type tokenTable map[string]*middleware.AccessTokenClaims

func (t tokenTable) VerifyAccessToken(_ context.Context, token string) (*middleware.AccessTokenClaims, error) {
	if c, ok := t[token]; ok {
		return c, nil
	}
	return nil, core.ErrTokenInvalid
}

type fakeSessions struct {
	open    int
	swept   int
	evicted []string
}

func (f *fakeSessions) Len() int { return f.open }

func (f *fakeSessions) Sweep() int {
	f.swept++
	f.open = 0
	return 2
}

func (f *fakeSessions) Evict(userID string) bool {
	if userID != "u1" {
		return false
	}
	f.evicted = append(f.evicted, userID)
	return true
}

func newRouter(sessions Sessions) chi.Router {
	tokens := tokenTable{
		"owner-token": {UserID: "o1", Role: "owner", Tier: "pro"},
		"user-token":  {UserID: "u1", Role: "user", Tier: "free"},
	}
	r := chi.NewRouter()
	NewHandler(HandlerConfig{Sessions: sessions}).
		RegisterRoutes(r, middleware.Authenticator(tokens), middleware.RequireOwner)
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresOwner(t *testing.T) {
	r := newRouter(&fakeSessions{})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin/stats", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin/stats", "user-token").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin/stats", "owner-token").Code)
}

func TestSystemStatsReportsSessions(t *testing.T) {
	r := newRouter(&fakeSessions{open: 3})

	rec := do(r, http.MethodGet, "/admin/stats", "owner-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data SystemStatsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 3, body.Data.Sessions.Open)
	assert.True(t, body.Data.Database.Healthy)
	assert.Nil(t, body.Data.Database.Stats)
	assert.NotEmpty(t, body.Data.Runtime.GoVersion)
}

func TestSweepSessions(t *testing.T) {
	sessions := &fakeSessions{open: 5}
	r := newRouter(sessions)

	rec := do(r, http.MethodPost, "/admin/sessions/sweep", "owner-token")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data SweepResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Data.Evicted)
	assert.Equal(t, 0, body.Data.Open)
	assert.Equal(t, 1, sessions.swept)
}

func TestSweepSessionsIsRateLimited(t *testing.T) {
	r := newRouter(&fakeSessions{})

	for range sweepLimit {
		require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/sessions/sweep", "owner-token").Code)
	}

	rec := do(r, http.MethodPost, "/admin/sessions/sweep", "owner-token")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestEvictSession(t *testing.T) {
	sessions := &fakeSessions{open: 1}
	r := newRouter(sessions)

	rec := do(r, http.MethodDelete, "/admin/sessions/u1", "owner-token")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"u1"}, sessions.evicted)

	rec = do(r, http.MethodDelete, "/admin/sessions/nobody", "owner-token")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(r, http.MethodDelete, "/admin/sessions/u1", "user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
