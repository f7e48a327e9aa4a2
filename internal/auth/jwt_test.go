// AngelaMos | 2026
// jwt_test.go

package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/acey-control-center/internal/config"
	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

func newTestManager(t *testing.T, expire time.Duration) *JWTManager {
	t.Helper()
	dir := t.TempDir()
	cfg := config.JWTConfig{
		PrivateKeyPath:    filepath.Join(dir, "private.pem"),
		PublicKeyPath:     filepath.Join(dir, "public.pem"),
		AccessTokenExpire: expire,
		Issuer:            "acey-control-center",
		Audience:          "acey-control-center-api",
	}
	require.NoError(t, GenerateKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath))

	m, err := NewJWTManager(cfg)
	require.NoError(t, err)
	return m
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Minute)

	token, err := m.CreateAccessToken(AccessTokenClaims{
		UserID: "u1",
		Role:   skill.RoleOwner,
		Tier:   tier.CreatorPlus,
	})
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "owner", claims.Role)
	assert.Equal(t, tier.CreatorPlus, claims.Tier)
	assert.NotEmpty(t, m.GetKeyID())
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	m := newTestManager(t, time.Minute)

	token, err := m.CreateAccessToken(AccessTokenClaims{UserID: "u1", Role: "admin", Tier: tier.Free})
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	issuer := newTestManager(t, time.Minute)
	verifier := newTestManager(t, time.Minute)

	token, err := issuer.CreateAccessToken(AccessTokenClaims{UserID: "u1", Role: skill.RoleUser, Tier: tier.Free})
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(context.Background(), token)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t, -time.Minute)

	token, err := m.CreateAccessToken(AccessTokenClaims{UserID: "u1", Role: skill.RoleUser, Tier: tier.Free})
	require.NoError(t, err)

	_, err = m.VerifyAccessToken(context.Background(), token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := newTestManager(t, time.Minute)

	_, err := m.VerifyAccessToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}
