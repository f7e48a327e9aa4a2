// AngelaMos | 2026
// redis_test.go

package platform

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/acey-control-center/internal/collaborator"
	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}

func TestPreparationAdvancesOneStepPerPoll(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewPreparationTracker(client, time.Hour)
	ctx := context.Background()

	status, err := tracker.Poll(ctx, "u1", "poker-coach")
	require.NoError(t, err)
	assert.Equal(t, skill.PreparationNotStarted, status)

	require.NoError(t, tracker.Start(ctx, "u1", "poker-coach"))
	stored, err := mr.Get(preparationKey("u1", "poker-coach"))
	require.NoError(t, err)
	assert.Equal(t, string(skill.PreparationNotStarted), stored)
	assert.Positive(t, mr.TTL(preparationKey("u1", "poker-coach")))

	want := []skill.PreparationStatus{
		skill.PreparationPreparing,
		skill.PreparationReady,
		skill.PreparationReady,
	}
	previous := skill.PreparationNotStarted
	for _, w := range want {
		status, err := tracker.Poll(ctx, "u1", "poker-coach")
		require.NoError(t, err)
		assert.Equal(t, w, status)
		assert.True(t, previous.CanAdvanceTo(status))
		previous = status
	}
}

func TestPreparationIsPerPurchase(t *testing.T) {
	_, client := newTestRedis(t)
	tracker := NewPreparationTracker(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, tracker.Start(ctx, "u1", "poker-coach"))
	for range 2 {
		_, err := tracker.Poll(ctx, "u1", "poker-coach")
		require.NoError(t, err)
	}

	require.NoError(t, tracker.Start(ctx, "u2", "poker-coach"))
	status, err := tracker.Poll(ctx, "u2", "poker-coach")
	require.NoError(t, err)
	assert.Equal(t, skill.PreparationPreparing, status)

	status, err = tracker.Poll(ctx, "u1", "poker-coach")
	require.NoError(t, err)
	assert.Equal(t, skill.PreparationReady, status)
}

func TestPreparationStartDoesNotReset(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewPreparationTracker(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, tracker.Start(ctx, "u1", "s1"))
	_, err := tracker.Poll(ctx, "u1", "s1")
	require.NoError(t, err)
	require.NoError(t, tracker.Start(ctx, "u1", "s1"))

	stored, err := mr.Get(preparationKey("u1", "s1"))
	require.NoError(t, err)
	assert.Equal(t, string(skill.PreparationPreparing), stored)
}

func TestPreparationFailedIsTerminal(t *testing.T) {
	_, client := newTestRedis(t)
	tracker := NewPreparationTracker(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, tracker.Start(ctx, "u1", "s1"))
	require.NoError(t, tracker.Fail(ctx, "u1", "s1"))

	for range 2 {
		status, err := tracker.Poll(ctx, "u1", "s1")
		require.NoError(t, err)
		assert.Equal(t, skill.PreparationFailed, status)
	}
}

func TestPreparationFailWithoutStart(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewPreparationTracker(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, tracker.Fail(ctx, "u1", "s1"))
	assert.Positive(t, mr.TTL(preparationKey("u1", "s1")))

	status, err := tracker.Poll(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, skill.PreparationFailed, status)
}

func TestPreparationRejectsCorruptStatus(t *testing.T) {
	mr, client := newTestRedis(t)
	tracker := NewPreparationTracker(client, time.Hour)
	require.NoError(t, mr.Set(preparationKey("u1", "s1"), "bogus"))

	_, err := tracker.Poll(context.Background(), "u1", "s1")
	assert.Error(t, err)
}

func TestOrchestratorAppendsToStream(t *testing.T) {
	_, client := newTestRedis(t)
	orch := NewOrchestrator(client, 100)
	ctx := context.Background()

	payload := collaborator.OrchestrationPayload{
		UserID:        "u1",
		SkillID:       "chat-moderator",
		Action:        collaborator.ActionInstall,
		Permissions:   []string{"chat.moderate"},
		TrustLevel:    1,
		DatasetAccess: []string{"chat_history"},
	}

	ack, err := orch.Publish(ctx, payload)
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.NotEmpty(t, ack.ID)

	entries, err := client.XRange(ctx, OrchestrationStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ack.ID, entries[0].ID)
	assert.Equal(t, "install", entries[0].Values["action"])

	var decoded collaborator.OrchestrationPayload
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &decoded))
	assert.Equal(t, payload, decoded)
}

func TestEventLogKeepsMostRecent(t *testing.T) {
	_, client := newTestRedis(t)
	log := NewEventLog(client, 2)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "skill_installed", map[string]any{"skill_id": "a"}))
	require.NoError(t, log.Append(ctx, "skill_installed", map[string]any{"skill_id": "b"}))
	require.NoError(t, log.Append(ctx, "tier_upgraded", map[string]any{"tier_id": "pro"}))

	events, err := log.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].Data["skill_id"])
	assert.Equal(t, "tier_upgraded", events[1].Type)
	assert.NotEmpty(t, events[1].ID)
}

func TestEventLogEmpty(t *testing.T) {
	_, client := newTestRedis(t)

	events, err := NewEventLog(client, 10).Recent(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	_, client := newTestRedis(t)
	locker := NewLocker(client, time.Minute)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "u1:s1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "u1:s1")
	assert.ErrorIs(t, err, core.ErrLockConflict)

	other, err := locker.Acquire(ctx, "u1:s2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, "u1:s1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLockerReleaseAfterExpiryIsReported(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client, time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "u1:s1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	next, err := locker.Acquire(ctx, "u1:s1")
	require.NoError(t, err)

	assert.ErrorIs(t, release(ctx), core.ErrLockNotHeld)
	require.NoError(t, next(ctx))
}
