// AngelaMos | 2026
// preparation.go

package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

const preparationKeyPrefix = "acey:prep:"

// PreparationTracker runs one preparation workflow per pre-purchase in
// Redis, keyed by user and skill. Each poll advances a running workflow by
// exactly one state, so a buyer always observes not_started, preparing,
// ready in order.
type PreparationTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPreparationTracker(client *redis.Client, ttl time.Duration) *PreparationTracker {
	return &PreparationTracker{client: client, ttl: ttl}
}

func preparationKey(userID, skillID string) string {
	return preparationKeyPrefix + userID + ":" + skillID
}

// Start puts the workflow at not_started unless it already exists.
func (p *PreparationTracker) Start(ctx context.Context, userID, skillID string) error {
	err := p.client.SetNX(ctx, preparationKey(userID, skillID), string(skill.PreparationNotStarted), p.ttl).Err()
	if err != nil {
		return fmt.Errorf("start preparation: %w", err)
	}
	return nil
}

// Fail moves the workflow to failed, creating it if Start never ran.
func (p *PreparationTracker) Fail(ctx context.Context, userID, skillID string) error {
	err := p.client.Set(ctx, preparationKey(userID, skillID), string(skill.PreparationFailed), p.ttl).Err()
	if err != nil {
		return fmt.Errorf("fail preparation: %w", err)
	}
	return nil
}

// Poll advances the workflow one step and returns the new status. Skills
// with no workflow report not_started.
func (p *PreparationTracker) Poll(ctx context.Context, userID, skillID string) (skill.PreparationStatus, error) {
	key := preparationKey(userID, skillID)
	var status skill.PreparationStatus

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			status = skill.PreparationNotStarted
			return nil
		}
		if err != nil {
			return err
		}

		current := skill.PreparationStatus(raw)
		if !current.Valid() {
			return fmt.Errorf("stored status %q is invalid", raw)
		}

		status = current.Next()
		if status == current {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, string(status), redis.KeepTTL)
			return nil
		})
		return err
	}

	const maxRetries = 3
	for range maxRetries {
		err := p.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("poll preparation: %w", err)
		}
		return status, nil
	}

	return "", fmt.Errorf("poll preparation: %w", redis.TxFailedErr)
}
