// AngelaMos | 2026
// lock.go

package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/acey-control-center/internal/core"
)

const lockKeyPrefix = "acey:inflight:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a Redis SET NX lock keyed per in-flight collaborator call. The
// TTL bounds how long a crashed holder can block a key.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

func (l *Locker) Acquire(
	ctx context.Context,
	key string,
) (func(context.Context) error, error) {
	token, err := core.GenerateSecureToken(16)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	redisKey := lockKeyPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock %s: %w", key, core.ErrLockConflict)
	}

	release := func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("release lock %s: %w", key, core.ErrLockNotHeld)
		}
		return nil
	}

	return release, nil
}
