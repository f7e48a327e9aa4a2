// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/tier"
)

const (
	ipKeyPrefix   = "acey:ratelimit:ip:"
	userKeyPrefix = "acey:ratelimit:user:"
	bucketIdleTTL = 10 * time.Minute
)

// Limiter enforces request allowances in Redis. While Redis is unreachable
// each key falls back to an in-process token bucket, so a replica never
// admits more than one allowance per key on its own.
type Limiter struct {
	store    *redis_rate.Limiter
	fallback *localBuckets
	logger   *slog.Logger
}

func NewLimiter(rdb *redis.Client, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:    redis_rate.NewLimiter(rdb),
		fallback: newLocalBuckets(time.Now),
		logger:   logger,
	}
}

// PerIP limits every request by client address. chi's RealIP has to run
// earlier in the chain for proxied clients to be told apart.
func (l *Limiter) PerIP(limit redis_rate.Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.admit(w, r, ipKeyPrefix+clientIP(r), limit) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// PerTier limits authenticated requests per user at the allowance of the
// tier carried in the caller's token.
func (l *Limiter) PerTier(limits *TierLimits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tierID, limit := limits.For(GetUserTier(r.Context()))
			w.Header().Set("X-RateLimit-Tier", tierID)

			key := ipKeyPrefix + clientIP(r)
			if userID := GetUserID(r.Context()); userID != "" {
				key = userKeyPrefix + userID
			}

			if l.admit(w, r, key, limit) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (l *Limiter) admit(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	limit redis_rate.Limit,
) bool {
	res, err := l.store.Allow(r.Context(), key, limit)
	if err != nil {
		l.logger.Debug("rate limit store unavailable, using local bucket",
			"key", key,
			"error", err,
		)
		res = l.fallback.allow(key, limit)
	}

	writeLimitHeaders(w, res)
	if res.Allowed > 0 {
		return true
	}

	retryAfter := max(int(res.RetryAfter.Seconds()), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSONError(w, core.NewAppError(
		http.StatusTooManyRequests,
		"RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retryAfter),
	))
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeLimitHeaders(w http.ResponseWriter, res *redis_rate.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d",
		res.Limit.Rate, int(res.Limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d",
		res.Remaining, int(res.ResetAfter.Seconds())))
}

// TierLimits maps each catalog tier to its request allowance. The lowest
// tier gets the base allowance and every tier above it one more base
// allowance per step, so a catalog that adds a tier needs no code change.
type TierLimits struct {
	byTier map[string]redis_rate.Limit
	floor  string
}

func NewTierLimits(h *tier.Hierarchy, base redis_rate.Limit) *TierLimits {
	tiers := h.Tiers()
	limits := &TierLimits{
		byTier: make(map[string]redis_rate.Limit, len(tiers)),
		floor:  tiers[0].ID,
	}
	for step, t := range tiers {
		limits.byTier[t.ID] = redis_rate.Limit{
			Rate:   base.Rate * (step + 1),
			Burst:  base.Burst * (step + 1),
			Period: base.Period,
		}
	}
	return limits
}

// For returns the allowance for tierID. Ids the catalog does not know get
// the lowest tier's allowance.
func (t *TierLimits) For(tierID string) (string, redis_rate.Limit) {
	if limit, ok := t.byTier[tierID]; ok {
		return tierID, limit
	}
	return t.floor, t.byTier[t.floor]
}

// Allowance builds a limit of requests per window.
func Allowance(requests, burst int, window time.Duration) redis_rate.Limit {
	return redis_rate.Limit{Rate: requests, Burst: burst, Period: window}
}

type bucket struct {
	limiter  *rate.Limiter
	limit    redis_rate.Limit
	lastSeen time.Time
}

type localBuckets struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
	now       func() time.Time
}

func newLocalBuckets(now func() time.Time) *localBuckets {
	return &localBuckets{
		buckets:   make(map[string]*bucket),
		lastPrune: now(),
		now:       now,
	}
}

func (b *localBuckets) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	now := b.now()
	interval := time.Duration(float64(limit.Period) / float64(limit.Rate))

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastPrune) > bucketIdleTTL {
		for k, bk := range b.buckets {
			if now.Sub(bk.lastSeen) > bucketIdleTTL {
				delete(b.buckets, k)
			}
		}
		b.lastPrune = now
	}

	bk, ok := b.buckets[key]
	if !ok || bk.limit != limit {
		bk = &bucket{
			limiter: rate.NewLimiter(rate.Every(interval), limit.Burst),
			limit:   limit,
		}
		b.buckets[key] = bk
	}
	bk.lastSeen = now

	res := &redis_rate.Result{Limit: limit, ResetAfter: interval, RetryAfter: interval}
	if bk.limiter.AllowN(now, 1) {
		res.Allowed = 1
		res.RetryAfter = -1
	}
	res.Remaining = max(int(bk.limiter.TokensAt(now)), 0)
	return res
}

func (b *localBuckets) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets)
}
