// AngelaMos | 2026
// registry.go

package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Registry keeps one Session per user. Sessions are opened on first use and
// dropped after sitting idle for longer than the configured TTL.
type Registry struct {
	cfg     Config
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	opening  singleflight.Group
}

func NewRegistry(cfg Config, idleTTL time.Duration) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		idleTTL:  idleTTL,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, opening it if needed. Concurrent first
// calls for the same user share one Open. A returned session is marked used
// while the registry lock is held, so a concurrent Sweep cannot drop it.
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	if s, ok := r.lookup(userID); ok {
		return s, nil
	}

	v, err, _ := r.opening.Do(userID, func() (any, error) {
		if existing, ok := r.lookup(userID); ok {
			return existing, nil
		}

		opened, err := Open(context.WithoutCancel(ctx), userID, r.cfg)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		opened.touch()
		r.sessions[userID] = opened
		r.mu.Unlock()

		return opened, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return v.(*Session), nil //nolint:forcetypeassert // Do only returns *Session
}

func (r *Registry) lookup(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if ok {
		s.touch()
	}
	return s, ok
}

func (r *Registry) Evict(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[userID]; !ok {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Sweep drops idle sessions and returns how many it removed. Sessions with a
// collaborator call in flight are kept so late results are not lost.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.cfg.Now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if s.Busy() || s.LastUsed().After(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}

	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.cfg.Logger.Debug("evicted idle sessions", "count", n)
			}
		}
	}
}
