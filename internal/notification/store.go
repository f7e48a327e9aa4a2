// AngelaMos | 2026
// store.go

package notification

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

const (
	TypeSkillInstalled    = "skill_installed"
	TypeInstallFailed     = "install_failed"
	TypeSkillPrePurchased = "skill_pre_purchased"
	TypeWishlistChanged   = "wishlist_changed"
	TypeTrialStarted      = "trial_started"
	TypeTierUpgraded      = "tier_upgraded"
	TypePreparationChange = "preparation_changed"
)

const readKey = "read"

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e Event) Read() bool {
	read, _ := e.Data[readKey].(bool)
	return read
}

func (e Event) clone() Event {
	out := e
	out.Data = maps.Clone(e.Data)
	return out
}

// Store is an append-only event log kept in insertion order (newest last).
// Reads are visible to owners only; other roles see an empty log.
type Store struct {
	mu     sync.RWMutex
	events []Event
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Record appends e, filling in a missing id, timestamp or read flag.
func (s *Store) Record(e Event) Event {
	e = e.clone()
	if e.Data == nil {
		e.Data = make(map[string]any, 1)
	}
	if _, ok := e.Data[readKey]; !ok {
		e.Data[readKey] = false
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()

	return e.clone()
}

// MarkRead flips the read flag of one event and touches nothing else.
// It reports whether the event was found.
func (s *Store) MarkRead(role skill.Role, id string) bool {
	if !role.IsOwner() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != id {
			continue
		}
		data := maps.Clone(s.events[i].Data)
		data[readKey] = true
		s.events[i].Data = data
		return true
	}
	return false
}

func (s *Store) ClearAll(role skill.Role) {
	if !role.IsOwner() {
		return
	}

	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

func (s *Store) List(role skill.Role) []Event {
	if !role.IsOwner() {
		return []Event{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.clone())
	}
	return out
}

func (s *Store) Unread(role skill.Role) int {
	if !role.IsOwner() {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if !e.Read() {
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
