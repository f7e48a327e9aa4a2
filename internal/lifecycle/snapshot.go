// AngelaMos | 2026
// snapshot.go

package lifecycle

import (
	"encoding/json"
	"maps"

	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

type Operation string

const (
	OpInstall     Operation = "install"
	OpPrePurchase Operation = "pre_purchase"
	OpWishlist    Operation = "wishlist"
	OpTrial       Operation = "trial"
	OpTierUpgrade Operation = "tier_upgrade"
)

// tierPendingKey holds the pending tier upgrade; it cannot collide with a
// skill id coming from the catalog.
const tierPendingKey = "\x00tier"

// Snapshot is the immutable state of one user session. Every transition
// returns a new Snapshot; values handed out never alias internal storage.
//
// Pending entries are the tentative half of the two-phase commit: an action
// is pending while its collaborator call is in flight, and skill flags only
// change once the call is confirmed.
type Snapshot struct {
	version     uint64
	access      skill.UserAccess
	skills      []skill.Skill
	index       map[string]int
	pending     map[string]Operation
	preparation map[string]skill.PreparationStatus
}

func NewSnapshot(access skill.UserAccess, skills []skill.Skill) Snapshot {
	s := Snapshot{
		version:     1,
		access:      access.Normalize(),
		skills:      make([]skill.Skill, 0, len(skills)),
		index:       make(map[string]int, len(skills)),
		pending:     make(map[string]Operation),
		preparation: make(map[string]skill.PreparationStatus),
	}
	for _, sk := range skills {
		s.upsert(sk)
	}
	return s
}

func (s Snapshot) Version() uint64 {
	return s.version
}

func (s Snapshot) Access() skill.UserAccess {
	return s.access.Clone()
}

func (s Snapshot) Skills() []skill.Skill {
	out := make([]skill.Skill, len(s.skills))
	copy(out, s.skills)
	return out
}

func (s Snapshot) Skill(id string) (skill.Skill, bool) {
	i, ok := s.index[id]
	if !ok {
		return skill.Skill{}, false
	}
	return s.skills[i], true
}

// Pending reports the in-flight operation for a skill, if any.
func (s Snapshot) Pending(skillID string) (Operation, bool) {
	op, ok := s.pending[skillID]
	return op, ok
}

func (s Snapshot) PendingTierUpgrade() bool {
	_, ok := s.pending[tierPendingKey]
	return ok
}

func (s Snapshot) PendingCount() int {
	return len(s.pending)
}

func (s Snapshot) Preparation(skillID string) skill.PreparationStatus {
	if p, ok := s.preparation[skillID]; ok {
		return p
	}
	return skill.PreparationNotStarted
}

func (s Snapshot) pendingOf(op Operation) int {
	n := 0
	for _, p := range s.pending {
		if p == op {
			n++
		}
	}
	return n
}

func (s Snapshot) next() Snapshot {
	return Snapshot{
		version:     s.version + 1,
		access:      s.access.Clone(),
		skills:      s.Skills(),
		index:       cloneOrMake(s.index),
		pending:     cloneOrMake(s.pending),
		preparation: cloneOrMake(s.preparation),
	}
}

func cloneOrMake[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return maps.Clone(m)
}

// upsert mutates s in place and is only called on a fresh copy.
func (s *Snapshot) upsert(sk skill.Skill) {
	if i, ok := s.index[sk.ID]; ok {
		s.skills[i] = sk
		return
	}
	s.index[sk.ID] = len(s.skills)
	s.skills = append(s.skills, sk)
}

func (s Snapshot) withSkill(sk skill.Skill) Snapshot {
	out := s.next()
	out.upsert(sk)
	return out
}

func (s Snapshot) withAccess(a skill.UserAccess) Snapshot {
	out := s.next()
	out.access = a.Normalize()
	return out
}

func (s Snapshot) withPending(key string, op Operation) Snapshot {
	out := s.next()
	out.pending[key] = op
	return out
}

func (s Snapshot) withoutPending(key string) Snapshot {
	if _, ok := s.pending[key]; !ok {
		return s
	}
	out := s.next()
	delete(out.pending, key)
	return out
}

func (s Snapshot) withPreparation(skillID string, status skill.PreparationStatus) Snapshot {
	out := s.next()
	out.preparation[skillID] = status
	return out
}

type snapshotJSON struct {
	Version     uint64                             `json:"version"`
	Access      skill.UserAccess                   `json:"access"`
	Skills      []skill.Skill                      `json:"skills"`
	Pending     map[string]Operation               `json:"pending"`
	Preparation map[string]skill.PreparationStatus `json:"preparation"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	pending := make(map[string]Operation, len(s.pending))
	for k, op := range s.pending {
		if k == tierPendingKey {
			continue
		}
		pending[k] = op
	}

	return json.Marshal(snapshotJSON{
		Version:     s.version,
		Access:      s.access,
		Skills:      s.skills,
		Pending:     pending,
		Preparation: s.preparation,
	})
}
