// AngelaMos | 2026
// tier.go

package tier

import (
	"fmt"
	"sort"

	"github.com/carterperez-dev/acey-control-center/internal/core"
)

const (
	Free        = "free"
	Creator     = "creator"
	CreatorPlus = "creator_plus"
	Pro         = "pro"
	Enterprise  = "enterprise"
)

// UnknownRank sorts below every defined rank so unknown ids are never eligible.
const UnknownRank = -1

type Tier struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Rank       int    `json:"rank"`
	PriceCents int64  `json:"price_cents"`
}

// Hierarchy is a strict total order over tiers. It is immutable after
// construction and safe for concurrent use.
type Hierarchy struct {
	byID    map[string]Tier
	ordered []Tier
}

func NewHierarchy(tiers []Tier) (*Hierarchy, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("tier hierarchy: no tiers: %w", core.ErrInvalidInput)
	}

	ordered := make([]Tier, len(tiers))
	copy(ordered, tiers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	byID := make(map[string]Tier, len(ordered))
	for i, t := range ordered {
		if t.ID == "" {
			return nil, fmt.Errorf("tier hierarchy: empty id: %w", core.ErrInvalidInput)
		}
		if t.Rank < 0 {
			return nil, fmt.Errorf(
				"tier hierarchy: tier %q has negative rank %d: %w",
				t.ID, t.Rank, core.ErrInvalidInput,
			)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf(
				"tier hierarchy: duplicate tier %q: %w",
				t.ID, core.ErrInvalidInput,
			)
		}
		if i > 0 && ordered[i-1].Rank == t.Rank {
			return nil, fmt.Errorf(
				"tier hierarchy: tiers %q and %q share rank %d: %w",
				ordered[i-1].ID, t.ID, t.Rank, core.ErrInvalidInput,
			)
		}
		byID[t.ID] = t
	}

	return &Hierarchy{byID: byID, ordered: ordered}, nil
}

// Default returns the canonical Free < Creator < Creator+ < Pro < Enterprise order.
func Default() *Hierarchy {
	h, err := NewHierarchy([]Tier{
		{ID: Free, Name: "Free", Rank: 0, PriceCents: 0},
		{ID: Creator, Name: "Creator", Rank: 1, PriceCents: 999},
		{ID: CreatorPlus, Name: "Creator+", Rank: 2, PriceCents: 1999},
		{ID: Pro, Name: "Pro", Rank: 3, PriceCents: 4999},
		{ID: Enterprise, Name: "Enterprise", Rank: 4, PriceCents: 19999},
	})
	if err != nil {
		panic(fmt.Sprintf("tier: invalid default hierarchy: %v", err))
	}
	return h
}

func (h *Hierarchy) Rank(id string) int {
	if t, ok := h.byID[id]; ok {
		return t.Rank
	}
	return UnknownRank
}

func (h *Hierarchy) Lookup(id string) (Tier, bool) {
	t, ok := h.byID[id]
	return t, ok
}

func (h *Hierarchy) Known(id string) bool {
	_, ok := h.byID[id]
	return ok
}

// IsEligible reports whether a holder of currentID may use something
// gated on requiredID. An unknown id on either side is never eligible.
func (h *Hierarchy) IsEligible(requiredID, currentID string) bool {
	required := h.Rank(requiredID)
	current := h.Rank(currentID)
	if required == UnknownRank || current == UnknownRank {
		return false
	}
	return current >= required
}

// Tiers returns the tiers in ascending rank order.
func (h *Hierarchy) Tiers() []Tier {
	out := make([]Tier, len(h.ordered))
	copy(out, h.ordered)
	return out
}
