// AngelaMos | 2026
// entity.go

package skill

import (
	"sort"
	"time"
)

type Skill struct {
	ID              string    `json:"id"               db:"id"`
	Name            string    `json:"name"             db:"name"`
	Category        string    `json:"category"         db:"category"`
	RequiredTierID  string    `json:"required_tier_id" db:"required_tier_id"`
	PriceCents      int64     `json:"price_cents"      db:"price_cents"`
	Installed       bool      `json:"installed"        db:"installed"`
	PrePurchased    bool      `json:"pre_purchased"    db:"pre_purchased"`
	Wishlisted      bool      `json:"wishlisted"       db:"wishlisted"`
	TrialActive     bool      `json:"trial_active"     db:"trial_active"`
	TrialRemaining  int       `json:"trial_remaining"  db:"trial_remaining"`
	ReleaseDate     time.Time `json:"release_date"     db:"release_date"`
	DiscountPercent int       `json:"discount_percent" db:"discount_percent"`
}

func (s Skill) IsReleased(now time.Time) bool {
	return !s.ReleaseDate.After(now)
}

// SavingsCents is the discount-derived amount saved on this skill, in cents.
// Percentages outside [0,100] are clamped.
func (s Skill) SavingsCents() int64 {
	pct := s.DiscountPercent
	if pct <= 0 || s.PriceCents <= 0 {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	return s.PriceCents * int64(pct) / 100
}

type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
)

func (r Role) IsOwner() bool {
	return r == RoleOwner
}

type UserAccess struct {
	UserID         string   `json:"user_id"         db:"user_id"`
	TierID         string   `json:"tier_id"         db:"tier_id"`
	Role           Role     `json:"role"            db:"role"`
	UnlockedSkills []string `json:"unlocked_skills" db:"-"`
	TrialRemaining int      `json:"trial_remaining" db:"trial_remaining"`
}

func (a UserAccess) HasUnlocked(skillID string) bool {
	i := sort.SearchStrings(a.UnlockedSkills, skillID)
	return i < len(a.UnlockedSkills) && a.UnlockedSkills[i] == skillID
}

// Clone returns a copy that shares no backing storage with a.
func (a UserAccess) Clone() UserAccess {
	out := a
	out.UnlockedSkills = append([]string(nil), a.UnlockedSkills...)
	return out
}

// WithUnlocked returns a copy of a with skillID added to the sorted unlocked set.
func (a UserAccess) WithUnlocked(skillID string) UserAccess {
	out := a.Clone()
	if out.HasUnlocked(skillID) {
		return out
	}
	out.UnlockedSkills = append(out.UnlockedSkills, skillID)
	sort.Strings(out.UnlockedSkills)
	return out
}

// Normalize sorts and de-duplicates UnlockedSkills.
func (a UserAccess) Normalize() UserAccess {
	out := a.Clone()
	sort.Strings(out.UnlockedSkills)

	deduped := out.UnlockedSkills[:0]
	for i, id := range out.UnlockedSkills {
		if i > 0 && id == out.UnlockedSkills[i-1] {
			continue
		}
		deduped = append(deduped, id)
	}
	out.UnlockedSkills = deduped
	return out
}
