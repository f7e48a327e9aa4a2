// AngelaMos | 2026
// machine.go

package lifecycle

import (
	"github.com/carterperez-dev/acey-control-center/internal/entitlement"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

// Machine owns the legal transitions of a Snapshot. It is pure: every method
// takes a snapshot and returns a new one.
//
// Actions run in two phases. Begin checks entitlement and marks the action
// pending; Confirm* applies the flag changes once the collaborator has
// succeeded; Abort drops the pending mark and leaves every flag untouched.
// Confirm and Abort are applied to whatever snapshot is current when the
// collaborator answers, not the one Begin saw.
type Machine struct {
	rules *entitlement.Resolver
}

func NewMachine(rules *entitlement.Resolver) *Machine {
	return &Machine{rules: rules}
}

func (m *Machine) Rules() *entitlement.Resolver {
	return m.rules
}

func pendingKey(op Operation, subjectID string) string {
	if op == OpTierUpgrade {
		return tierPendingKey
	}
	return subjectID
}

// Begin runs the precondition check for op and, when allowed, returns the
// snapshot with the action marked pending. A rejected action returns snap
// unchanged.
func (m *Machine) Begin(snap Snapshot, op Operation, subjectID string) (Snapshot, entitlement.Decision) {
	key := pendingKey(op, subjectID)
	if _, busy := snap.pending[key]; busy {
		return snap, entitlement.Reject(entitlement.ReasonOperationInProgress)
	}

	decision := m.check(snap, op, subjectID)
	if !decision.Allowed {
		return snap, decision
	}

	return snap.withPending(key, op), decision
}

func (m *Machine) check(snap Snapshot, op Operation, subjectID string) entitlement.Decision {
	if op == OpTierUpgrade {
		return m.rules.CanUpgrade(snap.access, subjectID)
	}

	sk, ok := snap.Skill(subjectID)
	if !ok {
		return entitlement.Reject(entitlement.ReasonUnknownSkill)
	}

	switch op {
	case OpInstall:
		return m.rules.CanInstall(sk, snap.access)
	case OpPrePurchase:
		return m.rules.CanPrePurchase(sk)
	case OpWishlist:
		return m.rules.CanWishlist(sk)
	case OpTrial:
		// Trials already in flight have claimed their allowance.
		access := snap.access
		access.TrialRemaining -= snap.pendingOf(OpTrial)
		return m.rules.CanStartTrial(sk, access)
	default:
		return entitlement.Reject(entitlement.ReasonNone)
	}
}

// Abort discards a pending action.
func (m *Machine) Abort(snap Snapshot, op Operation, subjectID string) Snapshot {
	return snap.withoutPending(pendingKey(op, subjectID))
}

func (m *Machine) ConfirmInstall(snap Snapshot, skillID string) Snapshot {
	out := snap.withoutPending(skillID)
	sk, ok := out.Skill(skillID)
	if !ok {
		return out
	}

	sk.Installed = true
	sk.TrialActive = false
	return out.withSkill(sk).withAccess(out.access.WithUnlocked(skillID))
}

// ConfirmPrePurchase marks the skill pre-purchased and starts tracking its
// preparation. A positive discountApplied from the collaborator replaces the
// advertised discount.
func (m *Machine) ConfirmPrePurchase(snap Snapshot, skillID string, discountApplied int) Snapshot {
	out := snap.withoutPending(skillID)
	sk, ok := out.Skill(skillID)
	if !ok {
		return out
	}

	sk.PrePurchased = true
	if discountApplied > 0 {
		sk.DiscountPercent = discountApplied
	}
	return out.withSkill(sk).withPreparation(skillID, skill.PreparationNotStarted)
}

func (m *Machine) ConfirmWishlist(snap Snapshot, skillID string) Snapshot {
	out := snap.withoutPending(skillID)
	sk, ok := out.Skill(skillID)
	if !ok {
		return out
	}

	sk.Wishlisted = !sk.Wishlisted
	return out.withSkill(sk)
}

// ConfirmTrial spends one trial and marks the skill trial-active. It never
// installs the skill.
func (m *Machine) ConfirmTrial(snap Snapshot, skillID string) Snapshot {
	out := snap.withoutPending(skillID)
	sk, ok := out.Skill(skillID)
	if !ok {
		return out
	}

	sk.TrialActive = true
	access := out.access.Clone()
	access.TrialRemaining = max(access.TrialRemaining-1, 0)
	return out.withSkill(sk).withAccess(access)
}

// ConfirmTierUpgrade switches the user's tier and merges skills the
// collaborator reported as unlocked. Known skills keep their local flags;
// new ones arrive uninstalled so they go through the install path.
func (m *Machine) ConfirmTierUpgrade(snap Snapshot, tierID string, unlocked []skill.Skill) Snapshot {
	out := snap.withoutPending(tierPendingKey)

	access := out.access.Clone()
	access.TierID = tierID
	out = out.withAccess(access)

	for _, sk := range unlocked {
		if _, known := out.Skill(sk.ID); known || sk.ID == "" {
			continue
		}
		sk.Installed = false
		out = out.withSkill(sk)
	}

	return out
}

// ObservePreparation records a polled preparation status for a known skill.
func (m *Machine) ObservePreparation(snap Snapshot, skillID string, status skill.PreparationStatus) Snapshot {
	if _, ok := snap.Skill(skillID); !ok {
		return snap
	}
	if cur, ok := snap.preparation[skillID]; ok && cur == status {
		return snap
	}
	return snap.withPreparation(skillID, status)
}
