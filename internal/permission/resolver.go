// AngelaMos | 2026
// resolver.go

package permission

// Resolver answers bundle lookups from a validated Catalog. Lookups never
// fail: unknown ids degrade to NeutralBundle.
type Resolver struct {
	tiers  map[string]Bundle
	skills map[string]Bundle
}

func NewResolver(c *Catalog) *Resolver {
	r := &Resolver{
		tiers:  make(map[string]Bundle, len(c.Tiers)),
		skills: make(map[string]Bundle, len(c.Skills)),
	}

	for _, t := range c.Tiers {
		r.tiers[t.ID] = newBundle(t.ID, t.Permissions, t.TrustLevel, t.Datasets)
	}
	for _, s := range c.Skills {
		r.skills[s.ID] = newBundle(s.ID, s.Permissions, s.TrustLevel, s.Datasets)
	}

	return r
}

func (r *Resolver) ResolveForTier(tierID string) Bundle {
	if b, ok := r.tiers[tierID]; ok {
		return b.Clone()
	}
	return NeutralBundle(tierID)
}

func (r *Resolver) ResolveForSkill(skillID string) Bundle {
	if b, ok := r.skills[skillID]; ok {
		return b.Clone()
	}
	return NeutralBundle(skillID)
}

// ResolveForInstall is the bundle sent when a skill is first installed.
// Trust is earned per skill, so it starts at the neutral level whatever the
// installing tier grants.
func (r *Resolver) ResolveForInstall(skillID string) Bundle {
	return r.ResolveForSkill(skillID).WithTrustLevel(NeutralTrustLevel)
}

func (r *Resolver) KnowsSkill(skillID string) bool {
	_, ok := r.skills[skillID]
	return ok
}
