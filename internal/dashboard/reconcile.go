// AngelaMos | 2026
// reconcile.go

package dashboard

// Mismatch is one field where collaborator-computed stats disagree with the
// local aggregation.
type Mismatch struct {
	Field  string `json:"field"`
	Local  int64  `json:"local"`
	Remote int64  `json:"remote"`
}

// Reconcile compares a fetched Stats value against the canonical local one.
// The fetched value is treated as a cache; an empty result means it is fresh.
func Reconcile(local, remote Stats) []Mismatch {
	fields := []struct {
		name          string
		local, remote int64
	}{
		{"installed_skills", int64(local.InstalledSkills), int64(remote.InstalledSkills)},
		{"total_trust_score", int64(local.TotalTrustScore), int64(remote.TotalTrustScore)},
		{"total_dataset_entries", int64(local.TotalDatasetEntries), int64(remote.TotalDatasetEntries)},
		{"total_savings", local.TotalSavings, remote.TotalSavings},
		{"pre_purchased_skills", int64(local.PrePurchasedSkills), int64(remote.PrePurchasedSkills)},
		{"wishlisted_skills", int64(local.WishlistedSkills), int64(remote.WishlistedSkills)},
	}

	var out []Mismatch
	for _, f := range fields {
		if f.local != f.remote {
			out = append(out, Mismatch{Field: f.name, Local: f.local, Remote: f.remote})
		}
	}
	return out
}
