// AngelaMos | 2026
// stats.go

package dashboard

import (
	"github.com/carterperez-dev/acey-control-center/internal/permission"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

// Stats summarizes one (skills, access) snapshot. It is always derived and
// never stored on its own.
type Stats struct {
	InstalledSkills     int   `json:"installed_skills"`
	TotalTrustScore     int   `json:"total_trust_score"`
	TotalDatasetEntries int   `json:"total_dataset_entries"`
	TotalSavings        int64 `json:"total_savings"`
	PrePurchasedSkills  int   `json:"pre_purchased_skills"`
	WishlistedSkills    int   `json:"wishlisted_skills"`
}

type BundleSource interface {
	ResolveForTier(tierID string) permission.Bundle
	ResolveForInstall(skillID string) permission.Bundle
}

// Compute derives Stats from a snapshot.
//
// TotalTrustScore is the mean trust level granted to installed skills
// expressed as a percentage of permission.MaxTrustLevel, rounded half up;
// zero when nothing is installed. A skill holds the trust of its install
// bundle, not its catalog ceiling. TotalDatasetEntries counts distinct dataset tags reachable
// through the tier bundle and the installed skills. TotalSavings sums
// skill.SavingsCents over pre-purchased skills only.
func Compute(skills []skill.Skill, access skill.UserAccess, bundles BundleSource) Stats {
	var stats Stats
	var trustSum int

	datasets := make(map[string]struct{})
	for _, d := range bundles.ResolveForTier(access.TierID).DatasetAccess {
		datasets[d] = struct{}{}
	}

	for _, s := range skills {
		if s.Installed {
			stats.InstalledSkills++
			b := bundles.ResolveForInstall(s.ID)
			trustSum += b.TrustLevel
			for _, d := range b.DatasetAccess {
				datasets[d] = struct{}{}
			}
		}
		if s.PrePurchased {
			stats.PrePurchasedSkills++
			stats.TotalSavings += s.SavingsCents()
		}
		if s.Wishlisted {
			stats.WishlistedSkills++
		}
	}

	stats.TotalDatasetEntries = len(datasets)
	stats.TotalTrustScore = trustPercent(trustSum, stats.InstalledSkills)

	return stats
}

func trustPercent(sum, count int) int {
	if count == 0 {
		return 0
	}
	denom := count * permission.MaxTrustLevel
	return (sum*100*2 + denom) / (denom * 2)
}
