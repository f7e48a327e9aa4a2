// AngelaMos | 2026
// bundle.go

package permission

import (
	"slices"
	"sort"
)

const (
	MinTrustLevel     = 0
	MaxTrustLevel     = 5
	NeutralTrustLevel = 1
)

// Bundle is the capability set handed to the assistant orchestrator for a
// tier or skill. Permissions and DatasetAccess are sorted sets.
type Bundle struct {
	SubjectID     string   `json:"subject_id"`
	Permissions   []string `json:"permissions"`
	TrustLevel    int      `json:"trust_level"`
	DatasetAccess []string `json:"dataset_access"`
}

// NeutralBundle grants nothing beyond the neutral trust level.
func NeutralBundle(subjectID string) Bundle {
	return Bundle{
		SubjectID:     subjectID,
		Permissions:   []string{},
		TrustLevel:    NeutralTrustLevel,
		DatasetAccess: []string{},
	}
}

func newBundle(subjectID string, permissions []string, trust int, datasets []string) Bundle {
	return Bundle{
		SubjectID:     subjectID,
		Permissions:   sortedSet(permissions),
		TrustLevel:    trust,
		DatasetAccess: sortedSet(datasets),
	}
}

func (b Bundle) HasPermission(permission string) bool {
	_, found := slices.BinarySearch(b.Permissions, permission)
	return found
}

func (b Bundle) HasDataset(dataset string) bool {
	_, found := slices.BinarySearch(b.DatasetAccess, dataset)
	return found
}

func (b Bundle) Clone() Bundle {
	out := b
	out.Permissions = append([]string{}, b.Permissions...)
	out.DatasetAccess = append([]string{}, b.DatasetAccess...)
	return out
}

// WithTrustLevel returns a copy of b at the given trust level, clamped to
// [MinTrustLevel, MaxTrustLevel].
func (b Bundle) WithTrustLevel(level int) Bundle {
	out := b.Clone()
	out.TrustLevel = min(max(level, MinTrustLevel), MaxTrustLevel)
	return out
}

func sortedSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
