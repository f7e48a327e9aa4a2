// AngelaMos | 2026
// preparation.go

package skill

// PreparationStatus is the readiness of a pre-purchased skill. The workflow
// itself runs in an external collaborator.
type PreparationStatus string

const (
	PreparationNotStarted PreparationStatus = "not_started"
	PreparationPreparing  PreparationStatus = "preparing"
	PreparationReady      PreparationStatus = "ready"
	PreparationFailed     PreparationStatus = "failed"
)

func (p PreparationStatus) Valid() bool {
	switch p {
	case PreparationNotStarted, PreparationPreparing, PreparationReady, PreparationFailed:
		return true
	}
	return false
}

func (p PreparationStatus) Terminal() bool {
	return p == PreparationReady || p == PreparationFailed
}

// Next is the single step after p. Terminal states do not advance.
func (p PreparationStatus) Next() PreparationStatus {
	switch p {
	case PreparationNotStarted:
		return PreparationPreparing
	case PreparationPreparing:
		return PreparationReady
	default:
		return p
	}
}

// CanAdvanceTo reports whether moving from p to next skips no state.
// Failure is reachable from any non-terminal state.
func (p PreparationStatus) CanAdvanceTo(next PreparationStatus) bool {
	if next == p {
		return true
	}
	if p.Terminal() {
		return false
	}
	return next == PreparationFailed || next == p.Next()
}
