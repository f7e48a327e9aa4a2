// AngelaMos | 2026
// errors.go

package lifecycle

import (
	"fmt"

	"github.com/carterperez-dev/acey-control-center/internal/core"
	"github.com/carterperez-dev/acey-control-center/internal/entitlement"
)

// RejectedError is returned when an action fails its precondition. No
// collaborator call was made and the snapshot is unchanged.
type RejectedError struct {
	Op        Operation
	SubjectID string
	Reason    entitlement.Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.SubjectID, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return core.ErrPreconditionRejected
}

// CollaboratorError is returned when the collaborator call failed. Message is
// the collaborator's own text, or the generic fallback.
type CollaboratorError struct {
	Op        Operation
	SubjectID string
	Message   string
	Err       error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.SubjectID, e.Message)
}

func (e *CollaboratorError) Unwrap() []error {
	if e.Err != nil {
		return []error{core.ErrCollaboratorFailure, e.Err}
	}
	return []error{core.ErrCollaboratorFailure}
}
