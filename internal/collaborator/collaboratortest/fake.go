// AngelaMos | 2026
// fake.go

// Package collaboratortest provides an in-memory collaborator.Client for
// tests. It answers from fixed data, counts calls per method and subject, and
// can hold or fail individual calls.
package collaboratortest

import (
	"context"
	"errors"
	"sync"

	"github.com/carterperez-dev/acey-control-center/internal/collaborator"
	"github.com/carterperez-dev/acey-control-center/internal/dashboard"
	"github.com/carterperez-dev/acey-control-center/internal/notification"
	"github.com/carterperez-dev/acey-control-center/internal/skill"
)

var ErrUnavailable = errors.New("collaborator unavailable")

const (
	MethodFetchSkills      = "FetchSkills"
	MethodFetchUserAccess  = "FetchUserAccess"
	MethodInstall          = "InstallSkill"
	MethodPrePurchase      = "PrePurchaseSkill"
	MethodWishlist         = "WishlistSkill"
	MethodStartTrial       = "StartTrial"
	MethodUpgradeTier      = "UpgradeTier"
	MethodOrchestrate      = "OrchestrateAssistantUpgrade"
	MethodPreparation      = "FetchPreparationStatus"
	MethodDashboardStats   = "FetchDashboardStats"
	MethodFetchRecentEvent = "FetchRecentEvents"
)

// Failure makes one method fail for one subject. An empty Message with a
// nil Err produces a bare success=false answer.
type Failure struct {
	Message string
	Err     error
}

type Fake struct {
	mu sync.Mutex

	Skills      []skill.Skill
	Access      skill.UserAccess
	Events      []notification.Event
	Stats       dashboard.Stats
	Unlocked    []skill.Skill
	Discount    int
	Preparation map[string][]skill.PreparationStatus

	calls    map[string]int
	failures map[string]Failure
	gates    map[string]chan struct{}
	started  map[string]chan struct{}
	payloads []collaborator.OrchestrationPayload
}

func New(access skill.UserAccess, skills ...skill.Skill) *Fake {
	return &Fake{
		Skills:      skills,
		Access:      access,
		Preparation: make(map[string][]skill.PreparationStatus),
		calls:       make(map[string]int),
		failures:    make(map[string]Failure),
		gates:       make(map[string]chan struct{}),
		started:     make(map[string]chan struct{}),
	}
}

func key(method, subject string) string {
	return method + "/" + subject
}

// Fail makes method fail for subject until cleared with Succeed.
func (f *Fake) Fail(method, subject string, failure Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key(method, subject)] = failure
}

func (f *Fake) Succeed(method, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, key(method, subject))
}

// Hold blocks calls to method for subject until the returned release func is
// called. The started channel is closed once the first held call arrives.
func (f *Fake) Hold(method, subject string) (started <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gate := make(chan struct{})
	arrived := make(chan struct{})
	f.gates[key(method, subject)] = gate
	f.started[key(method, subject)] = arrived

	var once sync.Once
	return arrived, func() { once.Do(func() { close(gate) }) }
}

func (f *Fake) Calls(method, subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key(method, subject)]
}

func (f *Fake) Payloads() []collaborator.OrchestrationPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]collaborator.OrchestrationPayload(nil), f.payloads...)
}

// enter records a call, waits on any gate and returns the configured failure.
func (f *Fake) enter(method, subject string) (Failure, bool) {
	k := key(method, subject)

	f.mu.Lock()
	f.calls[k]++
	gate := f.gates[k]
	if arrived, ok := f.started[k]; ok {
		close(arrived)
		delete(f.started, k)
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	failure, failed := f.failures[k]
	return failure, failed
}

func (f *Fake) FetchSkills(_ context.Context, userID string) ([]skill.Skill, error) {
	if failure, failed := f.enter(MethodFetchSkills, userID); failed {
		return nil, orUnavailable(failure.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]skill.Skill(nil), f.Skills...), nil
}

func (f *Fake) FetchUserAccess(_ context.Context, userID string) (skill.UserAccess, error) {
	if failure, failed := f.enter(MethodFetchUserAccess, userID); failed {
		return skill.UserAccess{}, orUnavailable(failure.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Access.Clone(), nil
}

func (f *Fake) InstallSkill(_ context.Context, _, skillID string) (collaborator.InstallResult, error) {
	if failure, failed := f.enter(MethodInstall, skillID); failed {
		return collaborator.InstallResult{Message: failure.Message}, failure.Err
	}
	return collaborator.InstallResult{Success: true}, nil
}

func (f *Fake) PrePurchaseSkill(_ context.Context, _, skillID string) (collaborator.PrePurchaseResult, error) {
	if failure, failed := f.enter(MethodPrePurchase, skillID); failed {
		return collaborator.PrePurchaseResult{Error: failure.Message}, failure.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return collaborator.PrePurchaseResult{Success: true, DiscountApplied: f.Discount}, nil
}

func (f *Fake) WishlistSkill(_ context.Context, _, skillID string) (collaborator.ActionResult, error) {
	if failure, failed := f.enter(MethodWishlist, skillID); failed {
		return collaborator.ActionResult{Error: failure.Message}, failure.Err
	}
	return collaborator.ActionResult{Success: true}, nil
}

func (f *Fake) StartTrial(_ context.Context, _, skillID string) (collaborator.ActionResult, error) {
	if failure, failed := f.enter(MethodStartTrial, skillID); failed {
		return collaborator.ActionResult{Error: failure.Message}, failure.Err
	}
	return collaborator.ActionResult{Success: true}, nil
}

func (f *Fake) UpgradeTier(_ context.Context, _, tierID string) (collaborator.UpgradeResult, error) {
	if failure, failed := f.enter(MethodUpgradeTier, tierID); failed {
		return collaborator.UpgradeResult{Message: failure.Message}, failure.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return collaborator.UpgradeResult{
		Success:        true,
		UnlockedSkills: append([]skill.Skill(nil), f.Unlocked...),
	}, nil
}

func (f *Fake) OrchestrateAssistantUpgrade(
	_ context.Context,
	payload collaborator.OrchestrationPayload,
) (collaborator.Ack, error) {
	subject := payload.SkillID
	if subject == "" {
		subject = payload.TierID
	}
	if failure, failed := f.enter(MethodOrchestrate, subject); failed {
		return collaborator.Ack{}, orUnavailable(failure.Err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return collaborator.Ack{ID: subject, Accepted: true}, nil
}

// FetchPreparationStatus pops the next scripted status for skillID and
// repeats the last one once the script runs out.
func (f *Fake) FetchPreparationStatus(_ context.Context, _, skillID string) (skill.PreparationStatus, error) {
	if failure, failed := f.enter(MethodPreparation, skillID); failed {
		return "", orUnavailable(failure.Err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	script := f.Preparation[skillID]
	if len(script) == 0 {
		return skill.PreparationNotStarted, nil
	}
	status := script[0]
	if len(script) > 1 {
		f.Preparation[skillID] = script[1:]
	}
	return status, nil
}

func (f *Fake) FetchDashboardStats(_ context.Context, userID string) (dashboard.Stats, error) {
	if failure, failed := f.enter(MethodDashboardStats, userID); failed {
		return dashboard.Stats{}, orUnavailable(failure.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Stats, nil
}

func (f *Fake) FetchRecentEvents(context.Context) ([]notification.Event, error) {
	if failure, failed := f.enter(MethodFetchRecentEvent, ""); failed {
		return nil, orUnavailable(failure.Err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification.Event(nil), f.Events...), nil
}

func orUnavailable(err error) error {
	if err != nil {
		return err
	}
	return ErrUnavailable
}

var _ collaborator.Client = (*Fake)(nil)
