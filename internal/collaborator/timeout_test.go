// AngelaMos | 2026
// timeout_test.go

package collaborator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadlineClient records the deadline of the last install call.
type deadlineClient struct {
	Client
	deadline time.Time
	hasLimit bool
}

func (d *deadlineClient) InstallSkill(ctx context.Context, _, _ string) (InstallResult, error) {
	d.deadline, d.hasLimit = ctx.Deadline()
	return InstallResult{Success: true}, nil
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	inner := &deadlineClient{}
	c := WithTimeout(inner, time.Second)

	start := time.Now()
	res, err := c.InstallSkill(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.True(t, inner.hasLimit)
	assert.WithinDuration(t, start.Add(time.Second), inner.deadline, 500*time.Millisecond)
}

func TestWithTimeoutDetachedContextStillBounded(t *testing.T) {
	inner := &deadlineClient{}
	c := WithTimeout(inner, time.Minute)

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.InstallSkill(context.WithoutCancel(parent), "u1", "s1")
	require.NoError(t, err)
	assert.True(t, inner.hasLimit)
}

func TestWithTimeoutDisabled(t *testing.T) {
	inner := &deadlineClient{}
	assert.Same(t, Client(inner), WithTimeout(inner, 0))
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, GenericFailureMessage, FailureMessage(""))
	assert.Equal(t, "sold out", FailureMessage("sold out"))
}
