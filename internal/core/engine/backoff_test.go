package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextDelayDoublesUpToCap(t *testing.T) {
	policy := NewPollPolicy(2*time.Second, 30*time.Second, 0)

	require.Equal(t, 2*time.Second, policy.NextDelay(0))
	require.Equal(t, 4*time.Second, policy.NextDelay(1))
	require.Equal(t, 8*time.Second, policy.NextDelay(2))
	require.Equal(t, 16*time.Second, policy.NextDelay(3))
	require.Equal(t, 30*time.Second, policy.NextDelay(4))
	require.Equal(t, 30*time.Second, policy.NextDelay(20))
}

func TestNextDelayIsMonotoneWithoutJitter(t *testing.T) {
	policy := NewPollPolicy(100*time.Millisecond, 5*time.Second, 0)

	prev := time.Duration(0)
	for attempt := 0; attempt < 40; attempt++ {
		d := policy.NextDelay(attempt)
		require.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		require.LessOrEqual(t, d, 5*time.Second, "attempt %d", attempt)
		prev = d
	}
	require.Equal(t, 5*time.Second, prev)
}

func TestNextDelayJitterStaysBounded(t *testing.T) {
	policy := NewPollPolicy(time.Second, time.Minute, 0.2)

	for i := 0; i < 200; i++ {
		d := policy.NextDelay(0)
		require.GreaterOrEqual(t, d, 800*time.Millisecond)
		require.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestNewPollPolicyNormalizesInputs(t *testing.T) {
	policy := NewPollPolicy(0, 0, -1)
	require.Equal(t, DefaultPollBase, policy.Base)
	require.Equal(t, DefaultPollMax, policy.Max)
	require.Equal(t, DefaultPollJitter, policy.Jitter)

	// Max below Base collapses to Base rather than inverting the range.
	policy = NewPollPolicy(10*time.Second, time.Second, 0)
	require.Equal(t, 10*time.Second, policy.Max)
}

func TestRemainingBudget(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(5 * time.Second)

	require.Equal(t, 5*time.Second, RemainingBudget(deadline, now))
	require.Equal(t, time.Duration(0), RemainingBudget(deadline, deadline))
	require.Equal(t, time.Duration(0), RemainingBudget(deadline, deadline.Add(time.Second)))
}
