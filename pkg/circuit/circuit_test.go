package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiveFailuresOpenCircuit(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 5, CooldownMs: 50 * time.Millisecond})
	for i := 0; i < 5; i++ {
		assert.True(t, b.IsAllowed("explore"))
		b.RecordFailure("explore")
	}
	assert.Equal(t, StateOpen, b.Get("explore").State)
	assert.False(t, b.IsAllowed("explore"))
}

func TestCooldownAllowsOneProbe(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1, CooldownMs: 10 * time.Millisecond})
	b.RecordFailure("coder")
	require.Equal(t, StateOpen, b.Get("coder").State)

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.IsAllowed("coder"))
	assert.Equal(t, StateHalfOpen, b.Get("coder").State)
	// second call during the same half-open window should not allow a concurrent probe
	assert.False(t, b.IsAllowed("coder"))
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1, CooldownMs: 5 * time.Millisecond})
	b.RecordFailure("tester")
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.IsAllowed("tester"))
	b.RecordSuccess("tester")
	assert.Equal(t, StateClosed, b.Get("tester").State)
}

func TestHalfOpenFailureReopensWithRefreshedTimestamp(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1, CooldownMs: 5 * time.Millisecond})
	b.RecordFailure("fixer")
	first := b.Get("fixer").OpenedAt
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.IsAllowed("fixer"))
	b.RecordFailure("fixer")
	snap := b.Get("fixer")
	assert.Equal(t, StateOpen, snap.State)
	assert.True(t, snap.OpenedAt.After(*first))
}
