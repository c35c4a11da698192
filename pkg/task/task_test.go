package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsPending(t *testing.T) {
	tsk := New("coder", "do the thing")
	assert.Equal(t, StatusPending, tsk.Status())
	assert.Equal(t, 0, tsk.Metadata.DecompositionDepth)
}

func TestChildDepthIncrements(t *testing.T) {
	parent := New("orchestrator", "parent")
	parent.Metadata.DecompositionDepth = 2
	child := NewChild(parent, "coder", "child")
	assert.Equal(t, 3, child.Metadata.DecompositionDepth)
	assert.Equal(t, parent.ID, child.Metadata.ParentTaskID)
}

func TestCompleteIsTerminalAndFrozen(t *testing.T) {
	tsk := New("coder", "p")
	tsk.Start()
	require.NotNil(t, tsk.StartedAt)

	tsk.Complete(Result{Success: true, Output: "done"})
	assert.Equal(t, StatusCompleted, tsk.Status())
	require.NotNil(t, tsk.CompletedAt)
	frozen := *tsk.CompletedAt

	// a second Complete call must be a no-op: terminal state is frozen.
	tsk.Complete(Result{Success: false})
	assert.Equal(t, StatusCompleted, tsk.Status())
	assert.Equal(t, frozen, *tsk.CompletedAt)
}

func TestFailedSetsFailedStatus(t *testing.T) {
	tsk := New("coder", "p")
	tsk.Complete(Result{Success: false, Errors: []ResultError{{Code: "TOOL_TIMEOUT"}}})
	assert.Equal(t, StatusFailed, tsk.Status())
	require.NotNil(t, tsk.Result)
	assert.False(t, tsk.Result.Success)
}

func TestResetForRetryIncrementsRetryCount(t *testing.T) {
	tsk := New("coder", "p")
	tsk.Complete(Result{Success: false})
	tsk.Metadata.RetryCount = 3
	tsk.Reset()
	assert.Equal(t, StatusPending, tsk.Status())
	assert.Nil(t, tsk.Result)
	assert.Nil(t, tsk.CompletedAt)
	assert.Equal(t, 4, tsk.Metadata.RetryCount)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	tsk := New("coder", "p")
	tsk.Context = &Context{Files: []string{"a.go"}}
	snap := tsk.Snapshot()
	snap.Context.Files[0] = "mutated"
	assert.Equal(t, "a.go", tsk.Context.Files[0])
}
