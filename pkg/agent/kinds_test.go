package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/task"
)

func TestCoderConfigRestoresSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0o644))

	cfg := CoderConfig("you are a coder", dir)
	tk := task.New("coder", "edit a.go")
	tk.Context = &task.Context{Files: []string{"a.go"}}

	require.NoError(t, cfg.BeforeRun(context.Background(), tk))
	require.NoError(t, os.WriteFile(file, []byte("mutated"), 0o644))

	result := cfg.AfterRun(context.Background(), tk, task.Result{Success: false})
	assert.False(t, result.Success)

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))
}

func TestCoderConfigLeavesFileAloneOnSuccess(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0o644))

	cfg := CoderConfig("you are a coder", dir)
	tk := task.New("coder", "edit a.go")
	tk.Context = &task.Context{Files: []string{"a.go"}}

	require.NoError(t, cfg.BeforeRun(context.Background(), tk))
	require.NoError(t, os.WriteFile(file, []byte("mutated"), 0o644))

	cfg.AfterRun(context.Background(), tk, task.Result{Success: true})

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "mutated", string(b))
}

func TestFixerConfigRollsBackWhenPostVerifyFails(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0o644))

	cfg := FixerConfig("you are a fixer", dir, func(ctx context.Context, t *task.Task) (bool, string) {
		return false, "tests still failing"
	})
	tk := task.New("fixer", "fix a.go")
	tk.Context = &task.Context{Files: []string{"a.go"}}

	require.NoError(t, cfg.BeforeRun(context.Background(), tk))
	require.NoError(t, os.WriteFile(file, []byte("mutated"), 0o644))

	result := cfg.AfterRun(context.Background(), tk, task.Result{Success: true})
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "FIX_NOT_VERIFIED", result.Errors[0].Code)

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))
}

func TestFixerConfigKeepsFixWhenPostVerifyPasses(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(file, []byte("original"), 0o644))

	cfg := FixerConfig("you are a fixer", dir, func(ctx context.Context, t *task.Task) (bool, string) {
		return true, ""
	})
	tk := task.New("fixer", "fix a.go")
	tk.Context = &task.Context{Files: []string{"a.go"}}

	require.NoError(t, cfg.BeforeRun(context.Background(), tk))
	require.NoError(t, os.WriteFile(file, []byte("mutated"), 0o644))

	result := cfg.AfterRun(context.Background(), tk, task.Result{Success: true})
	assert.True(t, result.Success)

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "mutated", string(b))
}

func TestReviewMemoHitsOnUnchangedContentMissOnChange(t *testing.T) {
	memo := NewReviewMemo(10)
	memo.Store("a.go", "package main", "looks fine")

	out, ok := memo.Lookup("a.go", "package main")
	require.True(t, ok)
	assert.Equal(t, "looks fine", out)

	_, ok = memo.Lookup("a.go", "package main // changed")
	assert.False(t, ok)
}

func TestRunHistoryBoundsEntries(t *testing.T) {
	h := NewRunHistory(3)
	for i := 0; i < 5; i++ {
		h.Record("entry")
	}
	assert.Len(t, h.Entries(), 3)
}

func TestProcessTrackerStopsAllTrackedProcesses(t *testing.T) {
	var stopped int
	tracker := &ProcessTracker{}
	tracker.Track(func() { stopped++ })
	tracker.Track(func() { stopped++ })

	tracker.StopAll()
	assert.Equal(t, 2, stopped)

	tracker.StopAll()
	assert.Equal(t, 2, stopped, "second StopAll should be a no-op")
}

func TestBuilderConfigStopsProcessesOnFailure(t *testing.T) {
	var stopped bool
	tracker := &ProcessTracker{}
	tracker.Track(func() { stopped = true })

	cfg := BuilderConfig("you are a builder", tracker)
	cfg.AfterRun(context.Background(), task.New("builder", "npm run dev"), task.Result{Success: false})
	assert.True(t, stopped)
}
