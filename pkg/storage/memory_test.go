package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadTaskRoundTrip(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	created := time.Now()
	want := TaskRecord{ID: "t1", Status: "pending", CreatedAt: created, SchemaVersion: SchemaVersion}
	require.NoError(t, m.SaveTask(ctx, want))

	got, ok, err := m.LoadTask(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestLoadPendingTasksFiltersByStatus(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, m.SaveTask(ctx, TaskRecord{ID: "a", Status: "pending"}))
	require.NoError(t, m.SaveTask(ctx, TaskRecord{ID: "b", Status: "completed"}))
	require.NoError(t, m.SaveTask(ctx, TaskRecord{ID: "c", Status: "in_progress"}))

	pending, err := m.LoadPendingTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestLatestCheckpointPicksMostRecent(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, m.SaveCheckpoint(ctx, CheckpointRecord{ID: "c1", TaskID: "t1", UpdatedAt: now}))
	require.NoError(t, m.SaveCheckpoint(ctx, CheckpointRecord{ID: "c2", TaskID: "t1", UpdatedAt: now.Add(time.Minute)}))

	latest, ok, err := m.LoadLatestCheckpoint(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c2", latest.ID)
}

func TestCleanupDeadLettersByExpiry(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, m.SaveDeadLetter(ctx, DeadLetterRecord{ID: "d1", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, m.SaveDeadLetter(ctx, DeadLetterRecord{ID: "d2", ExpiresAt: now.Add(time.Hour)}))

	n, err := m.CleanupDeadLetters(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := m.ListDeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "d2", remaining[0].ID)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, src.SaveTask(ctx, TaskRecord{ID: "t1", Status: "pending"}))

	ds, err := src.Export(ctx)
	require.NoError(t, err)

	dst := NewMemoryAdapter()
	require.NoError(t, dst.Import(ctx, ds))

	got, ok, err := dst.LoadTask(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pending", got.Status)
}
