package dlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/circuit"
	"github.com/arcflow/conductor/pkg/storage"
)

func TestAddAndListEntries(t *testing.T) {
	store := storage.NewMemoryAdapter()
	q := NewQueue(store, time.Hour)
	ctx := context.Background()

	entry, err := q.Add(ctx, storage.TaskRecord{ID: "t1", Status: "failed"}, errors.New("boom"), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Attempts)

	entries, err := q.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].Error)
}

func TestRetryResetsTaskAndIncrementsRetryCount(t *testing.T) {
	store := storage.NewMemoryAdapter()
	q := NewQueue(store, time.Hour)
	ctx := context.Background()

	completedAt := time.Now()
	entry, err := q.Add(ctx, storage.TaskRecord{
		ID:          "t1",
		Status:      "failed",
		CompletedAt: &completedAt,
		Result:      map[string]any{"error": "boom"},
		Metadata:    map[string]any{"retryCount": 1},
	}, errors.New("boom"), 1)
	require.NoError(t, err)

	retried, err := q.Retry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", retried.Status)
	assert.Nil(t, retried.CompletedAt)
	assert.Nil(t, retried.Result)
	assert.Equal(t, 2, retried.Metadata["retryCount"])

	_, ok, err := store.LoadDeadLetter(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, ok, "retried entry must be removed from the DLQ")

	loaded, ok, err := store.LoadTask(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pending", loaded.Status)
}

func TestRetryUnknownEntryErrors(t *testing.T) {
	store := storage.NewMemoryAdapter()
	q := NewQueue(store, time.Hour)
	_, err := q.Retry(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPurgeRemovesExpiredOnly(t *testing.T) {
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	q := NewQueue(store, time.Hour)

	require.NoError(t, store.SaveDeadLetter(ctx, storage.DeadLetterRecord{
		ID: "expired", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, store.SaveDeadLetter(ctx, storage.DeadLetterRecord{
		ID: "fresh", ExpiresAt: time.Now().Add(time.Hour),
	}))

	n, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := q.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].ID)
}

func TestObserverNotifiedOnAddRetryPurge(t *testing.T) {
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	q := NewQueue(store, time.Hour)

	var events []EventKind
	q.OnEvent(func(kind EventKind, _ storage.DeadLetterRecord) {
		events = append(events, kind)
	})

	entry, err := q.Add(ctx, storage.TaskRecord{ID: "t1"}, errors.New("x"), 1)
	require.NoError(t, err)
	_, err = q.Retry(ctx, entry.ID)
	require.NoError(t, err)

	require.NoError(t, store.SaveDeadLetter(ctx, storage.DeadLetterRecord{
		ID: "expired", ExpiresAt: time.Now().Add(-time.Minute),
	}))
	_, err = q.Purge(ctx)
	require.NoError(t, err)

	assert.Equal(t, []EventKind{EventAdded, EventRetried, EventPurged}, events)
}

func TestAutoRetryerSkipsWhenCircuitOpen(t *testing.T) {
	store := storage.NewMemoryAdapter()
	ctx := context.Background()
	q := NewQueue(store, time.Hour)
	breaker := circuit.NewBreaker(circuit.Config{FailureThreshold: 1})

	for i := 0; i < 1; i++ {
		breaker.RecordFailure("coder")
	}
	require.False(t, breaker.IsAllowed("coder"))

	past := time.Now().Add(-time.Hour)
	_, err := q.Add(ctx, storage.TaskRecord{ID: "t1", Type: "coder"}, errors.New("x"), 0)
	require.NoError(t, err)
	entries, _ := q.ListEntries(ctx)
	entries[0].LastFailedAt = past
	require.NoError(t, store.SaveDeadLetter(ctx, entries[0]))

	var retried bool
	r := NewAutoRetryer(q, breaker, func(storage.TaskRecord) { retried = true })
	r.sweep(ctx)

	assert.False(t, retried, "auto-retry must not fire while the circuit is open")
}
