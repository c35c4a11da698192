package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/storage"
)

func TestEventCheckpointPersists(t *testing.T) {
	store := storage.NewMemoryAdapter()
	sched := NewScheduler(store, Config{IntervalMs: time.Hour})
	sched.RegisterTask("t1", func() StateSnapshot {
		return StateSnapshot{Task: storage.TaskRecord{ID: "t1", Status: "in_progress"}}
	})
	defer sched.CancelTask("t1")

	require.NoError(t, sched.Event("t1", ReasonUserRequest))

	latest, ok, err := store.LoadLatestCheckpoint(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", latest.TaskID)
}

func TestProgressThresholdGatesCheckpoint(t *testing.T) {
	store := storage.NewMemoryAdapter()
	sched := NewScheduler(store, Config{IntervalMs: time.Hour, ProgressThreshold: 0.5})
	sched.RegisterTask("t1", func() StateSnapshot {
		return StateSnapshot{Task: storage.TaskRecord{ID: "t1"}}
	})
	defer sched.CancelTask("t1")

	sched.CheckProgress("t1", 0.1) // below threshold, no checkpoint
	stats := sched.StatsSnapshot()
	assert.Equal(t, int64(0), stats[TriggerProgress])

	sched.CheckProgress("t1", 0.6) // crosses 0.5 threshold
	stats = sched.StatsSnapshot()
	assert.Equal(t, int64(1), stats[TriggerProgress])
}

func TestCancelTaskStopsSchedule(t *testing.T) {
	store := storage.NewMemoryAdapter()
	sched := NewScheduler(store, Config{})
	sched.RegisterTask("t1", func() StateSnapshot { return StateSnapshot{} })
	sched.CancelTask("t1")

	err := sched.Event("t1", ReasonAuto)
	assert.Error(t, err)
}
