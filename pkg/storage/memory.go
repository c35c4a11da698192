package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryAdapter is the in-memory tier of the durable->kv->memory chain:
// always available, never returns an error, used both as the last-resort
// fallback and directly in tests.
type MemoryAdapter struct {
	mu          sync.RWMutex
	tasks       map[string]TaskRecord
	checkpoints map[string]CheckpointRecord
	deadLetters map[string]DeadLetterRecord
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		tasks:       make(map[string]TaskRecord),
		checkpoints: make(map[string]CheckpointRecord),
		deadLetters: make(map[string]DeadLetterRecord),
	}
}

func (m *MemoryAdapter) SaveTask(_ context.Context, t TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryAdapter) LoadTask(_ context.Context, id string) (TaskRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok, nil
}

func (m *MemoryAdapter) UpdateTask(ctx context.Context, t TaskRecord) error {
	return m.SaveTask(ctx, t)
}

func (m *MemoryAdapter) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *MemoryAdapter) LoadPendingTasks(_ context.Context) ([]TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TaskRecord
	for _, t := range m.tasks {
		switch t.Status {
		case "pending", "queued", "in_progress":
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) SaveCheckpoint(_ context.Context, c CheckpointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[c.ID] = c
	return nil
}

func (m *MemoryAdapter) LoadLatestCheckpoint(_ context.Context, taskID string) (CheckpointRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest CheckpointRecord
	found := false
	for _, c := range m.checkpoints {
		if c.TaskID != taskID {
			continue
		}
		if !found || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
			found = true
		}
	}
	return latest, found, nil
}

func (m *MemoryAdapter) ListCheckpoints(_ context.Context, taskID string) ([]CheckpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CheckpointRecord
	for _, c := range m.checkpoints {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) DeleteCheckpoint(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, id)
	return nil
}

func (m *MemoryAdapter) CleanupCheckpoints(_ context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for id, c := range m.checkpoints {
		if c.UpdatedAt.Before(cutoff) {
			delete(m.checkpoints, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryAdapter) SaveDeadLetter(_ context.Context, d DeadLetterRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters[d.ID] = d
	return nil
}

func (m *MemoryAdapter) LoadDeadLetter(_ context.Context, id string) (DeadLetterRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deadLetters[id]
	return d, ok, nil
}

func (m *MemoryAdapter) ListDeadLetters(_ context.Context) ([]DeadLetterRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeadLetterRecord, 0, len(m.deadLetters))
	for _, d := range m.deadLetters {
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryAdapter) DeleteDeadLetter(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deadLetters, id)
	return nil
}

func (m *MemoryAdapter) CleanupDeadLetters(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, d := range m.deadLetters {
		if !now.Before(d.ExpiresAt) {
			delete(m.deadLetters, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryAdapter) GetStats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		TaskCount:       len(m.tasks),
		CheckpointCount: len(m.checkpoints),
		DeadLetterCount: len(m.deadLetters),
		Backend:         "memory",
	}, nil
}

func (m *MemoryAdapter) Export(_ context.Context) (Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds := Dataset{}
	for _, t := range m.tasks {
		ds.Tasks = append(ds.Tasks, t)
	}
	for _, c := range m.checkpoints {
		ds.Checkpoints = append(ds.Checkpoints, c)
	}
	for _, d := range m.deadLetters {
		ds.DeadLetters = append(ds.DeadLetters, d)
	}
	return ds, nil
}

func (m *MemoryAdapter) Import(_ context.Context, ds Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range ds.Tasks {
		m.tasks[t.ID] = t
	}
	for _, c := range ds.Checkpoints {
		m.checkpoints[c.ID] = c
	}
	for _, d := range ds.DeadLetters {
		m.deadLetters[d.ID] = d
	}
	return nil
}

func (m *MemoryAdapter) Close() error { return nil }
