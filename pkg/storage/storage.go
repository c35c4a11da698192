// Package storage implements the Storage Adapter (C6): a uniform
// persistence interface over tasks, checkpoints and dead-letter entries,
// backed by an embedded durable store, a key-value fallback, or an
// in-memory map, selected at startup per spec.md §4.5's durable -> kv ->
// memory chain.
package storage

import (
	"context"
	"time"
)

// SchemaVersion tags every persisted record. JSON-backed loaders tolerate
// unknown fields. Only SQLAdapter.LoadTask checks the version: it rejects a
// task record tagged higher, or lower but non-zero, as needing an explicit
// migration. The other loaders do not check it.
const SchemaVersion = 1

// TaskRecord is the persisted shape of a task — a flat, adapter-agnostic
// mirror of pkg/task.Task so this package never imports the task package
// (avoiding a dependency cycle with checkpoint/dlq, which both depend on
// storage).
type TaskRecord struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Prompt        string         `json:"prompt"`
	Status        string         `json:"status"`
	Context       map[string]any `json:"context,omitempty"`
	Metadata      map[string]any `json:"metadata"`
	Result        map[string]any `json:"result,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	SchemaVersion int            `json:"schemaVersion"`
}

// CheckpointRecord is the persisted shape of a checkpoint, per spec.md §3.7.
type CheckpointRecord struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"taskId"`
	Task            TaskRecord     `json:"task"`
	AgentName       string         `json:"agentName"`
	MessageHistory  []byte         `json:"messageHistory"` // opaque, serialized by the caller
	PartialResults  map[string]any `json:"partialResults,omitempty"`
	CurrentStep     *int           `json:"currentStep,omitempty"`
	TotalSteps      *int           `json:"totalSteps,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Reason          string         `json:"reason"` // auto | pause | error | timeout | user_request
	SchemaVersion   int            `json:"schemaVersion"`
}

// DeadLetterRecord is the persisted shape of a dead-letter entry, per
// spec.md §3.8.
type DeadLetterRecord struct {
	ID            string     `json:"id"`
	Task          TaskRecord `json:"task"`
	Error         string     `json:"error"`
	Attempts      int        `json:"attempts"`
	FirstFailedAt time.Time  `json:"firstFailedAt"`
	LastFailedAt  time.Time  `json:"lastFailedAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	SchemaVersion int        `json:"schemaVersion"`
}

// Stats summarises adapter contents.
type Stats struct {
	TaskCount       int
	CheckpointCount int
	DeadLetterCount int
	Backend         string
}

// Dataset is the export/import payload. Import writes every slice it is
// given; what Export fills differs by adapter: MemoryAdapter exports all
// tasks, checkpoints and dead letters, KVAdapter only the
// pending/queued/in_progress tasks and the dead letters, and SQLAdapter
// only the pending/queued/in_progress tasks.
type Dataset struct {
	Tasks        []TaskRecord       `json:"tasks"`
	Checkpoints  []CheckpointRecord `json:"checkpoints"`
	DeadLetters  []DeadLetterRecord `json:"deadLetters"`
}

// Adapter is the uniform persistence interface spec.md §4.5 names. Every
// Save* call is a single atomic write; readers see a consistent snapshot,
// never a partial update.
type Adapter interface {
	SaveTask(ctx context.Context, t TaskRecord) error
	LoadTask(ctx context.Context, id string) (TaskRecord, bool, error)
	UpdateTask(ctx context.Context, t TaskRecord) error
	DeleteTask(ctx context.Context, id string) error
	// LoadPendingTasks returns exactly the tasks whose status was one of
	// pending/queued/in_progress at persisted time (spec.md §4.5 invariant).
	LoadPendingTasks(ctx context.Context) ([]TaskRecord, error)

	SaveCheckpoint(ctx context.Context, c CheckpointRecord) error
	// LoadLatestCheckpoint returns the most recently updated checkpoint for
	// a task, per spec.md §3.7's "at most one latest checkpoint surfaced".
	LoadLatestCheckpoint(ctx context.Context, taskID string) (CheckpointRecord, bool, error)
	ListCheckpoints(ctx context.Context, taskID string) ([]CheckpointRecord, error)
	DeleteCheckpoint(ctx context.Context, id string) error
	CleanupCheckpoints(ctx context.Context, maxAge time.Duration) (int, error)

	SaveDeadLetter(ctx context.Context, d DeadLetterRecord) error
	LoadDeadLetter(ctx context.Context, id string) (DeadLetterRecord, bool, error)
	ListDeadLetters(ctx context.Context) ([]DeadLetterRecord, error)
	DeleteDeadLetter(ctx context.Context, id string) error
	CleanupDeadLetters(ctx context.Context, now time.Time) (int, error)

	GetStats(ctx context.Context) (Stats, error)
	Export(ctx context.Context) (Dataset, error)
	Import(ctx context.Context, d Dataset) error

	Close() error
}
