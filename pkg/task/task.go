// Package task implements the task lifecycle: the state machine, metadata,
// and result shape shared by every other component that handles a unit of
// orchestration work.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcflow/conductor/pkg/storage"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MaxDecompositionDepth bounds how many times a task may be decomposed
// into sub-tasks along a single ancestry chain.
const MaxDecompositionDepth = 5

// SchemaVersion tags the persisted shape of a Task.
const SchemaVersion = 1

// Context carries optional task-scoped references: file paths, a working
// directory, inline code snippets, and arbitrary extra key-values. It has
// no behaviour of its own — the capability providers that consume it
// (file systems, shells) live outside this module.
type Context struct {
	Files      []string       `json:"files,omitempty"`
	WorkingDir string         `json:"workingDir,omitempty"`
	Snippets   []string       `json:"snippets,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Metadata carries the ancestry and provenance of a task.
type Metadata struct {
	ParentTaskID       string         `json:"parentTaskId,omitempty"`
	DecompositionDepth int            `json:"decompositionDepth"`
	RetryCount         int            `json:"retryCount"`
	Source             string         `json:"source,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// Artifact is a named output produced while executing a task.
type Artifact struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Data any    `json:"data,omitempty"`
}

// ResultError is one error entry attached to a failed or partial result.
type ResultError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// Result is the terminal payload of a task.
type Result struct {
	Success   bool           `json:"success"`
	Output    string         `json:"output,omitempty"`
	Errors    []ResultError  `json:"errors,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Task is the unit of orchestration work. Exported fields are safe to read
// directly; mutation must go through the methods below so that status
// transitions, timestamps and the terminal-result invariant stay consistent
// under concurrent access.
type Task struct {
	ID     string `json:"id"`
	Type   string `json:"type"` // agent kind, or "orchestrator"
	Prompt string `json:"prompt"`

	Context  *Context `json:"context,omitempty"`
	Metadata Metadata `json:"metadata"`
	Result   *Result  `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	SchemaVersion int `json:"schemaVersion"`

	mu     sync.RWMutex
	status Status
}

// New creates a pending task rooted at decomposition depth 0.
func New(taskType, prompt string) *Task {
	return &Task{
		ID:            uuid.New().String(),
		Type:          taskType,
		Prompt:        prompt,
		Metadata:      Metadata{Source: "orchestrator"},
		CreatedAt:     time.Now(),
		SchemaVersion: SchemaVersion,
		status:        StatusPending,
	}
}

// NewChild creates a sub-task descending from parent, with decomposition
// depth incremented. Callers must check parent's depth against
// MaxDecompositionDepth before calling this.
func NewChild(parent *Task, agentKind, prompt string) *Task {
	t := New(agentKind, prompt)
	t.Metadata.ParentTaskID = parent.ID
	t.Metadata.DecompositionDepth = parent.Metadata.DecompositionDepth + 1
	t.Metadata.Source = parent.ID
	return t
}

// Status returns the current status.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Enqueue transitions pending -> queued.
func (t *Task) Enqueue() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusPending {
		t.status = StatusQueued
	}
}

// Start transitions (pending|queued) -> in_progress and stamps startedAt.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return
	}
	t.status = StatusInProgress
	now := time.Now()
	t.StartedAt = &now
}

// Complete transitions the task to a terminal state and attaches the
// result. Once terminal, timestamps are frozen and further calls are
// no-ops — a task completes exactly once.
func (t *Task) Complete(result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return
	}
	if result.Success {
		t.status = StatusCompleted
	} else {
		t.status = StatusFailed
	}
	t.Result = &result
	now := time.Now()
	t.CompletedAt = &now
}

// Reset clears a terminal task back to pending for a DLQ retry, bumping
// retryCount. Callers must only invoke this on a terminal, previously
// failed task pulled from the dead-letter queue.
func (t *Task) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusPending
	t.Result = nil
	t.CompletedAt = nil
	t.StartedAt = nil
	t.Metadata.RetryCount++
}

// Snapshot returns a deep-enough copy for checkpointing: a value copy of
// every field the mutex guards, safe to read without holding the lock.
func (t *Task) Snapshot() Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := *t
	cp.mu = sync.RWMutex{}
	if t.Context != nil {
		ctxCopy := *t.Context
		ctxCopy.Files = append([]string(nil), t.Context.Files...)
		ctxCopy.Snippets = append([]string(nil), t.Context.Snippets...)
		cp.Context = &ctxCopy
	}
	if t.Result != nil {
		resCopy := *t.Result
		cp.Result = &resCopy
	}
	cp.status = t.status
	return cp
}

// ToRecord flattens a task into the storage package's adapter-agnostic
// shape, for persistence and for handing to components (checkpoint,
// dlq) that must not import this package.
func (t *Task) ToRecord() storage.TaskRecord {
	snap := t.Snapshot()
	rec := storage.TaskRecord{
		ID:            snap.ID,
		Type:          snap.Type,
		Prompt:        snap.Prompt,
		Status:        string(snap.status),
		Metadata:      metadataToMap(snap.Metadata),
		CreatedAt:     snap.CreatedAt,
		StartedAt:     snap.StartedAt,
		CompletedAt:   snap.CompletedAt,
		SchemaVersion: snap.SchemaVersion,
	}
	if snap.Context != nil {
		rec.Context = contextToMap(*snap.Context)
	}
	if snap.Result != nil {
		rec.Result = resultToMap(*snap.Result)
	}
	return rec
}

// FromRecord reconstructs a Task from its persisted shape, e.g. when
// resuming a pending task reset by the dead-letter queue.
func FromRecord(rec storage.TaskRecord) *Task {
	t := &Task{
		ID:            rec.ID,
		Type:          rec.Type,
		Prompt:        rec.Prompt,
		status:        Status(rec.Status),
		CreatedAt:     rec.CreatedAt,
		StartedAt:     rec.StartedAt,
		CompletedAt:   rec.CompletedAt,
		SchemaVersion: rec.SchemaVersion,
		Metadata:      metadataFromMap(rec.Metadata),
	}
	if rec.Context != nil {
		ctx := contextFromMap(rec.Context)
		t.Context = &ctx
	}
	if rec.Result != nil {
		res := resultFromMap(rec.Result)
		t.Result = &res
	}
	return t
}

func metadataToMap(m Metadata) map[string]any {
	out := map[string]any{
		"decompositionDepth": m.DecompositionDepth,
		"retryCount":         m.RetryCount,
	}
	if m.ParentTaskID != "" {
		out["parentTaskId"] = m.ParentTaskID
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return out
}

func metadataFromMap(m map[string]any) Metadata {
	out := Metadata{Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case "decompositionDepth":
			out.DecompositionDepth = toInt(v)
		case "retryCount":
			out.RetryCount = toInt(v)
		case "parentTaskId":
			out.ParentTaskID, _ = v.(string)
		case "source":
			out.Source, _ = v.(string)
		default:
			out.Extra[k] = v
		}
	}
	return out
}

func contextToMap(c Context) map[string]any {
	out := map[string]any{}
	if len(c.Files) > 0 {
		out["files"] = c.Files
	}
	if c.WorkingDir != "" {
		out["workingDir"] = c.WorkingDir
	}
	if len(c.Snippets) > 0 {
		out["snippets"] = c.Snippets
	}
	for k, v := range c.Extra {
		out[k] = v
	}
	return out
}

func contextFromMap(m map[string]any) Context {
	out := Context{Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case "files":
			out.Files = toStringSlice(v)
		case "workingDir":
			out.WorkingDir, _ = v.(string)
		case "snippets":
			out.Snippets = toStringSlice(v)
		default:
			out.Extra[k] = v
		}
	}
	return out
}

func resultToMap(r Result) map[string]any {
	out := map[string]any{"success": r.Success}
	if r.Output != "" {
		out["output"] = r.Output
	}
	if len(r.Errors) > 0 {
		out["errors"] = r.Errors
	}
	if len(r.Artifacts) > 0 {
		out["artifacts"] = r.Artifacts
	}
	if len(r.Data) > 0 {
		out["data"] = r.Data
	}
	return out
}

func resultFromMap(m map[string]any) Result {
	out := Result{}
	if v, ok := m["success"].(bool); ok {
		out.Success = v
	}
	if v, ok := m["output"].(string); ok {
		out.Output = v
	}
	if v, ok := m["data"].(map[string]any); ok {
		out.Data = v
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func toStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
