// Package checkpoint implements the Checkpoint Scheduler (C7): snapshots
// of task state taken on interval/progress/token/event triggers, grounded
// on the reference repo's checkpoint Manager and CheckpointHooks shape but
// retargeted at the simpler Task/History pair this module uses instead of
// the reference's session-state machinery.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcflow/conductor/pkg/storage"
)

// Trigger identifies what caused a checkpoint to be taken.
type Trigger string

const (
	TriggerInterval Trigger = "interval"
	TriggerProgress Trigger = "progress"
	TriggerTokens   Trigger = "tokens"
	TriggerEvent    Trigger = "event"
)

// Reason mirrors spec.md §3.7's checkpoint reason enum.
type Reason string

const (
	ReasonAuto        Reason = "auto"
	ReasonPause       Reason = "pause"
	ReasonError       Reason = "error"
	ReasonTimeout     Reason = "timeout"
	ReasonUserRequest Reason = "user_request"
)

// Config tunes the scheduler's four triggers, with spec.md §6.5 defaults
// applied by NewScheduler.
type Config struct {
	IntervalMs       time.Duration
	ProgressThreshold float64
	TokenThreshold    int
	TTL               time.Duration
}

func (c Config) withDefaults() Config {
	if c.IntervalMs <= 0 {
		c.IntervalMs = 30 * time.Second
	}
	if c.ProgressThreshold <= 0 {
		c.ProgressThreshold = 0.10
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = 10_000
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	return c
}

// StateSnapshot is what a StateProvider returns: enough to reconstruct
// in-progress task state, per spec.md §3.7.
type StateSnapshot struct {
	Task            storage.TaskRecord
	AgentName       string
	MessageHistory  []byte
	PartialResults  map[string]any
	CurrentStep     *int
	TotalSteps      *int
	Metadata        map[string]any
}

// StateProvider produces the current state of a task on demand; the
// scheduler never mutates task state itself.
type StateProvider func() StateSnapshot

// Stats counts checkpoints taken per trigger.
type Stats struct {
	mu       sync.Mutex
	byTrigger map[Trigger]int64
}

func newStats() *Stats { return &Stats{byTrigger: make(map[Trigger]int64)} }

func (s *Stats) record(t Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTrigger[t]++
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() map[Trigger]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Trigger]int64, len(s.byTrigger))
	for k, v := range s.byTrigger {
		out[k] = v
	}
	return out
}

type taskSchedule struct {
	taskID       string
	provider     StateProvider
	timer        *time.Timer
	stop         chan struct{}
	lastProgress float64
	lastTokens   int
}

// Scheduler is the Checkpoint Scheduler (C7). One Scheduler is shared by
// the process; tasks register a StateProvider and are unregistered (via
// CancelTask) when execution completes.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	storage   storage.Adapter
	schedules map[string]*taskSchedule
	stats     *Stats
}

// NewScheduler creates a checkpoint scheduler backed by a storage adapter.
func NewScheduler(store storage.Adapter, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		storage:   store,
		schedules: make(map[string]*taskSchedule),
		stats:     newStats(),
	}
}

// RegisterTask starts interval checkpointing for a task, per spec.md
// §4.9 step 1 ("schedule interval checkpoints for this task").
func (s *Scheduler) RegisterTask(taskID string, provider StateProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := &taskSchedule{taskID: taskID, provider: provider, stop: make(chan struct{})}
	s.schedules[taskID] = ts
	s.startIntervalLocked(ts)
}

func (s *Scheduler) startIntervalLocked(ts *taskSchedule) {
	ts.timer = time.AfterFunc(s.cfg.IntervalMs, func() {
		s.takeLocked(ts, TriggerInterval, ReasonAuto)
		s.mu.Lock()
		if _, ok := s.schedules[ts.taskID]; ok {
			ts.timer.Reset(s.cfg.IntervalMs)
		}
		s.mu.Unlock()
	})
}

// takeLocked snapshots and persists a checkpoint. Must be called without
// holding s.mu; it takes no scheduler lock itself (Stats has its own).
func (s *Scheduler) takeLocked(ts *taskSchedule, trigger Trigger, reason Reason) {
	snap := ts.provider()
	now := time.Now()
	rec := storage.CheckpointRecord{
		ID:             uuid.New().String(),
		TaskID:         ts.taskID,
		Task:           snap.Task,
		AgentName:      snap.AgentName,
		MessageHistory: snap.MessageHistory,
		PartialResults: snap.PartialResults,
		CurrentStep:    snap.CurrentStep,
		TotalSteps:     snap.TotalSteps,
		Metadata:       snap.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		Reason:         string(reason),
		SchemaVersion:  storage.SchemaVersion,
	}
	if err := s.storage.SaveCheckpoint(context.Background(), rec); err != nil {
		return // best-effort: a failed checkpoint write never blocks execution
	}
	s.stats.record(trigger)
}

// CheckProgress is called by the orchestrator whenever it observes
// progress; a checkpoint is taken if progress grew by >= ProgressThreshold
// since the last progress checkpoint.
func (s *Scheduler) CheckProgress(taskID string, progress float64) {
	s.mu.Lock()
	ts, ok := s.schedules[taskID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if progress-ts.lastProgress >= s.cfg.ProgressThreshold {
		ts.lastProgress = progress
		s.takeLocked(ts, TriggerProgress, ReasonAuto)
	}
}

// CheckTokens is called with cumulative token usage; a checkpoint is
// taken if usage grew by >= TokenThreshold since the last token
// checkpoint.
func (s *Scheduler) CheckTokens(taskID string, tokens int) {
	s.mu.Lock()
	ts, ok := s.schedules[taskID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if tokens-ts.lastTokens >= s.cfg.TokenThreshold {
		ts.lastTokens = tokens
		s.takeLocked(ts, TriggerTokens, ReasonAuto)
	}
}

// Event takes an explicit checkpoint — delegation before/after, sub-task
// complete, error, manual.
func (s *Scheduler) Event(taskID string, reason Reason) error {
	s.mu.Lock()
	ts, ok := s.schedules[taskID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no schedule registered for task %q", taskID)
	}
	s.takeLocked(ts, TriggerEvent, reason)
	return nil
}

// CancelTask stops a task's interval timer and removes its schedule. The
// orchestrator calls this in a finally-equivalent step after execute(),
// per spec.md §4.9 step 7.
func (s *Scheduler) CancelTask(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.schedules[taskID]
	if !ok {
		return
	}
	if ts.timer != nil {
		ts.timer.Stop()
	}
	delete(s.schedules, taskID)
}

// LoadLatest returns the most recent checkpoint for a task, used on
// process restart to resume pending work.
func (s *Scheduler) LoadLatest(ctx context.Context, taskID string) (storage.CheckpointRecord, bool, error) {
	return s.storage.LoadLatestCheckpoint(ctx, taskID)
}

// Cleanup removes checkpoints older than the configured TTL.
func (s *Scheduler) Cleanup(ctx context.Context) (int, error) {
	return s.storage.CleanupCheckpoints(ctx, s.cfg.TTL)
}

// StatsSnapshot returns the per-trigger checkpoint counts.
func (s *Scheduler) StatsSnapshot() map[Trigger]int64 {
	return s.stats.Snapshot()
}
