// Package executor implements the Parallel Executor (C9): topological
// layering of a sub-task DAG into levels, each run through a bounded
// worker pool, grounded on the pack's errgroup-based fan-out idiom
// (workflowagent's parallel stage runner) combined with a static
// Kahn's-algorithm level computation rather than a live ready-queue.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SubTask is one node of the DAG handed to Execute. Dependencies reference
// prior sub-tasks by index into the input slice (spec.md §4.8 point 1).
type SubTask struct {
	ID           string
	Description  string
	Priority     int
	Dependencies []int // indices into the input slice; must all be < this task's index
}

// Status is the terminal state of one sub-task's execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusSkipped marks a sub-task that was never run because a
	// dependency on which it transitively depends failed — Open Question
	// (b) resolved: skipped, not failed, even under continueOnError=true.
	StatusSkipped Status = "skipped"
)

// Result is one sub-task's outcome, with its level index.
type Result struct {
	SubTaskID string
	Level     int
	Status    Status
	Output    any
	Err       error
}

// RunFunc performs one sub-task's work. It receives the already-computed
// results of its direct dependencies, keyed by sub-task ID.
type RunFunc func(ctx context.Context, task SubTask, deps map[string]Result) (any, error)

// Config tunes the executor, with spec.md §6.5 defaults applied by
// Execute when zero.
type Config struct {
	MaxConcurrency  int           // default 3
	TaskTimeout     time.Duration // default 120s
	ContinueOnError bool          // not defaulted: false (the zero value) skips every later level after a failure
	OnProgress      func(completed, total int, latest Result)
	OnLevelStart    func(level, count int)
	OnLevelComplete func(level int, results []Result)
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 3
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 120 * time.Second
	}
	return c
}

// Stats summarises one Execute run, per spec.md §4.8 point 8.
type Stats struct {
	Total              int
	Successful         int
	Failed             int
	Skipped            int
	Levels             int
	ParallelEfficiency float64
	TotalTime          time.Duration
}

// ErrCycle is returned when the input DAG contains a cycle or a
// forward/self reference.
type ErrCycle struct {
	SubTaskID string
}

func (e *ErrCycle) Error() string {
	return fmt.Sprintf("dependency cycle or forward reference detected at sub-task %q", e.SubTaskID)
}

// BuildLevels validates the DAG (cycle and forward/self-reference
// detection, spec.md §4.8 point 1) and computes its topological levels via
// Kahn's algorithm (point 2): level 0 is every node with no remaining
// dependency, then each subsequent level removes the prior level's nodes
// and their outgoing edges.
func BuildLevels(tasks []SubTask) ([][]int, error) {
	n := len(tasks)
	for i, t := range tasks {
		for _, dep := range t.Dependencies {
			if dep < 0 || dep >= n || dep >= i {
				return nil, &ErrCycle{SubTaskID: t.ID}
			}
		}
	}

	remaining := make([]int, n) // count of unresolved deps per task
	dependents := make([][]int, n)
	for i, t := range tasks {
		remaining[i] = len(t.Dependencies)
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	var levels [][]int
	done := make([]bool, n)
	left := n
	for left > 0 {
		var level []int
		for i := 0; i < n; i++ {
			if !done[i] && remaining[i] == 0 {
				level = append(level, i)
			}
		}
		if len(level) == 0 {
			// every remaining node has an unresolved dependency: a cycle.
			for i := 0; i < n; i++ {
				if !done[i] {
					return nil, &ErrCycle{SubTaskID: tasks[i].ID}
				}
			}
			break
		}
		// tie-break: input order, then priority descending (point on ties
		// within a level; input order is already the iteration order above,
		// so stable-sort only reorders on explicit priority).
		sort.SliceStable(level, func(a, b int) bool {
			return tasks[level[a]].Priority > tasks[level[b]].Priority
		})
		levels = append(levels, level)
		for _, i := range level {
			done[i] = true
			left--
			for _, dep := range dependents[i] {
				remaining[dep]--
			}
		}
	}
	return levels, nil
}

// Execute runs the sub-task DAG to completion per spec.md §4.8: levels run
// sequentially, each level's tasks run concurrently bounded by
// cfg.MaxConcurrency, and descendants of a failed dependency are marked
// Skipped rather than Failed or Success, regardless of ContinueOnError.
func Execute(ctx context.Context, tasks []SubTask, run RunFunc, cfg Config) ([]Result, Stats, error) {
	cfg = cfg.withDefaults()
	start := time.Now()

	levels, err := BuildLevels(tasks)
	if err != nil {
		return nil, Stats{}, err
	}

	results := make([]Result, len(tasks))
	byID := make(map[string]Result, len(tasks))
	var mu sync.Mutex
	completed := 0
	aborted := false

	for levelIdx, level := range levels {
		if cfg.OnLevelStart != nil {
			cfg.OnLevelStart(levelIdx, len(level))
		}

		if aborted {
			levelResults := make([]Result, 0, len(level))
			for _, idx := range level {
				r := Result{SubTaskID: tasks[idx].ID, Level: levelIdx, Status: StatusSkipped}
				results[idx] = r
				byID[tasks[idx].ID] = r
				levelResults = append(levelResults, r)
			}
			if cfg.OnLevelComplete != nil {
				cfg.OnLevelComplete(levelIdx, levelResults)
			}
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.MaxConcurrency)
		levelResults := make([]Result, len(level))

		for pos, idx := range level {
			pos, idx := pos, idx
			t := tasks[idx]

			skip := false
			deps := make(map[string]Result, len(t.Dependencies))
			for _, d := range t.Dependencies {
				dr := results[d]
				deps[tasks[d].ID] = dr
				if dr.Status != StatusSuccess {
					skip = true
				}
			}
			if skip {
				levelResults[pos] = Result{SubTaskID: t.ID, Level: levelIdx, Status: StatusSkipped}
				continue
			}

			g.Go(func() error {
				taskCtx, cancel := context.WithTimeout(gctx, cfg.TaskTimeout)
				defer cancel()

				out, rerr := run(taskCtx, t, deps)
				r := Result{SubTaskID: t.ID, Level: levelIdx, Output: out}
				if rerr != nil {
					r.Status = StatusFailed
					r.Err = rerr
				} else {
					r.Status = StatusSuccess
				}
				levelResults[pos] = r

				mu.Lock()
				completed++
				if cfg.OnProgress != nil {
					cfg.OnProgress(completed, len(tasks), r)
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait() // RunFunc failures are carried in Result, never as a group error

		for pos, idx := range level {
			results[idx] = levelResults[pos]
			byID[tasks[idx].ID] = levelResults[pos]
			if levelResults[pos].Status == StatusFailed && !cfg.ContinueOnError {
				aborted = true
			}
		}
		if cfg.OnLevelComplete != nil {
			cfg.OnLevelComplete(levelIdx, levelResults)
		}
	}

	stats := Stats{Total: len(tasks), Levels: len(levels), TotalTime: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			stats.Successful++
		case StatusFailed:
			stats.Failed++
		case StatusSkipped:
			stats.Skipped++
		}
	}
	if stats.Levels > 0 {
		stats.ParallelEfficiency = float64(stats.Total) / float64(stats.Levels)
	}
	return results, stats, nil
}
