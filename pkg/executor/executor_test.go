package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLevelsLayersByDependency(t *testing.T) {
	tasks := []SubTask{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", Dependencies: []int{0, 1}},
	}
	levels, err := BuildLevels(tasks)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.ElementsMatch(t, []int{0, 1}, levels[0])
	assert.Equal(t, []int{2}, levels[1])
}

func TestBuildLevelsRejectsForwardReference(t *testing.T) {
	tasks := []SubTask{
		{ID: "a", Dependencies: []int{1}},
		{ID: "b"},
	}
	_, err := BuildLevels(tasks)
	require.Error(t, err)
	var cycleErr *ErrCycle
	assert.ErrorAs(t, err, &cycleErr)
}

func TestBuildLevelsRejectsSelfReference(t *testing.T) {
	tasks := []SubTask{{ID: "a", Dependencies: []int{0}}}
	_, err := BuildLevels(tasks)
	assert.Error(t, err)
}

func TestExecuteRunsTwoIndependentTasksConcurrently(t *testing.T) {
	tasks := []SubTask{{ID: "a"}, {ID: "b"}}
	start := time.Now()
	_, stats, err := Execute(context.Background(), tasks, func(ctx context.Context, task SubTask, deps map[string]Result) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return task.ID, nil
	}, Config{MaxConcurrency: 3, ContinueOnError: true})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*50*time.Millisecond)
	assert.Equal(t, 2, stats.Successful)
}

func TestExecuteBoundsConcurrencyByMaxConcurrency(t *testing.T) {
	tasks := make([]SubTask, 20)
	for i := range tasks {
		tasks[i] = SubTask{ID: string(rune('a' + i))}
	}
	var inFlight, maxSeen int32
	_, stats, err := Execute(context.Background(), tasks, func(ctx context.Context, task SubTask, deps map[string]Result) (any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	}, Config{MaxConcurrency: 3, ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Total)
	assert.LessOrEqual(t, int(maxSeen), 3)
}

func TestExecuteSkipsDescendantsOfFailedDependency(t *testing.T) {
	tasks := []SubTask{
		{ID: "a"},
		{ID: "b", Dependencies: []int{0}},
	}
	results, stats, err := Execute(context.Background(), tasks, func(ctx context.Context, task SubTask, deps map[string]Result) (any, error) {
		if task.ID == "a" {
			return nil, errors.New("boom")
		}
		t.Fatal("b should never run: its dependency failed")
		return nil, nil
	}, Config{ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, StatusSkipped, results[1].Status)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
}

func TestExecuteAbortsLaterLevelsWhenContinueOnErrorFalse(t *testing.T) {
	tasks := []SubTask{
		{ID: "a"},
		{ID: "b", Dependencies: []int{0}},
		{ID: "c", Dependencies: []int{1}},
	}
	results, _, err := Execute(context.Background(), tasks, func(ctx context.Context, task SubTask, deps map[string]Result) (any, error) {
		if task.ID == "a" {
			return nil, nil
		}
		return nil, errors.New("boom")
	}, Config{ContinueOnError: false})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Equal(t, StatusSkipped, results[2].Status)
}

func TestExecuteEmitsLevelAndProgressEvents(t *testing.T) {
	tasks := []SubTask{{ID: "a"}, {ID: "b", Dependencies: []int{0}}}
	var levelStarts, levelCompletes, progress int
	_, _, err := Execute(context.Background(), tasks, func(ctx context.Context, task SubTask, deps map[string]Result) (any, error) {
		return nil, nil
	}, Config{
		ContinueOnError: true,
		OnLevelStart:    func(level, count int) { levelStarts++ },
		OnLevelComplete: func(level int, results []Result) { levelCompletes++ },
		OnProgress:      func(completed, total int, latest Result) { progress++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 2, levelStarts)
	assert.Equal(t, 2, levelCompletes)
	assert.Equal(t, 2, progress)
}
