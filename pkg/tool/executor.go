package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeouts holds the per-category defaults from spec.md §6.3.
var DefaultTimeouts = map[Category]time.Duration{
	CategoryRead:           10 * time.Second,
	CategoryFileWrite:      10 * time.Second,
	CategoryFileDelete:     10 * time.Second,
	CategoryShellCommand:   30 * time.Second,
	CategoryPackageInstall: 180 * time.Second,
	CategoryGitOperation:   30 * time.Second,
	CategoryServerStart:    30 * time.Second,
	CategoryServerStop:     30 * time.Second,
	CategoryNetwork:        30 * time.Second,
	CategoryOther:          30 * time.Second,
}

// DryRunGate is consulted before executing any side-effecting call. It
// returns (blocked, reason); when blocked is true the call resolves as a
// DRY_RUN_BLOCKED failure without invoking the handler. Implemented by
// pkg/dryrun's Manager.
type DryRunGate interface {
	Intercept(call Call, cat Category) (blocked bool, reason string)
}

// Observers are best-effort hooks; any error or panic they raise is
// swallowed so telemetry never perturbs execution.
type Observers struct {
	OnToolCall   func(call Call)
	OnToolResult func(call Call, result Result)
	OnToolError  func(call Call, err error)
}

func (o Observers) fire(fn func()) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn()
}

// Executor is the Tool Executor (C4): runs a batch of tool calls against a
// Registry, serially or with bounded parallelism, applying per-tool
// timeouts and the dry-run gate before any side-effecting call.
type Executor struct {
	Registry        *Registry
	MaxParallel      int
	Timeouts        map[Category]time.Duration
	FallbackHandler Handler // used when a call's tool name isn't registered
	DryRun          DryRunGate
	Observers       Observers
}

// NewExecutor creates an Executor bound to a registry with the default
// timeout table and maxParallelTools=3.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		Registry:    registry,
		MaxParallel: 3,
		Timeouts:    DefaultTimeouts,
	}
}

func (e *Executor) timeoutFor(cat Category) time.Duration {
	if d, ok := e.Timeouts[cat]; ok {
		return d
	}
	return 30 * time.Second
}

// ExecuteOne runs a single call, applying the dry-run gate and timeout.
func (e *Executor) ExecuteOne(ctx context.Context, call Call) Result {
	e.Observers.fire(func() { e.Observers.OnToolCall(call) })

	cat, registered := e.Registry.Lookup(call.Name)
	if cat.SideEffecting() && e.DryRun != nil {
		if blocked, reason := e.DryRun.Intercept(call, cat); blocked {
			res := Result{ToolCallID: call.ID, IsError: true, Error: "DRY_RUN_BLOCKED: " + reason}
			e.Observers.fire(func() { e.Observers.OnToolResult(call, res) })
			return res
		}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeoutFor(cat))
	defer cancel()

	resultCh := make(chan Result, 1)
	go func() {
		if !registered && e.FallbackHandler != nil {
			out, err := e.FallbackHandler(ctx, call.Input)
			if err != nil {
				resultCh <- errorResult(call.ID, err, time.Since(start))
				return
			}
			resultCh <- successResult(call.ID, out, time.Since(start))
			return
		}
		resultCh <- e.Registry.Execute(ctx, call)
	}()

	var result Result
	select {
	case result = <-resultCh:
		result.ExecutionTime = time.Since(start)
	case <-ctx.Done():
		result = Result{
			ToolCallID:    call.ID,
			IsError:       true,
			Error:         "TOOL_TIMEOUT: " + fmt.Sprintf("%q exceeded %s", call.Name, e.timeoutFor(cat)),
			ExecutionTime: time.Since(start),
		}
	}

	if result.IsError {
		e.Observers.fire(func() { e.Observers.OnToolError(call, fmt.Errorf("%s", result.Error)) })
	}
	e.Observers.fire(func() { e.Observers.OnToolResult(call, result) })
	return result
}

// ExecuteSequential runs calls one after another in input order.
func (e *Executor) ExecuteSequential(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = e.ExecuteOne(ctx, call)
	}
	return results
}

// ExecuteParallel runs calls with bounded concurrency (MaxParallel),
// preserving input order in the returned slice regardless of completion
// order.
func (e *Executor) ExecuteParallel(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	if len(calls) == 0 {
		return results
	}

	limit := e.MaxParallel
	if limit <= 0 {
		limit = 3
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, limit)
	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, c Call) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

// ExecuteGroup is an errgroup-based variant of ExecuteParallel, bounded by
// MaxParallel and preserving input order. The returned error is always nil:
// ExecuteOne folds every failure into its Result, so a failed call does not
// cancel the others.
func (e *Executor) ExecuteGroup(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	limit := e.MaxParallel
	if limit <= 0 {
		limit = 3
	}
	g.SetLimit(limit)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = e.ExecuteOne(gctx, call)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
