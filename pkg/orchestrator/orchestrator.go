// Package orchestrator implements the Orchestrator (C12): the one
// execute(task) pipeline every task passes through — consult the routing
// cache, ask the decision oracle, validate strictly, dispatch to
// delegation/decomposition/direct-answer, and checkpoint throughout —
// grounded on the reference repo's supervisor reasoning strategy but
// rebuilt against this module's Task/Agent/Circuit/Checkpoint types
// instead of the reference's InvocationContext/Session machinery.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcflow/conductor/pkg/checkpoint"
	"github.com/arcflow/conductor/pkg/circuit"
	"github.com/arcflow/conductor/pkg/executor"
	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/oracle"
	"github.com/arcflow/conductor/pkg/registry"
	"github.com/arcflow/conductor/pkg/routingcache"
	"github.com/arcflow/conductor/pkg/task"
)

// DefaultHistorySize bounds the message history handed to each agent
// invocation the orchestrator dispatches.
const DefaultHistorySize = 50

// AgentRunner runs one agent-kind's loop against a sub-task, returning its
// terminal result. The orchestrator is agnostic to what's behind this —
// cmd/orchestrator wires one agent.Loop per recognised kind.
type AgentRunner func(ctx context.Context, agentKind string, t *task.Task) (task.Result, error)

// Error codes the orchestrator attaches to task.ResultError, per spec.md §7.
const (
	ErrAgentNotFound    = "AGENT_NOT_FOUND"
	ErrAgentBusy        = "AGENT_BUSY"
	ErrCircuitOpen      = "CIRCUIT_OPEN"
	ErrMaxDepthExceeded = "MAX_DEPTH_EXCEEDED"
	ErrValidation       = "VALIDATION"
	ErrNoSubtasks       = "NO_SUBTASKS"
)

// Orchestrator is the Orchestrator (C12).
type Orchestrator struct {
	Oracle       oracle.DecisionOracle
	Agents       *registry.AgentRegistry
	Circuit      *circuit.Breaker
	Checkpoints  *checkpoint.Scheduler
	RoutingCache *routingcache.Cache
	RunAgent     AgentRunner
	SystemPrompt string
}

// New creates an orchestrator from its collaborators.
func New(o oracle.DecisionOracle, agents *registry.AgentRegistry, cb *circuit.Breaker, cp *checkpoint.Scheduler, rc *routingcache.Cache, run AgentRunner) *Orchestrator {
	return &Orchestrator{
		Oracle:       o,
		Agents:       agents,
		Circuit:      cb,
		Checkpoints:  cp,
		RoutingCache: rc,
		RunAgent:     run,
		SystemPrompt: "You are the orchestrator. Decide whether to delegate this task to one agent, decompose it into dependent sub-tasks, or answer it directly.",
	}
}

// Execute runs the full pipeline (spec.md §4.9) for one task: register a
// checkpoint schedule, consult the routing cache, call the oracle on a
// miss, validate strictly, dispatch, aggregate, and always cancel the
// schedule on the way out.
func (o *Orchestrator) Execute(ctx context.Context, t *task.Task) (task.Result, error) {
	t.Start()
	o.Checkpoints.RegisterTask(t.ID, func() checkpoint.StateSnapshot {
		return checkpoint.StateSnapshot{Task: t.ToRecord()}
	})
	defer o.Checkpoints.CancelTask(t.ID)

	result, err := o.execute(ctx, t)
	if err != nil {
		_ = o.Checkpoints.Event(t.ID, checkpoint.ReasonError)
		return task.Result{}, err
	}
	t.Complete(result)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, t *task.Task) (task.Result, error) {
	decision, err := o.decide(ctx, t)
	if err != nil {
		return task.Result{}, err
	}

	if verr := Validate(decision, func(name string) bool { return registry.RecognisedAgentKinds[name] }); verr != nil {
		return task.Result{
			Success: false,
			Errors:  []task.ResultError{{Code: ErrValidation, Message: verr.Error(), Recoverable: false}},
		}, nil
	}

	switch decision.Action {
	case ActionDelegate:
		return o.dispatchDelegate(ctx, t, decision)
	case ActionDecompose:
		return o.dispatchDecompose(ctx, t, decision)
	case ActionComplete:
		return task.Result{Success: true, Output: decision.Result}, nil
	default:
		return task.Result{Success: true, Output: decision.Text}, nil
	}
}

// decide consults the routing cache before calling the oracle, per
// spec.md §4.9 step 2 and §4.13.
func (o *Orchestrator) decide(ctx context.Context, t *task.Task) (Decision, error) {
	prompt := analysisPrompt(t, o.Agents.GetAgentsInfo())

	if o.RoutingCache != nil {
		if cached, ok := o.RoutingCache.Get(prompt); ok {
			if d, ok := cached.(Decision); ok {
				return d, nil
			}
		}
	}

	resp, err := o.Oracle.Decide(ctx, o.SystemPrompt, []message.Message{{Role: message.RoleUser, Content: prompt}}, decisionToolDefs)
	if err != nil {
		return Decision{}, fmt.Errorf("orchestrator: decision oracle call: %w", err)
	}

	var decision Decision
	if len(resp.ToolCalls) > 0 {
		decision = parseDecision(resp.ToolCalls[0], resp.Text)
	} else {
		decision = Decision{Action: ActionAnswer, Text: resp.Text}
	}

	if o.RoutingCache != nil {
		o.RoutingCache.Put(prompt, decision)
	}
	return decision, nil
}

func analysisPrompt(t *task.Task, agents []registry.AgentInfo) string {
	var b strings.Builder
	b.WriteString("Task: ")
	b.WriteString(t.Prompt)
	if t.Context != nil && len(t.Context.Files) > 0 {
		fmt.Fprintf(&b, "\nFiles: %v", t.Context.Files)
	}
	b.WriteString("\nAvailable agents:")
	for _, a := range agents {
		fmt.Fprintf(&b, "\n- %s (%s): %s", a.Name, a.Status, a.Description)
	}
	return b.String()
}

// dispatchDelegate runs spec.md §4.9 step 4's delegate path.
func (o *Orchestrator) dispatchDelegate(ctx context.Context, t *task.Task, d Decision) (task.Result, error) {
	if _, ok := o.Agents.Get(d.AgentName); !ok {
		return task.Result{Success: false, Errors: []task.ResultError{{Code: ErrAgentNotFound, Message: fmt.Sprintf("agent %q is not registered", d.AgentName), Recoverable: false}}}, nil
	}
	if !o.Agents.IsAvailable(d.AgentName) {
		return task.Result{Success: false, Errors: []task.ResultError{{Code: ErrAgentBusy, Message: fmt.Sprintf("agent %q is busy", d.AgentName), Recoverable: true, Suggestion: "retry shortly"}}}, nil
	}
	if !o.Circuit.IsAllowed(d.AgentName) {
		return task.Result{Success: false, Errors: []task.ResultError{{Code: ErrCircuitOpen, Message: fmt.Sprintf("circuit for agent %q is open", d.AgentName), Recoverable: true, Suggestion: "retry after cooldown"}}}, nil
	}

	sub := task.NewChild(t, d.AgentName, d.TaskDescription)
	_ = o.Checkpoints.Event(t.ID, checkpoint.ReasonAuto)

	res, err := o.RunAgent(ctx, d.AgentName, sub)
	if err != nil {
		o.Circuit.RecordFailure(d.AgentName)
		return task.Result{}, fmt.Errorf("orchestrator: delegating to %q: %w", d.AgentName, err)
	}
	if res.Success {
		o.Circuit.RecordSuccess(d.AgentName)
	} else {
		o.Circuit.RecordFailure(d.AgentName)
	}
	_ = o.Checkpoints.Event(t.ID, checkpoint.ReasonAuto)

	return task.Result{
		Success: res.Success,
		Output:  fmt.Sprintf("[%s] %s", d.AgentName, res.Output),
		Errors:  res.Errors,
		Data:    map[string]any{"delegatedTo": d.AgentName},
	}, nil
}

// dispatchDecompose runs spec.md §4.9 step 4's decompose path, handing the
// sub-task graph to the Parallel Executor (C9).
func (o *Orchestrator) dispatchDecompose(ctx context.Context, t *task.Task, d Decision) (task.Result, error) {
	if t.Metadata.DecompositionDepth >= task.MaxDecompositionDepth {
		return task.Result{Success: false, Errors: []task.ResultError{{Code: ErrMaxDepthExceeded, Message: "maximum decomposition depth reached", Recoverable: false}}}, nil
	}
	if len(d.SubTasks) == 0 {
		return task.Result{Success: false, Errors: []task.ResultError{{Code: ErrNoSubtasks, Message: "create_subtasks carried no sub-tasks", Recoverable: false}}}, nil
	}

	subTasks := make([]*task.Task, len(d.SubTasks))
	execTasks := make([]executor.SubTask, len(d.SubTasks))
	for i, spec := range d.SubTasks {
		child := task.NewChild(t, spec.Agent, spec.Description)
		subTasks[i] = child
		execTasks[i] = executor.SubTask{ID: child.ID, Description: spec.Description, Dependencies: spec.DependsOn}
	}

	run := func(ctx context.Context, et executor.SubTask, deps map[string]executor.Result) (any, error) {
		idx := indexByID(execTasks, et.ID)
		child := subTasks[idx]
		kind := d.SubTasks[idx].Agent

		if !o.Circuit.IsAllowed(kind) {
			return nil, fmt.Errorf("%s: %s", ErrCircuitOpen, kind)
		}
		res, err := o.RunAgent(ctx, kind, child)
		if err != nil {
			o.Circuit.RecordFailure(kind)
			return nil, err
		}
		if res.Success {
			o.Circuit.RecordSuccess(kind)
		} else {
			o.Circuit.RecordFailure(kind)
			return res, fmt.Errorf("sub-task %s failed", child.ID)
		}
		_ = o.Checkpoints.Event(t.ID, checkpoint.ReasonAuto)
		return res, nil
	}

	results, stats, err := executor.Execute(ctx, execTasks, run, executor.Config{ContinueOnError: true})
	if err != nil {
		return task.Result{}, fmt.Errorf("orchestrator: building sub-task levels: %w", err)
	}

	return task.Result{
		Success:   stats.Failed == 0,
		Output:    summarizeDecomposition(results, stats),
		Artifacts: collectArtifacts(results),
		Data: map[string]any{
			"executionStats": map[string]any{
				"levels":             stats.Levels,
				"successful":         stats.Successful,
				"failed":             stats.Failed,
				"skipped":            stats.Skipped,
				"parallelEfficiency": stats.ParallelEfficiency,
			},
		},
	}, nil
}

func indexByID(tasks []executor.SubTask, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func summarizeDecomposition(results []executor.Result, stats executor.Stats) string {
	return fmt.Sprintf("%d/%d sub-tasks succeeded across %d levels", stats.Successful, stats.Total, stats.Levels)
}

func collectArtifacts(results []executor.Result) []task.Artifact {
	var out []task.Artifact
	for _, r := range results {
		if r.Status != executor.StatusSuccess {
			continue
		}
		if res, ok := r.Output.(task.Result); ok {
			out = append(out, res.Artifacts...)
		}
	}
	return out
}
