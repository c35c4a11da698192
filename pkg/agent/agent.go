// Package agent implements the generic Agent loop (C11): the one
// tool-calling loop every concrete agent kind specialises, grounded on
// the teacher's llmagent iteration-cap shape (read before deletion) but
// rebuilt against this module's simpler message/tool/oracle types instead
// of the teacher's InvocationContext/Event/Session.State machinery.
package agent

import (
	"context"
	"fmt"

	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/oracle"
	"github.com/arcflow/conductor/pkg/task"
	"github.com/arcflow/conductor/pkg/tool"
)

// DefaultMaxSteps bounds the loop when Config.MaxSteps is unset.
const DefaultMaxSteps = 25

// ErrCodeExceededMaxSteps is the result error code spec.md §4.10 names
// for a loop that never reached a terminal reply.
const ErrCodeExceededMaxSteps = "EXCEEDED_MAX_STEPS"

// Config tunes one agent-kind's specialisation of the generic loop.
// AllowedCategories restricts which tool categories this agent may call
// (e.g. explore/architect are read-only); nil means no restriction.
type Config struct {
	Kind               string
	SystemPrompt       string
	AllowedCategories  map[tool.Category]bool
	MaxSteps           int
	UseParallelTools   bool // run multi-tool-call replies through the executor's parallel path
	BeforeRun          func(ctx context.Context, t *task.Task) error
	AfterRun           func(ctx context.Context, t *task.Task, result task.Result) task.Result
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	return c
}

// Loop is the Agent (C11): one oracle-call -> tool-execute -> append-to-
// history cycle, generic over which concrete tools are registered.
type Loop struct {
	Oracle   oracle.DecisionOracle
	Tools    *tool.Registry
	Executor *tool.Executor
	Config   Config
}

// NewLoop creates an agent loop.
func NewLoop(o oracle.DecisionOracle, tools *tool.Registry, executor *tool.Executor, cfg Config) *Loop {
	return &Loop{Oracle: o, Tools: tools, Executor: executor, Config: cfg.withDefaults()}
}

// toolDefs returns the definitions this agent kind may see, filtered by
// Config.AllowedCategories.
func (l *Loop) toolDefs() []tool.Definition {
	defs := l.Tools.GetDefinitions()
	if l.Config.AllowedCategories == nil {
		return defs
	}
	out := make([]tool.Definition, 0, len(defs))
	for _, d := range defs {
		if l.Config.AllowedCategories[d.Category] {
			out = append(out, d)
		}
	}
	return out
}

// Run executes the generic loop against a task, per spec.md §4.10: build
// the initial user message, then alternate oracle calls with tool
// execution until a reply carries no tool calls or MaxSteps is reached.
func (l *Loop) Run(ctx context.Context, t *task.Task, history *message.History) (task.Result, error) {
	if l.Config.BeforeRun != nil {
		if err := l.Config.BeforeRun(ctx, t); err != nil {
			return task.Result{}, fmt.Errorf("agent %s: before-run hook: %w", l.Config.Kind, err)
		}
	}

	history.Add(buildInitialMessage(t))

	defs := l.toolDefs()
	var result task.Result

	for step := 0; step < l.Config.MaxSteps; step++ {
		resp, err := l.Oracle.Decide(ctx, l.Config.SystemPrompt, history.Messages(), defs)
		if err != nil {
			return task.Result{}, fmt.Errorf("agent %s: oracle call: %w", l.Config.Kind, err)
		}

		if len(resp.ToolCalls) == 0 {
			result = task.Result{Success: true, Output: resp.Text}
			break
		}

		history.TrimIfNeeded()
		history.Add(message.Message{Role: message.RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})

		results := l.executeCalls(ctx, resp.ToolCalls)
		history.AddToolResults(results)
	}

	if result.Output == "" && result.Success == false && len(result.Errors) == 0 {
		result = task.Result{
			Success: false,
			Errors: []task.ResultError{{
				Code:        ErrCodeExceededMaxSteps,
				Message:     fmt.Sprintf("agent %s exceeded %d steps without a terminal reply", l.Config.Kind, l.Config.MaxSteps),
				Recoverable: false,
			}},
		}
	}

	if l.Config.AfterRun != nil {
		result = l.Config.AfterRun(ctx, t, result)
	}
	return result, nil
}

func (l *Loop) executeCalls(ctx context.Context, calls []tool.Call) []tool.Result {
	if l.Config.UseParallelTools && len(calls) > 1 {
		return l.Executor.ExecuteParallel(ctx, calls)
	}
	return l.Executor.ExecuteSequential(ctx, calls)
}

// buildInitialMessage assembles the seed user message from the task
// prompt and its context, per spec.md §4.10 ("build initial user message
// from task.prompt, task.context, agent-specific context").
func buildInitialMessage(t *task.Task) message.Message {
	content := t.Prompt
	if t.Context != nil {
		if t.Context.WorkingDir != "" {
			content += fmt.Sprintf("\n\nworking directory: %s", t.Context.WorkingDir)
		}
		if len(t.Context.Files) > 0 {
			content += fmt.Sprintf("\n\nreferenced files: %v", t.Context.Files)
		}
		for _, s := range t.Context.Snippets {
			content += "\n\n" + s
		}
	}
	return message.Message{Role: message.RoleUser, Content: content}
}
