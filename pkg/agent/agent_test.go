package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/oracle"
	"github.com/arcflow/conductor/pkg/task"
	"github.com/arcflow/conductor/pkg/tool"
)

type scriptedOracle struct {
	replies []oracle.Response
	calls   int
}

func (s *scriptedOracle) Decide(ctx context.Context, systemPrompt string, messages []message.Message, defs []tool.Definition) (oracle.Response, error) {
	r := s.replies[s.calls]
	s.calls++
	return r, nil
}

func newRegistryWithEcho(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	err := reg.Register(
		tool.Definition{Name: "read_file", Category: tool.CategoryRead},
		func(ctx context.Context, input map[string]any) (any, error) { return "contents", nil },
		tool.RegisterOptions{Category: tool.CategoryRead},
	)
	require.NoError(t, err)
	return reg
}

func TestRunTerminatesOnTextOnlyReply(t *testing.T) {
	reg := newRegistryWithEcho(t)
	ex := tool.NewExecutor(reg)
	o := &scriptedOracle{replies: []oracle.Response{{Text: "done"}}}

	loop := NewLoop(o, reg, ex, Config{Kind: "explore"})
	tk := task.New("explore", "find the bug")
	result, err := loop.Run(context.Background(), tk, message.NewHistory(50))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "done", result.Output)
	assert.Equal(t, 1, o.calls)
}

func TestRunExecutesToolCallsThenTerminates(t *testing.T) {
	reg := newRegistryWithEcho(t)
	ex := tool.NewExecutor(reg)
	o := &scriptedOracle{replies: []oracle.Response{
		{ToolCalls: []tool.Call{{ID: "c1", Name: "read_file", Input: map[string]any{"path": "a.go"}}}},
		{Text: "fixed it"},
	}}

	loop := NewLoop(o, reg, ex, Config{Kind: "coder"})
	tk := task.New("coder", "fix a.go")
	result, err := loop.Run(context.Background(), tk, message.NewHistory(50))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "fixed it", result.Output)
	assert.Equal(t, 2, o.calls)
}

func TestRunExceedsMaxStepsWithoutTerminalReply(t *testing.T) {
	reg := newRegistryWithEcho(t)
	ex := tool.NewExecutor(reg)
	replies := make([]oracle.Response, 3)
	for i := range replies {
		replies[i] = oracle.Response{ToolCalls: []tool.Call{{ID: "c", Name: "read_file", Input: map[string]any{}}}}
	}
	o := &scriptedOracle{replies: replies}

	loop := NewLoop(o, reg, ex, Config{Kind: "explore", MaxSteps: 3})
	tk := task.New("explore", "loop forever")
	result, err := loop.Run(context.Background(), tk, message.NewHistory(50))

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrCodeExceededMaxSteps, result.Errors[0].Code)
}

func TestToolDefsFilteredByAllowedCategories(t *testing.T) {
	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(tool.Definition{Name: "read_file", Category: tool.CategoryRead}, noop, tool.RegisterOptions{Category: tool.CategoryRead}))
	require.NoError(t, reg.Register(tool.Definition{Name: "write_file", Category: tool.CategoryFileWrite}, noop, tool.RegisterOptions{Category: tool.CategoryFileWrite}))
	ex := tool.NewExecutor(reg)

	loop := NewLoop(&scriptedOracle{replies: []oracle.Response{{Text: "ok"}}}, reg, ex, Config{AllowedCategories: readOnly})
	defs := loop.toolDefs()
	require.Len(t, defs, 1)
	assert.Equal(t, "read_file", defs[0].Name)
}

func TestBeforeRunErrorAbortsWithoutCallingOracle(t *testing.T) {
	reg := newRegistryWithEcho(t)
	ex := tool.NewExecutor(reg)
	o := &scriptedOracle{replies: []oracle.Response{{Text: "should not be reached"}}}

	loop := NewLoop(o, reg, ex, Config{
		BeforeRun: func(ctx context.Context, t *task.Task) error { return assert.AnError },
	})
	tk := task.New("coder", "anything")
	_, err := loop.Run(context.Background(), tk, message.NewHistory(50))

	require.Error(t, err)
	assert.Equal(t, 0, o.calls)
}

func TestAfterRunHookCanOverrideResult(t *testing.T) {
	reg := newRegistryWithEcho(t)
	ex := tool.NewExecutor(reg)
	o := &scriptedOracle{replies: []oracle.Response{{Text: "done"}}}

	loop := NewLoop(o, reg, ex, Config{
		AfterRun: func(ctx context.Context, t *task.Task, result task.Result) task.Result {
			result.Data = map[string]any{"annotated": true}
			return result
		},
	})
	tk := task.New("coder", "anything")
	result, err := loop.Run(context.Background(), tk, message.NewHistory(50))

	require.NoError(t, err)
	assert.Equal(t, true, result.Data["annotated"])
}

func noop(ctx context.Context, input map[string]any) (any, error) { return nil, nil }
