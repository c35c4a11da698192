package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/checkpoint"
	"github.com/arcflow/conductor/pkg/circuit"
	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/oracle"
	"github.com/arcflow/conductor/pkg/registry"
	"github.com/arcflow/conductor/pkg/routingcache"
	"github.com/arcflow/conductor/pkg/storage"
	"github.com/arcflow/conductor/pkg/task"
	"github.com/arcflow/conductor/pkg/tool"
)

func newCacheForTest() *routingcache.Cache {
	return routingcache.NewCache(0, 0, nil)
}

type scriptedOracle struct {
	resp oracle.Response
}

func (s *scriptedOracle) Decide(ctx context.Context, systemPrompt string, messages []message.Message, defs []tool.Definition) (oracle.Response, error) {
	return s.resp, nil
}

func newTestOrchestrator(t *testing.T, o oracle.DecisionOracle, run AgentRunner) (*Orchestrator, *registry.AgentRegistry, *circuit.Breaker) {
	t.Helper()
	reg := registry.NewAgentRegistry()
	require.NoError(t, reg.Register("explore", &registry.AgentHandle{Name: "explore", Description: "reads code"}))
	require.NoError(t, reg.Register("coder", &registry.AgentHandle{Name: "coder", Description: "writes code"}))

	cb := circuit.NewBreaker(circuit.Config{})
	store := storage.NewMemoryAdapter()
	sched := checkpoint.NewScheduler(store, checkpoint.Config{})

	return New(o, reg, cb, sched, nil, run), reg, cb
}

func TestExecuteAnswersDirectlyOnTextReply(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{Text: "The project uses Go."}}
	orch, _, _ := newTestOrchestrator(t, o, nil)

	tk := task.New("orchestrator", "What technologies does this project use?")
	result, err := orch.Execute(context.Background(), tk)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "The project uses Go.", result.Output)
}

func TestExecuteDelegatesToAgent(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name:  string(ActionDelegate),
		Input: map[string]any{"agent": "explore", "description": "Find all Go files"},
	}}}}
	run := func(ctx context.Context, kind string, t *task.Task) (task.Result, error) {
		assert.Equal(t, "explore", kind)
		return task.Result{Success: true, Output: "Found 5 Go files"}, nil
	}
	orch, _, cb := newTestOrchestrator(t, o, run)

	tk := task.New("orchestrator", "Find all Go files in the project.")
	result, err := orch.Execute(context.Background(), tk)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "[explore] Found 5 Go files", result.Output)
	assert.Equal(t, "explore", result.Data["delegatedTo"])
	assert.Equal(t, circuit.StateClosed, cb.Get("explore").State)
}

func TestExecuteRejectsDelegateToUnrecognisedAgent(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name:  string(ActionDelegate),
		Input: map[string]any{"agent": "ghost", "description": "do something"},
	}}}}
	orch, _, _ := newTestOrchestrator(t, o, nil)

	tk := task.New("orchestrator", "do something weird")
	result, err := orch.Execute(context.Background(), tk)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrValidation, result.Errors[0].Code)
}

func TestExecuteRejectsDelegateWhenCircuitOpen(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name:  string(ActionDelegate),
		Input: map[string]any{"agent": "explore", "description": "do something"},
	}}}}
	orch, _, cb := newTestOrchestrator(t, o, func(ctx context.Context, kind string, sub *task.Task) (task.Result, error) {
		return task.Result{}, nil
	})
	for i := 0; i < 5; i++ {
		cb.RecordFailure("explore")
	}

	tk := task.New("orchestrator", "do something")
	result, err := orch.Execute(context.Background(), tk)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrCircuitOpen, result.Errors[0].Code)
}

func TestExecuteRefusesDecomposeAtMaxDepth(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name: string(ActionDecompose),
		Input: map[string]any{
			"subTasks": []any{map[string]any{"agent": "explore", "description": "step one"}},
		},
	}}}}
	orch, _, _ := newTestOrchestrator(t, o, nil)

	tk := task.New("orchestrator", "deep task")
	tk.Metadata.DecompositionDepth = task.MaxDecompositionDepth

	result, err := orch.Execute(context.Background(), tk)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrMaxDepthExceeded, result.Errors[0].Code)
}

func TestExecuteDecomposesWithDependencyAndAggregatesStats(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name: string(ActionDecompose),
		Input: map[string]any{
			"subTasks": []any{
				map[string]any{"agent": "explore", "description": "Analyze existing code"},
				map[string]any{"agent": "coder", "description": "Create module", "dependsOn": []any{float64(0)}},
			},
			"reasoning": "two-step build",
		},
	}}}}
	var calls []string
	run := func(ctx context.Context, kind string, t *task.Task) (task.Result, error) {
		calls = append(calls, kind)
		return task.Result{Success: true, Output: "ok"}, nil
	}
	orch, _, _ := newTestOrchestrator(t, o, run)

	tk := task.New("orchestrator", "Implement a new module with analysis first.")
	result, err := orch.Execute(context.Background(), tk)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"explore", "coder"}, calls)
	stats := result.Data["executionStats"].(map[string]any)
	assert.Equal(t, 2, stats["levels"])
	assert.Equal(t, 2, stats["successful"])
}

func TestExecuteRejectsDecomposeWithForwardDependency(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name: string(ActionDecompose),
		Input: map[string]any{
			"subTasks": []any{
				map[string]any{"agent": "explore", "description": "first", "dependsOn": []any{float64(1)}},
				map[string]any{"agent": "coder", "description": "second"},
			},
		},
	}}}}
	orch, _, _ := newTestOrchestrator(t, o, nil)

	tk := task.New("orchestrator", "broken decomposition")
	result, err := orch.Execute(context.Background(), tk)

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrValidation, result.Errors[0].Code)
}

func TestRoutingCacheAvoidsSecondOracleCall(t *testing.T) {
	callCount := 0
	o := &countingOracle{resp: oracle.Response{Text: "cached answer"}, count: &callCount}
	orch, _, _ := newTestOrchestrator(t, o, nil)
	orch.RoutingCache = newCacheForTest()

	tk1 := task.New("orchestrator", "What does this do?")
	_, err := orch.Execute(context.Background(), tk1)
	require.NoError(t, err)

	tk2 := task.New("orchestrator", "What does this do?")
	result2, err := orch.Execute(context.Background(), tk2)
	require.NoError(t, err)

	assert.Equal(t, "cached answer", result2.Output)
	assert.Equal(t, 1, callCount)
}

type countingOracle struct {
	resp  oracle.Response
	count *int
}

func (c *countingOracle) Decide(ctx context.Context, systemPrompt string, messages []message.Message, defs []tool.Definition) (oracle.Response, error) {
	*c.count++
	return c.resp, nil
}

func TestExecuteFailedDelegationOpensCircuitAfterThreshold(t *testing.T) {
	o := &scriptedOracle{resp: oracle.Response{ToolCalls: []tool.Call{{
		Name:  string(ActionDelegate),
		Input: map[string]any{"agent": "explore", "description": "do something"},
	}}}}
	run := func(ctx context.Context, kind string, t *task.Task) (task.Result, error) {
		return task.Result{Success: false, Errors: []task.ResultError{{Code: "AGENT_ERROR"}}}, nil
	}
	orch, _, cb := newTestOrchestrator(t, o, run)
	orch.Circuit = circuit.NewBreaker(circuit.Config{FailureThreshold: 1})
	cb = orch.Circuit

	tk := task.New("orchestrator", "do something")
	result, err := orch.Execute(context.Background(), tk)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, circuit.StateOpen, cb.Get("explore").State)
}
