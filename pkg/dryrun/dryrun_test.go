package dryrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow/conductor/pkg/tool"
)

func TestInterceptRecordsAndBlocksSideEffectingCall(t *testing.T) {
	m := NewManager(false)
	blocked, reason := m.Intercept(tool.Call{Name: "write_file", Input: map[string]any{"path": "out.txt"}}, tool.CategoryFileWrite)
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)

	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "out.txt", ops[0].TargetPath)
	assert.True(t, ops[0].Reversible)
}

func TestInterceptIgnoresReadCalls(t *testing.T) {
	m := NewManager(false)
	blocked, _ := m.Intercept(tool.Call{Name: "read_file"}, tool.CategoryRead)
	assert.False(t, blocked)
	assert.Empty(t, m.Operations())
}

func TestBlockIrreversibleRejectsWithoutRecording(t *testing.T) {
	m := NewManager(true)
	blocked, reason := m.Intercept(tool.Call{Name: "rm"}, tool.CategoryFileDelete)
	assert.True(t, blocked)
	assert.Equal(t, ErrBlocked, reason)
	assert.Empty(t, m.Operations())
}

func TestSummarizeCountsByCategoryAndIrreversible(t *testing.T) {
	m := NewManager(false)
	m.Intercept(tool.Call{Name: "write_file", Input: map[string]any{"path": "a.txt"}}, tool.CategoryFileWrite)
	m.Intercept(tool.Call{Name: "run_shell", Input: map[string]any{"cmd": "rm -rf /tmp/x"}}, tool.CategoryShellCommand)

	summary := m.Summarize()
	assert.Equal(t, 1, summary.CountsByCategory[tool.CategoryFileWrite])
	assert.Equal(t, 1, summary.CountsByCategory[tool.CategoryShellCommand])
	assert.Equal(t, []string{"a.txt"}, summary.FilesToCreate)
	assert.Len(t, summary.Commands, 1)
	assert.Equal(t, 1, summary.IrreversibleCount)
}

func TestDisabledManagerPassesThrough(t *testing.T) {
	m := NewManager(false)
	m.SetEnabled(false)
	blocked, _ := m.Intercept(tool.Call{Name: "write_file"}, tool.CategoryFileWrite)
	assert.False(t, blocked)
}

func TestResetClearsOperations(t *testing.T) {
	m := NewManager(false)
	m.Intercept(tool.Call{Name: "write_file"}, tool.CategoryFileWrite)
	require.Len(t, m.Operations(), 1)
	m.Reset()
	assert.Empty(t, m.Operations())
}
