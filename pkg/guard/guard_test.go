package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arcflow/conductor/pkg/tool"
)

func TestPlanModeDeniesSideEffectingCalls(t *testing.T) {
	g := NewGuard(ModePlan, nil)
	dec := g.CheckPermission(tool.CategoryShellCommand, "run_shell")
	assert.False(t, dec.Allowed)
}

func TestPlanModeAllowsReadCalls(t *testing.T) {
	g := NewGuard(ModePlan, nil)
	dec := g.CheckPermission(tool.CategoryRead, "read_file")
	assert.True(t, dec.Allowed)
}

func TestExecuteModeAllowsEverything(t *testing.T) {
	g := NewGuard(ModeExecute, nil)
	dec := g.CheckPermission(tool.CategoryShellCommand, "run_shell")
	assert.True(t, dec.Allowed)
	assert.False(t, dec.NeedsApproval)
}

func TestStrictModeRequiresApproval(t *testing.T) {
	g := NewGuard(ModeStrict, nil)
	dec := g.CheckPermission(tool.CategoryFileWrite, "write_file")
	assert.True(t, dec.Allowed)
	assert.True(t, dec.NeedsApproval)
}

func TestInterceptBlocksWhenApprovalDenied(t *testing.T) {
	g := NewGuard(ModeStrict, func(ctx context.Context, req ApprovalRequest) (bool, string) {
		return false, "no"
	})
	blocked, reason := g.Intercept(tool.Call{Name: "write_file"}, tool.CategoryFileWrite)
	assert.True(t, blocked)
	assert.Equal(t, "no", reason)
}

func TestInterceptPassesWhenApproved(t *testing.T) {
	g := NewGuard(ModeStrict, func(ctx context.Context, req ApprovalRequest) (bool, string) {
		return true, ""
	})
	blocked, _ := g.Intercept(tool.Call{Name: "write_file"}, tool.CategoryFileWrite)
	assert.False(t, blocked)
}

func TestModeChangeIsNotRetroactive(t *testing.T) {
	g := NewGuard(ModeExecute, nil)
	decBefore := g.CheckPermission(tool.CategoryShellCommand, "run_shell")
	g.SetMode(ModePlan)
	decAfter := g.CheckPermission(tool.CategoryShellCommand, "run_shell")

	assert.True(t, decBefore.Allowed)
	assert.False(t, decAfter.Allowed)
	assert.Len(t, g.History(), 1)
}
