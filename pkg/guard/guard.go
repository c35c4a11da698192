// Package guard implements the Execution-Mode Guard (C10): a three-mode
// policy over which tool operations are allowed, deferred for approval,
// or denied outright, grounded on the reference repo's strict_validator
// idiom of returning a structured decision rather than a bare error.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arcflow/conductor/pkg/tool"
)

// Mode is one of the three execution modes spec.md §4.12 defines.
type Mode string

const (
	// ModePlan permits only read-like operations; any write/shell/network
	// call is denied outright.
	ModePlan Mode = "plan"
	// ModeExecute permits all operations.
	ModeExecute Mode = "execute"
	// ModeStrict permits all operations but requires a synchronously
	// awaited approval for every write/shell/network call.
	ModeStrict Mode = "strict"
)

// Decision is checkPermission's return value, per spec.md §4.12.
type Decision struct {
	Allowed       bool
	NeedsApproval bool
	Reason        string
}

// ApprovalRequest describes a pending strict-mode approval.
type ApprovalRequest struct {
	ToolName string
	Category tool.Category
	Input    map[string]any
}

// ApprovalFunc is consulted synchronously in strict mode before a
// side-effecting call proceeds. The orchestrator/agent loop supplies the
// concrete implementation (CLI prompt, UI callback, auto-approve policy).
type ApprovalFunc func(ctx context.Context, req ApprovalRequest) (approved bool, reason string)

// modeChange records a logged, non-retroactive mode transition.
type modeChange struct {
	from, to Mode
	at       time.Time
}

// Guard is the Execution-Mode Guard (C10). Mode changes take effect only
// for calls checked after the change; anything already in flight is
// unaffected, per spec.md §4.12 ("not retroactive").
type Guard struct {
	mu       sync.RWMutex
	mode     Mode
	approve  ApprovalFunc
	history  []modeChange
}

// NewGuard creates a guard in the given starting mode (ModeExecute if
// empty).
func NewGuard(mode Mode, approve ApprovalFunc) *Guard {
	if mode == "" {
		mode = ModeExecute
	}
	return &Guard{mode: mode, approve: approve}
}

// Mode returns the guard's current mode.
func (g *Guard) Mode() Mode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// SetMode changes the active mode, logging the transition. Already
// in-flight permission checks are unaffected.
func (g *Guard) SetMode(mode Mode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history, modeChange{from: g.mode, to: mode, at: time.Now()})
	g.mode = mode
}

// History returns a copy of every mode transition this guard has made.
func (g *Guard) History() []modeChange {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]modeChange(nil), g.history...)
}

// CheckPermission evaluates a tool call against the current mode, per
// spec.md §4.12. In strict mode, approval is NOT obtained here — the
// caller must pass an allowed-but-needsApproval decision through
// Approve before proceeding.
func (g *Guard) CheckPermission(cat tool.Category, toolName string) Decision {
	mode := g.Mode()

	if !cat.SideEffecting() {
		return Decision{Allowed: true}
	}

	switch mode {
	case ModePlan:
		return Decision{Allowed: false, Reason: fmt.Sprintf("plan mode denies side-effecting tool %q (category %s)", toolName, cat)}
	case ModeExecute:
		return Decision{Allowed: true}
	case ModeStrict:
		return Decision{Allowed: true, NeedsApproval: true, Reason: fmt.Sprintf("strict mode requires approval for %q (category %s)", toolName, cat)}
	default:
		return Decision{Allowed: false, Reason: fmt.Sprintf("unknown execution mode %q", mode)}
	}
}

// Approve synchronously awaits the approval callback for a call that
// CheckPermission flagged NeedsApproval, per spec.md §4.12 ("the approval
// answer is awaited synchronously before the tool proceeds").
func (g *Guard) Approve(ctx context.Context, req ApprovalRequest) (bool, string) {
	g.mu.RLock()
	fn := g.approve
	g.mu.RUnlock()
	if fn == nil {
		return false, "strict mode has no approval callback configured"
	}
	return fn(ctx, req)
}

// Intercept implements tool.DryRunGate so a Guard can be wired directly
// into a tool.Executor's DryRun slot, composing after the dry-run manager
// (C14) in the call chain — a simulated call should never trigger a
// strict-mode approval prompt. The interface carries no context, so
// the strict-mode approval wait uses context.Background() — callers
// needing cancellation on approval should call Approve directly instead.
func (g *Guard) Intercept(call tool.Call, cat tool.Category) (blocked bool, reason string) {
	dec := g.CheckPermission(cat, call.Name)
	if !dec.Allowed {
		return true, dec.Reason
	}
	if dec.NeedsApproval {
		approved, why := g.Approve(context.Background(), ApprovalRequest{ToolName: call.Name, Category: cat, Input: call.Input})
		if !approved {
			if why == "" {
				why = "approval denied"
			}
			return true, why
		}
	}
	return false, ""
}
