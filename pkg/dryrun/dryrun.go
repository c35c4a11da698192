// Package dryrun implements the Dry-Run Manager (C14): interception of
// side-effecting tool calls that records what WOULD have happened instead
// of letting it happen, grounded on the teacher's observability recorder
// idiom (a mutex-guarded slice of recorded events plus a summary rollup).
package dryrun

import (
	"fmt"
	"sync"

	"github.com/arcflow/conductor/pkg/tool"
)

// ErrBlocked is returned (via Intercept's reason string) when an
// irreversible call is rejected under BlockIrreversible.
const ErrBlocked = "DRY_RUN_BLOCKED"

// Operation is one recorded simulated side effect.
type Operation struct {
	Category     tool.Category
	ToolName     string
	InputSummary string
	TargetPath   string // best-effort, extracted from a conventional "path" input key
	Warnings     []string
	Reversible   bool
}

// Summary rolls up everything recorded during a dry run, per spec.md
// §4.14.
type Summary struct {
	CountsByCategory map[tool.Category]int
	FilesToCreate    []string
	FilesToDelete    []string
	Commands         []string
	IrreversibleCount int
	Operations       []Operation
}

// reversibility reports whether a category's effect can, in principle, be
// undone. file_delete, shell_command (arbitrary), package_install and
// server_start/stop are treated as irreversible by default; file_write and
// git_operation as reversible (a write can be overwritten, a commit
// reverted). Network calls are conservatively irreversible.
func defaultReversible(cat tool.Category) bool {
	switch cat {
	case tool.CategoryFileWrite, tool.CategoryGitOperation:
		return true
	default:
		return false
	}
}

// Manager is the Dry-Run Manager (C14). It implements tool.DryRunGate so
// it can be wired directly into a tool.Executor's DryRun slot; dry-run is
// orthogonal to execution mode, so a Manager and a guard.Guard can both be
// wired in the same executor (the dry-run manager intercepts first and
// neither a real side effect nor a strict-mode approval prompt occurs for
// a simulated call).
type Manager struct {
	mu                sync.Mutex
	enabled           bool
	blockIrreversible bool
	ops               []Operation
}

// NewManager creates a dry-run manager. If blockIrreversible is set, a
// call whose category resolves to reversible=false is rejected with
// DRY_RUN_BLOCKED instead of being recorded and allowed to "succeed".
func NewManager(blockIrreversible bool) *Manager {
	return &Manager{enabled: true, blockIrreversible: blockIrreversible}
}

// SetEnabled toggles interception; when disabled, Intercept is a no-op
// pass-through (useful for toggling dry-run on/off without rewiring the
// executor).
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// Intercept implements tool.DryRunGate: for a side-effecting category it
// records a simulated operation and blocks the real call (returning
// blocked=true with a reason describing what would have happened), unless
// BlockIrreversible rejects it outright with DRY_RUN_BLOCKED.
func (m *Manager) Intercept(call tool.Call, cat tool.Category) (blocked bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || !cat.SideEffecting() {
		return false, ""
	}

	reversible := defaultReversible(cat)
	if m.blockIrreversible && !reversible {
		return true, ErrBlocked
	}

	op := Operation{
		Category:     cat,
		ToolName:     call.Name,
		InputSummary: summarize(call.Input),
		TargetPath:   pathOf(call.Input),
		Reversible:   reversible,
	}
	if !reversible {
		op.Warnings = append(op.Warnings, fmt.Sprintf("%s on %q is not reversible", cat, call.Name))
	}
	m.ops = append(m.ops, op)

	return true, fmt.Sprintf("dry run: %s %q recorded, not executed", cat, call.Name)
}

// pathOf extracts a conventional "path" input key, if present, so
// Summarize can populate FilesToCreate/FilesToDelete without re-parsing
// the summary string.
func pathOf(input map[string]any) string {
	if p, ok := input["path"].(string); ok {
		return p
	}
	return ""
}

func summarize(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	out := "{"
	first := true
	for k, v := range input {
		if !first {
			out += ", "
		}
		first = false
		out += fmt.Sprintf("%s=%v", k, v)
	}
	return out + "}"
}

// Operations returns a copy of every recorded simulated operation.
func (m *Manager) Operations() []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Operation(nil), m.ops...)
}

// Summarize produces the spec.md §4.14 summary: counts by category, files
// to create/delete, commands, and an irreversible count.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	ops := append([]Operation(nil), m.ops...)
	m.mu.Unlock()

	s := Summary{CountsByCategory: make(map[tool.Category]int), Operations: ops}
	for _, op := range ops {
		s.CountsByCategory[op.Category]++
		if !op.Reversible {
			s.IrreversibleCount++
		}
		switch op.Category {
		case tool.CategoryFileWrite:
			if op.TargetPath != "" {
				s.FilesToCreate = append(s.FilesToCreate, op.TargetPath)
			}
		case tool.CategoryFileDelete:
			if op.TargetPath != "" {
				s.FilesToDelete = append(s.FilesToDelete, op.TargetPath)
			}
		case tool.CategoryShellCommand:
			s.Commands = append(s.Commands, op.InputSummary)
		}
	}
	return s
}

// Reset clears all recorded operations, e.g. between dry-run invocations.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}
