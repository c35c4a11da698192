// Package tool implements the Tool Registry (C1) and Tool Executor (C4):
// a name-to-handler map with categories, priority ordering and stats, and
// the component that invokes registered handlers — serially or with
// bounded parallelism — on behalf of an agent loop.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Category classifies a tool for execution-mode and dry-run purposes.
// The side-effecting categories are exactly the ones the Execution-Mode
// Guard (pkg/guard) and Dry-Run Manager (pkg/dryrun) reason about.
type Category string

const (
	CategoryRead            Category = "read"
	CategoryFileWrite       Category = "file_write"
	CategoryFileDelete      Category = "file_delete"
	CategoryShellCommand    Category = "shell_command"
	CategoryGitOperation    Category = "git_operation"
	CategoryPackageInstall  Category = "package_install"
	CategoryServerStart     Category = "server_start"
	CategoryServerStop      Category = "server_stop"
	CategoryNetwork         Category = "network"
	CategoryOther           Category = "other"
)

// SideEffecting reports whether calls in this category are candidates for
// dry-run interception and execution-mode gating.
func (c Category) SideEffecting() bool {
	return c != CategoryRead && c != CategoryOther
}

// Definition describes a tool to the decision oracle: its name, a
// human-readable description, and a JSON-Schema-shaped input schema.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	Category    Category       `json:"category,omitempty"`
	Priority    int            `json:"priority,omitempty"`
}

// Call represents an oracle's request to invoke a tool.
type Call struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Result represents the outcome of invoking a tool.
type Result struct {
	ToolCallID    string        `json:"toolCallId"`
	Output        any           `json:"output,omitempty"`
	IsError       bool          `json:"isError"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"executionTime,omitempty"`
}

// Handler is the function a tool registers to actually do the work. It
// never panics out of the registry: Registry.Execute recovers any panic
// and turns it into a failed Result, per §7's propagation policy.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// errorResult builds a failed Result, stamping execution time.
func errorResult(callID string, err error, elapsed time.Duration) Result {
	return Result{
		ToolCallID:    callID,
		IsError:       true,
		Error:         err.Error(),
		ExecutionTime: elapsed,
	}
}

func successResult(callID string, output any, elapsed time.Duration) Result {
	return Result{
		ToolCallID:    callID,
		Output:        output,
		ExecutionTime: elapsed,
	}
}

// marshalInputSummary renders a tool call's input as a one-line JSON
// summary, cut after 200 bytes so large payloads are not dumped. Nothing in
// this module calls it.
func marshalInputSummary(input map[string]any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	const cap = 200
	if len(b) > cap {
		return string(b[:cap]) + "...(truncated)"
	}
	return string(b)
}
