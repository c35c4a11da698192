// Package oracle defines the DecisionOracle capability (spec.md §6.1):
// the orchestration runtime's only dependency on a language model, kept
// to exactly the (systemPrompt, messages, toolDefs) -> {text?, toolCalls?}
// shape so the core never depends on any concrete model transport.
package oracle

import (
	"context"

	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/tool"
)

// Response is what a DecisionOracle call returns: either free text, one
// or more tool calls, or both (a model may narrate while also calling a
// tool).
type Response struct {
	Text      string
	ToolCalls []tool.Call
}

// DecisionOracle is the external language-model interface spec.md §6.1
// and §4.9 step 2 describe. The core treats the model as opaque: it never
// inspects provider-specific response fields.
type DecisionOracle interface {
	Decide(ctx context.Context, systemPrompt string, messages []message.Message, toolDefs []tool.Definition) (Response, error)
}
