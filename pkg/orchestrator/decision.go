package orchestrator

import (
	"fmt"

	"github.com/arcflow/conductor/pkg/tool"
)

// Action is one of the four outcomes the decision oracle may choose
// between, per spec.md §4.9 step 2.
type Action string

const (
	ActionDelegate  Action = "delegate_to_agent"
	ActionDecompose Action = "create_subtasks"
	ActionComplete  Action = "complete_task"
	ActionAnswer    Action = "answer"
)

// SubTaskSpec is one entry of a create_subtasks decision.
type SubTaskSpec struct {
	Agent       string `json:"agent"`
	Description string `json:"description"`
	DependsOn   []int  `json:"dependsOn,omitempty"`
}

// Decision is the parsed shape of whatever the oracle chose, regardless of
// whether it arrived as a tool call or as plain text.
type Decision struct {
	Action          Action
	AgentName       string
	TaskDescription string
	SubTasks        []SubTaskSpec
	Reasoning       string
	Result          string
	Text            string
}

// decisionToolDefs are the three routing actions offered to the oracle
// alongside the option of a plain-text answer, per spec.md §4.9 step 2.
var decisionToolDefs = []tool.Definition{
	{
		Name:        string(ActionDelegate),
		Description: "Delegate the task to a single specialised agent.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent":       map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"agent", "description"},
		},
	},
	{
		Name:        string(ActionDecompose),
		Description: "Break the task into an ordered set of dependent sub-tasks.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subTasks":  map[string]any{"type": "array"},
				"reasoning": map[string]any{"type": "string"},
			},
			"required": []string{"subTasks"},
		},
	},
	{
		Name:        string(ActionComplete),
		Description: "Answer the task directly without delegation.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"result": map[string]any{"type": "string"},
			},
			"required": []string{"result"},
		},
	},
}

// parseDecision interprets one tool call of an oracle reply (decide passes
// the first); a call whose name is not one of the three actions is treated
// as a plain-text answer carrying text.
func parseDecision(call tool.Call, text string) Decision {
	switch Action(call.Name) {
	case ActionDelegate:
		d := Decision{Action: ActionDelegate}
		d.AgentName, _ = call.Input["agent"].(string)
		d.TaskDescription, _ = call.Input["description"].(string)
		return d
	case ActionDecompose:
		d := Decision{Action: ActionDecompose}
		d.Reasoning, _ = call.Input["reasoning"].(string)
		d.SubTasks = toSubTaskSpecs(call.Input["subTasks"])
		return d
	case ActionComplete:
		d := Decision{Action: ActionComplete}
		d.Result, _ = call.Input["result"].(string)
		return d
	default:
		return Decision{Action: ActionAnswer, Text: text}
	}
}

func toSubTaskSpecs(v any) []SubTaskSpec {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]SubTaskSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		spec := SubTaskSpec{}
		spec.Agent, _ = m["agent"].(string)
		spec.Description, _ = m["description"].(string)
		if deps, ok := m["dependsOn"].([]any); ok {
			for _, d := range deps {
				if f, ok := d.(float64); ok {
					spec.DependsOn = append(spec.DependsOn, int(f))
				}
			}
		}
		out = append(out, spec)
	}
	return out
}

// ValidationError is returned when a decision fails the strict checks of
// spec.md §4.9 step 3 — fatal for this attempt, never retried verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// Validate applies spec.md §4.9 step 3's per-action checks.
func Validate(d Decision, recognisedAgent func(name string) bool) error {
	switch d.Action {
	case ActionDelegate:
		if !recognisedAgent(d.AgentName) {
			return &ValidationError{Reason: fmt.Sprintf("agent %q is not a recognised kind", d.AgentName)}
		}
		if d.TaskDescription == "" {
			return &ValidationError{Reason: "delegate decision carries an empty task description"}
		}
	case ActionDecompose:
		n := len(d.SubTasks)
		if n < 1 || n > 20 {
			return &ValidationError{Reason: fmt.Sprintf("create_subtasks carries %d sub-tasks, want 1..20", n)}
		}
		for i, s := range d.SubTasks {
			if s.Description == "" {
				return &ValidationError{Reason: fmt.Sprintf("sub-task %d has an empty description", i)}
			}
			for _, dep := range s.DependsOn {
				if dep < 0 || dep >= i {
					return &ValidationError{Reason: fmt.Sprintf("sub-task %d has an invalid or forward/self dependency %d", i, dep)}
				}
			}
		}
	case ActionComplete:
		if d.Result == "" {
			return &ValidationError{Reason: "complete_task decision carries an empty result"}
		}
	case ActionAnswer:
		// a plain-text answer needs no further validation.
	}
	return nil
}
