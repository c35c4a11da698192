package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/tool"
)

func TestToGenaiContentsTranslatesRolesAndToolTurns(t *testing.T) {
	msgs := []message.Message{
		{Role: message.RoleUser, Content: "find the bug"},
		{Role: message.RoleAssistant, ToolCalls: []tool.Call{{ID: "c1", Name: "read_file", Input: map[string]any{"path": "a.go"}}}},
		{Role: message.RoleUser, ToolResults: []tool.Result{{ToolCallID: "c1", Output: "package main"}}},
	}
	contents := toGenaiContents(msgs)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "read_file", contents[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
}

func TestToFunctionDeclarationsCarriesSchema(t *testing.T) {
	defs := []tool.Definition{
		{Name: "read_file", Description: "reads a file", InputSchema: map[string]any{"type": "object"}},
	}
	decls := toFunctionDeclarations(defs)
	require.Len(t, decls, 1)
	assert.Equal(t, "read_file", decls[0].Name)
	assert.Equal(t, "reads a file", decls[0].Description)
}

func TestFromGenaiResponseExtractsTextAndToolCalls(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Parts: []*genai.Part{
					{Text: "looking into it"},
					{FunctionCall: &genai.FunctionCall{Name: "read_file", Args: map[string]any{"path": "a.go"}}},
				},
			},
		}},
	}
	out := fromGenaiResponse(resp)
	assert.Equal(t, "looking into it", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "read_file", out.ToolCalls[0].Name)
	assert.Equal(t, "a.go", out.ToolCalls[0].Input["path"])
}

func TestFromGenaiResponseEmptyCandidates(t *testing.T) {
	out := fromGenaiResponse(&genai.GenerateContentResponse{})
	assert.Empty(t, out.Text)
	assert.Empty(t, out.ToolCalls)
}
