package oracle

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/arcflow/conductor/pkg/message"
	"github.com/arcflow/conductor/pkg/tool"
)

// GeminiOracle is the one concrete DecisionOracle implementation
// SPEC_FULL.md asks for, grounded on the shape of the teacher's deleted
// pkg/llms/gemini.go client but scoped to exactly the oracle contract —
// it never exposes Gemini-specific response fields to callers.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// NewGeminiOracle creates an oracle backed by the Gemini API. model
// defaults to "gemini-2.0-flash" when empty.
func NewGeminiOracle(ctx context.Context, apiKey, model string) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: creating gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiOracle{client: client, model: model}, nil
}

// Decide implements DecisionOracle by translating the conductor's
// message/tool types into genai's content/function-declaration shapes and
// translating the response back, never leaking a genai type across the
// interface boundary.
func (o *GeminiOracle) Decide(ctx context.Context, systemPrompt string, messages []message.Message, toolDefs []tool.Definition) (Response, error) {
	contents := toGenaiContents(messages)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if len(toolDefs) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(toolDefs)}}
	}

	resp, err := o.client.Models.GenerateContent(ctx, o.model, contents, cfg)
	if err != nil {
		return Response{}, fmt.Errorf("oracle: gemini generate content: %w", err)
	}
	return fromGenaiResponse(resp), nil
}

func toGenaiContents(messages []message.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == message.RoleAssistant {
			role = genai.RoleModel
		}
		if m.Content != "" {
			out = append(out, genai.NewContentFromText(m.Content, role))
		}
		for _, tc := range m.ToolCalls {
			out = append(out, &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Input},
				}},
			})
		}
		for _, tr := range m.ToolResults {
			resp := map[string]any{"output": tr.Output}
			if tr.IsError {
				resp["error"] = tr.Error
			}
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: tr.ToolCallID, Response: resp},
				}},
			})
		}
	}
	return out
}

func toFunctionDeclarations(defs []tool.Definition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		out = append(out, &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.InputSchema,
		})
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) Response {
	var out Response
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Text += part.Text
		}
		if part.FunctionCall != nil {
			input := part.FunctionCall.Args
			if input == nil {
				input = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, tool.Call{
				ID:    callID(part.FunctionCall.Name, len(out.ToolCalls)),
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		}
	}
	return out
}

// callID synthesizes a stable-enough call id when the provider doesn't
// supply one (genai's FunctionCall has no id field of its own).
func callID(name string, ordinal int) string {
	return fmt.Sprintf("call_%s_%d", name, ordinal)
}
