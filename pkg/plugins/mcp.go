package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/tool"
)

// loadMCP connects to an MCP server over stdio, lists its tools, and
// converts them into registry-ready definitions and handlers that call
// back into the MCP session, grounded on the reference repo's
// mcptoolset's stdio transport.
func loadMCP(ctx context.Context, src config.PluginSource) ([]tool.Definition, map[string]tool.Handler, error) {
	mcpClient, err := client.NewStdioMCPClient(src.Command, nil, src.Args...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating MCP client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "conductor", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("initializing MCP session: %w", err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("listing MCP tools: %w", err)
	}

	var defs []tool.Definition
	handlers := make(map[string]tool.Handler, len(listResp.Tools))
	for _, t := range listResp.Tools {
		def := tool.Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertMCPSchema(t.InputSchema),
			Category:    tool.CategoryOther,
		}
		defs = append(defs, def)

		name := t.Name
		handlers[name] = func(ctx context.Context, input map[string]any) (any, error) {
			req := mcp.CallToolRequest{}
			req.Params.Name = name
			req.Params.Arguments = input
			resp, err := mcpClient.CallTool(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("calling MCP tool %s: %w", name, err)
			}
			return parseMCPResult(resp)
		}
	}
	defs = applyFilter(defs, src.Filter)
	if len(src.Filter) > 0 {
		kept := make(map[string]bool, len(defs))
		for _, d := range defs {
			kept[d.Name] = true
		}
		for name := range handlers {
			if !kept[name] {
				delete(handlers, name)
			}
		}
	}

	return defs, handlers, nil
}

func convertMCPSchema(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func parseMCPResult(resp *mcp.CallToolResult) (any, error) {
	if resp.IsError {
		for _, content := range resp.Content {
			if text, ok := content.(mcp.TextContent); ok {
				return nil, fmt.Errorf("%s", text.Text)
			}
		}
		return nil, fmt.Errorf("MCP tool call failed")
	}

	var texts []string
	for _, content := range resp.Content {
		if text, ok := content.(mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	switch len(texts) {
	case 0:
		return nil, nil
	case 1:
		return texts[0], nil
	default:
		return texts, nil
	}
}
