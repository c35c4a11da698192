package plugins

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	hclog "github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/tool"
)

// handshake guards against accidentally dispensing a plugin binary built
// for a different host. Plain net/rpc transport; tool plugins don't need
// gRPC's streaming or the protobuf codegen step that comes with it.
var handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CONDUCTOR_TOOL_PLUGIN",
	MagicCookieValue: "conductor",
}

// ToolProvider is the interface an out-of-process tool plugin implements.
type ToolProvider interface {
	ListTools() ([]tool.Definition, error)
	CallTool(name string, input map[string]any) (tool.Result, error)
}

// ToolProviderPlugin adapts a ToolProvider to go-plugin's net/rpc plugin
// contract, on both the host and the plugin binary's side.
type ToolProviderPlugin struct {
	Impl ToolProvider
}

func (p *ToolProviderPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &toolProviderRPCServer{impl: p.Impl}, nil
}

func (p *ToolProviderPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &toolProviderRPCClient{client: c}, nil
}

type toolProviderRPCServer struct {
	impl ToolProvider
}

func (s *toolProviderRPCServer) ListTools(_ struct{}, resp *[]tool.Definition) error {
	defs, err := s.impl.ListTools()
	*resp = defs
	return err
}

type callToolArgs struct {
	Name  string
	Input map[string]any
}

func (s *toolProviderRPCServer) CallTool(args callToolArgs, resp *tool.Result) error {
	r, err := s.impl.CallTool(args.Name, args.Input)
	*resp = r
	return err
}

type toolProviderRPCClient struct {
	client *rpc.Client
}

func (c *toolProviderRPCClient) ListTools() ([]tool.Definition, error) {
	var resp []tool.Definition
	err := c.client.Call("Plugin.ListTools", struct{}{}, &resp)
	return resp, err
}

func (c *toolProviderRPCClient) CallTool(name string, input map[string]any) (tool.Result, error) {
	var resp tool.Result
	err := c.client.Call("Plugin.CallTool", callToolArgs{Name: name, Input: input}, &resp)
	return resp, err
}

// loadProcess launches src.Path as a subprocess, dispenses its "tool"
// plugin, and converts its tool list into registry-ready definitions and
// handlers that call back into the still-running plugin process.
func loadProcess(ctx context.Context, src config.PluginSource) ([]tool.Definition, map[string]tool.Handler, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: handshake,
		Plugins: map[string]goplugin.Plugin{
			"tool": &ToolProviderPlugin{},
		},
		Cmd:    exec.Command(src.Path, src.Args...),
		Logger: hclog.New(&hclog.LoggerOptions{Name: "conductor-plugin-" + src.Name, Level: hclog.Warn}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("connecting to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense("tool")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("dispensing tool plugin: %w", err)
	}

	provider, ok := raw.(ToolProvider)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin does not implement ToolProvider")
	}

	defs, err := provider.ListTools()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("listing tools: %w", err)
	}
	defs = applyFilter(defs, src.Filter)

	handlers := make(map[string]tool.Handler, len(defs))
	for _, def := range defs {
		name := def.Name
		handlers[name] = func(_ context.Context, input map[string]any) (any, error) {
			result, err := provider.CallTool(name, input)
			if err != nil {
				return nil, err
			}
			if result.IsError {
				return nil, fmt.Errorf("%s", result.Error)
			}
			return result.Output, nil
		}
	}

	return defs, handlers, nil
}
