// Package plugins loads external tool definitions at startup, from an
// out-of-process go-plugin binary or an MCP server, and hands them to
// pkg/tool's Registry. The plugin process keeps running each tool's body;
// this package only discovers names, schemas, and a call path.
package plugins

import (
	"context"
	"fmt"

	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/tool"
)

// Load resolves every configured source into tool definitions and handlers,
// ready for tool.Registry.RegisterBatch. A source that fails to load is
// skipped with its error returned alongside whatever did succeed, so one
// bad plugin doesn't block the rest from registering.
func Load(ctx context.Context, sources []config.PluginSource) ([]tool.Definition, map[string]tool.Handler, error) {
	var defs []tool.Definition
	handlers := make(map[string]tool.Handler)
	var errs []error

	for _, src := range sources {
		var (
			srcDefs     []tool.Definition
			srcHandlers map[string]tool.Handler
			err         error
		)
		switch src.Kind {
		case "process":
			srcDefs, srcHandlers, err = loadProcess(ctx, src)
		case "mcp":
			srcDefs, srcHandlers, err = loadMCP(ctx, src)
		default:
			err = fmt.Errorf("plugin %q: unknown kind %q", src.Name, src.Kind)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("plugin %q: %w", src.Name, err))
			continue
		}
		defs = append(defs, srcDefs...)
		for name, h := range srcHandlers {
			handlers[name] = h
		}
	}

	if len(errs) > 0 {
		return defs, handlers, fmt.Errorf("%d plugin source(s) failed to load: %v", len(errs), errs)
	}
	return defs, handlers, nil
}

// applyFilter drops any definition whose name isn't in filter, when filter
// is non-empty.
func applyFilter(defs []tool.Definition, filter []string) []tool.Definition {
	if len(filter) == 0 {
		return defs
	}
	allow := make(map[string]bool, len(filter))
	for _, name := range filter {
		allow[name] = true
	}
	var out []tool.Definition
	for _, d := range defs {
		if allow[d.Name] {
			out = append(out, d)
		}
	}
	return out
}
