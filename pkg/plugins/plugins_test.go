package plugins

import (
	"context"
	"testing"

	"github.com/arcflow/conductor/pkg/config"
	"github.com/arcflow/conductor/pkg/tool"
)

func TestApplyFilter(t *testing.T) {
	defs := []tool.Definition{
		{Name: "read_file"},
		{Name: "write_file"},
		{Name: "search"},
	}

	filtered := applyFilter(defs, nil)
	if len(filtered) != 3 {
		t.Fatalf("expected no filtering with an empty filter, got %d", len(filtered))
	}

	filtered = applyFilter(defs, []string{"search"})
	if len(filtered) != 1 || filtered[0].Name != "search" {
		t.Fatalf("expected only search to survive the filter, got %v", filtered)
	}
}

func TestLoadUnknownKind(t *testing.T) {
	ctx := context.Background()
	_, _, err := Load(ctx, []config.PluginSource{{Name: "bogus", Kind: "unsupported"}})
	if err == nil {
		t.Fatal("expected an error for an unknown plugin kind")
	}
}
