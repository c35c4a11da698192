package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Definition{Name: "echo", Description: "echoes input"},
		func(ctx context.Context, input map[string]any) (any, error) {
			return input["msg"], nil
		}, RegisterOptions{Category: CategoryRead})
	require.NoError(t, err)

	res := r.Execute(context.Background(), Call{ID: "1", Name: "echo", Input: map[string]any{"msg": "hi"}})
	assert.False(t, res.IsError)
	assert.Equal(t, "hi", res.Output)

	st, ok := r.Stats("echo")
	require.True(t, ok)
	assert.Equal(t, int64(1), st.Count)
	assert.Equal(t, int64(1), st.Success)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	h := func(ctx context.Context, input map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register(Definition{Name: "x"}, h, RegisterOptions{}))
	err := r.Register(Definition{Name: "x"}, h, RegisterOptions{})
	assert.Error(t, err)
}

func TestHandlerPanicBecomesFailedResult(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Definition{Name: "boom"}, func(ctx context.Context, input map[string]any) (any, error) {
		panic("kaboom")
	}, RegisterOptions{}))

	res := r.Execute(context.Background(), Call{ID: "1", Name: "boom"})
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "panic")
}

func TestHandlerErrorWrapped(t *testing.T) {
	r := NewRegistry()
	want := errors.New("disk full")
	require.NoError(t, r.Register(Definition{Name: "write"}, func(ctx context.Context, input map[string]any) (any, error) {
		return nil, want
	}, RegisterOptions{}))

	res := r.Execute(context.Background(), Call{ID: "1", Name: "write"})
	assert.True(t, res.IsError)
	assert.Equal(t, want.Error(), res.Error)
}

func TestGetDefinitionsSortedByPriority(t *testing.T) {
	r := NewRegistry()
	h := func(ctx context.Context, input map[string]any) (any, error) { return nil, nil }
	require.NoError(t, r.Register(Definition{Name: "low"}, h, RegisterOptions{Priority: 1}))
	require.NoError(t, r.Register(Definition{Name: "high"}, h, RegisterOptions{Priority: 10}))

	defs := r.GetDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "high", defs[0].Name)

	// cache invalidates on mutation
	require.NoError(t, r.Register(Definition{Name: "mid"}, h, RegisterOptions{Priority: 5}))
	defs = r.GetDefinitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "mid", defs[1].Name)
}

func TestUnknownToolNotRegistered(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), Call{ID: "1", Name: "nope"})
	assert.True(t, res.IsError)
}
