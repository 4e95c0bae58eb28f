package toolrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlabs/stomper/internal/types"
)

type stubAdapter struct {
	name      string
	deps      []string
	available bool
}

func (s stubAdapter) Name() string         { return s.name }
func (s stubAdapter) Dependencies() []string { return s.deps }
func (s stubAdapter) Available() bool      { return s.available }
func (s stubAdapter) Run(ctx context.Context, dir string, files []string) ([]types.Finding, error) {
	return nil, nil
}

func TestRegistryRegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubAdapter{name: "a", available: true}))
	err := r.Register(stubAdapter{name: "a", available: true})
	require.Error(t, err)
}

func TestRegistryResolveOrdersByDependency(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubAdapter{name: "typecheck", available: true}))
	require.NoError(t, r.Register(stubAdapter{name: "lint", deps: []string{"typecheck"}, available: true}))

	resolved, err := r.Resolve([]string{"lint", "typecheck"})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "typecheck", resolved[0].Name())
	assert.Equal(t, "lint", resolved[1].Name())
}

func TestRegistryResolveUnknownToolIsFatal(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve([]string{"nonexistent"})
	require.ErrorIs(t, err, types.ErrToolNotAvailable)
}

func TestRegistryResolveUnavailableToolIsFatal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubAdapter{name: "lint", available: false}))
	_, err := r.Resolve([]string{"lint"})
	require.ErrorIs(t, err, types.ErrToolNotAvailable)
}

func TestRegistryResolveDetectsCycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubAdapter{name: "a", deps: []string{"b"}, available: true}))
	require.NoError(t, r.Register(stubAdapter{name: "b", deps: []string{"a"}, available: true}))
	_, err := r.Resolve([]string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

func TestRegistryAvailableReflectsEachAdapter(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(stubAdapter{name: "a", available: true}))
	require.NoError(t, r.Register(stubAdapter{name: "b", available: false}))
	avail := r.Available()
	assert.True(t, avail["a"])
	assert.False(t, avail["b"])
}
