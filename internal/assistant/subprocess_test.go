package assistant

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlabs/stomper/internal/types"
)

func TestSubprocessBackendRunsAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.go"), []byte("package foo\n"), 0o644))

	b := NewSubprocessBackend("true")
	err := b.Run(context.Background(), Request{SandboxPath: dir, File: "foo.go", Prompt: "do it", Timeout: time.Second})
	require.NoError(t, err)
}

func TestSubprocessBackendFailsOnNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	b := NewSubprocessBackend("false")
	err := b.Run(context.Background(), Request{SandboxPath: dir, File: "foo.go", Prompt: "do it", Timeout: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAssistantFailed)
}

func TestSubprocessBackendTimesOut(t *testing.T) {
	dir := t.TempDir()
	b := NewSubprocessBackend("sleep")
	err := b.Run(context.Background(), Request{SandboxPath: dir, File: "foo.go", Prompt: "5", Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAssistantTimeout)
}

func TestSubprocessBackendUnavailableWhenMissing(t *testing.T) {
	dir := t.TempDir()
	b := NewSubprocessBackend("this-binary-does-not-exist-stomper")
	err := b.Run(context.Background(), Request{SandboxPath: dir, File: "foo.go", Prompt: "x", Timeout: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAssistantUnavailable)
}
