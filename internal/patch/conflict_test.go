package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseApplyCheckOutputPatchFailed(t *testing.T) {
	output := []byte("error: patch failed: internal/foo.go:42\nerror: internal/foo.go: patch does not apply\n")
	details := parseApplyCheckOutput(output)
	require.Len(t, details, 2)
	assert.Equal(t, "internal/foo.go", details[0].File)
	assert.Contains(t, details[0].Reason, "line 42")
	assert.Equal(t, "internal/foo.go", details[1].File)
	assert.Contains(t, details[1].Reason, "does not apply")
}

func TestParseApplyCheckOutputDeduplicates(t *testing.T) {
	output := []byte("error: patch failed: internal/foo.go:42\nerror: patch failed: internal/foo.go:42\n")
	details := parseApplyCheckOutput(output)
	assert.Len(t, details, 1)
}

func TestParseApplyCheckOutputEmptyOnUnrecognizedLines(t *testing.T) {
	output := []byte("some unrelated git chatter\n")
	assert.Empty(t, parseApplyCheckOutput(output))
}
