package workflow

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nlabs/stomper/internal/types"
)

// TestRunner validates a sandbox's changes per a TestMode.
// Implementations must not mutate files outside the sandbox.
type TestRunner interface {
	Run(ctx context.Context, sandboxPath string, mode types.TestMode, file string) error
}

// GoTestRunner runs `go test` in a sandbox: short mode with a hard
// timeout, combined output captured for the failure cause.
type GoTestRunner struct{}

// Run executes the suite (full) or a best-effort file-scoped subset
// (quick) inside sandboxPath. final and none are no-ops here, and the
// session orchestrator runs no test suite at teardown for final either.
func (GoTestRunner) Run(ctx context.Context, sandboxPath string, mode types.TestMode, file string) error {
	var args []string
	switch mode {
	case types.TestModeFull:
		args = []string{"test", "-short", "-timeout=2m", "./..."}
	case types.TestModeQuick:
		args = []string{"test", "-short", "-timeout=2m", quickPackage(file)}
	case types.TestModeFinal, types.TestModeNone:
		return nil
	default:
		return fmt.Errorf("unknown test mode %q", mode)
	}

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = sandboxPath

	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return fmt.Errorf("test run canceled: %w", ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("test run failed: %w\n%s", err, output)
	}
	return nil
}

// quickPackage maps a changed file to its owning package pattern,
// falling back to the whole tree when the file isn't under a
// recognizable package directory.
func quickPackage(file string) string {
	dir := "."
	if i := strings.LastIndex(file, "/"); i >= 0 {
		dir = file[:i]
	}
	return "./" + dir + "/..."
}
