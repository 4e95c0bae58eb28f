package assistant

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/nlabs/stomper/internal/types"
)

// SubprocessBackend invokes an external coding-assistant CLI as a
// subprocess whose working directory is the sandbox. The prompt is
// passed as the command's final positional argument, matching the
// non-interactive single-shot invocation mode most such CLIs expose.
type SubprocessBackend struct {
	// Command is the executable name (e.g. "claude", "amp").
	Command string
	// ExtraArgs are flags inserted before the prompt argument (e.g.
	// flags selecting non-interactive/auto-approve mode).
	ExtraArgs []string
}

// NewSubprocessBackend returns a SubprocessBackend for command with
// the given fixed flags.
func NewSubprocessBackend(command string, extraArgs ...string) *SubprocessBackend {
	return &SubprocessBackend{Command: command, ExtraArgs: extraArgs}
}

func (b *SubprocessBackend) Name() string { return b.Command }

func (b *SubprocessBackend) Run(ctx context.Context, req Request) error {
	if _, err := exec.LookPath(b.Command); err != nil {
		return fmt.Errorf("%w: %v", types.ErrAssistantUnavailable, err)
	}

	args := append(append([]string{}, b.ExtraArgs...), req.Prompt)
	cmd := exec.Command(b.Command, args...)
	cmd.Dir = req.SandboxPath

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %v", types.ErrAssistantUnavailable, b.Command, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- cmd.Wait() }()

	select {
	case <-timeoutCtx.Done():
		_ = cmd.Process.Kill()
		<-errCh
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s exceeded %v", types.ErrAssistantTimeout, b.Command, timeout)
		}
		return fmt.Errorf("%w: canceled: %v", types.ErrAssistantTimeout, timeoutCtx.Err())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%w: %s exited with error: %v (output: %s)", types.ErrAssistantFailed, b.Command, err, out.String())
		}
		return nil
	}
}
