package patch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/nlabs/stomper/internal/types"
)

// Broker is the sole gateway for VCS mutations of the main working
// tree during a session.
type Broker interface {
	// Extract returns the sandbox's uncommitted working-tree changes
	// as a patch applicable to the main tree. Empty string iff the
	// sandbox is unchanged.
	Extract(ctx context.Context, sandboxPath string) (string, error)
	// Apply applies patchText to repoPath. The main tree is left
	// untouched if the patch does not apply cleanly.
	Apply(ctx context.Context, repoPath, patchText string) error
	// Commit stages paths and records one commit with message.
	Commit(ctx context.Context, repoPath string, paths []string, message string, opts CommitOptions) (string, error)
}

type broker struct{}

// NewBroker returns a Broker backed by the git CLI.
func NewBroker() Broker {
	return &broker{}
}

func (b *broker) Extract(ctx context.Context, sandboxPath string) (string, error) {
	// Stage everything first (including untracked/new files) so the
	// diff against HEAD captures the sandbox's full delta, then diff
	// from the index so the result is a patch applicable cleanly to a
	// tree at the same base commit.
	addCmd := exec.CommandContext(ctx, "git", "-C", sandboxPath, "add", "-A")
	if out, err := addCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: git add -A failed: %v (output: %s)", types.ErrPatchExtractFailed, err, string(out))
	}

	diffCmd := exec.CommandContext(ctx, "git", "-C", sandboxPath, "diff", "--cached", "--no-color")
	var out bytes.Buffer
	diffCmd.Stdout = &out
	var errOut bytes.Buffer
	diffCmd.Stderr = &errOut
	if err := diffCmd.Run(); err != nil {
		return "", fmt.Errorf("%w: git diff --cached failed: %v (stderr: %s)", types.ErrPatchExtractFailed, err, errOut.String())
	}
	return out.String(), nil
}

func (b *broker) Apply(ctx context.Context, repoPath, patchText string) error {
	if strings.TrimSpace(patchText) == "" {
		return nil
	}

	checkCmd := exec.CommandContext(ctx, "git", "-C", repoPath, "apply", "--check", "-")
	checkCmd.Stdin = strings.NewReader(patchText)
	var checkErr bytes.Buffer
	checkCmd.Stderr = &checkErr
	if err := checkCmd.Run(); err != nil {
		details := parseApplyCheckOutput(checkErr.Bytes())
		return fmt.Errorf("%w: %v", types.ErrPatchApplyFailed, formatConflictDetails(details, checkErr.String()))
	}

	applyCmd := exec.CommandContext(ctx, "git", "-C", repoPath, "apply", "-")
	applyCmd.Stdin = strings.NewReader(patchText)
	var applyErr bytes.Buffer
	applyCmd.Stderr = &applyErr
	if err := applyCmd.Run(); err != nil {
		return fmt.Errorf("%w: git apply failed: %v (stderr: %s)", types.ErrPatchApplyFailed, err, applyErr.String())
	}
	return nil
}

func (b *broker) Commit(ctx context.Context, repoPath string, paths []string, message string, opts CommitOptions) (string, error) {
	if message == "" {
		return "", fmt.Errorf("%w: commit message is required", types.ErrCommitFailed)
	}

	if len(paths) > 0 {
		args := append([]string{"-C", repoPath, "add"}, paths...)
		addCmd := exec.CommandContext(ctx, "git", args...)
		if out, err := addCmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("%w: git add failed: %v (output: %s)", types.ErrCommitFailed, err, string(out))
		}
	}

	fullMessage := message
	if len(opts.CoAuthors) > 0 {
		fullMessage += "\n"
		for _, coAuthor := range opts.CoAuthors {
			fullMessage += fmt.Sprintf("\nCo-Authored-By: %s", coAuthor)
		}
	}

	args := []string{"-C", repoPath, "commit", "-m", fullMessage}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if opts.AllowEmpty {
		args = append(args, "--allow-empty")
	}
	commitCmd := exec.CommandContext(ctx, "git", args...)
	if out, err := commitCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%w: git commit failed: %v (output: %s)", types.ErrCommitFailed, err, string(out))
	}

	hashCmd := exec.CommandContext(ctx, "git", "-C", repoPath, "rev-parse", "HEAD")
	hashOut, err := hashCmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: failed to read commit hash: %v", types.ErrCommitFailed, err)
	}
	return strings.TrimSpace(string(hashOut)), nil
}

func formatConflictDetails(details []types.ConflictDetail, raw string) string {
	if len(details) == 0 {
		return strings.TrimSpace(raw)
	}
	var b strings.Builder
	for i, d := range details {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", d.File, d.Reason)
	}
	return b.String()
}
