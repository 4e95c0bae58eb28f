package patch

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestRepo initializes a real git repository under t.TempDir() with
// one commit, and returns its path and HEAD commit sha.
func newTestRepo(t *testing.T) (path, sha string) {
	t.Helper()
	dir := t.TempDir()

	runGit(t, dir, "init", "--initial-branch=main")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	runGit(t, dir, "add", "main.go")
	runGit(t, dir, "commit", "-m", "initial commit")

	sha = gitOutput(t, dir, "rev-parse", "HEAD")
	return dir, sha
}

// newTestWorktree creates a detached worktree of repo at baseCommit
// under a sibling directory, for exercising Extract/Apply.
func newTestWorktree(t *testing.T, repo, baseCommit string) string {
	t.Helper()
	worktreePath := filepath.Join(t.TempDir(), "wt")
	runGit(t, repo, "worktree", "add", "--detach", worktreePath, baseCommit)
	t.Cleanup(func() {
		runGitAllowFail(repo, "worktree", "remove", "--force", worktreePath)
	})
	return worktreePath
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, out)
}

func runGitAllowFail(dir string, args ...string) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	_ = cmd.Run()
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return strings.TrimSpace(string(out))
}
