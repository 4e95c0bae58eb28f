package patch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlabs/stomper/internal/types"
)

func TestExtractEmptyWhenSandboxUnchanged(t *testing.T) {
	repo, sha := newTestRepo(t)
	worktree := newTestWorktree(t, repo, sha)
	b := NewBroker()

	text, err := b.Extract(context.Background(), worktree)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractReturnsPatchForModifiedFile(t *testing.T) {
	repo, sha := newTestRepo(t)
	worktree := newTestWorktree(t, repo, sha)
	require.NoError(t, os.WriteFile(filepath.Join(worktree, "main.go"), []byte("package main\n\nfunc main() { println(\"hi\") }\n"), 0o644))

	b := NewBroker()
	text, err := b.Extract(context.Background(), worktree)
	require.NoError(t, err)
	assert.Contains(t, text, "main.go")
	assert.Contains(t, text, "println")
}

func TestApplyAppliesCleanlyAndCommits(t *testing.T) {
	repo, sha := newTestRepo(t)
	worktree := newTestWorktree(t, repo, sha)
	require.NoError(t, os.WriteFile(filepath.Join(worktree, "main.go"), []byte("package main\n\nfunc main() { println(\"hi\") }\n"), 0o644))

	b := NewBroker()
	patchText, err := b.Extract(context.Background(), worktree)
	require.NoError(t, err)
	require.NotEmpty(t, patchText)

	require.NoError(t, b.Apply(context.Background(), repo, patchText))

	hash, err := b.Commit(context.Background(), repo, []string{"main.go"}, "fix(quality): resolve 1 issue in main.go", CommitOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	content, err := os.ReadFile(filepath.Join(repo, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "println")
}

func TestApplyFailsOnConflict(t *testing.T) {
	repo, sha := newTestRepo(t)
	worktree := newTestWorktree(t, repo, sha)
	require.NoError(t, os.WriteFile(filepath.Join(worktree, "main.go"), []byte("package main\n\nfunc main() { println(\"from sandbox\") }\n"), 0o644))

	b := NewBroker()
	patchText, err := b.Extract(context.Background(), worktree)
	require.NoError(t, err)

	// Diverge the main tree so the patch no longer applies cleanly.
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nfunc main() { println(\"from main\") }\n"), 0o644))
	runGit(t, repo, "add", "main.go")
	runGit(t, repo, "commit", "-m", "diverge")

	err = b.Apply(context.Background(), repo, patchText)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrPatchApplyFailed)

	content, readErr := os.ReadFile(filepath.Join(repo, "main.go"))
	require.NoError(t, readErr)
	assert.Contains(t, string(content), "from main")
}

func TestCommitRequiresMessage(t *testing.T) {
	repo, _ := newTestRepo(t)
	b := NewBroker()
	_, err := b.Commit(context.Background(), repo, nil, "", CommitOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCommitFailed)
}

func TestCommitAppendsCoAuthors(t *testing.T) {
	repo, sha := newTestRepo(t)
	worktree := newTestWorktree(t, repo, sha)
	require.NoError(t, os.WriteFile(filepath.Join(worktree, "main.go"), []byte("package main\n\nfunc main() { println(\"hi\") }\n"), 0o644))

	b := NewBroker()
	patchText, err := b.Extract(context.Background(), worktree)
	require.NoError(t, err)
	require.NoError(t, b.Apply(context.Background(), repo, patchText))

	_, err = b.Commit(context.Background(), repo, []string{"main.go"}, "fix(quality): resolve 1 issue in main.go", CommitOptions{
		CoAuthors: []string{"Stomper <stomper@example.com>"},
	})
	require.NoError(t, err)

	msg := gitOutput(t, repo, "log", "-1", "--format=%B")
	assert.Contains(t, msg, "Co-Authored-By: Stomper <stomper@example.com>")
}
