package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func validateGitRepo(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s", path)
		}
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("not a git repository (no .git found): %s", path)
		}
		return fmt.Errorf("failed to check for .git: %w", err)
	}
	return nil
}

func validateGitRefName(name string) error {
	if name == "" {
		return fmt.Errorf("ref name cannot be empty")
	}
	invalidChars := []string{" ", "~", "^", ":", "?", "*", "[", "\\", "..", "@{", "//"}
	for _, c := range invalidChars {
		if strings.Contains(name, c) {
			return fmt.Errorf("ref name contains invalid character or pattern: %s", c)
		}
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return fmt.Errorf("ref name cannot start or end with '.'")
	}
	if strings.HasSuffix(name, ".lock") {
		return fmt.Errorf("ref name cannot end with '.lock'")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("ref name cannot start or end with '/'")
	}
	return nil
}

// createWorktree creates a detached-HEAD git worktree rooted at
// baseCommit, under parent dir root/name. The branch is created
// separately by createBranch once the worktree exists.
func createWorktree(ctx context.Context, parentRepo, root, name, baseCommit string) (string, error) {
	if err := validateGitRepo(parentRepo); err != nil {
		return "", fmt.Errorf("parent repo validation failed: %w", err)
	}
	worktreePath := filepath.Join(root, name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sandbox root directory: %w", err)
	}
	if _, err := os.Stat(worktreePath); err == nil {
		return "", fmt.Errorf("worktree path already exists: %s", worktreePath)
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "--detach", worktreePath, baseCommit)
	cmd.Dir = parentRepo
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(worktreePath)
		return "", fmt.Errorf("git worktree add failed: %w (output: %s)", err, string(output))
	}

	absPath, err := filepath.Abs(worktreePath)
	if err != nil {
		_ = removeWorktree(ctx, parentRepo, worktreePath)
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// removeWorktree removes a git worktree, falling back to a manual
// directory removal plus prune if the worktree is already broken.
func removeWorktree(ctx context.Context, parentRepo, worktreePath string) error {
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", worktreePath, "--force")
	if parentRepo != "" {
		cmd.Dir = parentRepo
	}
	if _, err := cmd.CombinedOutput(); err != nil {
		if err := os.RemoveAll(worktreePath); err != nil {
			return fmt.Errorf("failed to remove worktree directory: %w", err)
		}
		pruneCmd := exec.CommandContext(ctx, "git", "worktree", "prune")
		if parentRepo != "" {
			pruneCmd.Dir = parentRepo
		}
		_ = pruneCmd.Run()
		return nil
	}
	return nil
}

// createBranch creates branchName in worktreePath from baseBranch. The
// worktree must already exist in detached HEAD state.
func createBranch(ctx context.Context, worktreePath, branchName, baseBranch string) error {
	if err := validateGitRepo(worktreePath); err != nil {
		return fmt.Errorf("worktree validation failed: %w", err)
	}
	if err := validateGitRefName(branchName); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}

	checkCmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", branchName)
	checkCmd.Dir = worktreePath
	if err := checkCmd.Run(); err == nil {
		return fmt.Errorf("branch %s already exists", branchName)
	}

	cmd := exec.CommandContext(ctx, "git", "checkout", "-b", branchName, baseBranch)
	cmd.Dir = worktreePath
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout -b failed: %w (output: %s)", err, string(output))
	}
	return nil
}

// deleteBranch deletes branchName in repoPath. A missing branch is not
// an error: cleanup must be idempotent.
func deleteBranch(ctx context.Context, repoPath, branchName string) error {
	if err := validateGitRepo(repoPath); err != nil {
		return fmt.Errorf("repo validation failed: %w", err)
	}
	if err := validateGitRefName(branchName); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}

	checkCmd := exec.CommandContext(ctx, "git", "rev-parse", "--verify", branchName)
	checkCmd.Dir = repoPath
	if err := checkCmd.Run(); err != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "branch", "-D", branchName)
	cmd.Dir = repoPath
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git branch -D failed: %w (output: %s)", err, string(output))
	}
	return nil
}

// getGitStatus returns porcelain git status output, trimmed.
func getGitStatus(ctx context.Context, worktreePath string) (string, error) {
	if err := validateGitRepo(worktreePath); err != nil {
		return "", fmt.Errorf("worktree validation failed: %w", err)
	}
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = worktreePath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git status failed: %w (output: %s)", err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// getModifiedFiles lists files with staged or unstaged changes in the
// worktree, resolving renames to their new name.
func getModifiedFiles(ctx context.Context, worktreePath string) ([]string, error) {
	status, err := getGitStatus(ctx, worktreePath)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return nil, nil
	}

	var files []string
	for _, line := range strings.Split(status, "\n") {
		line = strings.TrimSpace(line)
		sep := strings.IndexByte(line, ' ')
		if sep < 0 {
			continue
		}
		filename := strings.Trim(strings.TrimSpace(line[sep+1:]), `"`)
		if idx := strings.Index(filename, " -> "); idx >= 0 {
			filename = strings.TrimSpace(filename[idx+4:])
		}
		if filename != "" {
			files = append(files, filename)
		}
	}
	return files, nil
}
