// Package sandbox implements the sandbox manager: per-file
// isolated git worktrees rooted on the session's base commit, each on
// its own throwaway branch, destroyed when the owning sub-workflow
// terminates.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nlabs/stomper/internal/types"
)

// Manager creates and tears down isolated worktrees for file
// sub-workflows.
type Manager interface {
	// Create provisions a fresh worktree for path, in detached state
	// at baseCommit, with its own throwaway branch.
	Create(ctx context.Context, path, baseCommit string) (*types.SandboxHandle, error)
	// Destroy tears down a sandbox's worktree and branch. Safe to call
	// more than once for the same handle.
	Destroy(ctx context.Context, handle *types.SandboxHandle) error
	// ModifiedFiles lists files with uncommitted changes in the
	// sandbox, staged or not, naming a renamed file by its new path.
	ModifiedFiles(ctx context.Context, handle *types.SandboxHandle) ([]string, error)
	// CleanupStale removes on-disk sandbox directories left behind by
	// a crashed prior run, keeping the most recent keep of them (0
	// keeps all). Config.FailedSandboxRetention feeds this.
	CleanupStale(ctx context.Context, keep int) error
	// MarkFailed flags a sandbox so a subsequent Destroy honors
	// Config.KeepOnFailure instead of tearing it down.
	MarkFailed(id string)
	// ActiveCount reports how many sandboxes are currently tracked as
	// live, for the session orchestrator's teardown sanity check
	// every sandbox must be torn down by the time a run finishes.
	ActiveCount() int
}

// Config configures a sandbox Manager.
type Config struct {
	// SandboxRoot is the directory under which worktrees are created.
	SandboxRoot string
	// ParentRepo is the repository the worktrees are checked out from.
	ParentRepo string
	// KeepOnFailure preserves a failed sandbox's worktree and branch
	// for debugging instead of destroying them.
	KeepOnFailure bool
}

type manager struct {
	cfg     Config
	mu      sync.Mutex
	active  map[string]*types.SandboxHandle
	failed  map[string]bool
}

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (Manager, error) {
	if cfg.SandboxRoot == "" {
		return nil, fmt.Errorf("sandbox root is required")
	}
	if cfg.ParentRepo == "" {
		return nil, fmt.Errorf("parent repo is required")
	}
	if err := validateGitRepo(cfg.ParentRepo); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSandboxCreateFailed, err)
	}
	return &manager{
		cfg:    cfg,
		active: make(map[string]*types.SandboxHandle),
		failed: make(map[string]bool),
	}, nil
}

func (m *manager) Create(ctx context.Context, path, baseCommit string) (*types.SandboxHandle, error) {
	id := uuid.NewString()
	dirName := "sandbox-" + id
	branch := "stomper/" + id

	worktreePath, err := createWorktree(ctx, m.cfg.ParentRepo, m.cfg.SandboxRoot, dirName, baseCommit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSandboxCreateFailed, err)
	}
	if err := createBranch(ctx, worktreePath, branch, baseCommit); err != nil {
		_ = removeWorktree(ctx, m.cfg.ParentRepo, worktreePath)
		return nil, fmt.Errorf("%w: %v", types.ErrSandboxCreateFailed, err)
	}

	handle := &types.SandboxHandle{ID: id, Path: worktreePath, Branch: branch}

	m.mu.Lock()
	m.active[id] = handle
	m.mu.Unlock()

	return handle, nil
}

func (m *manager) Destroy(ctx context.Context, handle *types.SandboxHandle) error {
	if handle == nil {
		return nil
	}

	m.mu.Lock()
	_, known := m.active[handle.ID]
	failed := m.failed[handle.ID]
	delete(m.active, handle.ID)
	delete(m.failed, handle.ID)
	m.mu.Unlock()

	if !known {
		return nil
	}
	if failed && m.cfg.KeepOnFailure {
		return nil
	}

	if err := removeWorktree(ctx, m.cfg.ParentRepo, handle.Path); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSandboxDestroyFailed, err)
	}
	if err := deleteBranch(ctx, m.cfg.ParentRepo, handle.Branch); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSandboxDestroyFailed, err)
	}
	return nil
}

// MarkFailed flags handle so a subsequent Destroy honors
// Config.KeepOnFailure instead of tearing the sandbox down.
func (m *manager) MarkFailed(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = true
}

// ActiveCount reports the number of sandboxes currently tracked as live.
func (m *manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *manager) ModifiedFiles(ctx context.Context, handle *types.SandboxHandle) ([]string, error) {
	files, err := getModifiedFiles(ctx, handle.Path)
	if err != nil {
		return nil, fmt.Errorf("listing modified files: %w", err)
	}
	return files, nil
}

func (m *manager) CleanupStale(ctx context.Context, keep int) error {
	entries, err := os.ReadDir(m.cfg.SandboxRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading sandbox root: %w", err)
	}

	type stale struct {
		path    string
		modTime time.Time
	}
	var candidates []stale
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, stale{path: filepath.Join(m.cfg.SandboxRoot, e.Name()), modTime: info.ModTime()})
	}

	if keep <= 0 || len(candidates) <= keep {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	for _, c := range candidates[keep:] {
		if err := removeWorktree(ctx, m.cfg.ParentRepo, c.path); err != nil {
			return fmt.Errorf("cleaning up stale sandbox %s: %w", c.path, err)
		}
	}
	return nil
}
