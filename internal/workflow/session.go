package workflow

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/semaphore"

	"github.com/nlabs/stomper/internal/assistant"
	"github.com/nlabs/stomper/internal/events"
	"github.com/nlabs/stomper/internal/learning"
	"github.com/nlabs/stomper/internal/patch"
	"github.com/nlabs/stomper/internal/sandbox"
	"github.com/nlabs/stomper/internal/toolrunner"
	"github.com/nlabs/stomper/internal/types"
)

// Orchestrator drives one session end-to-end: collecting findings,
// fanning file sub-workflows out under a bounded concurrency policy,
// and aggregating their results.
type Orchestrator struct {
	Sandbox  sandbox.Manager
	Tools    []toolrunner.Adapter
	Patch    patch.Broker
	Learning learning.Store
	Invoker  *assistant.Invoker
	Tests    TestRunner
	Reporter events.Reporter
	Now      func() time.Time
}

// NewOrchestrator returns an Orchestrator wired to the given collaborators.
func NewOrchestrator(sandboxMgr sandbox.Manager, tools []toolrunner.Adapter, patchBroker patch.Broker, store learning.Store, invoker *assistant.Invoker, tests TestRunner, reporter events.Reporter) *Orchestrator {
	return &Orchestrator{
		Sandbox:  sandboxMgr,
		Tools:    tools,
		Patch:    patchBroker,
		Learning: store,
		Invoker:  invoker,
		Tests:    tests,
		Reporter: reporter,
	}
}

// Run executes one full session against cfg and returns the final
// session state. The returned error is non-nil only for a fatal,
// session-level failure (e.g. collecting findings itself failed); a
// session that completes with some files Failed returns a nil error
// with SessionState.Status == SessionFailed.
func (o *Orchestrator) Run(ctx context.Context, cfg types.SessionConfig) (*types.SessionState, error) {
	now := o.now()

	// Step 1: initialize.
	baseCommit, err := currentHEAD(ctx, cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base commit: %w", err)
	}
	session := types.NewSessionState(baseCommit, cfg, now)
	applyLock := &sync.Mutex{}

	// Step 2: collect findings against the main working tree.
	findings, err := o.collectFindings(ctx, cfg)
	if err != nil {
		return o.abort(session, err)
	}
	fileWorks := groupFindings(findings, cfg.MaxAttemptsPerFile, cfg.FileFilters)
	session.Files = fileWorks

	events.SessionStarted(o.Reporter, now, session.ID, len(fileWorks))

	if len(fileWorks) == 0 {
		return o.complete(session)
	}

	// Steps 3-5: fan out, bounded by a weighted semaphore sized to
	// max_parallel_files, aggregating results in completion order. A
	// weight of 1 behaves identically to sequential processing in
	// sorted path order without any special-cased branch.
	results := o.runFileWorks(ctx, cfg, baseCommit, fileWorks, applyLock)

	for _, r := range results {
		if r.Successful {
			session.Successes = append(session.Successes, r.Path)
			session.TotalFindingsFixed += r.ErrorsFixed
		} else {
			session.Failures = append(session.Failures, r.Path)
		}
	}

	return o.complete(session)
}

// runFileWorks fans fileWorks out across sub-workflows. A conc pool
// supplies panic-safe goroutine spawning; a semaphore.Weighted sized to
// max_parallel_files is acquired before each sub-workflow starts and
// released on completion, enforcing the session's concurrency bound
// independently of how many goroutines the pool itself happens to run.
// When continue_on_error is false, the context passed to sub-workflows
// is canceled as soon as one fails, so in-flight work winds down
// best-effort while already-committed files remain committed.
func (o *Orchestrator) runFileWorks(ctx context.Context, cfg types.SessionConfig, baseCommit string, fileWorks []*types.FileWork, applyLock *sync.Mutex) []types.Result {
	sem := semaphore.NewWeighted(int64(cfg.MaxParallelFiles))
	resultsCh := make(chan types.Result, len(fileWorks))

	p := pool.New().WithErrors().WithContext(ctx)
	if !cfg.ContinueOnError {
		p = p.WithCancelOnError()
	}

	deps := Deps{
		Sandbox:   o.Sandbox,
		Tools:     o.Tools,
		Patch:     o.Patch,
		Learning:  o.Learning,
		Invoker:   o.Invoker,
		Tests:     o.Tests,
		Reporter:  o.Reporter,
		ApplyLock: applyLock,
		RepoRoot:  cfg.RootDir,
		TestMode:  testModeFor(cfg),
		Now:       o.Now,
	}

	for _, fw := range fileWorks {
		fw := fw
		if err := sem.Acquire(ctx, 1); err != nil {
			resultsCh <- types.Result{Path: fw.Path, Successful: false, Cause: err}
			continue
		}
		p.Go(func(goCtx context.Context) error {
			defer sem.Release(1)
			sw := NewSubWorkflow(deps)
			res := sw.Run(goCtx, baseCommit, fw)
			resultsCh <- res
			if !res.Successful && !cfg.ContinueOnError {
				return res.Cause
			}
			return nil
		})
	}

	_ = p.Wait()
	close(resultsCh)

	results := make([]types.Result, 0, len(fileWorks))
	for r := range resultsCh {
		results = append(results, r)
	}
	return results
}

// collectFindings runs every enabled tool against the main working
// tree and flattens their findings into one slice. A tool that errors
// is surfaced directly: this is the fatal ToolInvocationFailed path
// (distinct from the per-file verify-step retry, since a finding
// collection failure precedes any sandbox or FileWork existing).
func (o *Orchestrator) collectFindings(ctx context.Context, cfg types.SessionConfig) ([]types.Finding, error) {
	var all []types.Finding
	for _, adapter := range o.Tools {
		findings, err := adapter.Run(ctx, cfg.RootDir, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrToolInvocationFailed, adapter.Name(), err)
		}
		events.ToolRun(o.Reporter, o.now(), cfg.RootDir, adapter.Name(), len(findings))
		all = append(all, findings...)
	}
	return all, nil
}

// groupFindings partitions findings by file path into one FileWork per
// path, applying fileFilters (a substring allow-list; empty means no
// filtering) and returning FileWorks sorted by path so a
// max_parallel_files=1 run produces a deterministic commit sequence.
func groupFindings(findings []types.Finding, maxAttempts int, fileFilters []string) []*types.FileWork {
	byPath := make(map[string][]types.Finding)
	for _, f := range findings {
		if !passesFilter(f.File, fileFilters) {
			continue
		}
		byPath[f.File] = append(byPath[f.File], f)
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*types.FileWork, 0, len(paths))
	for _, p := range paths {
		out = append(out, types.NewFileWork(p, byPath[p], maxAttempts))
	}
	return out
}

func passesFilter(path string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.Contains(path, f) {
			return true
		}
	}
	return false
}

func testModeFor(cfg types.SessionConfig) types.TestMode {
	if !cfg.RunTests {
		return types.TestModeNone
	}
	return cfg.TestMode
}

// abort handles a session-level fatal error encountered before any
// sub-workflow ran (a fatal error refuses to start the session).
func (o *Orchestrator) abort(session *types.SessionState, cause error) (*types.SessionState, error) {
	now := o.now()
	session.Status = types.SessionFailed
	session.FinalError = cause.Error()
	session.FinishedAt = now
	events.SessionFailed(o.Reporter, now, session.ID, cause)
	return session, cause
}

// complete finalizes a session's status: Completed
// if every FileWork succeeded (including the zero-FileWork case),
// Failed if at least one did not.
func (o *Orchestrator) complete(session *types.SessionState) (*types.SessionState, error) {
	now := o.now()
	session.FinishedAt = now

	if staleActive := o.Sandbox.ActiveCount(); staleActive > 0 {
		events.RecoveredError(o.Reporter, now, session.ID, fmt.Errorf("%d sandbox(es) still active at teardown", staleActive))
	}

	if len(session.Failures) > 0 {
		session.Status = types.SessionFailed
	} else {
		session.Status = types.SessionCompleted
	}

	events.SessionCompleted(o.Reporter, now, session.ID, len(session.Successes), len(session.Failures), session.TotalFindingsFixed)
	return session, nil
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// currentHEAD resolves the commit the session's sandboxes branch from.
func currentHEAD(ctx context.Context, repoRoot string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "rev-parse", "HEAD")
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w (stderr: %s)", err, errOut.String())
	}
	return strings.TrimSpace(out.String()), nil
}
