// Package workflow implements the file sub-workflow state machine and
// the session orchestrator that drives it: the layer
// that wires the sandbox manager, tool adapters, patch broker, learning
// store, and assistant invoker together into one remediation run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nlabs/stomper/internal/assistant"
	"github.com/nlabs/stomper/internal/events"
	"github.com/nlabs/stomper/internal/learning"
	"github.com/nlabs/stomper/internal/patch"
	"github.com/nlabs/stomper/internal/sandbox"
	"github.com/nlabs/stomper/internal/toolrunner"
	"github.com/nlabs/stomper/internal/types"
)

// ToolVersion identifies stomper itself in the "Fixed by" trailer of a
// generated commit message.
const ToolVersion = "0.1.0"

// Deps are the collaborators one file sub-workflow needs. The session
// orchestrator constructs one set and shares it across every concurrent
// sub-workflow; every field except ApplyLock is either immutable or
// already safe for concurrent use.
type Deps struct {
	Sandbox  sandbox.Manager
	Tools    []toolrunner.Adapter
	Patch    patch.Broker
	Learning learning.Store
	Invoker  *assistant.Invoker
	Tests    TestRunner
	Reporter events.Reporter
	// ApplyLock guards the apply-stage-commit step, the
	// session's one globally-serialized critical section.
	ApplyLock *sync.Mutex
	// RepoRoot is the main working tree patches are applied to.
	RepoRoot string
	// TestMode selects the test-validation mode run at step 6.
	TestMode types.TestMode
	Now      func() time.Time
}

// SubWorkflow processes exactly one FileWork end-to-end inside one
// sandbox.
type SubWorkflow struct {
	deps Deps
}

// NewSubWorkflow returns a SubWorkflow using deps.
func NewSubWorkflow(deps Deps) *SubWorkflow {
	return &SubWorkflow{deps: deps}
}

// pattern is a (tool, rule code) pair, the unit the learning store
// records outcomes against.
type pattern struct {
	Tool string
	Code string
}

// Run drives fw through every state transition and returns the
// record the orchestrator aggregates. It never panics on an expected
// failure: every error path transitions fw to Failed and returns a
// Result with Successful=false.
func (s *SubWorkflow) Run(ctx context.Context, baseCommit string, fw *types.FileWork) types.Result {
	now := s.deps.Now
	if now == nil {
		now = time.Now
	}

	events.FileStarted(s.deps.Reporter, now(), fw.Path, len(fw.Findings))

	// Step 1: create worktree.
	handle, err := s.deps.Sandbox.Create(ctx, fw.Path, baseCommit)
	if err != nil {
		return s.fail(fw, now(), fmt.Errorf("%w: %v", types.ErrSandboxCreateFailed, err))
	}
	events.SandboxCreated(s.deps.Reporter, now(), fw.Path, handle.ID)
	defer func() {
		if fw.Status == types.FileStatusFailed {
			s.deps.Sandbox.MarkFailed(handle.ID)
		}
		if destroyErr := s.deps.Sandbox.Destroy(context.Background(), handle); destroyErr != nil {
			// SandboxDestroyFailed is always demoted to a warning
			// a recovered-locally error; it never changes the file's outcome.
			s.warn(now(), fw.Path, fmt.Errorf("%w: %v", types.ErrSandboxDestroyFailed, destroyErr))
		}
		events.SandboxDestroyed(s.deps.Reporter, now(), fw.Path, handle.ID)
	}()

	fw.Status = types.FileStatusInProgress

	// failedStrategies accumulates, across attempts on this file, the
	// verbosity ladder rungs already tried for the round's primary
	// pattern, so a retry calls Fallback to skip them (and prefer a
	// rung that has succeeded before) instead of recomputing Adapt
	// from scratch every time.
	var failedStrategies []types.Strategy

	for {
		if ctx.Err() != nil {
			return s.fail(fw, now(), ctx.Err())
		}

		fw.Attempts++
		attempted := distinctPatterns(fw.Findings)
		tool, code := "", ""
		if len(attempted) > 0 {
			tool, code = attempted[0].Tool, attempted[0].Code
		}
		strategy := s.selectStrategy(tool, code, fw.RetryCount(), failedStrategies)
		events.FileAttempt(s.deps.Reporter, now(), fw.Path, fw.Attempts, strategy.Verbosity.String())

		prompt := buildPrompt(fw, strategy)
		invokeErr := s.deps.Invoker.Invoke(ctx, handle.Path, fw.Path, prompt)
		if invokeErr != nil {
			failedStrategies = append(failedStrategies, strategy.Verbosity)
			s.recordAll(fw, attempted, strategy.Verbosity, types.OutcomeFailure, now())
			if errors.Is(invokeErr, types.ErrAssistantUnavailable) {
				return s.fail(fw, now(), invokeErr)
			}
			if s.retryOrFail(fw, now(), invokeErr) {
				continue
			}
			return s.result(fw, false, 0, invokeErr)
		}

		// Step 4: verify.
		rerun, verifyErr := s.runTools(ctx, handle.Path, []string{fw.Path})
		if verifyErr != nil {
			failedStrategies = append(failedStrategies, strategy.Verbosity)
			s.recordAll(fw, attempted, strategy.Verbosity, types.OutcomeFailure, now())
			if s.retryOrFail(fw, now(), fmt.Errorf("%w: %v", types.ErrToolInvocationFailed, verifyErr)) {
				continue
			}
			return s.result(fw, false, 0, verifyErr)
		}
		fw.ApplyVerification(rerun)
		events.VerifyResult(s.deps.Reporter, now(), fw.Path, len(fw.FindingsFixed), len(fw.Findings))

		// Step 5: retry decision. A pattern genuinely still present in
		// fw.Findings is recorded as a failure here regardless of what
		// happens next; a pattern resolved this round is NOT recorded
		// yet, since step 6 can still undo it (see below).
		if !fw.IsResolved() {
			failedStrategies = append(failedStrategies, strategy.Verbosity)
			s.recordOutcomes(fw, attempted, strategy.Verbosity, now())
			if s.retryOrFail(fw, now(), fmt.Errorf("findings remain after attempt %d", fw.Attempts)) {
				continue
			}
			return s.result(fw, false, 0, fmt.Errorf("findings remain: %d", len(fw.Findings)))
		}

		// Step 6: run tests. A regression here means the attempt did
		// not actually resolve the file, so every pattern attempted
		// this round is recorded as a failure even though verify
		// reported it fixed.
		if err := s.deps.Tests.Run(ctx, handle.Path, s.deps.TestMode, fw.Path); err != nil {
			failedStrategies = append(failedStrategies, strategy.Verbosity)
			s.recordAll(fw, attempted, strategy.Verbosity, types.OutcomeFailure, now())
			if s.retryOrFail(fw, now(), err) {
				continue
			}
			return s.result(fw, false, 0, err)
		}

		// Fully resolved and tests passed: every pattern attempted this
		// round genuinely succeeded.
		s.recordOutcomes(fw, attempted, strategy.Verbosity, now())
		break
	}

	// Step 7: extract patch.
	patchText, err := s.deps.Patch.Extract(ctx, handle.Path)
	if err != nil {
		return s.fail(fw, now(), err)
	}
	if patchText == "" {
		return s.fail(fw, now(), types.ErrPatchExtractFailed)
	}

	// Step 8: apply & commit, under the session's critical section.
	sha, err := s.applyAndCommit(ctx, fw, patchText, now)
	if err != nil {
		return s.fail(fw, now(), err)
	}

	events.CommitCreated(s.deps.Reporter, now(), fw.Path, sha, "")
	fw.Status = types.FileStatusCompleted
	events.FileCompleted(s.deps.Reporter, now(), fw.Path, len(fw.FindingsFixed))
	return s.result(fw, true, len(fw.FindingsFixed), nil)
}

// applyAndCommit applies, stages, and commits under the shared lock: apply
// the patch to the main tree, stage the file, and commit it with a
// conventional-commits message.
func (s *SubWorkflow) applyAndCommit(ctx context.Context, fw *types.FileWork, patchText string, now func() time.Time) (string, error) {
	s.deps.ApplyLock.Lock()
	defer s.deps.ApplyLock.Unlock()

	if err := s.deps.Patch.Apply(ctx, s.deps.RepoRoot, patchText); err != nil {
		events.PatchFailed(s.deps.Reporter, now(), fw.Path, err.Error())
		return "", err
	}

	codes := make([]string, 0, len(fw.FindingsFixed))
	seen := make(map[string]bool)
	for _, f := range fw.FindingsFixed {
		if !seen[f.Code] {
			seen[f.Code] = true
			codes = append(codes, f.Code)
		}
	}
	message := patch.BuildCommitMessage(fw.Path, codes, "stomper", ToolVersion)

	sha, err := s.deps.Patch.Commit(ctx, s.deps.RepoRoot, []string{fw.Path}, message, patch.CommitOptions{})
	if err != nil {
		return "", err
	}
	events.PatchApplied(s.deps.Reporter, now(), fw.Path, sha)
	return sha, nil
}

// selectStrategy picks the prompting strategy for an attempt: Adapt on
// the first try, then Fallback over the rungs not yet tried this file
// (preferring one that has succeeded for this pattern before). If the
// fallback ladder is exhausted, it reverts to Adapt rather than
// repeating an already-failed rung.
func (s *SubWorkflow) selectStrategy(tool, code string, retryCount int, failed []types.Strategy) types.AdaptiveStrategy {
	if len(failed) == 0 {
		return s.deps.Learning.Adapt(tool, code, retryCount)
	}
	if next, ok := s.deps.Learning.Fallback(tool, code, failed); ok {
		return types.AdaptiveStrategy{Verbosity: next}
	}
	return s.deps.Learning.Adapt(tool, code, retryCount)
}

// retryOrFail applies step 5's retry policy for a step-3/4/6 failure:
// true means the caller should loop back to step 2 (Retrying); false
// means attempts are exhausted and the caller should fail.
func (s *SubWorkflow) retryOrFail(fw *types.FileWork, now time.Time, cause error) bool {
	if fw.Attempts < fw.MaxAttempts {
		fw.Status = types.FileStatusRetrying
		events.FileRetrying(s.deps.Reporter, now, fw.Path, cause.Error())
		return true
	}
	fw.Fail(cause)
	return false
}

func (s *SubWorkflow) fail(fw *types.FileWork, now time.Time, cause error) types.Result {
	fw.Fail(cause)
	events.FileFailed(s.deps.Reporter, now, fw.Path, cause)
	return s.result(fw, false, 0, cause)
}

func (s *SubWorkflow) result(fw *types.FileWork, ok bool, fixed int, cause error) types.Result {
	if !ok && fw.Status != types.FileStatusFailed {
		fw.Fail(cause)
	}
	return types.Result{Path: fw.Path, Successful: ok, ErrorsFixed: fixed, Cause: cause}
}

// warn reports a recovered-locally error (SandboxDestroyFailed,
// LearningStoreWriteFailed) without affecting the file's outcome.
func (s *SubWorkflow) warn(now time.Time, path string, cause error) {
	events.RecoveredError(s.deps.Reporter, now, path, cause)
}

// recordAll records outcome for every attempted pattern unconditionally
// (used when the whole attempt failed before verification could narrow
// down which codes were actually addressed).
func (s *SubWorkflow) recordAll(fw *types.FileWork, attempted []pattern, strategy types.Strategy, outcome types.Outcome, now time.Time) {
	for _, p := range attempted {
		s.recordOne(fw, p, strategy, outcome, now)
	}
}

// recordOutcomes implements step 10: success for every attempted
// pattern no longer present among fw.Findings (it was fixed this
// round), failure for the rest.
func (s *SubWorkflow) recordOutcomes(fw *types.FileWork, attempted []pattern, strategy types.Strategy, now time.Time) {
	remaining := make(map[pattern]bool, len(fw.Findings))
	for _, f := range fw.Findings {
		remaining[pattern{f.Tool, f.Code}] = true
	}
	for _, p := range attempted {
		outcome := types.OutcomeSuccess
		if remaining[p] {
			outcome = types.OutcomeFailure
		}
		s.recordOne(fw, p, strategy, outcome, now)
	}
}

func (s *SubWorkflow) recordOne(fw *types.FileWork, p pattern, strategy types.Strategy, outcome types.Outcome, now time.Time) {
	if err := s.deps.Learning.Record(p.Tool, p.Code, outcome, strategy, fw.Path, now); err != nil {
		s.warn(now, fw.Path, fmt.Errorf("%w: %v", types.ErrLearningStoreWriteFailed, err))
	}
	events.LearningRecorded(s.deps.Reporter, now, p.Tool+":"+p.Code, string(outcome))
}

// runTools re-runs every configured tool against the sandbox, scoped to
// files, and flattens their findings into one slice.
func (s *SubWorkflow) runTools(ctx context.Context, sandboxPath string, files []string) ([]types.Finding, error) {
	var all []types.Finding
	for _, adapter := range s.deps.Tools {
		findings, err := adapter.Run(ctx, sandboxPath, files)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrToolInvocationFailed, adapter.Name(), err)
		}
		all = append(all, findings...)
	}
	return all, nil
}

// distinctPatterns returns the unique (tool, code) pairs among
// findings, in deterministic order.
func distinctPatterns(findings []types.Finding) []pattern {
	seen := make(map[pattern]bool)
	var out []pattern
	for _, f := range findings {
		p := pattern{f.Tool, f.Code}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tool != out[j].Tool {
			return out[i].Tool < out[j].Tool
		}
		return out[i].Code < out[j].Code
	})
	return out
}
