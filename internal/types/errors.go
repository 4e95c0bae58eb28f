package types

import (
	"errors"
	"fmt"
)

// The closed error taxonomy. Every failure surfaced by the
// core wraps one of these sentinels so callers can branch with
// errors.Is regardless of which backend or tool produced it.
var (
	ErrToolNotAvailable         = errors.New("tool not available")
	ErrToolInvocationFailed     = errors.New("tool invocation failed")
	ErrParseFailed              = errors.New("tool output parse failed")
	ErrSandboxCreateFailed      = errors.New("sandbox create failed")
	ErrSandboxDestroyFailed     = errors.New("sandbox destroy failed")
	ErrPatchExtractFailed       = errors.New("patch extract failed")
	ErrPatchApplyFailed         = errors.New("patch apply failed")
	ErrCommitFailed             = errors.New("commit failed")
	ErrAssistantUnavailable     = errors.New("assistant unavailable")
	ErrAssistantTimeout         = errors.New("assistant timed out")
	ErrAssistantFailed          = errors.New("assistant invocation failed")
	ErrAssistantProducedNoChange = errors.New("assistant produced no change")
	ErrLearningStoreWriteFailed = errors.New("learning store write failed")
)

// FileSubWorkflowError wraps the error that ended one file's sub-workflow,
// keeping the file path alongside the originating cause so the session
// orchestrator can aggregate failures without losing attribution.
type FileSubWorkflowError struct {
	Path  string
	Cause error
}

func (e *FileSubWorkflowError) Error() string {
	return fmt.Sprintf("file sub-workflow failed for %s: %v", e.Path, e.Cause)
}

func (e *FileSubWorkflowError) Unwrap() error {
	return e.Cause
}

// NewFileSubWorkflowError wraps cause with the path that failed.
func NewFileSubWorkflowError(path string, cause error) *FileSubWorkflowError {
	return &FileSubWorkflowError{Path: path, Cause: cause}
}

// ConflictDetail is diagnostic output from a dry-run patch-apply check,
// formatted into the ErrPatchApplyFailed error so a file's failure cause
// names what did not apply.
type ConflictDetail struct {
	File   string
	Reason string
}
