package types

import "time"

// SessionStatus is the terminal status of a session run.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// TestMode selects how the file sub-workflow validates a fix before it is
// applied to the main tree.
type TestMode string

const (
	TestModeFull  TestMode = "full"
	TestModeQuick TestMode = "quick"
	TestModeFinal TestMode = "final"
	TestModeNone  TestMode = "none"
)

// SessionConfig holds the configuration a session is started with. These
// map directly onto the `run` entry point's parameters.
type SessionConfig struct {
	RootDir            string
	EnabledTools       []string
	Strategy           string
	MaxErrorsPerIter   int
	MaxAttemptsPerFile int
	RunTests           bool
	TestMode           TestMode
	UseIsolation       bool
	MaxParallelFiles   int
	ContinueOnError    bool
	FileFilters        []string
	CoAuthors          []string
}

// SessionState is one run of the orchestrator.
type SessionState struct {
	ID               string
	Commit           string
	Files            []*FileWork
	Config           SessionConfig
	Successes        []string
	Failures         []string
	TotalFindingsFixed int
	Status           SessionStatus
	FinalError       string
	StartedAt        time.Time
	FinishedAt       time.Time
}

// NewSessionState creates a fresh session rooted at commit, with an id
// derived from the current time so ids are unique and sortable.
func NewSessionState(commit string, cfg SessionConfig, now time.Time) *SessionState {
	return &SessionState{
		ID:     SessionID(now),
		Commit: commit,
		Config: cfg,
		Status: SessionRunning,
		StartedAt: now,
	}
}

// SessionID formats a timestamped, unique session identifier.
func SessionID(t time.Time) string {
	return "session-" + t.UTC().Format("20060102T150405.000000000")
}

// Result is the record one sub-workflow hands back to the orchestrator
// for aggregation.
type Result struct {
	Path         string
	Successful   bool
	ErrorsFixed  int
	Cause        error
}
