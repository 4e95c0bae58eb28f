package types

import "fmt"

// FileStatus is the terminal/transient status of a FileWork unit.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusInProgress FileStatus = "in_progress"
	FileStatusRetrying   FileStatus = "retrying"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
	FileStatusSkipped    FileStatus = "skipped"
)

// FileWork is the per-file unit of processing. It is created by the
// session orchestrator after finding collection and mutated only by the
// sub-workflow that owns it; it is discarded at the end of the session.
type FileWork struct {
	Path               string
	OriginalFindings   []Finding
	FindingsFixed      []Finding
	Findings           []Finding // current/remaining findings, mutated by verify
	Attempts           int
	MaxAttempts        int
	Status             FileStatus
	LastError          string
}

// NewFileWork creates a FileWork for path with its original findings.
// Findings is initialized to the same set: verification narrows it down
// to what remains unresolved as attempts proceed.
func NewFileWork(path string, findings []Finding, maxAttempts int) *FileWork {
	orig := make([]Finding, len(findings))
	copy(orig, findings)
	cur := make([]Finding, len(findings))
	copy(cur, findings)
	return &FileWork{
		Path:             path,
		OriginalFindings: orig,
		Findings:         cur,
		MaxAttempts:      maxAttempts,
		Status:           FileStatusPending,
	}
}

// RetryCount is the zero-based retry index the mapper's adapt/fallback
// calls expect: the first invocation attempt is retry 0.
func (w *FileWork) RetryCount() int {
	if w.Attempts == 0 {
		return 0
	}
	return w.Attempts - 1
}

// ApplyVerification updates FindingsFixed and Findings from a fresh
// tool run's result set.
func (w *FileWork) ApplyVerification(rerun []Finding) {
	fixed, remaining := DiffFindings(w.Findings, rerun)
	w.FindingsFixed = append(w.FindingsFixed, fixed...)
	w.Findings = remaining
}

// IsResolved reports whether every original finding has been addressed.
func (w *FileWork) IsResolved() bool {
	return len(w.Findings) == 0
}

// Fail transitions the FileWork to Failed, recording the cause.
func (w *FileWork) Fail(cause error) {
	w.Status = FileStatusFailed
	if cause != nil {
		w.LastError = cause.Error()
	}
}

// Basename returns the file's base name (used in commit messages).
func (w *FileWork) Basename() string {
	return basename(w.Path)
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// Summary renders a one-line human summary for session reporting.
func (w *FileWork) Summary() string {
	switch w.Status {
	case FileStatusCompleted:
		return fmt.Sprintf("%s: fixed %d finding(s)", w.Path, len(w.FindingsFixed))
	case FileStatusFailed:
		return fmt.Sprintf("%s: failed (%s)", w.Path, w.LastError)
	default:
		return fmt.Sprintf("%s: %s", w.Path, w.Status)
	}
}
