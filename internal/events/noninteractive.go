package events

import (
	"fmt"
	"io"
	"sync"
)

// PlainReporter writes one line per event with no color codes or
// spinner, for CI logs and pipes; the CLI picks it when stdout is not a
// terminal or non_interactive is set.
type PlainReporter struct {
	out io.Writer
	mu  sync.Mutex
}

// NewPlainReporter builds a PlainReporter writing to out.
func NewPlainReporter(out io.Writer) *PlainReporter {
	return &PlainReporter{out: out}
}

// Report implements Reporter.
func (r *PlainReporter) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Subject == "" {
		fmt.Fprintf(r.out, "[%s] %s\n", e.Severity, e.Message)
		return
	}
	fmt.Fprintf(r.out, "[%s] %s: %s\n", e.Severity, e.Subject, e.Message)
}

// RecordingReporter accumulates every event it receives, for tests that
// assert on what was reported without parsing console output.
type RecordingReporter struct {
	mu     sync.Mutex
	Events []Event
}

// NewRecordingReporter returns an empty RecordingReporter.
func NewRecordingReporter() *RecordingReporter {
	return &RecordingReporter{}
}

// Report implements Reporter.
func (r *RecordingReporter) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

// OfType returns every recorded event with the given Type, in order.
func (r *RecordingReporter) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
