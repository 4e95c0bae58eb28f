package events

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

// ConsoleReporter renders events as colored, human-readable lines to an
// io.Writer, with a spinner shown for the currently-active subject
// between file-scoped start/terminal events. Safe for concurrent use.
type ConsoleReporter struct {
	out  io.Writer
	mu   sync.Mutex
	spin *spinner.Spinner

	activeSubjects map[string]bool

	infoPrefix  func(a ...interface{}) string
	warnPrefix  func(a ...interface{}) string
	errorPrefix func(a ...interface{}) string
	subjectFmt  func(a ...interface{}) string
}

var summaryStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

// NewConsoleReporter builds a reporter that writes to out and, when spin
// is true, animates a spinner while files are in flight.
func NewConsoleReporter(out io.Writer, spin bool) *ConsoleReporter {
	r := &ConsoleReporter{
		out:            out,
		activeSubjects: make(map[string]bool),
		infoPrefix:     color.New(color.FgCyan).SprintFunc(),
		warnPrefix:     color.New(color.FgYellow, color.Bold).SprintFunc(),
		errorPrefix:    color.New(color.FgRed, color.Bold).SprintFunc(),
		subjectFmt:     color.New(color.FgHiBlack).SprintFunc(),
	}
	if spin {
		s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
		s.Writer = out
		r.spin = s
	}
	return r
}

// Report implements Reporter.
func (r *ConsoleReporter) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type {
	case TypeFileStarted:
		r.activeSubjects[e.Subject] = true
		r.updateSpinner()
	case TypeFileCompleted, TypeFileFailed, TypeFileSkipped:
		delete(r.activeSubjects, e.Subject)
		r.updateSpinner()
	}

	line := r.formatLine(e)
	r.withSpinnerPaused(func() {
		fmt.Fprintln(r.out, line)
	})

	if e.Type == TypeSessionCompleted {
		r.withSpinnerPaused(func() {
			fmt.Fprintln(r.out, summaryStyle.Render(e.Message))
		})
	}
}

func (r *ConsoleReporter) formatLine(e Event) string {
	var prefix string
	switch e.Severity {
	case SeverityError:
		prefix = r.errorPrefix("ERROR")
	case SeverityWarning:
		prefix = r.warnPrefix("WARN")
	default:
		prefix = r.infoPrefix("INFO")
	}
	if e.Subject == "" {
		return fmt.Sprintf("%s %s", prefix, e.Message)
	}
	return fmt.Sprintf("%s %s %s", prefix, r.subjectFmt(e.Subject), e.Message)
}

func (r *ConsoleReporter) updateSpinner() {
	if r.spin == nil {
		return
	}
	if len(r.activeSubjects) == 0 {
		if r.spin.Active() {
			r.spin.Stop()
		}
		return
	}
	r.spin.Suffix = fmt.Sprintf(" processing %d file(s)", len(r.activeSubjects))
	if !r.spin.Active() {
		r.spin.Start()
	}
}

func (r *ConsoleReporter) withSpinnerPaused(fn func()) {
	if r.spin != nil && r.spin.Active() {
		r.spin.Stop()
		fn()
		if len(r.activeSubjects) > 0 {
			r.spin.Start()
		}
		return
	}
	fn()
}
