package toolrunner

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/nlabs/stomper/internal/types"
)

// GolangciLint adapts golangci-lint as a Tool-invocation adapter. It
// always requests JSON output so findings can be parsed without
// scraping human-readable text ("run the tool with
// structured output").
type GolangciLint struct {
	// BinaryPath overrides the binary looked up on PATH, for tests.
	BinaryPath string
}

// Name implements Adapter.
func (GolangciLint) Name() string { return "golangci-lint" }

// Dependencies implements Adapter.
func (GolangciLint) Dependencies() []string { return nil }

// Available implements Adapter.
func (g GolangciLint) Available() bool {
	_, err := exec.LookPath(g.binary())
	return err == nil
}

func (g GolangciLint) binary() string {
	if g.BinaryPath != "" {
		return g.BinaryPath
	}
	return "golangci-lint"
}

// Run implements Adapter.
func (g GolangciLint) Run(ctx context.Context, dir string, files []string) ([]types.Finding, error) {
	if !g.Available() {
		return nil, fmt.Errorf("%w: %s", types.ErrToolNotAvailable, g.Name())
	}

	args := []string{"run", "--output.json.path", "stdout", "--output.text.path", "", "--out-format", "json"}
	args = append(args, files...)
	cmd := exec.CommandContext(ctx, g.binary(), args...)
	cmd.Dir = dir

	// golangci-lint exits non-zero when it finds issues; that is
	// success-with-findings, not ToolInvocationFailed.
	output, runErr := cmd.Output()
	if len(output) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrToolInvocationFailed, runErr)
		}
		return nil, nil
	}

	if !gjson.ValidBytes(output) {
		return nil, fmt.Errorf("%w: golangci-lint output is not valid JSON", types.ErrParseFailed)
	}

	parsed := gjson.ParseBytes(output)
	issues := parsed.Get("Issues")
	if !issues.Exists() {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrToolInvocationFailed, runErr)
		}
		return nil, nil
	}

	var findings []types.Finding
	issues.ForEach(func(_, issue gjson.Result) bool {
		findings = append(findings, types.Finding{
			Tool:        g.Name(),
			Code:        issue.Get("FromLinter").String(),
			Severity:    mapSeverity(issue.Get("Severity").String()),
			File:        relativeTo(dir, issue.Get("Pos.Filename").String()),
			Line:        int(issue.Get("Pos.Line").Int()),
			Column:      int(issue.Get("Pos.Column").Int()),
			Message:     issue.Get("Text").String(),
			AutoFixable: issue.Get("Replacement").Exists(),
		})
		return true
	})
	return findings, nil
}

func mapSeverity(s string) types.Severity {
	switch s {
	case "error":
		return types.SeverityError
	case "warning":
		return types.SeverityWarning
	case "":
		return types.SeverityWarning // golangci-lint leaves Severity blank by default
	default:
		return types.SeverityInfo
	}
}

func relativeTo(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil && !filepath.IsAbs(rel) {
		return rel
	}
	return path
}
