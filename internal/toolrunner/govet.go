package toolrunner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/nlabs/stomper/internal/types"
)

// GoVet adapts `go vet` as the type-check tool-invocation adapter.
// go vet has no structured output mode; its diagnostics follow the
// standard Go tool line format `file:line:col: message`, which this
// adapter parses with a fixed regular expression.
type GoVet struct{}

// Name implements Adapter.
func (GoVet) Name() string { return "go-vet" }

// Dependencies implements Adapter.
func (GoVet) Dependencies() []string { return nil }

// Available implements Adapter.
func (GoVet) Available() bool {
	_, err := exec.LookPath("go")
	return err == nil
}

var vetLinePattern = regexp.MustCompile(`^(.+\.go):(\d+):(\d+): (.+)$`)

// Run implements Adapter.
func (g GoVet) Run(ctx context.Context, dir string, files []string) ([]types.Finding, error) {
	if !g.Available() {
		return nil, fmt.Errorf("%w: %s", types.ErrToolNotAvailable, g.Name())
	}

	target := "./..."
	args := append([]string{"vet"}, buildVetTargets(files, target)...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	findings, parseErr := parseVetOutput(stderr.Bytes())
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParseFailed, parseErr)
	}
	if runErr != nil && len(findings) == 0 {
		return nil, fmt.Errorf("%w: %v", types.ErrToolInvocationFailed, runErr)
	}
	return findings, nil
}

func buildVetTargets(files []string, fallback string) []string {
	if len(files) == 0 {
		return []string{fallback}
	}
	return files
}

func parseVetOutput(output []byte) ([]types.Finding, error) {
	var findings []types.Finding
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		m := vetLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		findings = append(findings, types.Finding{
			Tool:        "go-vet",
			Code:        "vet",
			Severity:    types.SeverityError,
			File:        m[1],
			Line:        lineNo,
			Column:      col,
			Message:     m[4],
			AutoFixable: false,
		})
	}
	return findings, scanner.Err()
}
