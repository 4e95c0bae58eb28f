package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nlabs/stomper/internal/types"
)

// buildPrompt assembles the instructions handed to the assistant for one
// invocation attempt: the remaining findings for the
// file, rendered at a verbosity the mapper recommends. The file's own
// content is not embedded here — backends either operate directly on
// the sandbox checkout or load the content themselves.
func buildPrompt(fw *types.FileWork, strategy types.AdaptiveStrategy) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Fix the following static-analysis findings in %s.\n\n", fw.Path)
	for _, f := range sortedFindings(fw.Findings) {
		fmt.Fprintf(&b, "- [%s:%s] line %d: %s\n", f.Tool, f.Code, f.Line, f.Message)
	}

	switch strategy.Verbosity {
	case types.StrategyMinimal:
		b.WriteString("\nMake the smallest change that resolves each finding.\n")
	case types.StrategyNormal:
		b.WriteString("\nResolve each finding without changing unrelated behavior.\n")
	case types.StrategyDetailed:
		b.WriteString("\nThese findings have resisted earlier attempts. Resolve each one directly at its reported location; avoid superficial suppressions (e.g. blanket nolint comments).\n")
	case types.StrategyVerbose:
		b.WriteString("\nPrevious attempts on this file failed. Work through each finding individually: read the surrounding function, understand why the rule fires, and make a real structural fix rather than a local workaround.\n")
	}

	if strategy.IncludeHistory {
		fmt.Fprintf(&b, "\nThis file is on attempt %d of %d.\n", fw.Attempts, fw.MaxAttempts)
	}
	if strategy.IncludeExamples && strategy.SuggestedApproach != "" {
		fmt.Fprintf(&b, "\nA prior fix for this kind of finding succeeded using: %s\n", strategy.SuggestedApproach)
	}

	b.WriteString("\nRewrite the file in place with your fix.\n")
	return b.String()
}

// sortedFindings returns findings ordered by line then code, so the
// rendered prompt (and therefore the strategy's determinism) doesn't
// depend on tool-report iteration order.
func sortedFindings(findings []types.Finding) []types.Finding {
	out := make([]types.Finding, len(findings))
	copy(out, findings)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Code < out[j].Code
	})
	return out
}
