package patch

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BuildCommitMessage renders the conventional-commits message for a
// file sub-workflow's commit:
//
//	fix(quality): resolve {N} issues in {basename}
//
//	- {code1}
//	- {code2}
//
//	Fixed by: {tool} v{version}
//
// The subject says "issue" instead of "issues" when exactly one code is
// given, and " v{version}" is left out when toolVersion is empty.
func BuildCommitMessage(path string, codes []string, tool, toolVersion string) string {
	basename := filepath.Base(path)

	var b strings.Builder
	fmt.Fprintf(&b, "fix(quality): resolve %d issue", len(codes))
	if len(codes) != 1 {
		b.WriteString("s")
	}
	fmt.Fprintf(&b, " in %s\n", basename)

	if len(codes) > 0 {
		b.WriteString("\n")
		for _, code := range codes {
			fmt.Fprintf(&b, "- %s\n", code)
		}
	}

	b.WriteString("\nFixed by: ")
	b.WriteString(tool)
	if toolVersion != "" {
		b.WriteString(" v")
		b.WriteString(toolVersion)
	}
	return strings.TrimRight(b.String(), "\n")
}
