package patch

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/nlabs/stomper/internal/types"
)

// git apply --check reports failures as either:
//   error: patch failed: path/to/file.go:12
//   error: path/to/file.go: patch does not apply
var (
	patchFailedLine   = regexp.MustCompile(`^error: patch failed: (.+):(\d+)$`)
	patchNotApplyLine = regexp.MustCompile(`^error: (.+): patch does not apply$`)
)

// parseApplyCheckOutput turns git apply --check's stderr into per-file
// conflict diagnostics, so a failed apply's error names the files and
// lines that did not apply rather than a bare exit code.
func parseApplyCheckOutput(output []byte) []types.ConflictDetail {
	var details []types.ConflictDetail
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := patchFailedLine.FindStringSubmatch(line); m != nil {
			addDetail(&details, seen, m[1], "hunk failed to apply at line "+m[2])
			continue
		}
		if m := patchNotApplyLine.FindStringSubmatch(line); m != nil {
			addDetail(&details, seen, m[1], "patch does not apply")
			continue
		}
	}
	return details
}

func addDetail(details *[]types.ConflictDetail, seen map[string]bool, file, reason string) {
	key := file + "|" + reason
	if seen[key] {
		return
	}
	seen[key] = true
	*details = append(*details, types.ConflictDetail{File: file, Reason: reason})
}
