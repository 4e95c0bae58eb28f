// Package toolrunner implements the tool-invocation adapter:
// running a named analysis tool against a working directory and
// normalizing its report into a flat list of findings.
package toolrunner

import (
	"context"

	"github.com/nlabs/stomper/internal/types"
)

// Adapter runs one named analysis tool and returns normalized findings.
// Implementations must not modify project files; the tool's own config
// discovery (e.g. .golangci.yml) is its own responsibility.
type Adapter interface {
	// Name is the tool identifier used in config and Finding.Tool.
	Name() string
	// Run executes the tool against dir, optionally restricted to
	// files (a nil/empty slice means "whole tree"). An exit code
	// that carries parseable findings is success, not an error.
	Run(ctx context.Context, dir string, files []string) ([]types.Finding, error)
	// Available reports whether the tool's binary can be located.
	Available() bool
	// Dependencies names other registered tools that should run
	// before this one (empty for the adapters stomper ships with;
	// present for registry/topological-sort parity with a larger,
	// user-extensible tool set).
	Dependencies() []string
}
