// Package assistant implements the assistant invoker:
// given a target file already located inside a sandbox and a
// rendered prompt, causes the external assistant to rewrite that
// file in place.
package assistant

import (
	"context"
	"time"
)

// Request describes one invocation of the assistant backend.
type Request struct {
	// SandboxPath is the assistant's working directory.
	SandboxPath string
	// File is the repo-relative path (within SandboxPath) the
	// assistant is being asked to fix.
	File string
	// Prompt is the fully-rendered instruction text.
	Prompt string
	// Timeout bounds the call. Each backend enforces it, using 5
	// minutes when it is zero or negative.
	Timeout time.Duration
}

// Backend runs one assistant invocation. Implementations mutate File
// in place inside SandboxPath; they do not return file contents.
type Backend interface {
	Name() string
	Run(ctx context.Context, req Request) error
}
