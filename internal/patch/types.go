// Package patch implements the patch broker: the sole
// gateway for VCS mutations of the main working tree during a
// session. Every apply+commit pair is expected to run inside the
// caller's critical section — the broker itself holds no lock.
package patch

// CommitOptions configures a Broker.Commit call.
type CommitOptions struct {
	// Author sets the commit's author via --author (git config used if
	// empty); the committer identity always comes from git config.
	Author string
	// CoAuthors appends Co-Authored-By trailers, letting a deployment
	// attribute commits to the assistant distinctly from host VCS
	// identity.
	CoAuthors []string
	// AllowEmpty permits a commit with no staged changes.
	AllowEmpty bool
}
