package ports

import (
	"context"
	"time"
)

// DiffStats summarizes a unified diff.
type DiffStats struct {
	FilesChanged int `json:"files_changed"`
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
}

// Payload is the judgeable content of one candidate.
type Payload struct {
	CandidateID string
	// Ref names where the payload came from, such as a git branch.
	Ref   string
	Text  string
	Stats DiffStats
}

// PayloadSource produces the content the judge sees for a candidate.
// It returns an error wrapping ErrPayloadUnavailable when the candidate
// has no payload, so callers can skip it.
type PayloadSource interface {
	Payload(ctx context.Context, candidateID string) (Payload, error)
}

// SourceControl is the subset of version control the system drives.
type SourceControl interface {
	// BranchExists reports whether a local branch with this name exists.
	BranchExists(ctx context.Context, name string) (bool, error)

	// Diff returns the unified diff from base to branch.
	Diff(ctx context.Context, base, branch string) (string, error)

	// CreateBranch creates name from the tip of from. It returns false
	// without error when the branch already exists.
	CreateBranch(ctx context.Context, name, from string) (bool, error)

	// Checkout switches the working tree to name.
	Checkout(ctx context.Context, name string) error

	// CommitAll stages every change in the working tree and commits it.
	// It returns false when there was nothing to commit.
	CommitAll(ctx context.Context, message string) (bool, error)
}

// AgentResult reports what a coding agent did with a prompt.
type AgentResult struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	ExitCode      int           `json:"exit_code"`
	ChangesMade   bool          `json:"changes_made"`
}

// AgentRunner applies a prompt to the current working tree.
type AgentRunner interface {
	Execute(ctx context.Context, prompt string) (AgentResult, error)
}
