package application

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ahrav/go-pairank/infrastructure/scm"
	"github.com/ahrav/go-pairank/internal/ports"
)

// DefaultMaxDiffChars bounds the diff text handed to the judge.
const DefaultMaxDiffChars = 200_000

var numbers = message.NewPrinter(language.English)

// TruncateDiff shortens diff to at most maxChars characters by keeping its
// head and tail and inserting a marker that reports how much was removed.
// A non-positive maxChars means DefaultMaxDiffChars.
func TruncateDiff(diff string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxDiffChars
	}
	n := utf8.RuneCountInString(diff)
	if n <= maxChars {
		return diff
	}

	runes := []rune(diff)
	keep := maxChars / 2
	removed := n - maxChars
	marker := fmt.Sprintf("\n\n... [TRUNCATED %s characters / %dKB for brevity] ...\n\n",
		numbers.Sprintf("%d", removed), removed/1024)
	return string(runes[:keep]) + marker + string(runes[n-keep:])
}

// GitPayloadSource serves each candidate's diff against the default branch.
// Candidate id maps to branch BranchPrefix+id.
type GitPayloadSource struct {
	repo          ports.SourceControl
	branchPrefix  string
	defaultBranch string
	maxChars      int
}

var _ ports.PayloadSource = (*GitPayloadSource)(nil)

// NewGitPayloadSource returns a payload source over repo. Empty settings
// fall back to the package defaults.
func NewGitPayloadSource(repo ports.SourceControl, cfg GitConfig, maxChars int) *GitPayloadSource {
	s := &GitPayloadSource{
		repo:          repo,
		branchPrefix:  cfg.BranchPrefix,
		defaultBranch: cfg.DefaultBranch,
		maxChars:      maxChars,
	}
	if s.defaultBranch == "" {
		s.defaultBranch = DefaultBranch
	}
	if s.maxChars <= 0 {
		s.maxChars = DefaultMaxDiffChars
	}
	return s
}

// Branch returns the branch holding the candidate's work.
func (s *GitPayloadSource) Branch(candidateID string) string { return s.branchPrefix + candidateID }

// Available reports whether the candidate's branch exists.
func (s *GitPayloadSource) Available(ctx context.Context, candidateID string) (bool, error) {
	return s.repo.BranchExists(ctx, s.Branch(candidateID))
}

// Payload implements ports.PayloadSource. Stats describe the full diff even
// when the text is truncated.
func (s *GitPayloadSource) Payload(ctx context.Context, candidateID string) (ports.Payload, error) {
	branch := s.Branch(candidateID)
	ok, err := s.repo.BranchExists(ctx, branch)
	if err != nil {
		return ports.Payload{}, fmt.Errorf("payload %s: %w", candidateID, err)
	}
	if !ok {
		return ports.Payload{}, fmt.Errorf("%w: branch %s does not exist", ports.ErrPayloadUnavailable, branch)
	}

	diff, err := s.repo.Diff(ctx, s.defaultBranch, branch)
	if err != nil {
		return ports.Payload{}, fmt.Errorf("payload %s: %w", candidateID, err)
	}

	text := TruncateDiff(diff, s.maxChars)
	if len(text) != len(diff) {
		clog.FromContext(ctx).With("branch", branch).With("original_kb", len(diff)/1024).
			With("truncated_kb", len(text)/1024).Debug("Truncated diff")
	}
	return ports.Payload{
		CandidateID: candidateID,
		Ref:         branch,
		Text:        text,
		Stats:       scm.ParseDiffStats(diff),
	}, nil
}

// payloadPair holds the payloads of both sides of a comparison.
type payloadPair struct {
	a, b               ports.Payload
	missingA, missingB bool
}

// loadPair fetches both payloads concurrently. Unavailable payloads are
// flagged; any other failure is returned.
func loadPair(ctx context.Context, src ports.PayloadSource, a, b string) (payloadPair, error) {
	var pair payloadPair
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(id string, dst *ports.Payload, missing *bool) func() error {
		return func() error {
			p, err := src.Payload(gctx, id)
			switch {
			case errors.Is(err, ports.ErrPayloadUnavailable):
				*missing = true
				return nil
			case err != nil:
				return fmt.Errorf("payload %s: %w", id, err)
			}
			*dst = p
			return nil
		}
	}
	g.Go(fetch(a, &pair.a, &pair.missingA))
	g.Go(fetch(b, &pair.b, &pair.missingB))
	if err := g.Wait(); err != nil {
		return payloadPair{}, err
	}
	return pair, nil
}

// available reports whether src has a payload for id without loading it
// when the source can tell cheaply.
func available(ctx context.Context, src ports.PayloadSource, id string) (bool, error) {
	if c, ok := src.(interface {
		Available(context.Context, string) (bool, error)
	}); ok {
		return c.Available(ctx, id)
	}
	_, err := src.Payload(ctx, id)
	switch {
	case errors.Is(err, ports.ErrPayloadUnavailable):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
