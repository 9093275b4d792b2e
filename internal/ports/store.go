// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-pairank/internal/domain"
)

// ComparisonStore persists candidate ratings and the pairwise comparisons
// that produce them. Every unordered pair is recorded at most once.
// Implementations must serialize Record calls so that concurrent evaluation
// rounds never interleave a refit.
type ComparisonStore interface {
	// GetOrCreateScore returns the candidate's current score, creating its
	// rating row at the estimator's initial value if needed.
	GetOrCreateScore(ctx context.Context, id string) (float64, error)

	// Stats returns the full rating row. It fails with
	// domain.ErrCandidateNotFound when the candidate was never seen.
	Stats(ctx context.Context, id string) (domain.CandidateRating, error)

	// Record stores the outcome of comparing a against b and returns both
	// candidates' scores after the rating update.
	// Recording a pair that already exists, in either order, is a no-op
	// that returns the stored after-scores oriented to (a, b).
	Record(ctx context.Context, a, b string, winner domain.Winner, reasoning string) (scoreA, scoreB float64, err error)

	// Exists reports whether the unordered pair has been recorded.
	Exists(ctx context.Context, a, b string) (bool, error)

	// Comparison returns the stored record for the pair, oriented to (a, b).
	Comparison(ctx context.Context, a, b string) (domain.Comparison, bool, error)

	// History returns every comparison involving id, newest first.
	History(ctx context.Context, id string) ([]domain.Comparison, error)

	// Rankings returns candidates ordered by score descending with ties
	// broken by candidate id. Under BT-MM, candidates with no comparisons
	// keep the initial score of 1 outside the fitted scale, so the listed
	// scores need not sum to 1000.
	Rankings(ctx context.Context, q domain.RankingQuery) ([]domain.RankedCandidate, error)

	// RandomSample draws up to n candidate ids uniformly without
	// replacement, skipping the excluded ids.
	RandomSample(ctx context.Context, n int, exclude []string) ([]string, error)

	// Candidates lists every known candidate id in sorted order.
	Candidates(ctx context.Context) ([]string, error)

	// Comparisons lists every recorded comparison in insertion order.
	Comparisons(ctx context.Context) ([]domain.Comparison, error)

	// Export captures the full store state. Scores follow Rankings,
	// unplayed candidates included at their initial score.
	Export(ctx context.Context) (domain.Snapshot, error)
}
