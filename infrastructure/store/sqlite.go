// Package store provides the SQLite-backed comparison store.
//
// The store keeps one rating row per candidate and at most one comparison
// row per unordered candidate pair. Every Record call runs the configured
// rating estimator inside the same transaction that inserts the comparison,
// so readers never observe a comparison without its rating update.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
	"github.com/ahrav/go-pairank/internal/rating"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const dsnParams = "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"

// Store implements ports.ComparisonStore on SQLite.
// It is safe for concurrent use; writers are serialized.
type Store struct {
	db        *sql.DB
	path      string
	estimator rating.Estimator

	// mu serializes Record so refits never interleave.
	mu sync.Mutex

	rngMu sync.Mutex
	rng   *rand.Rand

	now     func() time.Time
	metrics ports.MetricsCollector
}

var _ ports.ComparisonStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRand sets the random source used by RandomSample.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// WithMetrics sets the collector that receives store metrics.
func WithMetrics(m ports.MetricsCollector) Option {
	return func(s *Store) { s.metrics = m }
}

// Open opens or creates the database at path, applies migrations and pins
// the estimator's algorithm. Reopening a database with a different
// algorithm fails with domain.ErrAlgorithmMismatch.
func Open(ctx context.Context, path string, est rating.Estimator, opts ...Option) (*Store, error) {
	if est == nil {
		return nil, fmt.Errorf("%w: estimator is required", domain.ErrInvalidConfiguration)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: store path is required", domain.ErrInvalidConfiguration)
	}

	db, err := sql.Open("sqlite3", path+dsnParams)
	if err != nil {
		return nil, ports.NewStoreError("Open", path, err)
	}
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:        db,
		path:      path,
		estimator: est,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, ports.NewStoreError("Migrate", path, err)
	}
	if err := s.pinAlgorithm(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Estimator returns the rating strategy the store runs on Record.
func (s *Store) Estimator() rating.Estimator { return s.estimator }

func (s *Store) pinAlgorithm(ctx context.Context) error {
	want := string(s.estimator.Algorithm())

	var got string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'algorithm'`).Scan(&got)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES ('algorithm', ?)`, want)
		if err != nil {
			return ports.NewStoreError("Open", s.path, err)
		}
		return nil
	case err != nil:
		return ports.NewStoreError("Open", s.path, err)
	case got != want:
		return fmt.Errorf("%w: database uses %s, estimator is %s", domain.ErrAlgorithmMismatch, got, want)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ensureRating creates the rating row if needed and returns its score.
func (s *Store) ensureRating(ctx context.Context, q querier, id string) (float64, error) {
	ts := s.now().UnixNano()
	if _, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO ratings (candidate_id, score, created_at, updated_at)
		VALUES (?, ?, ?, ?)`, id, s.estimator.InitialScore(), ts, ts); err != nil {
		return 0, err
	}

	var score float64
	if err := q.QueryRowContext(ctx, `SELECT score FROM ratings WHERE candidate_id = ?`, id).Scan(&score); err != nil {
		return 0, err
	}
	return score, nil
}

// GetOrCreateScore implements ports.ComparisonStore.
func (s *Store) GetOrCreateScore(ctx context.Context, id string) (float64, error) {
	score, err := s.ensureRating(ctx, s.db, id)
	if err != nil {
		return 0, ports.NewStoreError("GetOrCreateScore", id, err)
	}
	return score, nil
}

const ratingColumns = `candidate_id, score, comparison_count, wins, losses, ties, created_at, updated_at`

func scanRating(sc interface{ Scan(...any) error }) (domain.CandidateRating, error) {
	var (
		r                domain.CandidateRating
		created, updated int64
	)
	if err := sc.Scan(&r.CandidateID, &r.Score, &r.ComparisonCount, &r.Wins, &r.Losses, &r.Ties, &created, &updated); err != nil {
		return domain.CandidateRating{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return r, nil
}

// Stats implements ports.ComparisonStore.
func (s *Store) Stats(ctx context.Context, id string) (domain.CandidateRating, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE candidate_id = ?`, id)
	r, err := scanRating(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CandidateRating{}, ports.NewStoreError("Stats", id, domain.ErrCandidateNotFound)
	}
	if err != nil {
		return domain.CandidateRating{}, ports.NewStoreError("Stats", id, err)
	}
	return r, nil
}

const comparisonColumns = `id, candidate_a, candidate_b, winner, score_a_before, score_b_before,
	score_a_after, score_b_after, reasoning, created_at`

func scanComparison(sc interface{ Scan(...any) error }) (int64, domain.Comparison, error) {
	var (
		id     int64
		c      domain.Comparison
		winner string
		ts     int64
	)
	if err := sc.Scan(&id, &c.CandidateA, &c.CandidateB, &winner, &c.ScoreABefore, &c.ScoreBBefore,
		&c.ScoreAAfter, &c.ScoreBAfter, &c.Reasoning, &ts); err != nil {
		return 0, domain.Comparison{}, err
	}
	c.Winner = domain.Winner(winner)
	c.Timestamp = time.Unix(0, ts).UTC()
	return id, c, nil
}

// lookup finds the stored record for the unordered pair in its stored order.
func lookup(ctx context.Context, q querier, a, b string) (int64, domain.Comparison, bool, error) {
	row := q.QueryRowContext(ctx, `SELECT `+comparisonColumns+` FROM comparisons
		WHERE (candidate_a = ? AND candidate_b = ?) OR (candidate_a = ? AND candidate_b = ?)`,
		a, b, b, a)
	id, c, err := scanComparison(row)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.Comparison{}, false, nil
	}
	if err != nil {
		return 0, domain.Comparison{}, false, err
	}
	return id, c, true, nil
}

func pairKey(a, b string) string { return a + ":" + b }

// Record implements ports.ComparisonStore.
func (s *Store) Record(
	ctx context.Context,
	a, b string,
	winner domain.Winner,
	reasoning string,
) (float64, float64, error) {
	if err := winner.Validate(); err != nil {
		return 0, 0, domain.NewComparisonError(a, b, "Record", err)
	}
	if a == b {
		return 0, 0, domain.NewComparisonError(a, b, "Record", domain.ErrSelfComparison)
	}

	start := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	scoreA, scoreB, created, err := s.record(ctx, a, b, winner, reasoning)
	if err != nil {
		return 0, 0, ports.NewStoreError("Record", pairKey(a, b), err)
	}

	if s.metrics != nil {
		outcome := "duplicate"
		if created {
			outcome = string(winner)
		}
		labels := map[string]string{"algorithm": string(s.estimator.Algorithm()), "outcome": outcome}
		s.metrics.RecordCounter("comparisons_recorded_total", 1, labels)
		s.metrics.RecordLatency("store_record", time.Since(start), map[string]string{"algorithm": labels["algorithm"]})
	}
	return scoreA, scoreB, nil
}

func (s *Store) record(
	ctx context.Context,
	a, b string,
	winner domain.Winner,
	reasoning string,
) (float64, float64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, false, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, existing, ok, err := lookup(ctx, tx, a, b); err != nil {
		return 0, 0, false, err
	} else if ok {
		c := existing.Oriented(a, b)
		return c.ScoreAAfter, c.ScoreBAfter, false, nil
	}

	beforeA, err := s.ensureRating(ctx, tx, a)
	if err != nil {
		return 0, 0, false, err
	}
	beforeB, err := s.ensureRating(ctx, tx, b)
	if err != nil {
		return 0, 0, false, err
	}

	ts := s.now().UnixNano()
	if err := bumpCounters(ctx, tx, a, winner, ts); err != nil {
		return 0, 0, false, err
	}
	if err := bumpCounters(ctx, tx, b, winner.Flip(), ts); err != nil {
		return 0, 0, false, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO comparisons (candidate_a, candidate_b, winner, score_a_before, score_b_before,
			score_a_after, score_b_after, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a, b, string(winner), beforeA, beforeB, beforeA, beforeB, reasoning, ts)
	if err != nil {
		return 0, 0, false, err
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, 0, false, err
	}

	var afterA, afterB float64
	switch est := s.estimator.(type) {
	case rating.BatchEstimator:
		afterA, afterB, err = s.refit(ctx, tx, est, a, b, ts)
	case rating.IncrementalEstimator:
		afterA, afterB = est.Update(beforeA, beforeB, winner)
		err = setScores(ctx, tx, map[string]float64{a: afterA, b: afterB}, ts)
	default:
		err = fmt.Errorf("%w: estimator %s is neither batch nor incremental",
			domain.ErrInvalidConfiguration, s.estimator.Algorithm())
	}
	if err != nil {
		return 0, 0, false, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE comparisons SET score_a_after = ?, score_b_after = ? WHERE id = ?`,
		afterA, afterB, rowID); err != nil {
		return 0, 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, false, err
	}
	return afterA, afterB, true, nil
}

func bumpCounters(ctx context.Context, tx *sql.Tx, id string, w domain.Winner, ts int64) error {
	var win, loss, tie int
	switch w {
	case domain.WinnerA:
		win = 1
	case domain.WinnerB:
		loss = 1
	default:
		tie = 1
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE ratings
		SET comparison_count = comparison_count + 1,
			wins = wins + ?, losses = losses + ?, ties = ties + ?, updated_at = ?
		WHERE candidate_id = ?`, win, loss, tie, ts, id)
	return err
}

func setScores(ctx context.Context, tx *sql.Tx, scores map[string]float64, ts int64) error {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE ratings SET score = ?, updated_at = ? WHERE candidate_id = ?`,
			scores[id], ts, id); err != nil {
			return err
		}
	}
	return nil
}

// refit runs the batch estimator over every stored outcome and writes the
// scores of all participating candidates.
func (s *Store) refit(
	ctx context.Context,
	tx *sql.Tx,
	est rating.BatchEstimator,
	a, b string,
	ts int64,
) (float64, float64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT candidate_a, candidate_b, winner FROM comparisons ORDER BY id`)
	if err != nil {
		return 0, 0, err
	}
	var outcomes []rating.Outcome
	for rows.Next() {
		var o rating.Outcome
		var w string
		if err := rows.Scan(&o.A, &o.B, &w); err != nil {
			rows.Close()
			return 0, 0, err
		}
		o.Winner = domain.Winner(w)
		outcomes = append(outcomes, o)
	}
	if err := rows.Close(); err != nil {
		return 0, 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	fit := est.Fit(outcomes)
	if s.metrics != nil {
		s.metrics.RecordHistogram("refit_iterations", float64(fit.Iterations),
			map[string]string{"converged": fmt.Sprint(fit.Converged)})
	}
	if err := setScores(ctx, tx, fit.Scores, ts); err != nil {
		return 0, 0, err
	}
	return fit.Scores[a], fit.Scores[b], nil
}

// Exists implements ports.ComparisonStore.
func (s *Store) Exists(ctx context.Context, a, b string) (bool, error) {
	_, _, ok, err := lookup(ctx, s.db, a, b)
	if err != nil {
		return false, ports.NewStoreError("Exists", pairKey(a, b), err)
	}
	return ok, nil
}

// Comparison implements ports.ComparisonStore.
func (s *Store) Comparison(ctx context.Context, a, b string) (domain.Comparison, bool, error) {
	_, c, ok, err := lookup(ctx, s.db, a, b)
	if err != nil {
		return domain.Comparison{}, false, ports.NewStoreError("Comparison", pairKey(a, b), err)
	}
	if !ok {
		return domain.Comparison{}, false, nil
	}
	return c.Oriented(a, b), true, nil
}

func (s *Store) queryComparisons(ctx context.Context, where, order string, args ...any) ([]domain.Comparison, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+comparisonColumns+` FROM comparisons `+where+` ORDER BY `+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Comparison
	for rows.Next() {
		_, c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// History implements ports.ComparisonStore.
func (s *Store) History(ctx context.Context, id string) ([]domain.Comparison, error) {
	out, err := s.queryComparisons(ctx,
		`WHERE candidate_a = ? OR candidate_b = ?`, `created_at DESC, id DESC`, id, id)
	if err != nil {
		return nil, ports.NewStoreError("History", id, err)
	}
	return out, nil
}

// Comparisons implements ports.ComparisonStore.
func (s *Store) Comparisons(ctx context.Context) ([]domain.Comparison, error) {
	out, err := s.queryComparisons(ctx, "", `id ASC`)
	if err != nil {
		return nil, ports.NewStoreError("Comparisons", "", err)
	}
	return out, nil
}

// Rankings implements ports.ComparisonStore. Only candidates that took
// part in a comparison are normalized to the 1000-point BT-MM scale;
// unplayed ones keep the initial score.
func (s *Store) Rankings(ctx context.Context, q domain.RankingQuery) ([]domain.RankedCandidate, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings
		WHERE comparison_count >= ?
		ORDER BY score DESC, candidate_id ASC`
	args := []any{q.MinComparisons}
	if q.TopN > 0 {
		query += ` LIMIT ?`
		args = append(args, q.TopN)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ports.NewStoreError("Rankings", "", err)
	}
	defer rows.Close()

	var out []domain.RankedCandidate
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, ports.NewStoreError("Rankings", "", err)
		}
		out = append(out, domain.RankedCandidate{Rank: len(out) + 1, CandidateRating: r})
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("Rankings", "", err)
	}
	return out, nil
}

// Candidates implements ports.ComparisonStore.
func (s *Store) Candidates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT candidate_id FROM ratings ORDER BY candidate_id`)
	if err != nil {
		return nil, ports.NewStoreError("Candidates", "", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ports.NewStoreError("Candidates", "", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ports.NewStoreError("Candidates", "", err)
	}
	return ids, nil
}

// RandomSample implements ports.ComparisonStore.
func (s *Store) RandomSample(ctx context.Context, n int, exclude []string) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.Candidates(ctx)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	pool := ids[:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			pool = append(pool, id)
		}
	}
	if n > len(pool) {
		n = len(pool)
	}

	// Partial Fisher-Yates over the sorted pool keeps draws reproducible
	// for a seeded source.
	s.rngMu.Lock()
	for i := 0; i < n; i++ {
		j := i + s.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	s.rngMu.Unlock()

	return append([]string(nil), pool[:n]...), nil
}

// Export implements ports.ComparisonStore.
func (s *Store) Export(ctx context.Context) (domain.Snapshot, error) {
	scores, err := s.Rankings(ctx, domain.RankingQuery{})
	if err != nil {
		return domain.Snapshot{}, err
	}
	comparisons, err := s.queryComparisons(ctx, "", `created_at DESC, id DESC`)
	if err != nil {
		return domain.Snapshot{}, ports.NewStoreError("Export", "", err)
	}

	params := s.estimator.Parameters()
	snap := domain.Snapshot{
		Metadata: domain.SnapshotMetadata{
			Algorithm:       string(s.estimator.Algorithm()),
			Tolerance:       params.Tolerance,
			MaxIterations:   params.MaxIterations,
			KFactor:         params.KFactor,
			InitialScore:    params.InitialScore,
			CandidateCount:  len(scores),
			ComparisonCount: len(comparisons),
			ExportTime:      s.now().UTC(),
		},
		Scores:      make([]domain.CandidateRating, 0, len(scores)),
		Comparisons: comparisons,
	}
	for _, r := range scores {
		snap.Scores = append(snap.Scores, r.CandidateRating)
	}
	if snap.Comparisons == nil {
		snap.Comparisons = []domain.Comparison{}
	}
	return snap, nil
}

// String describes the store for logs.
func (s *Store) String() string {
	return fmt.Sprintf("sqlite(%s, %s)", s.path, s.estimator.Algorithm())
}
