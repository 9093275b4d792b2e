// Package selection chooses which existing candidates a candidate should be
// compared against within a fixed per-round budget.
//
// Selection runs in two phases. Phase one mixes uniformly random opponents
// with representatives spread across the current ranking, which places a
// new candidate on the scale in few comparisons. Phase two runs after those
// outcomes are recorded and picks the candidates whose updated scores are
// closest, sharpening the local order.
package selection

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

// Default phase-one shares.
const (
	DefaultRandomFraction   = 0.3
	DefaultQuartileFraction = 0.4
	DefaultMaxQuartile      = 4
)

// Plan is the phase-one selection for one round.
type Plan struct {
	CandidateID string
	Budget      int
	// Random holds the exploration picks.
	Random []string
	// Quartile holds the ranking representatives, strongest first.
	Quartile []string
	// Phase1 is Random followed by Quartile without duplicates.
	Phase1 []string
	// Refinement is the budget left for Refine.
	Refinement int
}

// Selector picks opponents from a comparison store.
type Selector struct {
	store            ports.ComparisonStore
	randomFraction   float64
	quartileFraction float64
	maxQuartile      int
}

// Option configures a Selector.
type Option func(*Selector)

// WithFractions overrides the phase-one shares of the budget and the cap on
// ranking representatives.
func WithFractions(random, quartile float64, maxQuartile int) Option {
	return func(s *Selector) {
		s.randomFraction = random
		s.quartileFraction = quartile
		s.maxQuartile = maxQuartile
	}
}

// New returns a Selector backed by store.
func New(store ports.ComparisonStore, opts ...Option) (*Selector, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: selector requires a store", domain.ErrInvalidConfiguration)
	}
	s := &Selector{
		store:            store,
		randomFraction:   DefaultRandomFraction,
		quartileFraction: DefaultQuartileFraction,
		maxQuartile:      DefaultMaxQuartile,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.randomFraction < 0 || s.quartileFraction < 0 || s.maxQuartile < 1 {
		return nil, fmt.Errorf("%w: invalid selection fractions (random=%v, quartile=%v, max_quartile=%d)",
			domain.ErrInvalidConfiguration, s.randomFraction, s.quartileFraction, s.maxQuartile)
	}
	return s, nil
}

// Shares returns the random and quartile counts for a budget of n.
// Each share is at least one, the quartile share is capped, and together
// they never exceed n.
func (s *Selector) Shares(n int) (random, quartile int) {
	if n <= 0 {
		return 0, 0
	}
	random = max(1, int(math.Floor(s.randomFraction*float64(n))))
	quartile = min(s.maxQuartile, max(1, int(math.Floor(s.quartileFraction*float64(n)))))
	random = min(random, n)
	quartile = min(quartile, n-random)
	return random, quartile
}

// partners returns the ids already compared against id.
func (s *Selector) partners(ctx context.Context, id string) (map[string]struct{}, error) {
	hist, err := s.store.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", id, err)
	}
	out := make(map[string]struct{}, len(hist))
	for _, c := range hist {
		out[c.Opponent(id)] = struct{}{}
	}
	return out, nil
}

// Plan builds the phase-one selection for id with a budget of n.
func (s *Selector) Plan(ctx context.Context, id string, n int) (Plan, error) {
	plan := Plan{CandidateID: id, Budget: max(n, 0)}
	if n <= 0 {
		return plan, nil
	}

	skip, err := s.partners(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	skip[id] = struct{}{}

	nRandom, nQuartile := s.Shares(n)

	exclude := make([]string, 0, len(skip))
	for k := range skip {
		exclude = append(exclude, k)
	}
	sort.Strings(exclude)

	random, err := s.store.RandomSample(ctx, nRandom, exclude)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to sample opponents for %s: %w", id, err)
	}
	for _, r := range random {
		if _, dup := skip[r]; dup {
			continue
		}
		skip[r] = struct{}{}
		plan.Random = append(plan.Random, r)
	}

	ranked, err := s.store.Rankings(ctx, domain.RankingQuery{})
	if err != nil {
		return Plan{}, fmt.Errorf("failed to load rankings: %w", err)
	}
	pool := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if _, ok := skip[r.CandidateID]; !ok {
			pool = append(pool, r.CandidateID)
		}
	}
	plan.Quartile = spread(pool, nQuartile)

	plan.Phase1 = append(append([]string(nil), plan.Random...), plan.Quartile...)
	plan.Refinement = max(0, n-len(plan.Phase1))
	return plan, nil
}

// spread picks k entries at evenly spaced positions of pool, from the first
// to the last. A single pick is the median.
func spread(pool []string, k int) []string {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if k >= len(pool) {
		return append([]string(nil), pool...)
	}
	if k == 1 {
		return []string{pool[(len(pool)-1)/2]}
	}

	out := make([]string, 0, k)
	last := -1
	for i := 0; i < k; i++ {
		pos := int(math.Round(float64(i) * float64(len(pool)-1) / float64(k-1)))
		if pos <= last {
			pos = last + 1
		}
		out = append(out, pool[pos])
		last = pos
	}
	return out
}

type neighbor struct {
	id       string
	distance float64
}

// Refine returns up to k candidates whose current score is closest to id's.
// Ties are broken by id. Candidates already compared against id, id itself
// and anything in exclude are skipped.
func (s *Selector) Refine(ctx context.Context, id string, k int, exclude ...string) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}

	score, err := s.store.GetOrCreateScore(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load score of %s: %w", id, err)
	}
	skip, err := s.partners(ctx, id)
	if err != nil {
		return nil, err
	}
	skip[id] = struct{}{}
	for _, e := range exclude {
		skip[e] = struct{}{}
	}

	ranked, err := s.store.Rankings(ctx, domain.RankingQuery{})
	if err != nil {
		return nil, fmt.Errorf("failed to load rankings: %w", err)
	}

	var near []neighbor
	for _, r := range ranked {
		if _, ok := skip[r.CandidateID]; ok {
			continue
		}
		near = append(near, neighbor{id: r.CandidateID, distance: math.Abs(r.Score - score)})
	}
	sort.Slice(near, func(i, j int) bool {
		if near[i].distance != near[j].distance {
			return near[i].distance < near[j].distance
		}
		return near[i].id < near[j].id
	})

	out := make([]string, 0, min(k, len(near)))
	for _, n := range near[:min(k, len(near))] {
		out = append(out, n.id)
	}
	return out, nil
}
