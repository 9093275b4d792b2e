package selection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-pairank/infrastructure/store"
	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/rating"
)

func newStore(t *testing.T, est rating.Estimator) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.MemoryPath, est, store.WithRand(rand.New(rand.NewPCG(3, 4))))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := s.GetOrCreateScore(context.Background(), id)
		require.NoError(t, err)
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	s := newStore(t, rating.NewBTMM(0, 0))
	_, err = New(s, WithFractions(-0.1, 0.4, 4))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = New(s, WithFractions(0.3, 0.4, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestShares(t *testing.T) {
	sel, err := New(newStore(t, rating.NewBTMM(0, 0)))
	require.NoError(t, err)

	tests := []struct {
		n            int
		wantRandom   int
		wantQuartile int
	}{
		{n: 0, wantRandom: 0, wantQuartile: 0},
		{n: 1, wantRandom: 1, wantQuartile: 0},
		{n: 2, wantRandom: 1, wantQuartile: 1},
		{n: 5, wantRandom: 1, wantQuartile: 2},
		{n: 10, wantRandom: 3, wantQuartile: 4},
		{n: 20, wantRandom: 6, wantQuartile: 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			r, q := sel.Shares(tt.n)
			assert.Equal(t, tt.wantRandom, r)
			assert.Equal(t, tt.wantQuartile, q)
			assert.LessOrEqual(t, r+q, max(tt.n, 0))
		})
	}
}

func TestSpread(t *testing.T) {
	pool := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7"}

	assert.Equal(t, []string{"c0", "c2", "c5", "c7"}, spread(pool, 4))
	assert.Equal(t, []string{"c3"}, spread(pool, 1), "single pick is the median")
	assert.Equal(t, []string{"c0", "c7"}, spread(pool, 2))
	assert.Equal(t, pool, spread(pool, 10))
	assert.Nil(t, spread(nil, 3))
	assert.Nil(t, spread(pool, 0))
}

func TestPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("empty pool", func(t *testing.T) {
		s := newStore(t, rating.NewBTMM(0, 0))
		seed(t, s, "new")
		sel, err := New(s)
		require.NoError(t, err)

		plan, err := sel.Plan(ctx, "new", 5)
		require.NoError(t, err)
		assert.Empty(t, plan.Phase1)
		assert.Equal(t, 5, plan.Refinement)
	})

	t.Run("zero budget", func(t *testing.T) {
		sel, err := New(newStore(t, rating.NewBTMM(0, 0)))
		require.NoError(t, err)

		plan, err := sel.Plan(ctx, "new", 0)
		require.NoError(t, err)
		assert.Empty(t, plan.Phase1)
		assert.Zero(t, plan.Refinement)
	})

	t.Run("excludes self and recorded partners", func(t *testing.T) {
		s := newStore(t, rating.NewBTMM(0, 0))
		seed(t, s, "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8")
		_, _, err := s.Record(ctx, "p1", "p2", domain.WinnerA, "")
		require.NoError(t, err)
		_, _, err = s.Record(ctx, "p3", "p1", domain.WinnerA, "")
		require.NoError(t, err)

		sel, err := New(s)
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			plan, err := sel.Plan(ctx, "p1", 10)
			require.NoError(t, err)

			assert.NotContains(t, plan.Phase1, "p1")
			assert.NotContains(t, plan.Phase1, "p2")
			assert.NotContains(t, plan.Phase1, "p3")
			assert.Len(t, plan.Random, 3)
			// Five candidates remain; three go to random picks and the rest
			// are ranking representatives.
			assert.Len(t, plan.Quartile, 2)
			assert.Equal(t, 10-len(plan.Phase1), plan.Refinement)

			seen := map[string]bool{}
			for _, id := range plan.Phase1 {
				assert.False(t, seen[id], "duplicate pick %s", id)
				seen[id] = true
			}
		}
	})

	t.Run("quartile picks span the ranking", func(t *testing.T) {
		s := newStore(t, rating.NewELO(0, 0))
		// top beats everyone, bottom loses to everyone.
		for _, id := range []string{"m1", "m2", "m3", "m4"} {
			_, _, err := s.Record(ctx, "top", id, domain.WinnerA, "")
			require.NoError(t, err)
			_, _, err = s.Record(ctx, "bottom", id, domain.WinnerB, "")
			require.NoError(t, err)
		}
		seed(t, s, "new")

		sel, err := New(s, WithFractions(0, 1, 2))
		require.NoError(t, err)

		plan, err := sel.Plan(ctx, "new", 3)
		require.NoError(t, err)
		// With no random share configured, one random pick is still made.
		require.Len(t, plan.Random, 1)
		require.Len(t, plan.Quartile, 2)

		if plan.Random[0] != "top" {
			assert.Equal(t, "top", plan.Quartile[0])
		}
		if plan.Random[0] != "bottom" {
			assert.Equal(t, "bottom", plan.Quartile[1])
		}
	})
}

func TestRefine(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, rating.NewELO(0, 0))

	// x 1516, y 1484, z and new stay at 1500.
	_, _, err := s.Record(ctx, "x", "y", domain.WinnerA, "")
	require.NoError(t, err)
	seed(t, s, "z", "new")

	sel, err := New(s)
	require.NoError(t, err)

	got, err := sel.Refine(ctx, "new", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "x"}, got, "equal distances break ties by id")

	got, err = sel.Refine(ctx, "new", 5, "z")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	_, _, err = s.Record(ctx, "new", "z", domain.WinnerTie, "")
	require.NoError(t, err)
	got, err = sel.Refine(ctx, "new", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got, "recorded partners are skipped")

	got, err = sel.Refine(ctx, "new", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
