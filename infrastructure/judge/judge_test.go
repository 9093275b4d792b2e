package judge

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
	"github.com/ahrav/go-pairank/internal/testutils"
)

// fixedSource makes every coin flip land the same way: 0 keeps the caller's
// order and 1 swaps it.
type fixedSource uint64

func (s fixedSource) Uint64() uint64 { return uint64(s) }

func seeded(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed+1)) }

func newJudge(t *testing.T, oracle ports.Oracle, opts ...Option) *Judge {
	t.Helper()
	j, err := New(oracle, opts...)
	require.NoError(t, err)
	return j
}

func TestNewRequiresOracle(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestCompareUnswapsWinner(t *testing.T) {
	tests := []struct {
		name        string
		flip        fixedSource
		presented   string
		wantWinner  domain.Winner
		wantSwapped bool
	}{
		{name: "kept order, first wins", flip: 0, presented: "first", wantWinner: domain.WinnerA},
		{name: "kept order, second wins", flip: 0, presented: "second", wantWinner: domain.WinnerB},
		{name: "swapped order, first wins", flip: 1, presented: "first", wantWinner: domain.WinnerB, wantSwapped: true},
		{name: "swapped order, second wins", flip: 1, presented: "second", wantWinner: domain.WinnerA, wantSwapped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := testutils.NewScriptedOracle(testutils.Reply{
				Text: "explanation: reasons\ncandidate: " + tt.presented + "\nconfidence: 0.8",
				Cost: 0.02,
			})
			j := newJudge(t, oracle, WithRand(rand.New(tt.flip)))

			res, err := j.CompareDetailed(context.Background(), Request{
				TaskSpec:   "sort numbers",
				CandidateA: "AAA payload",
				CandidateB: "BBB payload",
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantWinner, res.Winner)
			assert.Equal(t, tt.wantSwapped, res.Swapped)
			assert.Equal(t, domain.Position(tt.presented), res.Presented)
			assert.Equal(t, "reasons", res.Reasoning)
			assert.InDelta(t, 0.8, res.Confidence, 1e-9)
			assert.Equal(t, 1, res.Attempts)
			assert.False(t, res.Degraded)

			calls := oracle.Calls()
			require.Len(t, calls, 1)
			prompt := calls[0].Prompt
			firstIdx, secondIdx := strings.Index(prompt, "AAA payload"), strings.Index(prompt, "BBB payload")
			require.True(t, firstIdx >= 0 && secondIdx >= 0)
			assert.Equal(t, tt.wantSwapped, secondIdx < firstIdx, "B is shown first only when swapped")
			assert.Equal(t, DefaultSystemPrompt, calls[0].System)
		})
	}
}

func TestCompareOrientsCandidateContext(t *testing.T) {
	tests := []struct {
		name string
		flip fixedSource
		want []string
	}{
		{
			name: "kept order",
			flip: 0,
			want: []string{
				"# First candidate\n\nNEW-DIFF",
				"# branch_first\ncandidate_new",
				"# branch_second\ncandidate_old",
				"**lines_added_first**: 500",
				"**lines_added_second**: 3",
			},
		},
		{
			name: "swapped order",
			flip: 1,
			want: []string{
				"# First candidate\n\nOLD-DIFF",
				"# branch_first\ncandidate_old",
				"# branch_second\ncandidate_new",
				"**lines_added_first**: 3",
				"**lines_added_second**: 500",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := testutils.NewScriptedOracle(testutils.Reply{
				Text: "explanation: ok\ncandidate: first\nconfidence: 0.9",
			})
			j := newJudge(t, oracle, WithRand(rand.New(tt.flip)))

			_, err := j.CompareDetailed(context.Background(), Request{
				TaskSpec:   "speed up parsing",
				CandidateA: "NEW-DIFF",
				CandidateB: "OLD-DIFF",
				Context: map[string]any{
					"branch_a":      "candidate_new",
					"branch_b":      "candidate_old",
					"lines_added_a": 500,
					"lines_added_b": 3,
				},
			})
			require.NoError(t, err)

			calls := oracle.Calls()
			require.Len(t, calls, 1)
			prompt := calls[0].Prompt
			for _, w := range tt.want {
				assert.Contains(t, prompt, w)
			}
			assert.NotContains(t, prompt, "branch_a")
			assert.NotContains(t, prompt, "lines_added_b")
		})
	}
}

func TestPositionDebiasing(t *testing.T) {
	// With no oracle response both fillers tie on length, so the fallback
	// always prefers the first slot and only the coin decides the winner.
	j := newJudge(t, testutils.NewScriptedOracle(), WithRand(seeded(42)))

	const iterations = 200
	aWins := 0
	for i := 0; i < iterations; i++ {
		w, _, err := j.Compare(context.Background(), Request{
			TaskSpec:   "Test task",
			CandidateA: "candidate_a_text",
			CandidateB: "candidate_b_text",
		})
		require.NoError(t, err)
		if w == domain.WinnerA {
			aWins++
		}
	}

	rate := float64(aWins) / iterations
	assert.Greater(t, rate, 0.30)
	assert.Less(t, rate, 0.70)
}

func TestNeverReturnsTie(t *testing.T) {
	t.Run("identical payloads through fallback", func(t *testing.T) {
		j := newJudge(t, testutils.NewScriptedOracle(), WithRand(seeded(1)))
		for i := 0; i < 20; i++ {
			w, _, err := j.Compare(context.Background(), Request{CandidateA: "same", CandidateB: "same"})
			require.NoError(t, err)
			assert.Contains(t, []domain.Winner{domain.WinnerA, domain.WinnerB}, w)
		}
	})

	t.Run("oracle insists on a tie", func(t *testing.T) {
		tie := testutils.Reply{Text: "explanation: equal\ncandidate: tie\nconfidence: 0.5"}
		oracle := testutils.NewScriptedOracle()
		oracle.Default = tie
		j := newJudge(t, oracle, WithRand(seeded(2)))

		res, err := j.CompareDetailed(context.Background(), Request{CandidateA: "x", CandidateB: "y"})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Contains(t, []domain.Winner{domain.WinnerA, domain.WinnerB}, res.Winner)
	})
}

func TestParseRetries(t *testing.T) {
	oracle := testutils.NewScriptedOracle(
		testutils.Reply{Text: "I cannot decide.", Cost: 0.01},
		testutils.Reply{Text: "Both are fine honestly", Cost: 0.01},
		testutils.Reply{Text: "explanation: ok\ncandidate: second\nconfidence: 0.7", Cost: 0.01},
	)
	j := newJudge(t, oracle, WithRand(rand.New(fixedSource(0))))

	res, err := j.CompareDetailed(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, oracle.Calls(), 3)
	assert.False(t, res.Degraded)
	assert.Equal(t, domain.WinnerB, res.Winner)
	assert.InDelta(t, 0.03, res.Cost, 1e-12)
}

func TestDegradedJudgment(t *testing.T) {
	t.Run("three unparseable responses", func(t *testing.T) {
		oracle := testutils.NewScriptedOracle()
		oracle.Default = testutils.Reply{Text: "no idea", Cost: 0.01}
		j := newJudge(t, oracle, WithRand(seeded(3)))

		res, err := j.CompareDetailed(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
		require.NoError(t, err)

		assert.True(t, res.Degraded)
		assert.Equal(t, 3, res.Attempts)
		assert.Len(t, oracle.Calls(), 3)
		assert.Contains(t, res.Reasoning, "[DEGRADED JUDGMENT:")
		assert.True(t, strings.HasPrefix(res.Reasoning, "no idea"))
		assert.Zero(t, res.Confidence)
		assert.Equal(t, 1, j.Stats().Degraded)
	})

	t.Run("retries disabled", func(t *testing.T) {
		oracle := testutils.NewScriptedOracle()
		oracle.Default = testutils.Reply{Text: "no idea"}
		j := newJudge(t, oracle, WithRand(seeded(4)), WithMaxParseRetries(0))

		res, err := j.CompareDetailed(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Len(t, oracle.Calls(), 1)
	})
}

func TestFallbackResponse(t *testing.T) {
	failures := map[string]testutils.Reply{
		"transport error": {Err: ports.NewOracleError("mock", "Query", ports.ErrServiceUnavailable)},
		"absent response": {Absent: true},
		"blank text":      {Text: "   \n"},
	}

	for name, reply := range failures {
		t.Run(name, func(t *testing.T) {
			for _, flip := range []fixedSource{0, 1} {
				oracle := testutils.NewScriptedOracle(reply)
				j := newJudge(t, oracle, WithRand(rand.New(flip)))

				res, err := j.CompareDetailed(context.Background(), Request{
					CandidateA: "short",
					CandidateB: "a much longer payload",
				})
				require.NoError(t, err)

				assert.True(t, res.Fallback)
				assert.False(t, res.Degraded)
				assert.Equal(t, domain.WinnerA, res.Winner, "shorter payload wins regardless of order")
				assert.Contains(t, res.Reasoning, FallbackLabel)
				assert.Equal(t, 1, j.Stats().Fallbacks)
			}
		})
	}
}

func TestFallbackResponseText(t *testing.T) {
	for _, tc := range []struct {
		first, second string
		want          domain.Position
	}{
		{"aa", "a", domain.PositionSecond},
		{"a", "aa", domain.PositionFirst},
		{"ab", "cd", domain.PositionFirst},
	} {
		v, err := parseVerdict(fallbackResponse(tc.first, tc.second))
		require.NoError(t, err)
		assert.Equal(t, tc.want, v.Candidate)
		assert.True(t, strings.HasPrefix(v.Explanation, FallbackLabel))
	}
}

func TestCancelledContext(t *testing.T) {
	oracle := testutils.NewScriptedOracle()
	j := newJudge(t, oracle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := j.Compare(ctx, Request{CandidateA: "a", CandidateB: "b"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, oracle.Calls())
	assert.Zero(t, j.Stats().Comparisons)
}

// cancellingOracle cancels the caller's context mid-query.
type cancellingOracle struct{ cancel context.CancelFunc }

func (o cancellingOracle) Query(ctx context.Context, _, _ string) (*ports.OracleResponse, error) {
	o.cancel()
	return nil, ctx.Err()
}

func (cancellingOracle) Model() string { return "cancel" }

func TestCancelledDuringQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := newJudge(t, cancellingOracle{cancel: cancel})

	_, err := j.CompareDetailed(ctx, Request{CandidateA: "a", CandidateB: "b"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTallyAccumulates(t *testing.T) {
	oracle := testutils.NewScriptedOracle()
	oracle.ModelName = "gpt-4o"
	oracle.Default = testutils.Reply{Text: "candidate: first", Cost: 0.05}
	tally := NewTally("")
	j := newJudge(t, oracle, WithTally(tally), WithRand(seeded(5)))

	for i := 0; i < 5; i++ {
		_, _, err := j.Compare(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
		require.NoError(t, err)
	}

	stats := tally.Stats()
	assert.Equal(t, 5, stats.Comparisons)
	assert.InDelta(t, 0.25, stats.Cost, 1e-12)
	assert.InDelta(t, 0.05, stats.AverageCost(), 1e-12)
	assert.Equal(t, "gpt-4o", stats.Model)

	tally.Reset()
	assert.Equal(t, domain.JudgeStats{Model: "gpt-4o"}, tally.Stats())
}

func TestSharedTallyConcurrent(t *testing.T) {
	oracle := testutils.NewScriptedOracle()
	oracle.Default = testutils.Reply{Text: "candidate: second", Cost: 0.01}
	tally := NewTally("mock")
	j := newJudge(t, oracle, WithTally(tally))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := j.Compare(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, tally.Stats().Comparisons)
}

func TestJudgeMetrics(t *testing.T) {
	metrics := testutils.NewRecordingMetrics()
	oracle := testutils.NewScriptedOracle(
		testutils.Reply{Text: "candidate: first", Cost: 0.1},
		testutils.Reply{Absent: true},
	)
	oracle.Default = testutils.Reply{Text: "???"}
	j := newJudge(t, oracle, WithMetrics(metrics), WithRand(seeded(6)))

	for i := 0; i < 3; i++ {
		_, _, err := j.Compare(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, metrics.Counter("judgments_total", map[string]string{"status": "decisive"}))
	assert.Equal(t, 1.0, metrics.Counter("judgments_total", map[string]string{"status": "fallback"}))
	assert.Equal(t, 1.0, metrics.Counter("judgments_total", map[string]string{"status": "degraded"}))
	assert.InDelta(t, 0.1, metrics.Counter("oracle_cost_total", map[string]string{"model": "mock"}), 1e-12)
}

func TestCustomSystemPrompt(t *testing.T) {
	oracle := testutils.NewScriptedOracle(testutils.Reply{Text: "candidate: first"})
	j := newJudge(t, oracle, WithSystemPrompt("be terse"))

	_, _, err := j.Compare(context.Background(), Request{CandidateA: "a", CandidateB: "b"})
	require.NoError(t, err)
	assert.Equal(t, "be terse", oracle.Calls()[0].System)
}
