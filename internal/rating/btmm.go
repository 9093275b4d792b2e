package rating

import (
	"math"
	"sort"
)

// BT-MM defaults.
const (
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100

	// scoreFloor replaces a strength that would otherwise be zero or
	// undefined, keeping later denominators positive.
	scoreFloor = 1e-10
	// scaleSum is the total all fitted strengths are rescaled to.
	scaleSum = 1000.0
)

// BTMM fits a Bradley-Terry model with the Minorization-Maximization
// fixed-point iteration
//
//	θ_i ← W_i / Σ_j n_ij / (θ_i + θ_j)
//
// where W_i counts wins (ties as half) and n_ij counts comparisons between
// i and j. Every fit starts from θ = 1 and updates all candidates from the
// previous iterate.
type BTMM struct {
	tolerance     float64
	maxIterations int
}

// NewBTMM returns a BT-MM estimator. Non-positive arguments select the
// defaults.
func NewBTMM(tolerance float64, maxIterations int) *BTMM {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &BTMM{tolerance: tolerance, maxIterations: maxIterations}
}

// Algorithm implements Estimator.
func (*BTMM) Algorithm() Algorithm { return AlgorithmBTMM }

// InitialScore implements Estimator.
func (*BTMM) InitialScore() float64 { return 1.0 }

// Parameters implements Estimator.
func (m *BTMM) Parameters() Parameters {
	return Parameters{
		Tolerance:     m.tolerance,
		MaxIterations: m.maxIterations,
		InitialScore:  m.InitialScore(),
	}
}

// Fit computes strengths for every candidate appearing in outcomes.
// Hitting the iteration cap is not an error; the current estimate is
// returned with Converged unset.
func (m *BTMM) Fit(outcomes []Outcome) FitResult {
	if len(outcomes) == 0 {
		return FitResult{Scores: map[string]float64{}, Converged: true}
	}

	index := make(map[string]int)
	for _, o := range outcomes {
		index[o.A] = 0
		index[o.B] = 0
	}
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		index[id] = i
	}

	n := len(ids)
	wins := make([]float64, n)
	games := make([][]float64, n)
	for i := range games {
		games[i] = make([]float64, n)
	}
	for _, o := range outcomes {
		a, b := index[o.A], index[o.B]
		pa := o.Winner.Points()
		wins[a] += pa
		wins[b] += 1 - pa
		games[a][b]++
		games[b][a]++
	}

	theta := make([]float64, n)
	for i := range theta {
		theta[i] = 1.0
	}
	next := make([]float64, n)

	res := FitResult{}
	for res.Iterations < m.maxIterations {
		res.Iterations++

		maxDelta := 0.0
		for i := 0; i < n; i++ {
			denom := 0.0
			for j := 0; j < n; j++ {
				if games[i][j] > 0 {
					denom += games[i][j] / (theta[i] + theta[j])
				}
			}
			if wins[i] == 0 || denom == 0 {
				next[i] = scoreFloor
			} else {
				next[i] = wins[i] / denom
			}
			maxDelta = math.Max(maxDelta, math.Abs(next[i]-theta[i]))
		}
		theta, next = next, theta

		if maxDelta < m.tolerance {
			res.Converged = true
			break
		}
	}

	total := 0.0
	for _, v := range theta {
		total += v
	}
	res.Scores = make(map[string]float64, n)
	for i, id := range ids {
		res.Scores[id] = theta[i] / total * scaleSum
	}
	return res
}
