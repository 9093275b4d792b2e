package rating

import (
	"math"

	"github.com/ahrav/go-pairank/internal/domain"
)

// ELO defaults.
const (
	DefaultELOInitial = 1500.0
	DefaultKFactor    = 32.0
)

// ELO applies the classic Elo update to the two candidates of an outcome.
// The update is zero-sum: whatever A gains, B loses.
type ELO struct {
	initial float64
	k       float64
}

// NewELO returns an ELO estimator. A non-positive initial rating or K
// selects the defaults.
func NewELO(initial, k float64) *ELO {
	if initial <= 0 {
		initial = DefaultELOInitial
	}
	if k <= 0 {
		k = DefaultKFactor
	}
	return &ELO{initial: initial, k: k}
}

// Algorithm implements Estimator.
func (*ELO) Algorithm() Algorithm { return AlgorithmELO }

// InitialScore implements Estimator.
func (e *ELO) InitialScore() float64 { return e.initial }

// Parameters implements Estimator.
func (e *ELO) Parameters() Parameters {
	return Parameters{KFactor: e.k, InitialScore: e.initial}
}

// Expected returns the probability that a candidate rated ra beats one
// rated rb.
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// Update returns the new ratings of A and B after the given outcome.
func (e *ELO) Update(ra, rb float64, winner domain.Winner) (float64, float64) {
	delta := e.k * (winner.Points() - Expected(ra, rb))
	return ra + delta, rb - delta
}
