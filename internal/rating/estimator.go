// Package rating turns pairwise outcomes into scalar candidate strengths.
//
// Two strategies are provided. BTMM refits a Bradley-Terry model over every
// recorded outcome and is order independent. ELO applies a closed-form
// update to the two candidates of each new outcome and is order dependent.
// Callers obtain either through New and type-switch on BatchEstimator or
// IncrementalEstimator to drive it.
package rating

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-pairank/internal/domain"
)

// Algorithm names a rating strategy.
type Algorithm string

// Supported algorithms.
const (
	AlgorithmBTMM Algorithm = "bt-mm"
	AlgorithmELO  Algorithm = "elo"
)

// Outcome is one recorded comparison as seen by an estimator.
type Outcome struct {
	A, B   string
	Winner domain.Winner
}

// Parameters describes an estimator's tuning for snapshots and logs.
// Fields that do not apply to the algorithm are zero.
type Parameters struct {
	Tolerance     float64
	MaxIterations int
	KFactor       float64
	InitialScore  float64
}

// Estimator is the part shared by every rating strategy.
type Estimator interface {
	Algorithm() Algorithm
	// InitialScore is the score given to a candidate before any comparison.
	InitialScore() float64
	Parameters() Parameters
}

// FitResult holds the scores of every candidate that took part in a fit.
type FitResult struct {
	Scores     map[string]float64
	Iterations int
	Converged  bool
}

// BatchEstimator recomputes all scores from the complete outcome set.
type BatchEstimator interface {
	Estimator
	Fit(outcomes []Outcome) FitResult
}

// IncrementalEstimator updates two scores from a single new outcome.
type IncrementalEstimator interface {
	Estimator
	Update(ra, rb float64, winner domain.Winner) (float64, float64)
}

// Config selects and tunes an estimator.
type Config struct {
	Algorithm     string  `koanf:"algorithm" validate:"required,oneof=bt-mm elo"`
	Tolerance     float64 `koanf:"tolerance" validate:"gt=0"`
	MaxIterations int     `koanf:"max_iterations" validate:"min=1"`
	KFactor       float64 `koanf:"k_factor" validate:"gt=0"`
	EloInitial    float64 `koanf:"elo_initial"`
}

// DefaultConfig returns the BT-MM configuration with standard parameters.
func DefaultConfig() Config {
	return Config{
		Algorithm:     string(AlgorithmBTMM),
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		KFactor:       DefaultKFactor,
		EloInitial:    DefaultELOInitial,
	}
}

var validate = validator.New()

// New builds the estimator named by cfg.Algorithm.
func New(cfg Config) (Estimator, error) {
	if err := validate.Struct(cfg); err != nil {
		verr := domain.NewValidationError("rating.Config")
		verr.AddError(err.Error())
		return nil, verr
	}

	switch Algorithm(cfg.Algorithm) {
	case AlgorithmBTMM:
		return NewBTMM(cfg.Tolerance, cfg.MaxIterations), nil
	case AlgorithmELO:
		return NewELO(cfg.EloInitial, cfg.KFactor), nil
	default:
		return nil, fmt.Errorf("%w: unknown rating algorithm %q", domain.ErrInvalidConfiguration, cfg.Algorithm)
	}
}
