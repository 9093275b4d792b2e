package domain

// Position identifies which slot a candidate was presented in.
type Position string

// Presentation slots used by the judge prompt.
const (
	PositionFirst  Position = "first"
	PositionSecond Position = "second"
)

// Judgment is the transient result of a single judge call, already mapped
// back to the caller's A/B labeling.
type Judgment struct {
	// Winner is either WinnerA or WinnerB; the judge never produces ties.
	Winner Winner `json:"winner"`
	// Presented is the slot the oracle picked before un-swapping.
	Presented Position `json:"presented"`
	// Swapped records whether B was shown first.
	Swapped    bool    `json:"swapped"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	// Cost is the summed oracle cost across all attempts.
	Cost float64 `json:"cost"`
	// Attempts counts oracle round trips, including parse retries.
	Attempts int `json:"attempts"`
	// Degraded is set when no attempt produced a parseable verdict and the
	// winner was drawn at random.
	Degraded bool `json:"degraded"`
	// Fallback is set when at least one attempt used the fallback oracle.
	Fallback bool `json:"fallback"`
}

// JudgeStats is a snapshot of a judge's running totals.
type JudgeStats struct {
	Comparisons int     `json:"total_comparisons"`
	Cost        float64 `json:"total_cost"`
	Degraded    int     `json:"degraded"`
	Fallbacks   int     `json:"fallbacks"`
	Model       string  `json:"model"`
}

// AverageCost returns the mean cost per comparison.
func (s JudgeStats) AverageCost() float64 {
	n := s.Comparisons
	if n < 1 {
		n = 1
	}
	return s.Cost / float64(n)
}

// Add folds a judgment into the totals and returns the new snapshot.
func (s JudgeStats) Add(j Judgment) JudgeStats {
	s.Comparisons++
	s.Cost += j.Cost
	if j.Degraded {
		s.Degraded++
	}
	if j.Fallback {
		s.Fallbacks++
	}
	return s
}
