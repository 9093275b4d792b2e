package domain

import "time"

// Phase names the opponent selection pass that produced a pairing.
type Phase string

// Selection phases.
const (
	PhaseExplore Phase = "explore"
	PhaseRefine  Phase = "refine"
)

// OpponentOutcome is the result of judging the evaluated candidate against a
// single opponent. Scores are from the evaluated candidate's perspective.
type OpponentOutcome struct {
	OpponentID    string  `json:"opponent_id"`
	Phase         Phase   `json:"phase"`
	Winner        Winner  `json:"winner"`
	Score         float64 `json:"score"`
	OpponentScore float64 `json:"opponent_score"`
	Degraded      bool    `json:"degraded"`
	Cost          float64 `json:"cost"`
}

// EvaluationResult is the outcome of one evaluation round for a candidate.
type EvaluationResult struct {
	RoundID          string            `json:"round_id"`
	CandidateID      string            `json:"candidate_id"`
	CombinedScore    float64           `json:"combined_score"`
	Wins             int               `json:"wins"`
	Losses           int               `json:"losses"`
	Ties             int               `json:"ties"`
	WinRate          float64           `json:"win_rate"`
	TotalComparisons int               `json:"total_comparisons"`
	Skipped          int               `json:"skipped"`
	Degraded         int               `json:"degraded"`
	EvaluationCost   float64           `json:"evaluation_cost"`
	OracleCalls      int               `json:"llm_calls"`
	Runtime          time.Duration     `json:"runtime"`
	Opponents        []OpponentOutcome `json:"opponents"`
}
