// Package domain contains the core value types of the pairwise rating system:
// candidates, comparisons, judgments and the snapshots built from them.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Winner is the outcome of a comparison relative to the stored pair order.
type Winner string

// Recognized winner values.
const (
	WinnerA   Winner = "a"
	WinnerB   Winner = "b"
	WinnerTie Winner = "tie"
)

// ParseWinner normalizes s and returns the matching Winner.
func ParseWinner(s string) (Winner, error) {
	w := Winner(strings.ToLower(strings.TrimSpace(s)))
	if err := w.Validate(); err != nil {
		return "", err
	}
	return w, nil
}

// Validate returns an error wrapping ErrInvalidWinner for unknown values.
func (w Winner) Validate() error {
	switch w {
	case WinnerA, WinnerB, WinnerTie:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected a, b or tie)", ErrInvalidWinner, string(w))
	}
}

// Points returns the score earned by side A: 1 for a win, 0.5 for a tie
// and 0 for a loss.
func (w Winner) Points() float64 {
	switch w {
	case WinnerA:
		return 1.0
	case WinnerTie:
		return 0.5
	default:
		return 0.0
	}
}

// Flip returns the same outcome seen from the other side of the pair.
func (w Winner) Flip() Winner {
	switch w {
	case WinnerA:
		return WinnerB
	case WinnerB:
		return WinnerA
	default:
		return w
	}
}

// CandidateRating is the persisted rating row of one candidate.
type CandidateRating struct {
	CandidateID     string    `json:"candidate_id" yaml:"candidate_id"`
	Score           float64   `json:"score" yaml:"score"`
	ComparisonCount int       `json:"comparison_count" yaml:"comparison_count"`
	Wins            int       `json:"wins" yaml:"wins"`
	Losses          int       `json:"losses" yaml:"losses"`
	Ties            int       `json:"ties" yaml:"ties"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// WinRate counts ties as half a win. A candidate without comparisons has a
// win rate of zero.
func (r CandidateRating) WinRate() float64 {
	n := r.ComparisonCount
	if n < 1 {
		n = 1
	}
	return (float64(r.Wins) + 0.5*float64(r.Ties)) / float64(n)
}

// Record formats the W-L-T triple.
func (r CandidateRating) Record() string {
	return fmt.Sprintf("%d-%d-%d", r.Wins, r.Losses, r.Ties)
}

// Comparison is the stored outcome of one unordered candidate pair.
// Winner is relative to the stored order of CandidateA and CandidateB.
type Comparison struct {
	CandidateA   string    `json:"candidate_a" yaml:"candidate_a"`
	CandidateB   string    `json:"candidate_b" yaml:"candidate_b"`
	Winner       Winner    `json:"winner" yaml:"winner"`
	ScoreABefore float64   `json:"score_a_before" yaml:"score_a_before"`
	ScoreBBefore float64   `json:"score_b_before" yaml:"score_b_before"`
	ScoreAAfter  float64   `json:"score_a_after" yaml:"score_a_after"`
	ScoreBAfter  float64   `json:"score_b_after" yaml:"score_b_after"`
	Reasoning    string    `json:"reasoning" yaml:"reasoning"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

// Involves reports whether id is one side of the comparison.
func (c Comparison) Involves(id string) bool {
	return c.CandidateA == id || c.CandidateB == id
}

// Opponent returns the other side of the pair from id's point of view.
func (c Comparison) Opponent(id string) string {
	if c.CandidateA == id {
		return c.CandidateB
	}
	return c.CandidateA
}

// Oriented returns the comparison expressed in the (a, b) order requested by
// the caller. Sides, scores and the winner are swapped when the stored order
// is reversed.
func (c Comparison) Oriented(a, b string) Comparison {
	if c.CandidateA == a && c.CandidateB == b {
		return c
	}
	return Comparison{
		CandidateA:   c.CandidateB,
		CandidateB:   c.CandidateA,
		Winner:       c.Winner.Flip(),
		ScoreABefore: c.ScoreBBefore,
		ScoreBBefore: c.ScoreABefore,
		ScoreAAfter:  c.ScoreBAfter,
		ScoreBAfter:  c.ScoreAAfter,
		Reasoning:    c.Reasoning,
		Timestamp:    c.Timestamp,
	}
}

// RankingQuery filters and limits a rankings listing.
type RankingQuery struct {
	// TopN limits the number of rows returned. Zero or negative means no limit.
	TopN int
	// MinComparisons drops candidates with fewer recorded comparisons.
	MinComparisons int
}

// RankedCandidate is one row of a rankings listing.
type RankedCandidate struct {
	Rank int `json:"rank" yaml:"rank"`
	CandidateRating
}
