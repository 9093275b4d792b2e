package domain

import "time"

// SnapshotMetadata summarizes the estimator and the contents of an export.
type SnapshotMetadata struct {
	Algorithm       string    `json:"algorithm" yaml:"algorithm"`
	Tolerance       float64   `json:"tolerance" yaml:"tolerance"`
	MaxIterations   int       `json:"max_iterations" yaml:"max_iterations"`
	KFactor         float64   `json:"k_factor,omitempty" yaml:"k_factor,omitempty"`
	InitialScore    float64   `json:"initial_score" yaml:"initial_score"`
	CandidateCount  int       `json:"candidate_count" yaml:"candidate_count"`
	ComparisonCount int       `json:"comparison_count" yaml:"comparison_count"`
	ExportTime      time.Time `json:"export_time" yaml:"export_time"`
}

// Snapshot is a full export of a comparison store.
type Snapshot struct {
	Metadata    SnapshotMetadata  `json:"metadata" yaml:"metadata"`
	Scores      []CandidateRating `json:"scores" yaml:"scores"`
	Comparisons []Comparison      `json:"comparisons" yaml:"comparisons"`
}
