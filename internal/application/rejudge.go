package application

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/ahrav/go-pairank/infrastructure/judge"
	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

// RejudgeOptions controls a Rejudger run.
type RejudgeOptions struct {
	// Limit caps the number of source pairs considered. Zero means all.
	Limit int
	// Resume skips pairs already present in the output store.
	Resume bool
	// DryRun lists the pairs and their payload availability without
	// judging or touching the output store.
	DryRun bool
}

// PairStatus is what happened to one pair during a rejudge run.
type PairStatus string

// Pair statuses.
const (
	PairAvailable PairStatus = "ok"
	PairMissing   PairStatus = "missing"
	PairJudged    PairStatus = "judged"
	PairSkipped   PairStatus = "skipped"
	PairResumed   PairStatus = "resumed"
)

// RejudgePair reports one source pair.
type RejudgePair struct {
	CandidateA string        `json:"candidate_a"`
	CandidateB string        `json:"candidate_b"`
	Status     PairStatus    `json:"status"`
	MissingA   bool          `json:"missing_a,omitempty"`
	MissingB   bool          `json:"missing_b,omitempty"`
	Winner     domain.Winner `json:"winner,omitempty"`
	ScoreA     float64       `json:"score_a,omitempty"`
	ScoreB     float64       `json:"score_b,omitempty"`
}

// RejudgeReport summarizes a rejudge run.
type RejudgeReport struct {
	Candidates int           `json:"candidates"`
	Judged     int           `json:"judged"`
	Skipped    int           `json:"skipped"`
	Resumed    int           `json:"resumed"`
	Cost       float64       `json:"cost"`
	Runtime    time.Duration `json:"runtime"`
	Pairs      []RejudgePair `json:"pairs"`
}

// Rejudger replays every pair recorded in a source store through a judge
// and records the fresh outcomes in an output store, typically after the
// judge model or prompt changed.
type Rejudger struct {
	source   ports.ComparisonStore
	output   ports.ComparisonStore
	judge    Judge
	payloads ports.PayloadSource
	taskSpec string
	now      func() time.Time
}

// NewRejudger returns a Rejudger. An empty taskSpec uses DefaultTaskSpec.
func NewRejudger(source, output ports.ComparisonStore, j Judge, payloads ports.PayloadSource, taskSpec string) (*Rejudger, error) {
	verr := domain.NewValidationError("Rejudger")
	if source == nil {
		verr.AddError("source store is required")
	}
	if output == nil {
		verr.AddError("output store is required")
	}
	if j == nil {
		verr.AddError("judge is required")
	}
	if payloads == nil {
		verr.AddError("payload source is required")
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if taskSpec == "" {
		taskSpec = DefaultTaskSpec
	}
	return &Rejudger{source: source, output: output, judge: j, payloads: payloads, taskSpec: taskSpec, now: time.Now}, nil
}

// Run re-judges the source pairs in insertion order.
func (r *Rejudger) Run(ctx context.Context, opts RejudgeOptions) (RejudgeReport, error) {
	start := r.now()
	log := clog.FromContext(ctx)

	comparisons, err := r.source.Comparisons(ctx)
	if err != nil {
		return RejudgeReport{}, fmt.Errorf("load source pairs: %w", err)
	}
	candidates, err := r.source.Candidates(ctx)
	if err != nil {
		return RejudgeReport{}, fmt.Errorf("load source candidates: %w", err)
	}
	report := RejudgeReport{Candidates: len(candidates)}
	log.With("candidates", len(candidates)).With("pairs", len(comparisons)).Info("Loaded source store")

	if opts.DryRun {
		for _, c := range comparisons {
			p := RejudgePair{CandidateA: c.CandidateA, CandidateB: c.CandidateB, Status: PairAvailable}
			okA, err := available(ctx, r.payloads, c.CandidateA)
			if err != nil {
				return report, err
			}
			okB, err := available(ctx, r.payloads, c.CandidateB)
			if err != nil {
				return report, err
			}
			p.MissingA, p.MissingB = !okA, !okB
			if p.MissingA || p.MissingB {
				p.Status = PairMissing
			}
			report.Pairs = append(report.Pairs, p)
		}
		report.Runtime = r.now().Sub(start)
		return report, nil
	}

	if opts.Limit > 0 && len(comparisons) > opts.Limit {
		comparisons = comparisons[:opts.Limit]
	}

	for _, id := range candidates {
		if _, err := r.output.GetOrCreateScore(ctx, id); err != nil {
			return report, fmt.Errorf("register %s: %w", id, err)
		}
	}

	for i, c := range comparisons {
		p := RejudgePair{CandidateA: c.CandidateA, CandidateB: c.CandidateB}
		plog := log.With("pair", fmt.Sprintf("%d/%d", i+1, len(comparisons))).
			With("candidate_a", c.CandidateA).With("candidate_b", c.CandidateB)

		if opts.Resume {
			done, err := r.output.Exists(ctx, c.CandidateA, c.CandidateB)
			if err != nil {
				return report, fmt.Errorf("check %s vs %s: %w", c.CandidateA, c.CandidateB, err)
			}
			if done {
				p.Status = PairResumed
				report.Resumed++
				report.Pairs = append(report.Pairs, p)
				continue
			}
		}

		pair, err := loadPair(ctx, r.payloads, c.CandidateA, c.CandidateB)
		if err != nil {
			return report, err
		}
		if pair.missingA || pair.missingB {
			p.Status, p.MissingA, p.MissingB = PairSkipped, pair.missingA, pair.missingB
			report.Skipped++
			report.Pairs = append(report.Pairs, p)
			plog.Warn("Skipping pair without payload")
			continue
		}

		res, err := r.judge.CompareDetailed(ctx, judge.Request{
			TaskSpec:   r.taskSpec,
			CandidateA: pair.a.Text,
			CandidateB: pair.b.Text,
			Context:    judgeContext(r.taskSpec, pair.a, pair.b),
		})
		if err != nil {
			return report, fmt.Errorf("judge %s vs %s: %w", c.CandidateA, c.CandidateB, err)
		}
		scoreA, scoreB, err := r.output.Record(ctx, c.CandidateA, c.CandidateB, res.Winner, res.Reasoning)
		if err != nil {
			return report, fmt.Errorf("record %s vs %s: %w", c.CandidateA, c.CandidateB, err)
		}

		p.Status, p.Winner, p.ScoreA, p.ScoreB = PairJudged, res.Winner, scoreA, scoreB
		report.Judged++
		report.Cost += res.Cost
		report.Pairs = append(report.Pairs, p)
		plog.With("winner", string(res.Winner)).With("score_a", scoreA).With("score_b", scoreB).Info("Pair re-judged")
	}

	report.Runtime = r.now().Sub(start)
	return report, nil
}
