// Package application wires the rating engine together: configuration
// loading, the evaluation round that places a new candidate on the scale,
// candidate construction from a prompt, and re-judging of stored pairs.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-pairank/infrastructure/judge"
	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
	"github.com/ahrav/go-pairank/internal/selection"
)

// Judge decides pairwise comparisons. *judge.Judge implements it.
type Judge interface {
	CompareDetailed(ctx context.Context, req judge.Request) (domain.Judgment, error)
	Model() string
}

// Orchestrator runs evaluation rounds: it selects opponents for a
// candidate, judges each pairing and records the outcomes.
type Orchestrator struct {
	store    ports.ComparisonStore
	judge    Judge
	selector *selection.Selector
	payloads ports.PayloadSource
	cfg      EvaluationConfig

	metrics ports.MetricsCollector
	tracer  trace.Tracer
	now     func() time.Time
	roundID func() string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorMetrics sets the collector for round metrics.
func WithOrchestratorMetrics(m ports.MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithOrchestratorClock sets the clock used to measure round runtime.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithRoundIDs replaces the uuid generator for round ids.
func WithRoundIDs(next func() string) OrchestratorOption {
	return func(o *Orchestrator) { o.roundID = next }
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = tp.Tracer("pairank-orchestrator") }
}

// NewOrchestrator returns an orchestrator. Every collaborator is required.
func NewOrchestrator(
	store ports.ComparisonStore,
	j Judge,
	selector *selection.Selector,
	payloads ports.PayloadSource,
	cfg EvaluationConfig,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	verr := domain.NewValidationError("Orchestrator")
	if store == nil {
		verr.AddError("store is required")
	}
	if j == nil {
		verr.AddError("judge is required")
	}
	if selector == nil {
		verr.AddError("selector is required")
	}
	if payloads == nil {
		verr.AddError("payload source is required")
	}
	if cfg.NumComparisons < 0 {
		verr.AddError(fmt.Sprintf("num_comparisons must be non-negative, got %d", cfg.NumComparisons))
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if cfg.TaskSpec == "" {
		cfg.TaskSpec = DefaultTaskSpec
	}

	o := &Orchestrator{
		store:    store,
		judge:    j,
		selector: selector,
		payloads: payloads,
		cfg:      cfg,
		tracer:   otel.Tracer("pairank-orchestrator"),
		now:      time.Now,
		roundID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// round accumulates the outcomes of one Evaluate call.
type round struct {
	id       string
	taskSpec string
	result   domain.EvaluationResult
	skipped  []string
}

// Evaluate places candidateID on the scale using the configured comparison
// budget. An empty taskSpec uses the configured one. Unavailable opponents
// are skipped; an unavailable candidate payload aborts the round.
func (o *Orchestrator) Evaluate(ctx context.Context, candidateID, taskSpec string) (domain.EvaluationResult, error) {
	return o.EvaluateN(ctx, candidateID, taskSpec, o.cfg.NumComparisons)
}

// EvaluateN is Evaluate with an explicit comparison budget.
func (o *Orchestrator) EvaluateN(ctx context.Context, candidateID, taskSpec string, budget int) (domain.EvaluationResult, error) {
	if candidateID == "" {
		verr := domain.NewValidationError("Evaluate")
		verr.AddError("candidate id is required")
		return domain.EvaluationResult{}, verr
	}
	if taskSpec == "" {
		taskSpec = o.cfg.TaskSpec
	}
	start := o.now()

	r := &round{id: o.roundID(), taskSpec: taskSpec}
	r.result = domain.EvaluationResult{RoundID: r.id, CandidateID: candidateID}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Evaluate", trace.WithAttributes(
		attribute.String("round.id", r.id),
		attribute.String("candidate.id", candidateID),
		attribute.Int("round.budget", budget),
	))
	defer span.End()
	log := clog.FromContext(ctx).With("round", r.id).With("candidate", candidateID)
	ctx = clog.WithLogger(ctx, log)

	fail := func(err error) (domain.EvaluationResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.record(r, o.now().Sub(start), "error")
		return domain.EvaluationResult{}, err
	}

	if _, err := o.store.GetOrCreateScore(ctx, candidateID); err != nil {
		return fail(fmt.Errorf("register candidate %s: %w", candidateID, err))
	}

	plan, err := o.selector.Plan(ctx, candidateID, budget)
	if err != nil {
		return fail(fmt.Errorf("plan opponents: %w", err))
	}
	log.With("explore", len(plan.Phase1)).With("refine_budget", plan.Refinement).Info("Starting evaluation round")

	if err := o.judgeAll(ctx, r, plan.Phase1, domain.PhaseExplore); err != nil {
		return fail(err)
	}

	if plan.Refinement > 0 {
		neighbors, err := o.selector.Refine(ctx, candidateID, plan.Refinement, r.skipped...)
		if err != nil {
			return fail(fmt.Errorf("refine opponents: %w", err))
		}
		if err := o.judgeAll(ctx, r, neighbors, domain.PhaseRefine); err != nil {
			return fail(err)
		}
	}

	stats, err := o.store.Stats(ctx, candidateID)
	if err != nil {
		return fail(fmt.Errorf("final stats %s: %w", candidateID, err))
	}
	r.result.CombinedScore = stats.Score
	r.result.WinRate = stats.WinRate()
	r.result.TotalComparisons = stats.ComparisonCount
	r.result.Runtime = o.now().Sub(start)

	span.SetAttributes(
		attribute.Float64("candidate.score", stats.Score),
		attribute.Int("round.judged", len(r.result.Opponents)),
		attribute.Int("round.skipped", r.result.Skipped),
		attribute.Float64("round.cost", r.result.EvaluationCost),
	)
	span.SetStatus(codes.Ok, "")
	o.record(r, r.result.Runtime, "ok")

	log.With("score", stats.Score).With("record", fmt.Sprintf("%dW-%dL", r.result.Wins, r.result.Losses)).
		With("cost", r.result.EvaluationCost).Info("Evaluation round finished")
	return r.result, nil
}

func (o *Orchestrator) judgeAll(ctx context.Context, r *round, opponents []string, phase domain.Phase) error {
	for _, opp := range opponents {
		if err := o.judgeOne(ctx, r, opp, phase); err != nil {
			return err
		}
	}
	return nil
}

// judgeOne compares the round's candidate with opp and records the outcome.
func (o *Orchestrator) judgeOne(ctx context.Context, r *round, opp string, phase domain.Phase) error {
	id := r.result.CandidateID
	log := clog.FromContext(ctx).With("opponent", opp).With("phase", string(phase))

	pair, err := loadPair(ctx, o.payloads, id, opp)
	if err != nil {
		return err
	}
	if pair.missingA {
		return fmt.Errorf("payload for candidate %s: %w", id, ports.ErrPayloadUnavailable)
	}
	if pair.missingB {
		log.Warn("Skipping opponent without payload")
		r.result.Skipped++
		r.skipped = append(r.skipped, opp)
		return nil
	}

	res, err := o.judge.CompareDetailed(ctx, judge.Request{
		TaskSpec:   r.taskSpec,
		CandidateA: pair.a.Text,
		CandidateB: pair.b.Text,
		Context:    judgeContext(r.taskSpec, pair.a, pair.b),
	})
	if err != nil {
		return fmt.Errorf("judge %s vs %s: %w", id, opp, err)
	}

	scoreA, scoreB, err := o.store.Record(ctx, id, opp, res.Winner, res.Reasoning)
	if err != nil {
		return fmt.Errorf("record %s vs %s: %w", id, opp, err)
	}

	switch res.Winner {
	case domain.WinnerA:
		r.result.Wins++
	case domain.WinnerB:
		r.result.Losses++
	default:
		r.result.Ties++
	}
	if res.Degraded {
		r.result.Degraded++
	}
	r.result.EvaluationCost += res.Cost
	r.result.OracleCalls += res.Attempts
	r.result.Opponents = append(r.result.Opponents, domain.OpponentOutcome{
		OpponentID:    opp,
		Phase:         phase,
		Winner:        res.Winner,
		Score:         scoreA,
		OpponentScore: scoreB,
		Degraded:      res.Degraded,
		Cost:          res.Cost,
	})

	log.With("winner", string(res.Winner)).With("score", scoreA).With("opponent_score", scoreB).
		Info("Comparison recorded")
	return nil
}

// judgeContext is the prompt context for one pairing: the objective, where
// each side came from and the size of each change.
func judgeContext(taskSpec string, a, b ports.Payload) map[string]any {
	ctx := map[string]any{
		judge.ObjectiveKey: taskSpec,
		"branch_a":         a.Ref,
		"branch_b":         b.Ref,
	}
	for suffix, p := range map[string]ports.Payload{"a": a, "b": b} {
		if p.Stats == (ports.DiffStats{}) {
			continue
		}
		ctx["files_changed_"+suffix] = p.Stats.FilesChanged
		ctx["lines_added_"+suffix] = p.Stats.LinesAdded
		ctx["lines_removed_"+suffix] = p.Stats.LinesRemoved
	}
	return ctx
}

func (o *Orchestrator) record(r *round, elapsed time.Duration, status string) {
	if o.metrics == nil {
		return
	}
	labels := map[string]string{"status": status}
	o.metrics.RecordLatency("evaluation", elapsed, labels)
	o.metrics.RecordCounter("evaluations_total", 1, labels)
	o.metrics.RecordCounter("evaluation_skipped_total", float64(r.result.Skipped), nil)
	o.metrics.RecordHistogram("evaluation_comparisons", float64(len(r.result.Opponents)), nil)
}
