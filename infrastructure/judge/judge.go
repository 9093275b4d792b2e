// Package judge asks an oracle which of two candidates is better.
//
// Every comparison presents the candidates in a coin-flipped order so that
// an oracle's positional preference averages out, then maps the verdict
// back to the caller's A/B labels. Oracle responses must follow a small
// line-anchored grammar; unparseable responses are retried a bounded number
// of times before the judge falls back to a random pick flagged as degraded.
// Transport failures are replaced with a labeled fallback response, so a
// flaky oracle never aborts a caller.
package judge

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

// DefaultMaxParseRetries is the number of extra oracle calls made after an
// unparseable response.
const DefaultMaxParseRetries = 2

// DegradedMarker opens the note appended to degraded reasoning.
const DegradedMarker = "[DEGRADED JUDGMENT"

// Request is one pairwise comparison.
type Request struct {
	// TaskSpec describes what the candidates were meant to achieve.
	TaskSpec   string
	CandidateA string
	CandidateB string
	// Context enriches the prompt. Strings under 1000 characters and
	// scalars are included; ObjectiveKey replaces TaskSpec. Keys ending in
	// "_a" or "_b" describe CandidateA or CandidateB and are shown as
	// "_first" or "_second" after the position swap.
	Context map[string]any
}

// Judge runs the pairwise comparison protocol against an oracle.
// It is safe for concurrent use.
type Judge struct {
	oracle          ports.Oracle
	system          string
	maxParseRetries int

	rngMu sync.Mutex
	rng   *rand.Rand

	tally   *Tally
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// Option configures a Judge.
type Option func(*Judge)

// WithRand sets the source for the presentation coin flip and degraded picks.
func WithRand(r *rand.Rand) Option { return func(j *Judge) { j.rng = r } }

// WithTally sets the accumulator that receives every judgment.
func WithTally(t *Tally) Option { return func(j *Judge) { j.tally = t } }

// WithMaxParseRetries sets how many extra attempts follow a parse failure.
func WithMaxParseRetries(n int) Option {
	return func(j *Judge) {
		if n >= 0 {
			j.maxParseRetries = n
		}
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(s string) Option {
	return func(j *Judge) {
		if s != "" {
			j.system = s
		}
	}
}

// WithMetrics sets the collector for judgment counters.
func WithMetrics(m ports.MetricsCollector) Option { return func(j *Judge) { j.metrics = m } }

// New returns a Judge that queries oracle.
func New(oracle ports.Oracle, opts ...Option) (*Judge, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: judge requires an oracle", domain.ErrInvalidConfiguration)
	}

	j := &Judge{
		oracle:          oracle,
		system:          DefaultSystemPrompt,
		maxParseRetries: DefaultMaxParseRetries,
		tracer:          otel.Tracer("pairank-judge"),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.rng == nil {
		now := uint64(time.Now().UnixNano())
		j.rng = rand.New(rand.NewPCG(now, now>>1|1))
	}
	if j.tally == nil {
		j.tally = NewTally(oracle.Model())
	} else {
		j.tally.labelModel(oracle.Model())
	}
	return j, nil
}

// Model returns the oracle's model identifier.
func (j *Judge) Model() string { return j.oracle.Model() }

// Tally returns the accumulator this judge reports to.
func (j *Judge) Tally() *Tally { return j.tally }

// Stats is shorthand for j.Tally().Stats().
func (j *Judge) Stats() domain.JudgeStats { return j.tally.Stats() }

// Compare judges the request and returns the winner and reasoning.
// The winner is always WinnerA or WinnerB.
func (j *Judge) Compare(ctx context.Context, req Request) (domain.Winner, string, error) {
	res, err := j.CompareDetailed(ctx, req)
	if err != nil {
		return "", "", err
	}
	return res.Winner, res.Reasoning, nil
}

// CompareDetailed judges the request and returns the full judgment.
// The only error it returns is the context's.
func (j *Judge) CompareDetailed(ctx context.Context, req Request) (domain.Judgment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Judgment{}, err
	}

	ctx, span := j.tracer.Start(ctx, "Judge.Compare", trace.WithAttributes(
		attribute.String("judge.model", j.oracle.Model()),
	))
	defer span.End()
	log := clog.FromContext(ctx)

	res := domain.Judgment{Swapped: j.coin()}
	first, second := req.CandidateA, req.CandidateB
	if res.Swapped {
		first, second = second, first
	}

	prompt, err := renderPrompt(req.TaskSpec, first, second, orientContext(req.Context, res.Swapped))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Judgment{}, err
	}

	var (
		parsed  verdict
		ok      bool
		lastRaw string
		lastErr error
	)
	for attempt := 0; attempt <= j.maxParseRetries; attempt++ {
		text, cost, fellBack, err := j.ask(ctx, prompt, first, second)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return domain.Judgment{}, err
		}
		res.Attempts++
		res.Cost += cost
		res.Fallback = res.Fallback || fellBack

		parsed, lastErr = parseVerdict(text)
		if lastErr == nil {
			ok = true
			break
		}
		lastRaw = text
		log.With("attempt", res.Attempts).With("error", lastErr).Debug("Unparseable judge response")
	}

	if ok {
		res.Presented = parsed.Candidate
		res.Reasoning = parsed.Explanation
		res.Confidence = parsed.Confidence
	} else {
		res.Degraded = true
		res.Presented = domain.PositionFirst
		if j.coin() {
			res.Presented = domain.PositionSecond
		}
		res.Reasoning = strings.TrimSpace(strings.TrimSpace(lastRaw) + fmt.Sprintf(
			"\n\n%s: no parseable verdict after %d attempts (%v); winner chosen at random]",
			DegradedMarker, res.Attempts, lastErr))
		log.With("attempts", res.Attempts).With("error", lastErr).Warn("Degraded judgment")
	}

	res.Winner = unswap(res.Presented, res.Swapped)
	j.tally.Add(res)
	j.record(res)

	span.SetAttributes(
		attribute.Bool("judge.swapped", res.Swapped),
		attribute.Int("judge.attempts", res.Attempts),
		attribute.Bool("judge.degraded", res.Degraded),
		attribute.Bool("judge.fallback", res.Fallback),
		attribute.String("judge.winner", string(res.Winner)),
		attribute.Float64("judge.cost", res.Cost),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// ask queries the oracle once. An absent response is replaced with the
// fallback text; only a done context is returned as an error.
func (j *Judge) ask(ctx context.Context, prompt, first, second string) (string, float64, bool, error) {
	resp, err := j.oracle.Query(ctx, j.system, prompt)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", 0, false, ctxErr
	}

	var cost float64
	if resp != nil {
		cost = resp.Cost
	}
	if err != nil || resp == nil || strings.TrimSpace(resp.Text) == "" {
		clog.FromContext(ctx).With("model", j.oracle.Model()).With("error", err).
			Warn("Oracle returned no response, using fallback")
		return fallbackResponse(first, second), cost, true, nil
	}
	return resp.Text, cost, false, nil
}

func (j *Judge) coin() bool {
	j.rngMu.Lock()
	defer j.rngMu.Unlock()
	return j.rng.IntN(2) == 1
}

func (j *Judge) record(res domain.Judgment) {
	if j.metrics == nil {
		return
	}
	status := "decisive"
	switch {
	case res.Degraded:
		status = "degraded"
	case res.Fallback:
		status = "fallback"
	}
	labels := map[string]string{"model": j.oracle.Model()}
	j.metrics.RecordCounter("judgments_total", 1, map[string]string{"status": status})
	j.metrics.RecordCounter("oracle_cost_total", res.Cost, labels)
	j.metrics.RecordHistogram("judge_attempts", float64(res.Attempts), labels)
}

// unswap maps a presentation slot back to the caller's label.
func unswap(p domain.Position, swapped bool) domain.Winner {
	first := p == domain.PositionFirst
	if first != swapped {
		return domain.WinnerA
	}
	return domain.WinnerB
}
