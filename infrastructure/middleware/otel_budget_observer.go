package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-pairank/internal/domain"
	"github.com/ahrav/go-pairank/internal/ports"
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// Usage ratios at which span events are added.
const (
	warningThreshold  = 0.8
	criticalThreshold = 0.9
)

// OTelBudgetObserver traces each guarded oracle call as a span carrying the
// budget state, adds threshold and exhaustion events, and mirrors the
// usage into a MetricsCollector. It keeps no per-call state, so one
// observer can serve concurrent rounds.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	oracle  string
	tracer  trace.Tracer
}

// NewOTelBudgetObserver returns an observer labeled with the oracle name.
// metrics may be nil.
func NewOTelBudgetObserver(metrics ports.MetricsCollector, oracle string) *OTelBudgetObserver {
	return &OTelBudgetObserver{metrics: metrics, oracle: oracle, tracer: otel.Tracer("pairank-budget")}
}

// WithTracerProvider replaces the global tracer provider.
func (o *OTelBudgetObserver) WithTracerProvider(tp trace.TracerProvider) *OTelBudgetObserver {
	o.tracer = tp.Tracer("pairank-budget")
	return o
}

// PreCheck implements BudgetObserver.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, usage BudgetUsage, budget Budget) context.Context {
	ctx, span := o.tracer.Start(ctx, "BudgetGuard.Query")
	o.annotate(span, usage, budget)

	for _, r := range []struct {
		resource string
		ratio    float64
	}{
		{"calls", ratio(float64(usage.Calls), float64(budget.MaxCalls))},
		{"cost", ratio(usage.Cost, budget.MaxCost)},
	} {
		event := ""
		switch {
		case r.ratio >= criticalThreshold:
			event = "budget.threshold.critical"
		case r.ratio >= warningThreshold:
			event = "budget.threshold.warning"
		default:
			continue
		}
		span.AddEvent(event, trace.WithAttributes(
			attribute.String("resource_type", r.resource),
			attribute.Float64("usage_percentage", r.ratio*100),
		))
	}
	return ctx
}

// PostCheck implements BudgetObserver.
func (o *OTelBudgetObserver) PostCheck(
	ctx context.Context,
	usage BudgetUsage,
	budget Budget,
	elapsed time.Duration,
	err error,
) {
	span := trace.SpanFromContext(ctx)
	defer span.End()
	o.annotate(span, usage, budget)

	labels := o.labels(budget)
	if o.metrics != nil && elapsed > 0 {
		o.metrics.RecordLatency("oracle_call", elapsed, labels)
	}

	var exceeded *domain.BudgetExceededError
	switch {
	case errors.As(err, &exceeded):
		span.AddEvent("budget.exceeded", trace.WithAttributes(
			attribute.String("limit_type", exceeded.LimitType),
			attribute.Float64("limit_value", exceeded.Limit),
			attribute.Float64("used_value", exceeded.Used),
		))
		span.SetStatus(codes.Error, "budget limit exceeded")
		if o.metrics != nil {
			o.metrics.RecordCounter("budget_exceeded_total", 1,
				map[string]string{"oracle": o.oracle, "limit_type": exceeded.LimitType})
		}
		return
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.AddEvent("budget.usage_tracked", trace.WithAttributes(
			attribute.Int64("calls_made", usage.Calls),
			attribute.Float64("cost", usage.Cost),
		))
		span.SetStatus(codes.Ok, "")
	}

	if o.metrics == nil {
		return
	}
	o.metrics.RecordGauge("budget_calls_used", float64(usage.Calls), labels)
	o.metrics.RecordGauge("budget_cost_used", usage.Cost, labels)
	if budget.MaxCalls > 0 {
		o.metrics.RecordGauge("budget_remaining_calls", float64(budget.MaxCalls-usage.Calls), labels)
	}
	if budget.MaxCost > 0 {
		o.metrics.RecordGauge("budget_remaining_cost", budget.MaxCost-usage.Cost, labels)
	}
}

func (o *OTelBudgetObserver) annotate(span trace.Span, usage BudgetUsage, budget Budget) {
	span.SetAttributes(
		attribute.String("budget.oracle", o.oracle),
		attribute.Int64("budget.calls_made", usage.Calls),
		attribute.Float64("budget.cost", usage.Cost),
		attribute.Int64("budget.tokens_in", usage.TokensIn),
		attribute.Int64("budget.tokens_out", usage.TokensOut),
	)
	if budget.MaxCalls > 0 {
		span.SetAttributes(
			attribute.Int64("budget.max_calls", budget.MaxCalls),
			attribute.Int64("budget.remaining_calls", budget.MaxCalls-usage.Calls),
		)
	}
	if budget.MaxCost > 0 {
		span.SetAttributes(
			attribute.Float64("budget.max_cost", budget.MaxCost),
			attribute.Float64("budget.remaining_cost", budget.MaxCost-usage.Cost),
		)
	}
}

func (o *OTelBudgetObserver) labels(budget Budget) map[string]string {
	return map[string]string{"oracle": o.oracle, "budget_limit": limitLabel(budget)}
}

func limitLabel(b Budget) string {
	switch {
	case b.MaxCalls > 0 && b.MaxCost > 0:
		return "calls_and_cost"
	case b.MaxCalls > 0:
		return "calls_only"
	case b.MaxCost > 0:
		return "cost_only"
	}
	return "unlimited"
}

func ratio(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return used / limit
}
