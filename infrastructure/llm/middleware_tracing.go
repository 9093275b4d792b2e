package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type tracedProvider struct {
	next   Provider
	tracer trace.Tracer
}

// TracingMiddleware records an "llm.generate" span per request using the
// global tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	return TracingMiddlewareWithProvider(serviceName, otel.GetTracerProvider())
}

// TracingMiddlewareWithProvider is TracingMiddleware with an explicit
// tracer provider.
func TracingMiddlewareWithProvider(serviceName string, tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(serviceName)
	return func(next Provider) Provider {
		return &tracedProvider{next: next, tracer: tracer}
	}
}

func (t *tracedProvider) Model() string { return t.next.Model() }

func (t *tracedProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	ctx, span := t.tracer.Start(ctx, "llm.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", t.next.Model()),
			attribute.Int("llm.prompt.length", len(req.Prompt)),
			attribute.Int("llm.max_tokens", req.maxTokens()),
		),
	)
	defer span.End()

	comp, err := t.next.Generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return comp, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", comp.TokensIn),
		attribute.Int("llm.tokens.output", comp.TokensOut),
	)
	return comp, nil
}
