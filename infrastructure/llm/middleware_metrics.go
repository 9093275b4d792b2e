package llm

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ahrav/go-pairank/internal/ports"
)

type metricsProvider struct {
	next      Provider
	collector ports.MetricsCollector
}

// MetricsMiddleware records request counts, latency and token usage.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next Provider) Provider {
		if collector == nil {
			return next
		}
		return &metricsProvider{next: next, collector: collector}
	}
}

func (m *metricsProvider) Model() string { return m.next.Model() }

func (m *metricsProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	start := time.Now()
	comp, err := m.next.Generate(ctx, req)

	model := m.next.Model()
	labels := map[string]string{
		"provider": providerOf(model),
		"model":    model,
		"status":   requestStatus(ctx, err),
	}
	m.collector.RecordHistogram("llm_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)

	if err == nil {
		for kind, n := range map[string]int{"input": comp.TokensIn, "output": comp.TokensOut} {
			m.collector.RecordCounter("llm_tokens_total", float64(n), map[string]string{
				"provider":   labels["provider"],
				"model":      model,
				"token_type": kind,
			})
		}
	}
	return comp, err
}

func requestStatus(ctx context.Context, err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe) && pe.StatusCode > 0:
		return "http_" + strconv.Itoa(pe.StatusCode)
	}
	return "error"
}

func providerOf(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini"):
		return "google"
	}
	return "unknown"
}
