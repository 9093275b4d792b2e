package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-pairank/internal/testutils"
)

func TestMetricsMiddleware(t *testing.T) {
	metrics := testutils.NewRecordingMetrics()
	fake := newFakeProvider()
	fake.model = "claude-3-5-sonnet"
	p := MetricsMiddleware(metrics)(fake)

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)

	ok := map[string]string{"provider": "anthropic", "model": "claude-3-5-sonnet", "status": "success"}
	assert.Equal(t, 1.0, metrics.Counter("llm_requests_total", ok))
	assert.Len(t, metrics.Histogram("llm_latency_seconds", ok), 1)
	assert.Equal(t, 10.0, metrics.Counter("llm_tokens_total",
		map[string]string{"provider": "anthropic", "model": "claude-3-5-sonnet", "token_type": "input"}))
	assert.Equal(t, 20.0, metrics.Counter("llm_tokens_total",
		map[string]string{"provider": "anthropic", "model": "claude-3-5-sonnet", "token_type": "output"}))
}

func TestMetricsMiddlewareStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "http", err: NewProviderError("openai", ErrorTypeRateLimit, 429, "", nil), want: "http_429"},
		{name: "circuit", err: ErrCircuitOpen, want: "circuit_open"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "other", err: assert.AnError, want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := testutils.NewRecordingMetrics()
			fake := newFakeProvider(fakeReply{err: tt.err})
			fake.model = "gpt-4o"
			p := MetricsMiddleware(metrics)(fake)

			_, err := p.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, 1.0, metrics.Counter("llm_requests_total",
				map[string]string{"provider": "openai", "model": "gpt-4o", "status": tt.want}))
			assert.Zero(t, metrics.Counter("llm_tokens_total",
				map[string]string{"provider": "openai", "model": "gpt-4o", "token_type": "input"}))
		})
	}
}

func TestMetricsMiddlewareNilCollector(t *testing.T) {
	fake := newFakeProvider()
	assert.Same(t, fake, MetricsMiddleware(nil)(fake))
}
