package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-pairank/internal/ports"
)

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
		wantMsg string
	}{
		{name: "missing key", cfg: Config{Provider: "openai", Model: "gpt-4o"}, wantErr: ErrEmptyAPIKey},
		{name: "missing model", cfg: Config{Provider: "openai", APIKey: "k"}, wantErr: ErrInvalidModel},
		{name: "unknown provider", cfg: Config{Provider: "nope", APIKey: "k", Model: "m"}, wantMsg: "unknown provider"},
		{
			name:    "bad base url",
			cfg:     Config{Provider: "openai", APIKey: "k", Model: "gpt-4o", BaseURL: "ftp://x"},
			wantMsg: "invalid BaseURL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestProvidersRegistered(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "google", "openai"}, Providers())
}

func TestClientQuery(t *testing.T) {
	fake := newFakeProvider(fakeReply{comp: Completion{Text: "candidate: first", TokensIn: 2_000_000, TokensOut: 1_000_000}})
	client := NewClientWithProvider(fake, &Pricing{InputPerMTok: 1, OutputPerMTok: 4})

	resp, err := client.Query(context.Background(), "be fair", "compare")
	require.NoError(t, err)
	assert.Equal(t, "candidate: first", resp.Text)
	assert.InDelta(t, 6.0, resp.Cost, 1e-9)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 2_000_000, resp.TokensIn)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "be fair", reqs[0].System)
	assert.Equal(t, "compare", reqs[0].Prompt)
}

func TestClientQueryEmptyText(t *testing.T) {
	client := NewClientWithProvider(newFakeProvider(fakeReply{comp: Completion{}}), nil)

	resp, err := client.Query(context.Background(), "", "p")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ports.ErrEmptyResponse)
}

func TestClientQueryError(t *testing.T) {
	boom := NewProviderError("openai", ErrorTypeRateLimit, 429, "slow down", nil)
	client := NewClientWithProvider(newFakeProvider(fakeReply{err: boom}), nil)

	_, err := client.Query(context.Background(), "", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Provider) Provider {
			return providerFunc{model: next.Model(), fn: func(ctx context.Context, r Request) (Completion, error) {
				order = append(order, name)
				return next.Generate(ctx, r)
			}}
		}
	}

	p := Chain(newFakeProvider(), tag("outer"), tag("inner"))
	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type providerFunc struct {
	model string
	fn    func(context.Context, Request) (Completion, error)
}

func (p providerFunc) Model() string { return p.model }
func (p providerFunc) Generate(ctx context.Context, r Request) (Completion, error) {
	return p.fn(ctx, r)
}

func TestPricingFor(t *testing.T) {
	tests := []struct {
		model string
		want  Pricing
	}{
		{model: "gpt-4o-mini-2024-07-18", want: Pricing{InputPerMTok: 0.15, OutputPerMTok: 0.60}},
		{model: "gpt-4o-2024-08-06", want: Pricing{InputPerMTok: 2.50, OutputPerMTok: 10.00}},
		{model: "claude-3-5-sonnet-20241022", want: Pricing{InputPerMTok: 3, OutputPerMTok: 15}},
		{model: "local-llama", want: Pricing{}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, PricingFor(tt.model))
		})
	}

	assert.InDelta(t, 0.0105, Pricing{InputPerMTok: 3, OutputPerMTok: 15}.Cost(1000, 500), 1e-12)
}

func TestProviderErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		want      error
		retryable bool
	}{
		{status: 429, want: ports.ErrRateLimited, retryable: true},
		{status: 503, want: ports.ErrServiceUnavailable, retryable: true},
		{status: 408, want: ports.ErrTimeout, retryable: true},
		{status: 401, retryable: false},
		{status: 400, retryable: false},
	}
	for _, tt := range tests {
		err := httpError("openai", tt.status, "", errors.New("raw"))
		if tt.want != nil {
			assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		}
		assert.Equal(t, tt.retryable, err.IsRetryable(), "status %d", tt.status)
		assert.Equal(t, tt.retryable, retryable(err), "status %d", tt.status)
	}

	assert.False(t, retryable(contextError("openai", context.Canceled)))
	assert.False(t, retryable(ErrCircuitOpen))
	assert.True(t, retryable(errors.New("connection reset")))
	assert.Contains(t, httpError("google", 500, "down", nil).Error(), "google error (HTTP 500) [server_error]: down")
}
