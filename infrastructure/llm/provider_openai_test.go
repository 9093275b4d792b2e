package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-pairank/internal/ports"
)

func openAIServer(t *testing.T, status int, body any, inspect func(map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req map[string]any
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && inspect != nil {
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAIProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantModel string
		wantErr   string
	}{
		{name: "defaults", cfg: Config{APIKey: "k"}, wantModel: OpenAIDefaultModel},
		{name: "explicit model", cfg: Config{APIKey: "k", Model: "gpt-4o", Timeout: time.Minute}, wantModel: "gpt-4o"},
		{name: "no key", cfg: Config{}, wantErr: "API key cannot be empty"},
		{name: "relative base url", cfg: Config{APIKey: "k", BaseURL: "/v1"}, wantErr: "invalid BaseURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newOpenAIProvider(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, p.Model())
		})
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": "candidate: first"},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 4, "total_tokens": 44},
	}, func(req map[string]any) {
		assert.Equal(t, "gpt-4o", req["model"])
		assert.Equal(t, float64(DefaultMaxTokens), req["max_tokens"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "compare these", msgs[1].(map[string]any)["content"])
	})

	p, err := newOpenAIProvider(Config{APIKey: "test-key", Model: "gpt-4o", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	comp, err := p.Generate(context.Background(), Request{System: "be fair", Prompt: "compare these"})
	require.NoError(t, err)
	assert.Equal(t, Completion{Text: "candidate: first", TokensIn: 40, TokensOut: 4}, comp)
}

func TestOpenAIGenerateEstimatesMissingUsage(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "12345678"}}},
	}, nil)

	p, err := newOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	comp, err := p.Generate(context.Background(), Request{Prompt: "abcd"})
	require.NoError(t, err)
	assert.Equal(t, 1, comp.TokensIn)
	assert.Equal(t, 2, comp.TokensOut)
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, map[string]any{"choices": []any{}}, nil)
	p, err := newOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrNoResponseChoice)
}

func TestOpenAIGenerateErrors(t *testing.T) {
	srv := openAIServer(t, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"},
	}, nil)
	p, err := newOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestOpenAIGenerateCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server notices a client disconnect only once the body is read.
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	// Cleanups run last-in first-out: release the handler, then close.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p, err := newOpenAIProvider(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, Request{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.False(t, retryable(err))
}
