// Package llm is the oracle transport: provider clients for OpenAI, Anthropic
// and Google behind one Provider interface, a middleware chain for
// rate limiting, retries, circuit breaking, timeouts, tracing and metrics,
// and a Client that prices each completion and satisfies ports.Oracle.
//
// Basic usage:
//
//	client, err := llm.NewClient(llm.Config{
//	    Provider: "anthropic",
//	    APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:    "claude-3-5-sonnet-20241022",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(5, 10),
//	        llm.RetryMiddleware(2, time.Second, 10*time.Second),
//	        llm.TimeoutMiddleware(2 * time.Minute),
//	    },
//	})
//	resp, err := client.Query(ctx, systemPrompt, prompt)
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-pairank/internal/ports"
)

// DefaultMaxTokens bounds the completion length when a request does not set one.
const DefaultMaxTokens = 1024

// Request is a single completion request.
type Request struct {
	System string
	Prompt string
	// MaxTokens <= 0 selects DefaultMaxTokens.
	MaxTokens int
	// Temperature is left to the provider default when nil.
	Temperature *float64
}

// Completion is a provider reply with its token usage.
type Completion struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Provider is the minimal contract a model vendor implements. Middleware
// wraps Providers to add cross-cutting behavior.
type Provider interface {
	Generate(ctx context.Context, req Request) (Completion, error)
	Model() string
}

// Middleware wraps a Provider.
type Middleware func(Provider) Provider

// Chain applies middleware so that the first entry is the outermost.
func Chain(p Provider, mw ...Middleware) Provider {
	for i := len(mw) - 1; i >= 0; i-- {
		p = mw[i](p)
	}
	return p
}

// Config describes how to build a Client.
type Config struct {
	// Provider names a registered factory: openai, anthropic or google.
	Provider string
	// APIKey authenticates with the provider.
	APIKey string
	Model  string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Timeout is the HTTP client timeout where the provider supports one.
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
	// Pricing overrides the built-in price table for Model.
	Pricing *Pricing
	// Middleware is applied in order, first entry outermost.
	Middleware []Middleware
}

// ProviderFactory builds a Provider from configuration.
type ProviderFactory func(Config) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]ProviderFactory{}
)

// RegisterProvider makes a provider available to NewClient under name.
func RegisterProvider(name string, f ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Providers lists the registered provider names.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Client adapts a Provider chain to ports.Oracle and prices every reply.
type Client struct {
	provider    Provider
	pricing     Pricing
	maxTokens   int
	temperature *float64
}

var _ ports.Oracle = (*Client)(nil)

// NewClient builds the named provider, wraps it in cfg.Middleware and
// returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if cfg.Model == "" {
		return nil, ErrInvalidModel
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %v)", cfg.Provider, Providers())
	}

	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}

	c := NewClientWithProvider(p, cfg.Pricing, cfg.Middleware...)
	c.maxTokens = cfg.MaxTokens
	c.temperature = cfg.Temperature
	return c, nil
}

// NewClientWithProvider wraps an existing Provider. A nil pricing looks the
// model up in the built-in table.
func NewClientWithProvider(p Provider, pricing *Pricing, mw ...Middleware) *Client {
	c := &Client{provider: Chain(p, mw...)}
	if pricing != nil {
		c.pricing = *pricing
	} else {
		c.pricing = PricingFor(p.Model())
	}
	return c
}

// Query implements ports.Oracle. A blank completion is reported as
// ports.ErrEmptyResponse.
func (c *Client) Query(ctx context.Context, system, prompt string) (*ports.OracleResponse, error) {
	comp, err := c.provider.Generate(ctx, Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, err
	}
	if comp.Text == "" {
		return nil, ports.NewOracleError(c.Model(), "Query", ports.ErrEmptyResponse)
	}
	return &ports.OracleResponse{
		Text:      comp.Text,
		Cost:      c.pricing.Cost(comp.TokensIn, comp.TokensOut),
		TokensIn:  comp.TokensIn,
		TokensOut: comp.TokensOut,
		Model:     c.Model(),
	}, nil
}

// Model implements ports.Oracle.
func (c *Client) Model() string { return c.provider.Model() }
