package llm

import (
	"fmt"
	"math"
	"net/url"
	"time"
)

// Bounds applied to request options before they reach a vendor SDK.
const (
	MinTimeout = time.Second
	MaxTimeout = 10 * time.Minute

	maxTemperature = 2.0
)

// ValidateBaseURL normalizes a base URL. An empty string selects the
// provider default.
func ValidateBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps timeout into [MinTimeout, MaxTimeout]. Zero or
// negative means no timeout.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

func clamp(v, lo, hi float64) float64 { return min(max(v, lo), hi) }

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return min(r.MaxTokens, math.MaxInt32)
}

func (r Request) temperature() (float64, bool) {
	if r.Temperature == nil {
		return 0, false
	}
	return clamp(*r.Temperature, 0, maxTemperature), true
}

// estimateTokens approximates a token count at four bytes per token. It is
// used when a provider omits usage.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// tokenCount prefers the provider-reported count.
func tokenCount(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return estimateTokens(text)
}
