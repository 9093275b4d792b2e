package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type retryProvider struct {
	next       Provider
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries failed requests with exponential backoff and
// jitter. Context errors, an open circuit and non-retryable provider errors
// stop immediately.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next Provider) Provider {
		return &retryProvider{next: next, maxRetries: max(maxRetries, 0), baseDelay: baseDelay, maxDelay: maxDelay}
	}
}

func (r *retryProvider) Model() string { return r.next.Model() }

func (r *retryProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	var (
		lastErr error
		calls   int
	)
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		calls++
		comp, err := r.next.Generate(ctx, req)
		if err == nil {
			return comp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}
	return Completion{}, fmt.Errorf("request failed after %d attempts: %w", calls, lastErr)
}

// delay is base * 2^attempt with ±25% jitter, capped at maxDelay.
func (r *retryProvider) delay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	d := r.baseDelay * time.Duration(1<<attempt)
	// #nosec G404 - jitter does not need a cryptographic source
	d = d - d/4 + time.Duration(rand.Float64()*float64(d)/2)
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}
