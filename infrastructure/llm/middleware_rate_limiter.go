package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// RateLimitMiddleware paces requests with a token bucket of limit requests
// per second and the given burst. All providers wrapped by the returned
// middleware share the bucket.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next Provider) Provider {
		return &rateLimitedProvider{next: next, limiter: limiter}
	}
}

func (r *rateLimitedProvider) Model() string { return r.next.Model() }

func (r *rateLimitedProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Completion{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Generate(ctx, req)
}
