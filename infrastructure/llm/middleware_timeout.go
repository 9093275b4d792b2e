package llm

import (
	"context"
	"time"
)

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

// TimeoutMiddleware bounds each request. A non-positive timeout disables it.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Provider) Provider {
		if timeout <= 0 {
			return next
		}
		return &timeoutProvider{next: next, timeout: timeout}
	}
}

func (t *timeoutProvider) Model() string { return t.next.Model() }

func (t *timeoutProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, req)
}
