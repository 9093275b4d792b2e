package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-pairank/internal/ports"
)

// ErrCircuitOpen is returned without calling the provider while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	// StateClosed passes every request through.
	StateClosed BreakerState = iota
	// StateOpen rejects requests until the cooldown has elapsed.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and admits a
// probe once cooldown has passed. A successful probe closes it again.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{maxFailures: max(maxFailures, 1), cooldown: cooldown, now: time.Now}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a request may proceed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

// done records the outcome of an admitted request.
func (cb *CircuitBreaker) done(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if !failed {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// Call runs fn through the breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	// Cancellation says nothing about provider health.
	cb.done(err != nil && !errors.Is(err, context.Canceled))
	return err
}

type breakerProvider struct {
	next    Provider
	cb      *CircuitBreaker
	metrics ports.MetricsCollector
}

// CircuitBreakerMiddleware shares one breaker across every request made
// through the returned middleware.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(NewCircuitBreaker(maxFailures, cooldown), nil)
}

// CircuitBreakerMiddlewareWithMetrics wraps providers in cb and reports
// outcomes and state to metrics, which may be nil.
func CircuitBreakerMiddlewareWithMetrics(cb *CircuitBreaker, metrics ports.MetricsCollector) Middleware {
	return func(next Provider) Provider {
		return &breakerProvider{next: next, cb: cb, metrics: metrics}
	}
}

func (b *breakerProvider) Model() string { return b.next.Model() }

func (b *breakerProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	var comp Completion
	err := b.cb.Call(func() error {
		var err error
		comp, err = b.next.Generate(ctx, req)
		return err
	})

	if b.metrics != nil {
		labels := map[string]string{"model": b.next.Model()}
		outcome := "success"
		switch {
		case errors.Is(err, ErrCircuitOpen):
			outcome = "rejected"
		case err != nil:
			outcome = "failure"
		}
		b.metrics.RecordCounter("circuit_breaker_requests_total", 1,
			map[string]string{"model": labels["model"], "outcome": outcome})
		b.metrics.RecordGauge("circuit_breaker_state", float64(b.cb.State()), labels)
	}
	return comp, err
}
