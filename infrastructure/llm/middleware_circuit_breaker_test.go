package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-pairank/internal/testutils"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = clock.Now

	fail := func() error { return errors.New("down") }
	succeed := func() error { return nil }

	assert.Error(t, cb.Call(fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Call(fail))
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Call(succeed), ErrCircuitOpen)

	clock.Advance(time.Minute)
	assert.Error(t, cb.Call(fail), "failed probe reopens")
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(succeed), ErrCircuitOpen)

	clock.Advance(time.Minute)
	require.NoError(t, cb.Call(succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSingleProbe(t *testing.T) {
	clock := &manualClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(1, time.Second)
	cb.now = clock.Now

	_ = cb.Call(func() error { return errors.New("down") })
	clock.Advance(time.Second)

	release := make(chan struct{})
	probeStarted := make(chan struct{})
	go func() {
		_ = cb.Call(func() error {
			close(probeStarted)
			<-release
			return nil
		})
	}()
	<-probeStarted

	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
	close(release)
	assert.Eventually(t, func() bool { return cb.State() == StateClosed }, time.Second, time.Millisecond)
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	_ = cb.Call(func() error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerMiddlewareMetrics(t *testing.T) {
	metrics := testutils.NewRecordingMetrics()
	fake := newFakeProvider(fakeReply{err: errors.New("down")})
	p := CircuitBreakerMiddlewareWithMetrics(NewCircuitBreaker(1, time.Hour), metrics)(fake)

	for i := 0; i < 3; i++ {
		_, _ = p.Generate(context.Background(), Request{Prompt: "x"})
	}

	assert.Equal(t, 1, fake.Calls(), "open circuit short-circuits the provider")
	assert.Equal(t, 1.0, metrics.Counter("circuit_breaker_requests_total", map[string]string{"model": "test-model", "outcome": "failure"}))
	assert.Equal(t, 2.0, metrics.Counter("circuit_breaker_requests_total", map[string]string{"model": "test-model", "outcome": "rejected"}))
	assert.Equal(t, float64(StateOpen), metrics.Gauge("circuit_breaker_state", map[string]string{"model": "test-model"}))
}
