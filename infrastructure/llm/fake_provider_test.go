package llm

import (
	"context"
	"sync"
	"time"
)

type fakeReply struct {
	comp Completion
	err  error
}

// fakeProvider replays scripted replies, then repeats the last one.
type fakeProvider struct {
	mu      sync.Mutex
	model   string
	replies []fakeReply
	delay   time.Duration
	calls   int
	reqs    []Request
}

func newFakeProvider(replies ...fakeReply) *fakeProvider {
	if len(replies) == 0 {
		replies = []fakeReply{{comp: Completion{Text: "test response", TokensIn: 10, TokensOut: 20}}}
	}
	return &fakeProvider{model: "test-model", replies: replies}
}

func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (Completion, error) {
	f.mu.Lock()
	i := min(f.calls, len(f.replies)-1)
	f.calls++
	f.reqs = append(f.reqs, req)
	reply, delay := f.replies[i], f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return reply.comp, reply.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.reqs...)
}
