package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-pairank/internal/ports"
)

// MemoryPayloads serves payloads from a map. Missing ids are unavailable.
type MemoryPayloads struct {
	mu       sync.Mutex
	payloads map[string]ports.Payload
}

var _ ports.PayloadSource = (*MemoryPayloads)(nil)

// NewMemoryPayloads returns a source holding one text payload per id.
func NewMemoryPayloads(texts map[string]string) *MemoryPayloads {
	m := &MemoryPayloads{payloads: make(map[string]ports.Payload, len(texts))}
	for id, text := range texts {
		m.Set(id, text)
	}
	return m
}

// Set stores or replaces the payload of id.
func (m *MemoryPayloads) Set(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[id] = ports.Payload{CandidateID: id, Ref: "mem/" + id, Text: text}
}

// Put stores a complete payload under its CandidateID.
func (m *MemoryPayloads) Put(p ports.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[p.CandidateID] = p
}

// Payload implements ports.PayloadSource.
func (m *MemoryPayloads) Payload(_ context.Context, id string) (ports.Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payloads[id]
	if !ok {
		return ports.Payload{}, ports.NewStoreError("Payload", id, ports.ErrPayloadUnavailable)
	}
	return p, nil
}

// FakeSourceControl is an in-memory branch table. Diffs are whatever the
// test registers with SetDiff.
type FakeSourceControl struct {
	mu       sync.Mutex
	branches map[string]bool
	diffs    map[string]string
	current  string
	dirty    bool
	commits  []string
}

var _ ports.SourceControl = (*FakeSourceControl)(nil)

// NewFakeSourceControl returns a repository with the given branches; the
// first is checked out.
func NewFakeSourceControl(branches ...string) *FakeSourceControl {
	f := &FakeSourceControl{branches: map[string]bool{}, diffs: map[string]string{}}
	for _, b := range branches {
		f.branches[b] = true
	}
	if len(branches) > 0 {
		f.current = branches[0]
	}
	return f
}

// SetDiff registers the diff returned for branch.
func (f *FakeSourceControl) SetDiff(branch, diff string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffs[branch] = diff
}

// MarkDirty simulates uncommitted changes in the working tree.
func (f *FakeSourceControl) MarkDirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty = true
}

// BranchExists implements ports.SourceControl.
func (f *FakeSourceControl) BranchExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[name], nil
}

// Diff implements ports.SourceControl.
func (f *FakeSourceControl) Diff(_ context.Context, base, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.branches[base] {
		return "", fmt.Errorf("unknown branch %q", base)
	}
	if !f.branches[branch] {
		return "", fmt.Errorf("unknown branch %q", branch)
	}
	return f.diffs[branch], nil
}

// CreateBranch implements ports.SourceControl.
func (f *FakeSourceControl) CreateBranch(_ context.Context, name, from string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branches[name] {
		return false, nil
	}
	if !f.branches[from] {
		return false, fmt.Errorf("unknown branch %q", from)
	}
	f.branches[name] = true
	return true, nil
}

// Checkout implements ports.SourceControl.
func (f *FakeSourceControl) Checkout(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.branches[name] {
		return fmt.Errorf("unknown branch %q", name)
	}
	f.current = name
	return nil
}

// CommitAll implements ports.SourceControl.
func (f *FakeSourceControl) CommitAll(_ context.Context, message string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return false, nil
	}
	f.dirty = false
	f.commits = append(f.commits, f.current+": "+message)
	return true, nil
}

// Current returns the checked out branch.
func (f *FakeSourceControl) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Commits returns "branch: message" for every commit made.
func (f *FakeSourceControl) Commits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commits...)
}

// Branches returns every branch name in sorted order.
func (f *FakeSourceControl) Branches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.branches))
	for b := range f.branches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// FakeAgent returns a canned result and optionally dirties a source
// control fake so the caller has something to commit.
type FakeAgent struct {
	Result ports.AgentResult
	Err    error
	// Touch is marked dirty when Result.ChangesMade is set.
	Touch *FakeSourceControl

	mu      sync.Mutex
	prompts []string
}

var _ ports.AgentRunner = (*FakeAgent)(nil)

// Execute implements ports.AgentRunner.
func (a *FakeAgent) Execute(ctx context.Context, prompt string) (ports.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.AgentResult{}, err
	}
	a.mu.Lock()
	a.prompts = append(a.prompts, prompt)
	a.mu.Unlock()

	if a.Err != nil {
		return ports.AgentResult{}, a.Err
	}
	if a.Result.ChangesMade && a.Touch != nil {
		a.Touch.MarkDirty()
	}
	res := a.Result
	if res.ExecutionTime == 0 {
		res.ExecutionTime = time.Millisecond
	}
	return res, nil
}

// Prompts returns every prompt the agent received.
func (a *FakeAgent) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompts...)
}
