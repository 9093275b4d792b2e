// Package testutils provides deterministic fakes of the ports used by
// pairank, for tests across packages.
package testutils

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/ahrav/go-pairank/internal/ports"
)

// Reply is one scripted oracle answer.
type Reply struct {
	Text string
	Cost float64
	Err  error
	// Absent makes Query return a nil response and nil error.
	Absent bool
}

// OracleCall records the arguments of one Query.
type OracleCall struct {
	System string
	Prompt string
}

// ScriptedOracle replays Replies in order. Once the script is exhausted it
// returns Default.
type ScriptedOracle struct {
	ModelName string
	Default   Reply

	mu     sync.Mutex
	script []Reply
	calls  []OracleCall
}

var _ ports.Oracle = (*ScriptedOracle)(nil)

// NewScriptedOracle returns an oracle that answers with replies in order.
func NewScriptedOracle(replies ...Reply) *ScriptedOracle {
	return &ScriptedOracle{ModelName: "mock", script: replies, Default: Reply{Absent: true}}
}

// Query implements ports.Oracle.
func (o *ScriptedOracle) Query(ctx context.Context, system, prompt string) (*ports.OracleResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.calls = append(o.calls, OracleCall{System: system, Prompt: prompt})
	r := o.Default
	if len(o.script) > 0 {
		r, o.script = o.script[0], o.script[1:]
	}
	o.mu.Unlock()

	return reply(o.ModelName, r)
}

// Model implements ports.Oracle.
func (o *ScriptedOracle) Model() string { return o.ModelName }

// Calls returns a copy of the recorded calls.
func (o *ScriptedOracle) Calls() []OracleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]OracleCall(nil), o.calls...)
}

func reply(model string, r Reply) (*ports.OracleResponse, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Absent {
		return nil, nil
	}
	return &ports.OracleResponse{Text: r.Text, Cost: r.Cost, Model: model}, nil
}

var strengthPattern = regexp.MustCompile(`strength=(\d+)`)

// StrengthOracle prefers the candidate with the larger "strength=N" marker.
// The first marker in the prompt belongs to the first candidate and the
// second to the second; a prompt without two markers gets no response.
type StrengthOracle struct {
	ModelName string
	Cost      float64

	mu    sync.Mutex
	calls int
}

var _ ports.Oracle = (*StrengthOracle)(nil)

// Query implements ports.Oracle.
func (o *StrengthOracle) Query(ctx context.Context, _, prompt string) (*ports.OracleResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.calls++
	o.mu.Unlock()

	m := strengthPattern.FindAllStringSubmatch(prompt, 2)
	if len(m) < 2 {
		return nil, nil
	}
	first, _ := strconv.Atoi(m[0][1])
	second, _ := strconv.Atoi(m[1][1])

	pick := "first"
	if second > first {
		pick = "second"
	}
	text := "explanation: strength " + m[0][1] + " vs " + m[1][1] + "\ncandidate: " + pick + "\nconfidence: 0.8"
	return &ports.OracleResponse{Text: text, Cost: o.Cost, Model: o.Model()}, nil
}

// Model implements ports.Oracle.
func (o *StrengthOracle) Model() string {
	if o.ModelName == "" {
		return "strength-mock"
	}
	return o.ModelName
}

// Calls returns the number of queries made.
func (o *StrengthOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}
