package judge

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"
)

// ObjectiveKey is the context entry that overrides the task specification
// as the objective shown to the oracle.
const ObjectiveKey = "evolution_objective"

// maxContextText is the exclusive upper bound, in characters, for string
// context values included in the prompt.
const maxContextText = 1000

// DefaultSystemPrompt frames the oracle as a decisive reviewer.
const DefaultSystemPrompt = `You are an expert software architect and code reviewer. Compare two solutions and decide which is better.

Evaluation criteria, in order of importance: correctness, code quality, completeness, efficiency, best practices.
Be objective and focus on substantial differences. You must always choose one candidate; ties are not allowed.

Reply with exactly these three lines and nothing else:
explanation: <your reasoning>
candidate: <first or second>
confidence: <a number between 0.0 and 1.0>`

const promptText = `# Objective (what the coding agent was asked to achieve)

{{.Objective}}

# First candidate

{{.First}}

# Second candidate

{{.Second}}
{{range .Context}}{{if .Block}}
# {{.Key}}
{{.Value}}
{{else}}
**{{.Key}}**: {{.Value}}
{{end}}{{end}}
# Your task

Compare the two candidates against the objective and pick the better one.
Ties are not allowed. Reply with exactly these three lines:
explanation: <your reasoning>
candidate: <first or second>
confidence: <a number between 0.0 and 1.0>
`

var promptTemplate = template.Must(template.New("judgePrompt").Parse(promptText))

type contextEntry struct {
	Key   string
	Value string
	// Block entries are multi-line text rendered under their own heading.
	Block bool
}

type promptData struct {
	Objective string
	First     string
	Second    string
	Context   []contextEntry
}

// contextEntries keeps short strings and scalars in key order. Long strings
// and every other type are dropped to bound the prompt.
func contextEntries(ctx map[string]any) []contextEntry {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		if k != ObjectiveKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []contextEntry
	for _, k := range keys {
		switch v := ctx[k].(type) {
		case string:
			if utf8.RuneCountInString(v) < maxContextText {
				out = append(out, contextEntry{Key: k, Value: v, Block: true})
			}
		case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			out = append(out, contextEntry{Key: k, Value: fmt.Sprint(v)})
		}
	}
	return out
}

// Suffixes of per-candidate context keys. Callers label entries by
// CandidateA and CandidateB; the prompt labels them by slot.
const (
	suffixA      = "_a"
	suffixB      = "_b"
	suffixFirst  = "_first"
	suffixSecond = "_second"
)

// orientContext renames "_a" and "_b" keys to the slot their candidate is
// presented in, so per-candidate entries follow a swap. Other keys are
// copied unchanged.
func orientContext(ctx map[string]any, swapped bool) map[string]any {
	if len(ctx) == 0 {
		return ctx
	}
	slotA, slotB := suffixFirst, suffixSecond
	if swapped {
		slotA, slotB = slotB, slotA
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch {
		case k == ObjectiveKey:
		case strings.HasSuffix(k, suffixA) && len(k) > len(suffixA):
			k = strings.TrimSuffix(k, suffixA) + slotA
		case strings.HasSuffix(k, suffixB) && len(k) > len(suffixB):
			k = strings.TrimSuffix(k, suffixB) + slotB
		}
		out[k] = v
	}
	return out
}

// objective returns the context override when it is a non-empty string.
func objective(taskSpec string, ctx map[string]any) string {
	if o, ok := ctx[ObjectiveKey].(string); ok && o != "" {
		return o
	}
	return taskSpec
}

func renderPrompt(taskSpec, first, second string, ctx map[string]any) (string, error) {
	var buf bytes.Buffer
	err := promptTemplate.Execute(&buf, promptData{
		Objective: objective(taskSpec, ctx),
		First:     first,
		Second:    second,
		Context:   contextEntries(ctx),
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
