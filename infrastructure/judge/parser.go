package judge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-pairank/internal/domain"
)

// Parse failures. None of them reach Compare's caller.
var (
	errNoVerdict        = errors.New("no candidate line found")
	errConflictingLines = errors.New("conflicting candidate lines")
	errTieVerdict       = errors.New("tie verdicts are not accepted")
	errUnknownToken     = errors.New("unrecognized candidate token")
)

// Confidence defaults.
const (
	defaultConfidence = 0.5
	// fuzzyDistance is the largest edit distance at which a misspelled
	// candidate token still counts as first or second.
	fuzzyDistance = 2
)

var confidenceWords = map[string]float64{
	"high":   0.9,
	"medium": 0.6,
	"low":    0.3,
}

var positionTokens = map[string]domain.Position{
	"first":       domain.PositionFirst,
	"1":           domain.PositionFirst,
	"candidate 1": domain.PositionFirst,
	"candidate1":  domain.PositionFirst,
	"second":      domain.PositionSecond,
	"2":           domain.PositionSecond,
	"candidate 2": domain.PositionSecond,
	"candidate2":  domain.PositionSecond,
}

var tieTokens = map[string]struct{}{
	"tie": {}, "draw": {}, "both": {}, "neither": {}, "equal": {},
}

// verdict is a successfully parsed oracle response.
type verdict struct {
	Candidate   domain.Position
	Explanation string
	Confidence  float64
}

type lineKey int

const (
	keyNone lineKey = iota
	keyExplanation
	keyCandidate
	// keyCandidateAlias lines ("winner:", "verdict:") name a slot only when
	// their value parses as one; otherwise they are prose.
	keyCandidateAlias
	keyConfidence
)

// fold returns a case-folded copy of s. cases.Caser is stateful, so every
// call gets its own.
func fold(s string) string { return cases.Fold().String(s) }

// stripMarkup removes markdown emphasis, headings, quotes and list markers.
func stripMarkup(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "># \t")
	for _, marker := range []string{"- ", "+ ", "* "} {
		s = strings.TrimPrefix(s, marker)
	}
	// Numbered list markers such as "2. " or "3) ".
	if i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }); i > 0 && i+1 < len(s) {
		if (s[i] == '.' || s[i] == ')') && s[i+1] == ' ' {
			s = s[i+2:]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '*', '_', '`', '"', '\'', '[', ']', '(', ')':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func classifyKey(raw string) lineKey {
	switch fold(stripMarkup(raw)) {
	case "explanation", "reasoning", "reason":
		return keyExplanation
	case "candidate":
		return keyCandidate
	case "winner", "verdict":
		return keyCandidateAlias
	case "confidence":
		return keyConfidence
	}
	return keyNone
}

// splitLine returns the key and value of a "key: value" line.
func splitLine(line string) (lineKey, string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return keyNone, ""
	}
	k := classifyKey(line[:i])
	if k == keyNone {
		return keyNone, ""
	}
	return k, strings.TrimSpace(line[i+1:])
}

// parsePosition maps a candidate token to a presentation slot.
func parsePosition(value string) (domain.Position, error) {
	tok := fold(stripMarkup(value))
	tok = strings.TrimRight(tok, ".!,;")
	tok = strings.Join(strings.Fields(tok), " ")

	candidates := []string{tok}
	if f := strings.Fields(tok); len(f) > 1 {
		candidates = append(candidates, f[0])
	}

	for _, c := range candidates {
		if p, ok := positionTokens[c]; ok {
			return p, nil
		}
		if _, ok := tieTokens[c]; ok {
			return "", errTieVerdict
		}
	}

	dFirst := levenshtein.ComputeDistance(tok, "first")
	dSecond := levenshtein.ComputeDistance(tok, "second")
	switch {
	case dFirst <= fuzzyDistance && dSecond > fuzzyDistance:
		return domain.PositionFirst, nil
	case dSecond <= fuzzyDistance && dFirst > fuzzyDistance:
		return domain.PositionSecond, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownToken, value)
}

// parseConfidence reads a numeric or worded confidence and clamps it to
// [0, 1]. Unreadable values yield the default.
func parseConfidence(value string) float64 {
	v := fold(stripMarkup(value))
	v = strings.TrimRight(v, ".!,;")
	if c, ok := confidenceWords[v]; ok {
		return c
	}

	percent := strings.HasSuffix(v, "%")
	v = strings.TrimSuffix(v, "%")
	if f := strings.Fields(v); len(f) > 0 {
		v = f[0]
	}
	c, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultConfidence
	}
	if percent {
		c /= 100
	}
	return min(1, max(0, c))
}

// parseVerdict reads the line-anchored grammar
//
//	explanation: <free text, may continue on following lines>
//	candidate: first|second
//	confidence: <0.0-1.0>
//
// Keys are case-insensitive and may carry markdown decoration. The
// response must name exactly one slot; repeated candidate lines must agree.
// "winner:" and "verdict:" count as candidate lines only when their value
// is a slot token.
func parseVerdict(text string) (verdict, error) {
	v := verdict{Confidence: defaultConfidence}

	var (
		found       bool
		explanation []string
		inExplain   bool
		sawExplain  bool
	)

	for _, line := range strings.Split(text, "\n") {
		key, value := splitLine(line)
		switch key {
		case keyExplanation:
			sawExplain, inExplain = true, true
			// Drop emphasis left over from "**Explanation:** text".
			value = strings.TrimSpace(strings.TrimLeft(value, "*_ \t"))
			if value != "" {
				explanation = append(explanation, value)
			}
			continue
		case keyCandidate, keyCandidateAlias:
			p, err := parsePosition(value)
			if err != nil {
				if key == keyCandidateAlias {
					if inExplain {
						explanation = append(explanation, strings.TrimSpace(line))
					}
					continue
				}
				return verdict{}, err
			}
			inExplain = false
			if found && p != v.Candidate {
				return verdict{}, errConflictingLines
			}
			v.Candidate, found = p, true
		case keyConfidence:
			inExplain = false
			v.Confidence = parseConfidence(value)
		default:
			if inExplain && strings.TrimSpace(line) != "" {
				explanation = append(explanation, strings.TrimSpace(line))
			}
		}
	}

	if !found {
		return verdict{}, errNoVerdict
	}
	if sawExplain {
		v.Explanation = strings.Join(explanation, "\n")
	} else {
		v.Explanation = strings.TrimSpace(text)
	}
	return v, nil
}
