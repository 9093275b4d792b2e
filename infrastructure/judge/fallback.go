package judge

import (
	"fmt"

	"github.com/ahrav/go-pairank/internal/domain"
)

// FallbackLabel prefixes every substituted response.
const FallbackLabel = "[FALLBACK RESPONSE]"

// fallbackResponse stands in for an absent oracle answer. It prefers the
// shorter payload and the first slot when both are the same length, and it
// always follows the verdict grammar.
func fallbackResponse(first, second string) string {
	pick := domain.PositionFirst
	reason := "both candidates are the same length"
	switch {
	case len(second) < len(first):
		pick = domain.PositionSecond
		reason = "the second candidate is more concise"
	case len(first) < len(second):
		reason = "the first candidate is more concise"
	}
	return fmt.Sprintf("explanation: %s No oracle response was available; %s.\ncandidate: %s\nconfidence: 0.5\n",
		FallbackLabel, reason, pick)
}
