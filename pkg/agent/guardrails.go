package agent

import (
	"strconv"
	"strings"
)

// Guardrails are free-text output rules from the agent configuration.
// The only enforced rule is a word limit, written "max N words" or
// "max words N"; other rules are carried for the system prompt only.
type Guardrails []string

// Apply enforces the rules on text. Text over a word limit is cut to the
// limit and suffixed with "...".
func (g Guardrails) Apply(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range g {
		n, ok := wordLimit(rule)
		if !ok {
			continue
		}
		words := strings.Fields(text)
		if len(words) > n {
			text = strings.Join(words[:n], " ") + "..."
		}
	}
	return text
}

// wordLimit extracts N from a rule that mentions both "max" and "word".
// N is the first number adjacent to a word token.
func wordLimit(rule string) (int, bool) {
	lower := strings.ToLower(rule)
	if !strings.Contains(lower, "max") || !strings.Contains(lower, "word") {
		return 0, false
	}
	parts := strings.Fields(lower)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.Trim(p, ".,;:"))
		if err != nil || n <= 0 {
			continue
		}
		if (i > 0 && strings.Contains(parts[i-1], "word")) ||
			(i+1 < len(parts) && strings.Contains(parts[i+1], "word")) {
			return n, true
		}
	}
	return 0, false
}
