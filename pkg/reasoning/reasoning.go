// Package reasoning extracts and strips the delimited rationale blocks the
// orchestrator prefixes to its tool-call arguments:
//
//	[ORCHESTRATOR_THINKING]
//	<1–2 sentences of rationale>
//	[/ORCHESTRATOR_THINKING]
//	<actual query to the sub-agent>
//
// The agent runtime exposes no channel for the orchestrator's deliberation
// between tool calls, so the rationale rides on the arguments and is peeled
// off here before the query reaches clients. Sub-agent prompts instruct the
// agents to ignore the block.
package reasoning

import (
	"regexp"
	"strings"
)

// Block delimiters. These are a strict contract with the orchestrator's
// system prompt, not a heuristic.
const (
	OpenTag  = "[ORCHESTRATOR_THINKING]"
	CloseTag = "[/ORCHESTRATOR_THINKING]"
)

// blockPattern matches one well-formed block, non-greedy with dot-matches-all
// so multi-line rationales terminate at the first closing tag.
var blockPattern = regexp.MustCompile(
	`(?s)\[ORCHESTRATOR_THINKING\](.*?)\[/ORCHESTRATOR_THINKING\]`,
)

// Extract locates the first well-formed block in raw and splits it out.
// It returns the input with the block removed (surrounding whitespace
// trimmed) as query, and the inner text stripped of whitespace as
// reasoning. If no block is present, the input is returned unchanged with
// an empty reasoning.
func Extract(raw string) (query, reasoning string) {
	loc := blockPattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return raw, ""
	}

	reasoning = strings.TrimSpace(raw[loc[2]:loc[3]])
	query = strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
	return query, reasoning
}

// Strip removes every well-formed block from text. Applied to the final
// diagnosis before it is emitted as a message event, and to any
// thread-message fallback text. Idempotent.
func Strip(text string) string {
	if !strings.Contains(text, OpenTag) {
		return text
	}
	return strings.TrimSpace(blockPattern.ReplaceAllString(text, ""))
}

// Truncate caps s at max runes. Zero or negative max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
