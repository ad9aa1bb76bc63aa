package learning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// verdictPayload is the JSON object every gate LLM is instructed to return.
type verdictPayload struct {
	Verdict    string   `json:"verdict"`
	Confidence *float64 `json:"confidence"`
	Reason     string   `json:"reason"`
}

// parseVerdict extracts and decodes a gate verdict from raw LLM output.
// Models wrap JSON in markdown fences or narrate around it; extraction is
// tolerant per the gate contract: strip ``` fences first, then fall back to
// the outermost balanced { … } substring, and only then report a parse error.
func parseVerdict(raw string) (verdictPayload, error) {
	var v verdictPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &v); err == nil {
		return v, nil
	}
	obj, ok := balancedObject(raw)
	if !ok {
		return verdictPayload{}, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return verdictPayload{}, fmt.Errorf("parse response: %w", err)
	}
	return v, nil
}

// stripFences removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// balancedObject returns the outermost balanced {…} substring of s. Brace
// counting ignores braces inside JSON string literals.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	// Unbalanced: fall back to first-{ … last-} and let the JSON decoder
	// have the final word.
	end := strings.LastIndexByte(s, '}')
	if end > start {
		return s[start : end+1], true
	}
	return "", false
}

// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
