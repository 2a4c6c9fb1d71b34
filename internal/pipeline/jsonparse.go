package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeModelJSON parses a model response into out, tolerating the usual
// response shapes: bare JSON, JSON inside a fenced code block, or JSON
// embedded in prose. The first balanced object or array found wins.
// Backends whose JSON mode only emits objects wrap array payloads in a
// one-key envelope; a candidate that fails to decode directly is retried
// as that envelope's value.
func decodeModelJSON(stage, raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return &ParseError{Stage: stage, Snippet: "", Err: fmt.Errorf("empty response")}
	}
	candidates := []string{trimmed, extractFencedBlock(trimmed), extractBalancedSpan(trimmed)}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return nil
		}
		if inner := unwrapSingleKeyValue(candidate); inner != "" {
			if err := json.Unmarshal([]byte(inner), out); err == nil {
				return nil
			}
		}
	}
	return &ParseError{Stage: stage, Snippet: snippet(trimmed), Err: fmt.Errorf("no decodable JSON found")}
}

// unwrapSingleKeyValue returns the value of a JSON object with exactly one
// key, or "" when the text is not such an object.
func unwrapSingleKeyValue(raw string) string {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil || len(wrapper) != 1 {
		return ""
	}
	for _, value := range wrapper {
		return string(value)
	}
	return ""
}

// extractFencedBlock returns the body of the first ``` fenced block, with
// an optional language tag stripped.
func extractFencedBlock(raw string) string {
	start := strings.Index(raw, "```")
	if start < 0 {
		return ""
	}
	rest := raw[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		header := strings.TrimSpace(rest[:newline])
		if header == "" || isLanguageTag(header) {
			rest = rest[newline+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func isLanguageTag(header string) bool {
	for _, r := range header {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// extractBalancedSpan returns the first balanced {...} or [...] span in
// the text, respecting string literals and escapes.
func extractBalancedSpan(raw string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if raw[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
