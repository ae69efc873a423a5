// Package application wires the grading pipeline: response parsing, the
// verifier graph, gating, adjudication, aggregation, and the run driver.
package application

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/aerograde/flygrade/internal/domain"
)

// transportErrorMarkers is the closed list of substrings that identify an
// API failure blob masquerading as a model reply. Matching is
// case-insensitive; any hit short-circuits the sample before parsing.
var transportErrorMarkers = []string{
	"api error", "api request failed", "timeout",
	"http error", "status code",
	"forbidden", "access denied", "unauthorized", "time out",
	"internal server error", "rate limit exceeded",
	"connection error", "network error", "failed to connect",
	"service unavailable", "bad request", "invalid request",
	"authentication failed", "quota exceeded",
}

// IsTransportError reports whether the raw reply is a transport-layer
// failure rather than model output.
func IsTransportError(response string) bool {
	lower := strings.ToLower(response)
	for _, marker := range transportErrorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ParseReply extracts a field map from free-form reply text. It tries, in
// order: the whole text as JSON, every fenced code block, then every
// balanced brace-matched substring, returning the first successful parse.
// Field values are preserved verbatim (numbers as json.Number, strings
// untouched); rejecting non-numeric values is the verifiers' job.
func ParseReply(text string) (domain.FieldMap, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domain.ErrParseFailure
	}

	if m, ok := decodeObject(trimmed); ok {
		return m, nil
	}

	for _, block := range fencedBlocks(trimmed) {
		if m, ok := decodeObject(block); ok {
			return m, nil
		}
	}

	for _, candidate := range balancedObjects(trimmed) {
		if m, ok := decodeObject(candidate); ok {
			return m, nil
		}
	}

	return nil, domain.ErrParseFailure
}

// decodeObject parses a JSON object keeping numbers as json.Number.
func decodeObject(s string) (domain.FieldMap, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return domain.FieldMap(m), true
}

// fencedBlocks returns the contents of every ``` fenced block, with any
// language tag on the opening fence stripped.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start == -1 {
			return blocks
		}
		rest = rest[start+3:]
		// Drop the language tag line, if any.
		if nl := strings.IndexByte(rest, '\n'); nl != -1 && !strings.ContainsAny(rest[:nl], "{}") {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end == -1 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+3:]
	}
}

// balancedObjects returns every top-level brace-balanced substring,
// tracking string literals and escapes so braces inside values don't
// terminate the match.
func balancedObjects(text string) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if end := matchBrace(text, i); end != -1 {
			out = append(out, text[i:end+1])
			i = end
		}
	}
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i
				}
			}
		}
	}
	return -1
}
