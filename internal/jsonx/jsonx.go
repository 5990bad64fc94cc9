// Package jsonx extracts and decodes JSON from model output. Generation
// responses often wrap JSON in code fences or prose; Extract recovers
// the payload and UnmarshalFlex decodes it with best effort.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Extract returns the first JSON object or array embedded in s.
// It strips markdown code fences first, then scans for a balanced
// bracket span. ok is false when nothing decodable is found.
func Extract(s string) (json.RawMessage, bool) {
	s = stripFences(s)

	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, false
	}

	open := s[start]
	var closer byte = '}'
	if open == '[' {
		closer = ']'
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), true
				}
				return nil, false
			}
		}
	}
	return nil, false
}

// UnmarshalFlex decodes raw into v, falling back to Extract when the
// payload is wrapped in fences or surrounded by prose.
func UnmarshalFlex(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	if inner, ok := Extract(string(raw)); ok {
		return json.Unmarshal(inner, v)
	}
	return json.Unmarshal(raw, v)
}

func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// Drop the language tag line, e.g. ```json.
		trimmed = trimmed[i+1:]
	}
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
