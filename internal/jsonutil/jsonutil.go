// Package jsonutil decodes JSON emitted by language models, which often
// arrives wrapped in code fences or surrounded by commentary.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeWithFallback unmarshals raw into v. If direct unmarshaling fails it
// strips markdown code fences and, as a last resort, decodes the outermost
// brace-balanced object found in the text.
func DecodeWithFallback(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty json input")
	}
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}
	stripped := StripCodeFences(raw)
	if stripped != raw {
		if err := json.Unmarshal([]byte(stripped), v); err == nil {
			return nil
		}
	}
	candidate := extractObject(stripped)
	if candidate == "" {
		return fmt.Errorf("no json object found in input")
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("decode extracted json: %w", err)
	}
	return nil
}

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line (```json)
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func extractObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
