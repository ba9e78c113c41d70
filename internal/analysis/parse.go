package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrParseFailure means model output could not be read as a JSON object.
var ErrParseFailure = errors.New("analysis parse failure")

// Parse reads a JSON object out of model output. Code fences and a quoted
// JSON string wrapper are removed first; if the text still does not parse,
// the span from the first '{' to the last '}' is tried.
func Parse(raw string) (map[string]any, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty output", ErrParseFailure)
	}
	obj, err := decodeObject(cleaned)
	if err == nil {
		return obj, nil
	}
	if span := braceSpan(cleaned); span != "" && span != cleaned {
		if obj, spanErr := decodeObject(span); spanErr == nil {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
}

// StripFences removes markdown code fences and unwraps a JSON document that
// was returned as an escaped string literal.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// Drop the info string, e.g. ```json
			if info := strings.TrimSpace(s[:nl]); !strings.ContainsAny(info, "{[") {
				s = s[nl+1:]
			}
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			s = strings.TrimSpace(inner)
		}
	}
	return s
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	return obj, nil
}

func braceSpan(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// toSnake converts camelCase or PascalCase to snake_case. Existing
// underscores and hyphens are kept as single underscores.
func toSnake(key string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(key))
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' &&
				(unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
					(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
