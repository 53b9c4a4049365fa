package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ternarybob/profundo/internal/models"
)

// ExtractJSONBlock pulls the JSON payload out of a model response.
// Models often wrap JSON in markdown code fences or surround it with
// prose; this strips fences first and falls back to scanning for the
// first balanced object or array.
func ExtractJSONBlock(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", &models.ParsingError{Raw: response, Err: errors.New("empty response")}
	}

	if candidate := extractFenced(trimmed); candidate != "" {
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	if candidate := extractBalanced(trimmed); candidate != "" {
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", &models.ParsingError{Raw: response, Err: errors.New("no valid JSON block found in response")}
}

func extractFenced(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return ""
	}

	rest := s[start+3:]
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		// Skip a language tag like "json" on the fence line.
		rest = rest[newline+1:]
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func extractBalanced(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}

	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
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
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
