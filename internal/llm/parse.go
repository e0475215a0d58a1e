package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the outermost JSON object or array out of model output.
// Markdown code fences and surrounding prose are dropped and Python-style
// True, False and None literals outside strings are rewritten to JSON.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimPrefix(s, "JSON")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", &MalformedOutputError{Raw: text, Reason: "no JSON object or array"}
	}
	end := matchingClose(s, start)
	if end < 0 {
		return "", &MalformedOutputError{Raw: text, Reason: "unterminated JSON"}
	}
	return normalizeLiterals(s[start : end+1]), nil
}

// ParseJSON extracts JSON from model output and decodes it into T.
func ParseJSON[T any](text string) (T, error) {
	var v T
	raw, err := ExtractJSON(text)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, &MalformedOutputError{Raw: text, Reason: err.Error()}
	}
	return v, nil
}

// matchingClose returns the index of the bracket closing s[start], or -1.
func matchingClose(s string, start int) int {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var pythonLiterals = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
}

func normalizeLiterals(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
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
		if c == '"' {
			inString = true
			sb.WriteByte(c)
			continue
		}
		if isIdentStart(c) {
			j := i
			for j < len(s) && isIdentStart(s[j]) {
				j++
			}
			word := s[i:j]
			if repl, ok := pythonLiterals[word]; ok {
				word = repl
			}
			sb.WriteString(word)
			i = j - 1
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}
