package genai

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ExtractJSON returns the outermost JSON object or array embedded in s,
// tolerating code fences and prose around it. open is '{' or '['.
func ExtractJSON(s string, open byte) (string, bool) {
	s = StripFences(s)
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
