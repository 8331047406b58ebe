package classify

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// cleanJSON strips markdown fences, slices out the outermost object and
// closes anything a truncated response left open.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	text = text[start:]
	if end := strings.LastIndex(text, "}"); end >= 0 && balanced(text[:end+1]) {
		text = text[:end+1]
	}

	return repairTruncatedJSON(strings.TrimSpace(text))
}

// balanced reports whether every brace and bracket outside strings is closed.
func balanced(text string) bool {
	stack, inString := scanDelimiters(text)
	return len(stack) == 0 && !inString
}

func scanDelimiters(text string) (stack []byte, inString bool) {
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return stack, inString
}

// repairTruncatedJSON closes an unterminated string and any unclosed
// brackets or braces, innermost first.
func repairTruncatedJSON(text string) string {
	if text == "" {
		return text
	}
	stack, inString := scanDelimiters(text)
	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,:")
		text += string(stack[i])
	}
	return text
}

// flexInt decodes a JSON number, a numeric string or null. Anything else
// decodes as null.
type flexInt struct {
	Value *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		f.Value = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			f.Value = nil
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		// Not a number: unknown, same as null.
		f.Value = nil
		return nil
	}
	v := int(n)
	f.Value = &v
	return nil
}

// flexString decodes a JSON string or null; any other scalar is kept as text.
type flexString struct {
	Value *string
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		f.Value = nil
		return nil
	}
	var s string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		f.Value = nil
		return nil
	}
	f.Value = &s
	return nil
}
