package classify

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	maxRationaleChars = 200
	maxTitleWords     = 12
	maxSummaryWords   = 60
	maxEvidenceWords  = 40
)

// cleanText applies NFC normalization and collapses whitespace runs.
func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// capWords keeps at most n words of s.
func capWords(s string, n int) string {
	words := strings.Fields(norm.NFC.String(s))
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// capChars keeps at most n runes of s.
func capChars(s string, n int) string {
	s = cleanText(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
