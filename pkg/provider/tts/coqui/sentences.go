package coqui

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// splitSentences cuts text after every sentence boundary and drops blank
// pieces. Trailing text without end punctuation forms the last sentence.
func splitSentences(text string) []string {
	var out []string
	for len(text) > 0 {
		end := findSentenceBoundary(text)
		if end < 0 {
			end = len(text) - 1
		}
		if s := strings.TrimSpace(text[:end+1]); s != "" {
			out = append(out, s)
		}
		text = text[end+1:]
	}
	return out
}

// findSentenceBoundary returns the byte index of the first '.', '!' or '?'
// that ends the string or is followed by whitespace, or -1. Decimals such as
// "3.14" therefore do not split.
func findSentenceBoundary(s string) int {
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[i+1:])
		if i+1 == len(s) || unicode.IsSpace(next) {
			return i
		}
	}
	return -1
}
