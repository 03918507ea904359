package grading

import "strings"

// fold normalizes a free-text answer for fill-blank comparison:
// surrounding whitespace is trimmed and the text is case-folded.
// Interior whitespace and punctuation are kept; " paris " matches
// "Paris" but "par is" does not.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
