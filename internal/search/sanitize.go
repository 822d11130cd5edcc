package search

import "strings"

// MaxQueryLength caps sanitized query text.
const MaxQueryLength = 100

// Sanitize strips markup from raw query text, collapses the remains, and
// caps the length. The output only ever contains characters that were
// present in the input.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inTag := false
	for _, r := range raw {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	runes := []rune(cleaned)
	if len(runes) > MaxQueryLength {
		cleaned = strings.TrimSpace(string(runes[:MaxQueryLength]))
	}
	return cleaned
}
