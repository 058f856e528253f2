// Package textnorm folds message text into a canonical form for keyword matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases input, strips diacritics and collapses whitespace, so
// "  Reunión   MAÑANA " and "reunion manana" compare equal.
func Fold(input string) string {
	if input == "" {
		return ""
	}
	return Squash(StripMarks(input))
}

// StripMarks removes combining diacritics and keeps everything else as is.
func StripMarks(input string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, input)
	if err != nil {
		return input
	}
	return stripped
}

// Squash lowercases input and collapses whitespace without touching accents.
func Squash(input string) string {
	value := strings.ToLower(strings.TrimSpace(input))
	return strings.Join(strings.Fields(value), " ")
}

func ContainsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// InSet reports whether the folded text equals one of the words exactly.
func InSet(folded string, words ...string) bool {
	for _, word := range words {
		if folded == word {
			return true
		}
	}
	return false
}
