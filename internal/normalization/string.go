package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases, strips diacritics, and collapses whitespace.
func Fold(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	return collapseSpaces(s)
}

// Variants derives the comparable forms of an utterance: the folded variant
// first, then (when it differs) a diacritic-preserving lower-cased variant.
// Matching logic runs against every variant so accented and unaccented input
// classify identically. The result is never empty for non-blank input.
func Variants(input string) []string {
	folded := Fold(input)
	preserved := collapseSpaces(strings.ToLower(strings.TrimSpace(input)))
	if preserved == folded {
		return []string{folded}
	}
	return []string{folded, preserved}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
