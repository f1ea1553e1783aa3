package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips diacritics ("Čokolada" -> "cokolada").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

func splitWords(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Tokenize splits a description into distinct keyword tokens in order of
// first appearance. Case, diacritics and punctuation are ignored; tokens
// shorter than minLen and purely numeric tokens are dropped.
func Tokenize(description string, minLen int) []string {
	words := splitWords(description)
	seen := make(map[string]bool, len(words))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < minLen || isNumber(w) || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// NormalizeDescription is the key used for exact link lookups: folded,
// punctuation stripped, single spaced. Numbers are kept.
func NormalizeDescription(description string) string {
	return strings.Join(splitWords(description), " ")
}
