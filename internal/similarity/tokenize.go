// Package similarity provides word-level overlap measures used by the
// rule-based inference collaborator.
package similarity

import (
	"strings"
	"unicode"
)

// Tokenize lowercases s and splits it into words of letters, digits and
// underscores. Apostrophes inside a word are dropped, so "don't" is "dont".
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'' || r == '’')
	})
	words := fields[:0]
	for _, f := range fields {
		f = strings.NewReplacer("'", "", "’", "").Replace(f)
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// WordSet returns the distinct tokens of s.
func WordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range Tokenize(s) {
		set[w] = true
	}
	return set
}
