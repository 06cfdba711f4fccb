// Package index builds the TF-IDF relevance index over a document snapshot
// and scores queries against it. An Index is immutable once built; the
// Manager publishes new generations by pointer swap.
package index

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on non-alphanumeric boundaries,
// dropping tokens shorter than two runes. No stemming or stop-word removal:
// the scoring function is a plain lexical vectorizer.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
