// Package tokenizer turns raw text into the normalized terms stored in the
// inverted index. The builder and the query path share this package; a query
// only ever matches what the builder indexed, so both sides must tokenize
// through the exact same code.
package tokenizer

import (
	"strings"
)

// stopWords are common English function words excluded from indexing and
// query matching.
var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "in": {}, "at": {}, "of": {}, "a": {}, "an": {},
	"and": {}, "or": {}, "to": {}, "for": {}, "on": {}, "with": {}, "by": {},
	"this": {}, "that": {}, "it": {}, "as": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "from": {}, "which": {}, "into": {}, "about": {},
	"can": {}, "will": {}, "has": {}, "have": {}, "had": {}, "you": {},
	"your": {}, "we": {}, "they": {}, "their": {}, "our": {}, "not": {},
	"how": {},
}

// Tokenize lowercases text, extracts maximal runs of ASCII letters and
// digits, and drops runs of length <= 2 as well as stop words. Every other
// character is a separator. It never fails; empty input yields no tokens.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// TermFrequencies counts occurrences of each distinct token.
func TermFrequencies(tokens []string) map[string]int {
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs
}

// IsStopWord reports whether w is in the stop-word set.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}
