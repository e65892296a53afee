// Package tokenizer splits field values and queries into terms. Terms are
// whitespace-delimited and kept verbatim: no case folding, stemming or
// stop-word removal, so a wildcard pattern matches exactly what was stored.
package tokenizer

import (
	"strings"
)

// Terms returns the distinct terms of text in first-seen order.
func Terms(text string) []string {
	words := strings.Fields(text)
	if len(words) <= 1 {
		return words
	}
	seen := make(map[string]struct{}, len(words))
	terms := words[:0]
	for _, word := range words {
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
	}
	return terms
}
