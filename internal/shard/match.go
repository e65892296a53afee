package shard

import (
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/trie"
)

// Matcher reports whether a stored record satisfies a query. Postings of a
// replaced record are retracted after the new version is swapped in, so
// every posting hit is re-checked against the record before it is returned.
type Matcher func(rec record.Record) bool

// TermMatcher matches records whose field holds every word of term.
func TermMatcher(field, term string) Matcher {
	want := tokenizer.Terms(term)
	return func(rec record.Record) bool {
		v, ok := rec.Get(field)
		if !ok || len(want) == 0 {
			return false
		}
		have := termSet(v.Text())
		for _, t := range want {
			if _, ok := have[t]; !ok {
				return false
			}
		}
		return true
	}
}

// ValueMatcher matches records whose whole field value equals raw.
func ValueMatcher(field, raw string) Matcher {
	return func(rec record.Record) bool {
		v, ok := rec.Get(field)
		return ok && raw != "" && v.Text() == raw
	}
}

// WildcardMatcher matches records whose field has, for every
// whitespace-separated sub-pattern, at least one term matching it.
func WildcardMatcher(field, pattern string, wildcard rune) Matcher {
	parts := strings.Fields(pattern)
	return func(rec record.Record) bool {
		v, ok := rec.Get(field)
		if !ok || len(parts) == 0 {
			return false
		}
		terms := tokenizer.Terms(v.Text())
		for _, p := range parts {
			if !anyMatch(terms, p, wildcard) {
				return false
			}
		}
		return true
	}
}

// AnyFieldMatcher matches records in which every term appears in at least
// one field, a term holding the wildcard rune being matched as a pattern.
// Different terms may match different fields.
func AnyFieldMatcher(terms []string, wildcard rune) Matcher {
	return func(rec record.Record) bool {
		if len(terms) == 0 {
			return false
		}
		fields := make([][]string, len(rec.Fields))
		for i, f := range rec.Fields {
			fields[i] = tokenizer.Terms(f.Value.Text())
		}
	next:
		for _, t := range terms {
			isPattern := strings.ContainsRune(t, wildcard)
			for _, ft := range fields {
				if isPattern && anyMatch(ft, t, wildcard) {
					continue next
				}
				if !isPattern && slices.Contains(ft, t) {
					continue next
				}
			}
			return false
		}
		return true
	}
}

func termSet(text string) map[string]struct{} {
	terms := tokenizer.Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

func anyMatch(terms []string, pattern string, wildcard rune) bool {
	for _, t := range terms {
		if trie.Match(t, pattern, wildcard) {
			return true
		}
	}
	return false
}
