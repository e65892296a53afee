package fieldindex

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/posting"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/trie"
)

// ScanIndex keeps only the inverted map. Wildcard patterns are matched
// against every term, which is slower than TrieIndex but needs no extra
// memory per rune.
type ScanIndex struct {
	base
	wildcard rune
}

func NewScanIndex(opts Options) *ScanIndex {
	return &ScanIndex{
		base:     newBase(opts),
		wildcard: opts.Wildcard,
	}
}

func (ix *ScanIndex) AddTerm(term string, ord uint32) {
	ix.addTerm(term, ord)
}

func (ix *ScanIndex) RemoveTerm(term string, ord uint32) {
	ix.terms.remove(term, ord)
}

func (ix *ScanIndex) WildcardSearch(pattern string) *roaring.Bitmap {
	result := roaring.New()
	if pattern == "" {
		return result
	}
	ix.terms.each(func(term string, set *posting.Set) {
		if trie.Match(term, pattern, ix.wildcard) {
			set.OrInto(result)
		}
	})
	return result
}

func (ix *ScanIndex) Stats() Stats {
	return ix.stats("scan")
}
