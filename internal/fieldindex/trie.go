package fieldindex

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/trie"
)

// TrieIndex answers exact lookups from the inverted map and wildcard patterns
// from a trie holding the same terms.
type TrieIndex struct {
	base
	trie *trie.Trie
}

func NewTrieIndex(opts Options) *TrieIndex {
	return &TrieIndex{
		base: newBase(opts),
		trie: trie.New(trie.WithWildcard(opts.Wildcard)),
	}
}

func (ix *TrieIndex) AddTerm(term string, ord uint32) {
	ix.addTerm(term, ord)
	ix.trie.Insert(term, ord)
}

func (ix *TrieIndex) RemoveTerm(term string, ord uint32) {
	ix.terms.remove(term, ord)
	ix.trie.Remove(term, ord)
}

func (ix *TrieIndex) WildcardSearch(pattern string) *roaring.Bitmap {
	if pattern == "" {
		return roaring.New()
	}
	return ix.trie.WildcardSearch(pattern)
}

func (ix *TrieIndex) Stats() Stats {
	st := ix.stats("trie")
	st.TrieNodes = int(ix.trie.NodeCount())
	return st
}
