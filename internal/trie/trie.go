// Package trie implements a concurrent rune trie mapping terms to posting
// sets, with exact lookup and multi-wildcard pattern matching.
//
// Each node guards its own children, so writers on different branches never
// contend and readers only wait for the node they are stepping through.
//
// Wildcard cost model: a literal rune narrows the frontier to at most one
// child per state; a wildcard widens it to every child of every state. A
// pattern made only of wildcards therefore visits the whole trie.
package trie

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/posting"
)

// DefaultWildcard matches zero or more runes.
const DefaultWildcard = '*'

type node struct {
	mu       sync.RWMutex
	children map[rune]*node
	postings atomic.Pointer[posting.Set]
}

func (n *node) child(r rune) *node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.children[r]
}

// childOrCreate returns the child for r, creating it if needed. created is
// true when this call allocated the node.
func (n *node) childOrCreate(r rune) (c *node, created bool) {
	if c = n.child(r); c != nil {
		return c, false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if c = n.children[r]; c != nil {
		return c, false
	}
	if n.children == nil {
		n.children = make(map[rune]*node, 1)
	}
	c = &node{}
	n.children[r] = c
	return c, true
}

// childList snapshots the children so callers can descend without holding
// this node's lock.
func (n *node) childList() []*node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if len(n.children) == 0 {
		return nil
	}
	out := make([]*node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

// postingsOrCreate returns the node's posting set, installing one if absent.
func (n *node) postingsOrCreate() *posting.Set {
	if set := n.postings.Load(); set != nil {
		return set
	}
	n.postings.CompareAndSwap(nil, posting.NewSet())
	return n.postings.Load()
}

// Trie maps terms to posting sets.
type Trie struct {
	root     *node
	wildcard rune
	nodes    atomic.Int64
}

// Option configures a Trie.
type Option func(*Trie)

// WithWildcard sets the rune treated as the wildcard by WildcardSearch.
func WithWildcard(r rune) Option {
	return func(t *Trie) {
		t.wildcard = r
	}
}

func New(opts ...Option) *Trie {
	t := &Trie{
		root:     &node{},
		wildcard: DefaultWildcard,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.nodes.Store(1)
	return t
}

// Wildcard returns the configured wildcard rune.
func (t *Trie) Wildcard() rune { return t.wildcard }

// Insert attaches ord to term, creating one node per rune as needed.
func (t *Trie) Insert(term string, ord uint32) {
	cur := t.root
	for _, r := range term {
		next, created := cur.childOrCreate(r)
		if created {
			t.nodes.Add(1)
		}
		cur = next
	}
	cur.postingsOrCreate().Add(ord)
}

// Remove detaches ord from term. Nodes are never pruned; an emptied posting
// set simply stops matching.
func (t *Trie) Remove(term string, ord uint32) bool {
	n := t.find(term)
	if n == nil {
		return false
	}
	set := n.postings.Load()
	if set == nil {
		return false
	}
	return set.Remove(ord)
}

// ExactSearch returns the ordinals stored under term.
func (t *Trie) ExactSearch(term string) *roaring.Bitmap {
	n := t.find(term)
	if n == nil {
		return roaring.New()
	}
	if set := n.postings.Load(); set != nil {
		return set.Snapshot()
	}
	return roaring.New()
}

func (t *Trie) find(term string) *node {
	cur := t.root
	for _, r := range term {
		cur = cur.child(r)
		if cur == nil {
			return nil
		}
	}
	return cur
}

type state struct {
	n *node
	i int
}

// WildcardSearch returns the union of the postings of every term matching
// pattern, where the wildcard rune matches zero or more runes and every other
// rune matches itself.
//
// The search keeps a breadth-first frontier of (node, pattern index) states.
// A literal advances to the matching child. A wildcard keeps the index and
// fans out to every child, and also advances the index without consuming a
// rune. States whose index reaches the end of the pattern contribute their
// postings.
func (t *Trie) WildcardSearch(pattern string) *roaring.Bitmap {
	pat := compact([]rune(pattern), t.wildcard)
	result := roaring.New()

	visited := make(map[state]struct{})
	frontier := []state{{n: t.root, i: 0}}
	visited[frontier[0]] = struct{}{}
	push := func(next []state, s state) []state {
		if _, seen := visited[s]; seen {
			return next
		}
		visited[s] = struct{}{}
		return append(next, s)
	}

	for len(frontier) > 0 {
		var next []state
		for _, s := range frontier {
			if s.i == len(pat) {
				if set := s.n.postings.Load(); set != nil {
					set.OrInto(result)
				}
				continue
			}
			r := pat[s.i]
			if r != t.wildcard {
				if c := s.n.child(r); c != nil {
					next = push(next, state{n: c, i: s.i + 1})
				}
				continue
			}
			if s.i == len(pat)-1 {
				// A trailing wildcard accepts the whole subtree.
				collectSubtree(s.n, result)
				continue
			}
			next = push(next, state{n: s.n, i: s.i + 1})
			for _, c := range s.n.childList() {
				next = push(next, state{n: c, i: s.i})
			}
		}
		frontier = next
	}
	return result
}

func collectSubtree(n *node, dst *roaring.Bitmap) {
	stack := []*node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set := cur.postings.Load(); set != nil {
			set.OrInto(dst)
		}
		stack = append(stack, cur.childList()...)
	}
}

// compact collapses runs of wildcards, which match the same language as a
// single wildcard but multiply frontier states.
func compact(pat []rune, wildcard rune) []rune {
	out := pat[:0]
	for _, r := range pat {
		if r == wildcard && len(out) > 0 && out[len(out)-1] == wildcard {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Len returns the number of terms that currently hold at least one ordinal.
// Terms emptied by Remove are not counted.
func (t *Trie) Len() int64 {
	var n int64
	stack := []*node{t.root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if set := cur.postings.Load(); set != nil && !set.IsEmpty() {
			n++
		}
		stack = append(stack, cur.childList()...)
	}
	return n
}

// NodeCount returns the number of nodes, including the root. Nodes are never
// pruned, so this includes the paths of emptied terms.
func (t *Trie) NodeCount() int64 { return t.nodes.Load() }

// Match reports whether term matches pattern under the same wildcard
// semantics as WildcardSearch, without a trie.
func Match(term, pattern string, wildcard rune) bool {
	tr := []rune(term)
	pr := []rune(pattern)
	ti, pi := 0, 0
	star, mark := -1, 0
	for ti < len(tr) {
		switch {
		case pi < len(pr) && pr[pi] == wildcard:
			star, mark = pi, ti
			pi++
		case pi < len(pr) && pr[pi] == tr[ti]:
			ti++
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ti = mark
		default:
			return false
		}
	}
	for pi < len(pr) && pr[pi] == wildcard {
		pi++
	}
	return pi == len(pr)
}
