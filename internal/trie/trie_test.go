package trie

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, terms map[string][]uint32, opts ...Option) *Trie {
	t.Helper()
	tr := New(opts...)
	for term, ords := range terms {
		for _, ord := range ords {
			tr.Insert(term, ord)
		}
	}
	return tr
}

func TestExactSearch(t *testing.T) {
	tr := build(t, map[string][]uint32{
		"Paris":  {1, 2},
		"Par":    {3},
		"Texas":  {2},
		"Zürich": {4},
	})
	assert.Equal(t, []uint32{1, 2}, tr.ExactSearch("Paris").ToArray())
	assert.Equal(t, []uint32{3}, tr.ExactSearch("Par").ToArray())
	assert.Equal(t, []uint32{4}, tr.ExactSearch("Zürich").ToArray())
	assert.True(t, tr.ExactSearch("Pa").IsEmpty(), "interior node without postings")
	assert.True(t, tr.ExactSearch("Parisian").IsEmpty())
	assert.True(t, tr.ExactSearch("paris").IsEmpty(), "lookup is case sensitive")
	assert.Equal(t, int64(4), tr.Len())
}

func TestWildcardSearch(t *testing.T) {
	tr := build(t, map[string][]uint32{
		"Paris":   {1},
		"Parma":   {2},
		"Texas":   {3},
		"Pa":      {4},
		"abcabc":  {5},
		"keyword": {6},
	})
	cases := []struct {
		pattern string
		want    []uint32
	}{
		{"Par*", []uint32{1, 2}},
		{"Pa*", []uint32{1, 2, 4}},
		{"*", []uint32{1, 2, 3, 4, 5, 6}},
		{"***", []uint32{1, 2, 3, 4, 5, 6}},
		{"*s", []uint32{1, 3}},
		{"*ar*", []uint32{1, 2}},
		{"P*s", []uint32{1}},
		{"T*x*s", []uint32{3}},
		{"Pa", []uint32{4}},
		{"a*c", []uint32{5}},
		{"*bc*bc", []uint32{5}},
		{"key*d", []uint32{6}},
		{"X*", nil},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.pattern, func(t *testing.T) {
			got := tr.WildcardSearch(tc.pattern).ToArray()
			if len(tc.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWildcardAgreesWithMatch(t *testing.T) {
	terms := []string{"alpha", "alpine", "beta", "abba", "a", "b", "aa", "banana", "bandana"}
	tr := New()
	for i, term := range terms {
		tr.Insert(term, uint32(i))
	}
	patterns := []string{"a*", "*a", "*an*", "b*n*a", "a*a", "*", "a", "**a**", "ban*na", "*z*"}
	for _, p := range patterns {
		var want []uint32
		for i, term := range terms {
			if Match(term, p, DefaultWildcard) {
				want = append(want, uint32(i))
			}
		}
		got := tr.WildcardSearch(p).ToArray()
		if len(want) == 0 {
			assert.Empty(t, got, "pattern %q", p)
			continue
		}
		assert.Equal(t, want, got, "pattern %q", p)
	}
}

func TestCustomWildcard(t *testing.T) {
	tr := build(t, map[string][]uint32{"a*b": {1}, "axxb": {2}}, WithWildcard('%'))
	assert.Equal(t, '%', tr.Wildcard())
	assert.Equal(t, []uint32{1, 2}, tr.WildcardSearch("a%b").ToArray())
	assert.Equal(t, []uint32{1}, tr.WildcardSearch("a*b").ToArray(), "star is a literal here")
}

func TestRemove(t *testing.T) {
	tr := build(t, map[string][]uint32{"Paris": {1, 2}})
	assert.True(t, tr.Remove("Paris", 1))
	assert.False(t, tr.Remove("Paris", 1))
	assert.False(t, tr.Remove("Lyon", 1))
	assert.Equal(t, []uint32{2}, tr.ExactSearch("Paris").ToArray())
	assert.Equal(t, []uint32{2}, tr.WildcardSearch("P*").ToArray())
	assert.Equal(t, int64(1), tr.Len())

	assert.True(t, tr.Remove("Paris", 2))
	assert.Equal(t, int64(0), tr.Len(), "emptied terms are not counted")
	assert.Equal(t, int64(6), tr.NodeCount(), "nodes are kept")
	assert.True(t, tr.WildcardSearch("*").IsEmpty())
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("Paris", "Par*", '*'))
	assert.True(t, Match("Paris", "*", '*'))
	assert.True(t, Match("", "*", '*'))
	assert.False(t, Match("", "a", '*'))
	assert.True(t, Match("abc", "a*b*c", '*'))
	assert.False(t, Match("abc", "a*d", '*'))
	assert.True(t, Match("mississippi", "m*iss*ppi", '*'))
}

func TestConcurrentInsertAndSearch(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				tr.Insert(fmt.Sprintf("term%d", i), uint32(w*500+i))
				_ = tr.WildcardSearch("term1*")
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, int64(500), tr.Len())
	assert.Equal(t, uint64(8), tr.ExactSearch("term42").GetCardinality())
	assert.Equal(t, uint64(4000), tr.WildcardSearch("term*").GetCardinality())
}

func BenchmarkInsert(b *testing.B) {
	tr := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Insert(fmt.Sprintf("keyword%d", i%10000), uint32(i))
	}
}

func BenchmarkWildcardPrefix(b *testing.B) {
	tr := New()
	for i := 0; i < 10000; i++ {
		tr.Insert(fmt.Sprintf("keyword%d", i), uint32(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tr.WildcardSearch("keyword12*")
	}
}

func BenchmarkWildcardInfix(b *testing.B) {
	tr := New()
	for i := 0; i < 10000; i++ {
		tr.Insert(fmt.Sprintf("keyword%d", i), uint32(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = tr.WildcardSearch("*word9*9")
	}
}
