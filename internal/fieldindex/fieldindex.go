// Package fieldindex provides the pluggable per-field indexing strategies a
// shard uses. Every strategy maps terms and raw field values to posting sets
// of shard-local ordinals and pre-filters exact lookups with a bloom filter.
//
// Two strategies are provided:
//
//	trie - inverted map for exact lookups, trie for wildcard patterns
//	scan - inverted map only; wildcard patterns scan every term
package fieldindex

import (
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/bloom"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

// FieldIndex indexes one field of one shard. Implementations must be safe for
// concurrent use without external locking.
type FieldIndex interface {
	// AddTerm records that the record with ordinal ord contains term.
	AddTerm(term string, ord uint32)
	// RemoveTerm retracts a previous AddTerm.
	RemoveTerm(term string, ord uint32)
	// AddValue records the untokenized field value.
	AddValue(raw string, ord uint32)
	// RemoveValue retracts a previous AddValue.
	RemoveValue(raw string, ord uint32)
	// Search returns the ordinals containing term.
	Search(term string) *roaring.Bitmap
	// SearchValue returns the ordinals whose whole value equals raw.
	SearchValue(raw string) *roaring.Bitmap
	// WildcardSearch returns the ordinals containing a term matching pattern.
	WildcardSearch(pattern string) *roaring.Bitmap
	Stats() Stats
}

// Stats describes the size of a field index and how its bloom filter has
// performed.
type Stats struct {
	Strategy            string
	Terms               int
	Values              int
	TrieNodes           int
	BloomChecks         uint64
	BloomNegatives      uint64
	BloomFalsePositives uint64
	BloomFillRatio      float64
	BloomBytes          int
	EstimatedFPRate     float64
}

// Add accumulates o into s. Ratios are averaged by the caller.
func (s *Stats) Add(o Stats) {
	s.Terms += o.Terms
	s.Values += o.Values
	s.TrieNodes += o.TrieNodes
	s.BloomChecks += o.BloomChecks
	s.BloomNegatives += o.BloomNegatives
	s.BloomFalsePositives += o.BloomFalsePositives
	s.BloomBytes += o.BloomBytes
}

// Options size and configure a field index.
type Options struct {
	Wildcard          rune
	ExpectedTerms     int
	FalsePositiveRate float64
}

// DefaultOptions mirrors config.Default().
func DefaultOptions() Options {
	return Options{
		Wildcard:          '*',
		ExpectedTerms:     1 << 16,
		FalsePositiveRate: 0.01,
	}
}

// Factory creates the index for a newly seen field.
type Factory func(field string) FieldIndex

// NewFactory returns the factory for the named strategy.
func NewFactory(strategy string, opts Options) (Factory, error) {
	if opts.Wildcard == 0 {
		opts.Wildcard = '*'
	}
	switch strategy {
	case "", config.StrategyTrie:
		return func(string) FieldIndex { return NewTrieIndex(opts) }, nil
	case config.StrategyScan:
		return func(string) FieldIndex { return NewScanIndex(opts) }, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "fieldindex.factory", "unknown strategy %q", strategy)
	}
}

// FactoryFromConfig builds a Factory from the index and bloom sections.
func FactoryFromConfig(ic config.IndexConfig, bc config.BloomConfig) (Factory, error) {
	f, err := NewFactory(ic.Strategy, Options{
		Wildcard:          ic.WildcardRune(),
		ExpectedTerms:     bc.ExpectedTerms,
		FalsePositiveRate: bc.FalsePositiveRate,
	})
	if err != nil {
		return nil, fmt.Errorf("building field index factory: %w", err)
	}
	return f, nil
}

// base holds what every strategy shares: the term and value maps and the
// bloom filter guarding exact lookups.
type base struct {
	terms  *termMap
	values *termMap
	filter *bloom.Filter

	checks         atomic.Uint64
	negatives      atomic.Uint64
	falsePositives atomic.Uint64
}

func newBase(opts Options) base {
	return base{
		terms:  newTermMap(),
		values: newTermMap(),
		filter: bloom.NewWithEstimates(opts.ExpectedTerms, opts.FalsePositiveRate),
	}
}

func (b *base) addTerm(term string, ord uint32) {
	b.terms.add(term, ord)
	b.filter.Add(term)
}

func (b *base) AddValue(raw string, ord uint32) {
	b.values.add(raw, ord)
	b.filter.Add(raw)
}

func (b *base) RemoveValue(raw string, ord uint32) {
	b.values.remove(raw, ord)
}

func (b *base) Search(term string) *roaring.Bitmap {
	return b.lookup(b.terms, term)
}

func (b *base) SearchValue(raw string) *roaring.Bitmap {
	return b.lookup(b.values, raw)
}

// lookup consults the bloom filter first and only trusts the map for the
// final answer; a bloom positive the map cannot confirm is a false positive.
func (b *base) lookup(m *termMap, key string) *roaring.Bitmap {
	b.checks.Add(1)
	if !b.filter.MightContain(key) {
		b.negatives.Add(1)
		return roaring.New()
	}
	set := m.get(key)
	if set == nil {
		b.falsePositives.Add(1)
		return roaring.New()
	}
	return set.Snapshot()
}

func (b *base) stats(strategy string) Stats {
	return Stats{
		Strategy:            strategy,
		Terms:               b.terms.len(),
		Values:              b.values.len(),
		BloomChecks:         b.checks.Load(),
		BloomNegatives:      b.negatives.Load(),
		BloomFalsePositives: b.falsePositives.Load(),
		BloomFillRatio:      b.filter.FillRatio(),
		BloomBytes:          b.filter.SizeBytes(),
		EstimatedFPRate:     b.filter.EstimatedFalsePositiveRate(),
	}
}
