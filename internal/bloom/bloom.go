// Package bloom provides a concurrent Bloom filter used to reject absent terms
// before a field's inverted map is consulted.
//
// Bits are stored in atomic 64-bit words. Add sets bits with an atomic OR, so
// any number of writers may add concurrently and readers never take a lock.
// A term that was added is always reported as possibly present; a term that
// was not is usually reported absent, at a rate governed by
// p ≈ (1 - e^(-kn/m))^k.
package bloom

import (
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const maxHashes = 16

// Filter is a fixed-size Bloom filter over strings.
type Filter struct {
	words   []atomic.Uint64
	numBits uint64
	k       uint32
	count   atomic.Uint64
}

// Size computes the bit count and hash count for n expected elements at the
// target false-positive rate p.
func Size(n int, p float64) (numBits uint64, k uint32) {
	if n <= 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	ln2Sq := math.Ln2 * math.Ln2
	m := -float64(n) * math.Log(p) / ln2Sq
	numBits = ((uint64(math.Ceil(m)) + 63) / 64) * 64
	if numBits < 64 {
		numBits = 64
	}
	k = uint32(math.Ceil(m / float64(n) * math.Ln2))
	return numBits, clampK(k)
}

// New creates a filter with numBits bits (rounded up to a multiple of 64) and
// k hash functions (clamped to [1, 16]).
func New(numBits uint64, k uint32) *Filter {
	if numBits < 64 {
		numBits = 64
	}
	numBits = ((numBits + 63) / 64) * 64
	return &Filter{
		words:   make([]atomic.Uint64, numBits/64),
		numBits: numBits,
		k:       clampK(k),
	}
}

// NewWithEstimates creates a filter sized for n elements at false-positive
// rate p.
func NewWithEstimates(n int, p float64) *Filter {
	return New(Size(n, p))
}

// Add marks term as present.
func (f *Filter) Add(term string) {
	h1, h2 := hashes(term)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		f.words[bit>>6].Or(1 << (bit & 63))
	}
	f.count.Add(1)
}

// MightContain returns false only if term was never added.
func (f *Filter) MightContain(term string) bool {
	h1, h2 := hashes(term)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		if f.words[bit>>6].Load()&(1<<(bit&63)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of Add calls, including repeated terms.
func (f *Filter) Count() uint64 {
	return f.count.Load()
}

// NumBits returns m.
func (f *Filter) NumBits() uint64 { return f.numBits }

// K returns the number of hash functions.
func (f *Filter) K() uint32 { return f.k }

// SizeBytes returns the memory held by the bit array.
func (f *Filter) SizeBytes() int {
	return len(f.words) * 8
}

// EstimatedFalsePositiveRate evaluates (1 - e^(-kn/m))^k with n = Count().
// Repeated adds of the same term inflate n, so this is an upper bound.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	n := f.count.Load()
	if n == 0 {
		return 0
	}
	kn := float64(f.k) * float64(n)
	return math.Pow(1-math.Exp(-kn/float64(f.numBits)), float64(f.k))
}

// FillRatio returns the fraction of bits set.
func (f *Filter) FillRatio() float64 {
	var set int
	for i := range f.words {
		set += bits.OnesCount64(f.words[i].Load())
	}
	return float64(set) / float64(f.numBits)
}

// hashes derives the two values used for double hashing (h1 + i*h2) from a
// single xxhash64 of the term. h2 is forced odd so the index sequence does
// not collapse when numBits is a power of two.
func hashes(term string) (h1, h2 uint64) {
	h1 = xxhash.Sum64String(term)
	h2 = (h1>>33 | h1<<31) * 0x9e3779b97f4a7c15
	return h1, h2 | 1
}

func clampK(k uint32) uint32 {
	if k < 1 {
		return 1
	}
	if k > maxHashes {
		return maxHashes
	}
	return k
}
