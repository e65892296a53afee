// Package posting holds posting sets: duplicate-free sets of shard-local record
// ordinals backed by roaring bitmaps. A Set may be shared by concurrent
// writers; readers receive independent snapshots.
package posting

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Set is a mutex-guarded roaring bitmap.
type Set struct {
	mu sync.RWMutex
	bm *roaring.Bitmap
}

func NewSet() *Set {
	return &Set{bm: roaring.New()}
}

// Add inserts ord and reports whether it was absent.
func (s *Set) Add(ord uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.CheckedAdd(ord)
}

// Remove deletes ord and reports whether it was present.
func (s *Set) Remove(ord uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.CheckedRemove(ord)
}

func (s *Set) Contains(ord uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.Contains(ord)
}

func (s *Set) Len() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.GetCardinality()
}

func (s *Set) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.IsEmpty()
}

// Snapshot returns a copy the caller owns.
func (s *Set) Snapshot() *roaring.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.Clone()
}

// OrInto adds every member of s to dst without copying s.
func (s *Set) OrInto(dst *roaring.Bitmap) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dst.Or(s.bm)
}

// Intersect returns the AND of all bitmaps, smallest first. An empty input
// yields an empty bitmap.
func Intersect(bms ...*roaring.Bitmap) *roaring.Bitmap {
	switch len(bms) {
	case 0:
		return roaring.New()
	case 1:
		return bms[0].Clone()
	}
	smallest := 0
	for i, bm := range bms {
		if bm.GetCardinality() < bms[smallest].GetCardinality() {
			smallest = i
		}
	}
	out := bms[smallest].Clone()
	for i, bm := range bms {
		if i == smallest {
			continue
		}
		if out.IsEmpty() {
			break
		}
		out.And(bm)
	}
	return out
}

// Union returns the OR of all bitmaps.
func Union(bms ...*roaring.Bitmap) *roaring.Bitmap {
	if len(bms) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(bms...)
}
