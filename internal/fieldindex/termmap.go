package fieldindex

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/posting"
)

const numBuckets = 64

type bucket struct {
	mu sync.RWMutex
	m  map[string]*posting.Set
}

// termMap is an inverted map striped over independently locked buckets so
// that writers to different terms of one field rarely contend.
type termMap struct {
	buckets [numBuckets]bucket
}

func newTermMap() *termMap {
	tm := &termMap{}
	for i := range tm.buckets {
		tm.buckets[i].m = make(map[string]*posting.Set)
	}
	return tm
}

func (tm *termMap) bucketFor(key string) *bucket {
	return &tm.buckets[xxhash.Sum64String(key)%numBuckets]
}

func (tm *termMap) get(key string) *posting.Set {
	b := tm.bucketFor(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.m[key]
}

// add inserts ord under key. The bucket lock is only held to find or create
// the posting set; the insertion itself takes the set's own lock.
func (tm *termMap) add(key string, ord uint32) {
	set := tm.get(key)
	if set == nil {
		b := tm.bucketFor(key)
		b.mu.Lock()
		if set = b.m[key]; set == nil {
			set = posting.NewSet()
			b.m[key] = set
		}
		b.mu.Unlock()
	}
	set.Add(ord)
}

func (tm *termMap) remove(key string, ord uint32) bool {
	set := tm.get(key)
	if set == nil {
		return false
	}
	return set.Remove(ord)
}

// len counts the keys whose posting set is non-empty. Keys emptied by remove
// stay in the map but are not counted.
func (tm *termMap) len() int {
	n := 0
	tm.each(func(_ string, set *posting.Set) {
		if !set.IsEmpty() {
			n++
		}
	})
	return n
}

// each calls fn for every key, one bucket at a time. fn must not call back
// into the map.
func (tm *termMap) each(fn func(key string, set *posting.Set)) {
	for i := range tm.buckets {
		b := &tm.buckets[i]
		b.mu.RLock()
		for k, s := range b.m {
			fn(k, s)
		}
		b.mu.RUnlock()
	}
}
