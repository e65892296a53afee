package posting

import (
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
)

func TestSetAddRemove(t *testing.T) {
	s := NewSet()
	assert.True(t, s.IsEmpty())
	assert.True(t, s.Add(3))
	assert.False(t, s.Add(3), "second add of the same ordinal must be a no-op")
	assert.True(t, s.Add(7))
	assert.Equal(t, uint64(2), s.Len())
	assert.True(t, s.Contains(7))

	assert.True(t, s.Remove(3))
	assert.False(t, s.Remove(3))
	assert.Equal(t, []uint32{7}, s.Snapshot().ToArray())
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := NewSet()
	s.Add(1)
	snap := s.Snapshot()
	s.Add(2)
	assert.Equal(t, uint64(1), snap.GetCardinality())
}

func TestConcurrentAdds(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s.Add(uint32(w*1000 + i))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, uint64(8000), s.Len())
}

func TestIntersectAndUnion(t *testing.T) {
	a := roaring.BitmapOf(1, 2, 3, 4)
	b := roaring.BitmapOf(2, 4, 6)
	c := roaring.BitmapOf(4, 2)

	assert.Equal(t, []uint32{2, 4}, Intersect(a, b, c).ToArray())
	assert.Equal(t, []uint32{1, 2, 3, 4}, a.ToArray(), "inputs must not be mutated")
	assert.True(t, Intersect().IsEmpty())
	assert.True(t, Intersect(a, roaring.New()).IsEmpty())

	assert.Equal(t, []uint32{1, 2, 3, 4, 6}, Union(a, b).ToArray())
	assert.True(t, Union().IsEmpty())
}

func TestOrInto(t *testing.T) {
	s := NewSet()
	s.Add(5)
	dst := roaring.BitmapOf(1)
	s.OrInto(dst)
	assert.Equal(t, []uint32{1, 5}, dst.ToArray())
}
