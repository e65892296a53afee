package querycache

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/database"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail error
	sets int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, false, s.fail
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sets++
	s.data[key] = value
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func setup(t *testing.T) (*database.Database, *memStore, *QueryCache) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.ShardsPerCluster = 4
	db, err := database.New(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.AddRecordText(ctx, "1", map[string]string{"City": "Paris"}))
	require.NoError(t, db.AddRecordText(ctx, "2", map[string]string{"City": "Paris Texas"}))

	store := newMemStore()
	return db, store, New(store, db, time.Minute, metrics.New(nil))
}

func TestQueryIsCached(t *testing.T) {
	_, store, qc := setup(t)
	ctx := context.Background()

	recs, cached, err := qc.Query(ctx, "Paris Texas")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ID)

	// Word order does not change an AND query, so it shares the entry.
	recs, cached, err = qc.Query(ctx, "Texas  Paris")
	require.NoError(t, err)
	assert.True(t, cached)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ID)
	v, ok := recs[0].Get("City")
	require.True(t, ok)
	assert.Equal(t, "Paris Texas", v.Text())

	assert.Equal(t, 1, store.sets)
	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestWriteMakesEntriesStale(t *testing.T) {
	db, _, qc := setup(t)
	ctx := context.Background()

	recs, _, err := qc.Search(ctx, "City", "Paris")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	require.NoError(t, db.AddRecordText(ctx, "3", map[string]string{"City": "Paris"}))

	recs, cached, err := qc.Search(ctx, "City", "Paris")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, recs, 3)
}

func TestOperationsUseDistinctKeys(t *testing.T) {
	_, _, qc := setup(t)
	ctx := context.Background()

	byTerm, _, err := qc.Search(ctx, "City", "Paris")
	require.NoError(t, err)
	byValue, cached, err := qc.SearchValue(ctx, "City", "Paris")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, byTerm, 2)
	assert.Len(t, byValue, 1)

	wild, cached, err := qc.WildcardSearch(ctx, "City", "Tex*")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, wild, 1)
}

func TestStoreFailureFallsBackToDatabase(t *testing.T) {
	_, store, qc := setup(t)
	store.fail = errors.New("connection refused")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		recs, cached, err := qc.Query(ctx, "Paris")
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Len(t, recs, 2)
	}
}

func TestEmptyResultsAreCached(t *testing.T) {
	_, _, qc := setup(t)
	ctx := context.Background()

	recs, _, err := qc.Query(ctx, "Lyon")
	require.NoError(t, err)
	assert.Empty(t, recs)
	recs, cached, err := qc.Query(ctx, "Lyon")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Empty(t, recs)
}

func TestInvalidate(t *testing.T) {
	_, store, qc := setup(t)
	ctx := context.Background()
	store.data["unrelated"] = []byte("x")

	_, _, err := qc.Query(ctx, "Paris")
	require.NoError(t, err)
	require.NoError(t, qc.Invalidate(ctx))

	assert.Len(t, store.data, 1)
	_, cached, err := qc.Query(ctx, "Paris")
	require.NoError(t, err)
	assert.False(t, cached)
}
