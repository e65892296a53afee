package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/database"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/querycache"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/middleware"
)

func newServer(t *testing.T, cache bool) (*database.Database, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.ShardsPerCluster = 3
	db, err := database.New(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.AddRecordText(ctx, "1", map[string]string{"City": "Paris"}))
	require.NoError(t, db.AddRecordText(ctx, "2", map[string]string{"City": "Paris Texas"}))
	require.NoError(t, db.AddRecordText(ctx, "3", map[string]string{"City": "Lyon"}))

	var qc *querycache.QueryCache
	if cache {
		qc = querycache.New(newMapStore(), db, time.Minute, nil)
	}
	return db, New(db, qc, 0, 100).Routes(metrics.New(nil))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) queryResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp queryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func ids(recs []record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestQueryEndpoints(t *testing.T) {
	_, h := newServer(t, false)

	tests := []struct {
		target string
		want   []string
	}{
		{"/v1/query?q=Paris", []string{"1", "2"}},
		{"/v1/query?q=Paris+Tex*", []string{"2"}},
		{"/v1/search?field=City&term=Paris", []string{"1", "2"}},
		{"/v1/value?field=City&value=Paris", []string{"1"}},
		{"/v1/wildcard?field=City&pattern=L*", []string{"3"}},
		{"/v1/query?q=Berlin", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			resp := decode(t, do(t, h, http.MethodGet, tt.target, ""))
			assert.Equal(t, tt.want, ids(resp.Records))
			assert.Equal(t, len(tt.want), resp.Count)
			assert.False(t, resp.Cached)
		})
	}
}

func TestQueryLimit(t *testing.T) {
	_, h := newServer(t, false)

	resp := decode(t, do(t, h, http.MethodGet, "/v1/query?q=Paris&limit=1", ""))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 1, resp.Returned)
	assert.Equal(t, []string{"1"}, ids(resp.Records))

	rec := do(t, h, http.MethodGet, "/v1/query?q=Paris&limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingParameters(t *testing.T) {
	_, h := newServer(t, false)
	for _, target := range []string{"/v1/query", "/v1/search?field=City", "/v1/wildcard?pattern=x"} {
		assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, target, "").Code, target)
	}
}

func TestPutAndGetRecord(t *testing.T) {
	db, h := newServer(t, false)

	rec := do(t, h, http.MethodPut, "/v1/records/dev-9", `{"Name":"router","Port":8080,"Online":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(4), db.Generation())
	assert.NotEmpty(t, rec.Header().Get(middleware.QueryIDHeader))

	rec = do(t, h, http.MethodGet, "/v1/records/dev-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got record.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	port, ok := got.Get("Port")
	require.True(t, ok)
	n, _ := port.AsInt()
	assert.Equal(t, int64(8080), n)

	resp := decode(t, do(t, h, http.MethodGet, "/v1/query?q=router+8080", ""))
	assert.Equal(t, []string{"dev-9"}, ids(resp.Records))

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/records/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/v1/records/x", `{"A":[1]}`).Code)
}

func TestClosedDatabase(t *testing.T) {
	db, h := newServer(t, false)
	require.NoError(t, db.Close())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/v1/query?q=Paris", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPut, "/v1/records/x", `{"A":"b"}`).Code)
}

func TestCachedQueries(t *testing.T) {
	_, h := newServer(t, true)

	first := decode(t, do(t, h, http.MethodGet, "/v1/query?q=Paris", ""))
	second := decode(t, do(t, h, http.MethodGet, "/v1/query?q=Paris", ""))
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, ids(first.Records), ids(second.Records))

	rec := do(t, h, http.MethodGet, "/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hits":1`)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/cache/invalidate", "").Code)
	third := decode(t, do(t, h, http.MethodGet, "/v1/query?q=Paris", ""))
	assert.False(t, third.Cached)
}

func TestCacheDisabled(t *testing.T) {
	_, h := newServer(t, false)
	assert.Contains(t, do(t, h, http.MethodGet, "/v1/cache/stats", "").Body.String(), "disabled")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/v1/cache/invalidate", "").Code)
}

func TestStats(t *testing.T) {
	_, h := newServer(t, false)
	rec := do(t, h, http.MethodGet, "/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st database.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, 3, st.Records)
	assert.Equal(t, uint64(3), st.Generation)
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapStore() *mapStore { return &mapStore{data: make(map[string][]byte)} }

func (s *mapStore) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *mapStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.data))
	s.data = make(map[string][]byte)
	return n, nil
}
