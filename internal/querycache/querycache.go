// Package querycache caches query results in Redis. Keys embed the
// database's write generation, so any committed write makes older entries
// unreachable without an explicit purge. Redis failures trip a circuit
// breaker and fall back to querying the database directly.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/resilience"
)

const keyPrefix = "fieldindex:q:"

// Store is the subset of pkg/redis.Client the cache needs.
type Store interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Searcher is the query surface of *database.Database.
type Searcher interface {
	Search(ctx context.Context, field, term string) ([]record.Record, error)
	SearchValue(ctx context.Context, field, raw string) ([]record.Record, error)
	WildcardSearch(ctx context.Context, field, pattern string) ([]record.Record, error)
	Query(ctx context.Context, query string) ([]record.Record, error)
	Generation() uint64
}

type QueryCache struct {
	store   Store
	db      Searcher
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, db Searcher, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &QueryCache{
		store:   store,
		db:      db,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			m.SetCircuitState(name, int(to))
		},
	})
	return c
}

// Search is a cached Database.Search. cached reports whether the result came
// from Redis.
func (c *QueryCache) Search(ctx context.Context, field, term string) (recs []record.Record, cached bool, err error) {
	key := c.buildKey("search", field, sortedTerms(term))
	return c.getOrCompute(ctx, key, func() ([]record.Record, error) {
		return c.db.Search(ctx, field, term)
	})
}

func (c *QueryCache) SearchValue(ctx context.Context, field, raw string) ([]record.Record, bool, error) {
	key := c.buildKey("value", field, raw)
	return c.getOrCompute(ctx, key, func() ([]record.Record, error) {
		return c.db.SearchValue(ctx, field, raw)
	})
}

func (c *QueryCache) WildcardSearch(ctx context.Context, field, pattern string) ([]record.Record, bool, error) {
	key := c.buildKey("wildcard", field, sortedFields(pattern))
	return c.getOrCompute(ctx, key, func() ([]record.Record, error) {
		return c.db.WildcardSearch(ctx, field, pattern)
	})
}

func (c *QueryCache) Query(ctx context.Context, query string) ([]record.Record, bool, error) {
	key := c.buildKey("query", "", sortedTerms(query))
	return c.getOrCompute(ctx, key, func() ([]record.Record, error) {
		return c.db.Query(ctx, query)
	})
}

func (c *QueryCache) getOrCompute(ctx context.Context, key string, compute func() ([]record.Record, error)) ([]record.Record, bool, error) {
	if recs, ok := c.get(ctx, key); ok {
		return recs, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if recs, ok := c.get(ctx, key); ok {
			return recs, nil
		}
		recs, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, recs)
		return recs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]record.Record), false, nil
}

func (c *QueryCache) get(ctx context.Context, key string) ([]record.Record, bool) {
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Lookup(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.misses.Add(1)
		c.metrics.CacheMiss()
		return nil, false
	}
	var recs []record.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		c.metrics.CacheMiss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", key)
	return recs, true
}

func (c *QueryCache) set(ctx context.Context, key string, recs []record.Record) {
	data, err := json.Marshal(recs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate deletes every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the normalized request together with the database
// generation.
func (c *QueryCache) buildKey(op, field, normalized string) string {
	raw := strings.Join([]string{op, field, normalized}, "\x00")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%d:%x", keyPrefix, c.db.Generation(), hash[:16])
}

// sortedTerms normalizes an AND of words: order and repeats do not change
// the result.
func sortedTerms(s string) string {
	terms := tokenizer.Terms(s)
	sort.Strings(terms)
	return strings.Join(terms, " ")
}

func sortedFields(s string) string {
	parts := strings.Fields(s)
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
