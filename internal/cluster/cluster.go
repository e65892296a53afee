// Package cluster groups shards under one replication policy. A record is
// written synchronously to its primary shard and the next R shards; reads fan
// out to every shard and de-duplicate record IDs, because each record is
// visible on up to R+1 shards.
package cluster

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/pool"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/routing"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

// Options configure a Cluster.
type Options struct {
	Shards            int
	ReplicationFactor int
	// Pool runs shard tasks. A private pool sized GOMAXPROCS is created when
	// nil.
	Pool  *pool.Pool
	Shard shard.Options
}

type Cluster struct {
	id     int
	shards []*shard.Shard
	r      int
	pool   *pool.Pool
	logger *slog.Logger
}

func New(id int, opts Options) (*Cluster, error) {
	const op = "cluster.new"
	if opts.Shards < 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, op, "shards must be >= 1, got %d", opts.Shards)
	}
	if opts.ReplicationFactor < 0 || opts.ReplicationFactor >= opts.Shards {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, op,
			"replication factor must be in [0, %d), got %d", opts.Shards, opts.ReplicationFactor)
	}
	if opts.Pool == nil {
		opts.Pool = pool.New(0)
	}
	c := &Cluster{
		id:     id,
		shards: make([]*shard.Shard, opts.Shards),
		r:      opts.ReplicationFactor,
		pool:   opts.Pool,
		logger: slog.Default().With("component", "cluster", "cluster_id", id),
	}
	for i := range c.shards {
		c.shards[i] = shard.New(i, opts.Shard)
	}
	c.logger.Info("cluster ready",
		"num_shards", opts.Shards,
		"replication_factor", opts.ReplicationFactor,
	)
	return c, nil
}

func (c *Cluster) ID() int { return c.id }

func (c *Cluster) NumShards() int { return len(c.shards) }

func (c *Cluster) ReplicationFactor() int { return c.r }

// Shard returns the shard at index i.
func (c *Cluster) Shard(i int) *shard.Shard { return c.shards[i] }

// Shards returns every shard in index order.
func (c *Cluster) Shards() []*shard.Shard {
	return slices.Clone(c.shards)
}

// ReplicasOf returns the primary shard index for id followed by its R
// replicas.
func (c *Cluster) ReplicasOf(id string) []int {
	return routing.Replicas(id, len(c.shards), c.r)
}

// AddDocument writes rec to its primary and replica shards. Every replica is
// prepared first, in ascending shard order so that concurrent writers always
// take stripe locks in the same order. If any prepare fails, every prepared
// write is aborted and nothing becomes visible; otherwise all replicas are
// committed in parallel and AddDocument returns once every commit is done.
func (c *Cluster) AddDocument(rec record.Record) error {
	targets := c.ReplicasOf(rec.ID)
	sort.Ints(targets)

	writes := make([]*shard.Write, 0, len(targets))
	for _, idx := range targets {
		w, err := c.shards[idx].Prepare(rec)
		if err != nil {
			for _, pw := range writes {
				pw.Abort()
			}
			c.logger.Warn("replicated write aborted",
				"record_id", rec.ID,
				"shard_id", idx,
				"error", err,
			)
			return fmt.Errorf("%w: record %q on shard %d: %w", apperrors.ErrReplicaWrite, rec.ID, idx, err)
		}
		writes = append(writes, w)
	}

	if len(writes) == 1 {
		writes[0].Commit()
		return nil
	}
	return c.pool.Each(len(writes), func(i int) error {
		writes[i].Commit()
		return nil
	})
}

// Search fans out a term search to every shard.
func (c *Cluster) Search(field, term string) []string {
	return c.fanOut(func(s *shard.Shard) []string { return s.Search(field, term) })
}

// SearchValue fans out a whole-value search to every shard.
func (c *Cluster) SearchValue(field, raw string) []string {
	return c.fanOut(func(s *shard.Shard) []string { return s.SearchValue(field, raw) })
}

// WildcardSearch fans out a pattern search to every shard.
func (c *Cluster) WildcardSearch(field, pattern string) []string {
	return c.fanOut(func(s *shard.Shard) []string { return s.WildcardSearch(field, pattern) })
}

// SearchAny fans out a field-agnostic term search to every shard.
func (c *Cluster) SearchAny(term string) []string {
	return c.fanOut(func(s *shard.Shard) []string { return s.SearchAny(term) })
}

func (c *Cluster) fanOut(fn func(*shard.Shard) []string) []string {
	partials := pool.Map(c.pool, len(c.shards), func(i int) []string {
		return fn(c.shards[i])
	})
	return MergeIDs(partials)
}

// MergeIDs unions the partial ID lists, drops duplicates and sorts.
func MergeIDs(partials [][]string) []string {
	seen := make(map[string]struct{})
	for _, ids := range partials {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Get returns the record from its primary shard, falling back to replicas.
func (c *Cluster) Get(id string) (record.Record, bool) {
	for _, idx := range c.ReplicasOf(id) {
		if rec, ok := c.shards[idx].Get(id); ok {
			return rec, true
		}
	}
	return record.Record{}, false
}

// Stats summarizes a cluster. Copies counts every stored replica; each record
// is stored exactly R+1 times, so Records is Copies / (R+1).
type Stats struct {
	ID                int
	ReplicationFactor int
	Records           int
	Copies            int
	Shards            []shard.Stats
}

func (c *Cluster) Stats() Stats {
	st := Stats{
		ID:                c.id,
		ReplicationFactor: c.r,
		Shards:            make([]shard.Stats, len(c.shards)),
	}
	for i, s := range c.shards {
		st.Shards[i] = s.Stats()
		st.Copies += st.Shards[i].Records
	}
	st.Records = st.Copies / (c.r + 1)
	return st
}

// Close closes every shard.
func (c *Cluster) Close() error {
	var firstErr error
	for _, s := range c.shards {
		if err := s.Close(); err != nil {
			c.logger.Error("close failed", "shard_id", s.ID(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
