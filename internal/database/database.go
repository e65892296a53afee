// Package database is the coordinator in front of every cluster. It routes
// each record to one cluster by a stable hash of its ID, fans queries out to
// every shard of every cluster in parallel through one shared worker pool,
// merges the partial results and resolves the surviving IDs to full records.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/fieldindex"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/pool"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/routing"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/tracing"
)

// Operation names used for spans and metric labels.
const (
	OpAddRecord      = "add_record"
	OpSearch         = "search"
	OpSearchValue    = "search_value"
	OpWildcardSearch = "wildcard_search"
	OpQuery          = "query"
)

// Option customizes a Database.
type Option func(*Database)

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Database) {
		d.metrics = m
	}
}

// WithPool shares an existing worker pool instead of creating one.
func WithPool(p *pool.Pool) Option {
	return func(d *Database) {
		d.pool = p
	}
}

type shardRef struct {
	cluster int
	shard   *shard.Shard
}

// Database coordinates clusters of shards.
type Database struct {
	cfg      config.DatabaseConfig
	clusters []*cluster.Cluster
	shards   []shardRef
	pool     *pool.Pool
	wildcard rune
	metrics  *metrics.Metrics

	generation atomic.Uint64
	closed     atomic.Bool
	logger     *slog.Logger
}

// New builds the clusters and shards described by cfg.
func New(cfg *config.Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, err := fieldindex.FactoryFromConfig(cfg.Index, cfg.Bloom)
	if err != nil {
		return nil, err
	}

	d := &Database{
		cfg:      cfg.Database,
		wildcard: cfg.Index.WildcardRune(),
		logger:   slog.Default().With("component", "database"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pool == nil {
		d.pool = pool.New(cfg.Database.Workers)
	}

	shardOpts := shard.Options{
		Factory:         factory,
		DuplicatePolicy: cfg.Database.DuplicatePolicy,
		Wildcard:        d.wildcard,
	}
	d.clusters = make([]*cluster.Cluster, cfg.Database.Clusters)
	for i := range d.clusters {
		c, err := cluster.New(i, cluster.Options{
			Shards:            cfg.Database.ShardsPerCluster,
			ReplicationFactor: cfg.Database.ReplicationFactor,
			Pool:              d.pool,
			Shard:             shardOpts,
		})
		if err != nil {
			return nil, fmt.Errorf("creating cluster %d: %w", i, err)
		}
		d.clusters[i] = c
		for _, s := range c.Shards() {
			d.shards = append(d.shards, shardRef{cluster: i, shard: s})
		}
	}

	d.logger.Info("database ready",
		"clusters", cfg.Database.Clusters,
		"shards_per_cluster", cfg.Database.ShardsPerCluster,
		"replication_factor", cfg.Database.ReplicationFactor,
		"workers", d.pool.Size(),
		"strategy", cfg.Index.Strategy,
		"duplicate_policy", cfg.Database.DuplicatePolicy,
		"hash_version", routing.HashVersion,
	)
	return d, nil
}

// AddRecord routes the record to its cluster and writes it to every replica
// before returning.
func (d *Database) AddRecord(ctx context.Context, id string, fields map[string]value.Value) error {
	return d.add(ctx, record.New(id, fields))
}

// AddRecordText is AddRecord for plain string fields.
func (d *Database) AddRecordText(ctx context.Context, id string, fields map[string]string) error {
	return d.add(ctx, record.FromText(id, fields))
}

func (d *Database) add(ctx context.Context, rec record.Record) error {
	id := rec.ID
	if id == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "database.add_record", "record id is empty")
	}
	if d.closed.Load() {
		return apperrors.New(apperrors.ErrShardClosed, "database.add_record", "database closed")
	}
	ctx, span, root := d.startSpan(ctx, OpAddRecord)
	ci := routing.ClusterIndex(id, len(d.clusters))
	span.SetAttr("cluster_id", ci)

	start := time.Now()
	c := d.clusters[ci]
	err := c.AddDocument(rec)
	d.metrics.ObserveWrite(time.Since(start).Seconds(), c.ReplicationFactor()+1, err)
	d.endSpan(ctx, span, root)

	if err != nil {
		logger.FromContext(ctx).Warn("add record failed", "component", "database", "record_id", id, "error", err)
		return err
	}
	d.generation.Add(1)
	return nil
}

// Search returns the records whose field contains every word of term.
func (d *Database) Search(ctx context.Context, field, term string) ([]record.Record, error) {
	return d.fieldQuery(ctx, OpSearch, field, term, shard.TermMatcher(field, term), func(s *shard.Shard) []string {
		return s.Search(field, term)
	})
}

// SearchValue returns the records whose whole field value equals raw.
func (d *Database) SearchValue(ctx context.Context, field, raw string) ([]record.Record, error) {
	return d.fieldQuery(ctx, OpSearchValue, field, raw, shard.ValueMatcher(field, raw), func(s *shard.Shard) []string {
		return s.SearchValue(field, raw)
	})
}

// WildcardSearch returns the records whose field has a term matching every
// whitespace-separated sub-pattern of pattern.
func (d *Database) WildcardSearch(ctx context.Context, field, pattern string) ([]record.Record, error) {
	return d.fieldQuery(ctx, OpWildcardSearch, field, pattern, shard.WildcardMatcher(field, pattern, d.wildcard), func(s *shard.Shard) []string {
		return s.WildcardSearch(field, pattern)
	})
}

func (d *Database) fieldQuery(ctx context.Context, op, field, input string, match shard.Matcher, fn func(*shard.Shard) []string) ([]record.Record, error) {
	if d.closed.Load() {
		err := apperrors.New(apperrors.ErrShardClosed, "database."+op, "database closed")
		d.metrics.ObserveQuery(op, 0, 0, err)
		return nil, err
	}
	if strings.TrimSpace(input) == "" {
		d.metrics.ObserveQuery(op, 0, 0, nil)
		return nil, nil
	}
	ctx, span, root := d.startSpan(ctx, op)
	span.SetAttr("field", field)
	start := time.Now()

	partials := d.fanOut(ctx, len(d.shards), func(i int) []string {
		return fn(d.shards[i].shard)
	})
	recs := d.resolve(cluster.MergeIDs(partials), match)

	d.metrics.ObserveQuery(op, time.Since(start).Seconds(), len(recs), nil)
	span.SetAttr("results", len(recs))
	d.endSpan(ctx, span, root)
	return recs, nil
}

// Query runs a field-agnostic AND query. Each whitespace-separated term is
// matched against every field of every shard, as a pattern when it holds the
// wildcard rune; a record qualifies when every term matches somewhere in it.
// All (term, shard) pairs run in a single fan-out.
func (d *Database) Query(ctx context.Context, query string) ([]record.Record, error) {
	if d.closed.Load() {
		err := apperrors.New(apperrors.ErrShardClosed, "database.query", "database closed")
		d.metrics.ObserveQuery(OpQuery, 0, 0, err)
		return nil, err
	}
	terms := tokenizer.Terms(query)
	if len(terms) == 0 {
		d.metrics.ObserveQuery(OpQuery, 0, 0, nil)
		return nil, nil
	}
	ctx, span, root := d.startSpan(ctx, OpQuery)
	span.SetAttr("terms", len(terms))
	start := time.Now()

	n := len(d.shards)
	partials := d.fanOut(ctx, len(terms)*n, func(i int) []string {
		return d.shards[i%n].shard.SearchAny(terms[i/n])
	})

	var acc map[string]struct{}
	for t := range terms {
		matched := make(map[string]struct{})
		for _, ids := range partials[t*n : (t+1)*n] {
			for _, id := range ids {
				if acc == nil {
					matched[id] = struct{}{}
				} else if _, ok := acc[id]; ok {
					matched[id] = struct{}{}
				}
			}
		}
		acc = matched
		if len(acc) == 0 {
			break
		}
	}
	ids := make([]string, 0, len(acc))
	for id := range acc {
		ids = append(ids, id)
	}
	recs := d.resolve(cluster.MergeIDs([][]string{ids}), shard.AnyFieldMatcher(terms, d.wildcard))

	d.metrics.ObserveQuery(OpQuery, time.Since(start).Seconds(), len(recs), nil)
	span.SetAttr("results", len(recs))
	d.endSpan(ctx, span, root)
	return recs, nil
}

func (d *Database) fanOut(ctx context.Context, n int, fn func(i int) []string) [][]string {
	_, span := tracing.StartChild(ctx, "fan-out")
	span.SetAttr("tasks", n)
	defer span.End()
	return pool.Map(d.pool, n, fn)
}

// resolve loads each record from the cluster that owns it and keeps those
// that still satisfy match. A hit may come from a replica whose postings lag
// the primary's record. ids must be sorted; the result keeps that order.
func (d *Database) resolve(ids []string, match shard.Matcher) []record.Record {
	if len(ids) == 0 {
		return nil
	}
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		c := d.clusters[routing.ClusterIndex(id, len(d.clusters))]
		if rec, ok := c.Get(id); ok && match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Get returns the record stored under id.
func (d *Database) Get(ctx context.Context, id string) (record.Record, bool) {
	if id == "" {
		return record.Record{}, false
	}
	return d.clusters[routing.ClusterIndex(id, len(d.clusters))].Get(id)
}

// Generation counts successful writes. Any cached query result tagged with
// an older generation may be stale.
func (d *Database) Generation() uint64 {
	return d.generation.Load()
}

// Wildcard returns the configured wildcard rune.
func (d *Database) Wildcard() rune { return d.wildcard }

// Stats summarizes the whole database.
type Stats struct {
	Clusters   []cluster.Stats
	Records    int
	Copies     int
	Generation uint64
	Workers    int
}

func (d *Database) Stats() Stats {
	st := Stats{
		Clusters:   make([]cluster.Stats, len(d.clusters)),
		Generation: d.Generation(),
		Workers:    d.pool.Size(),
	}
	for i, c := range d.clusters {
		st.Clusters[i] = c.Stats()
		st.Records += st.Clusters[i].Records
		st.Copies += st.Clusters[i].Copies
	}
	return st
}

// ShardSamples implements metrics.ShardSource.
func (d *Database) ShardSamples() []metrics.ShardSample {
	out := make([]metrics.ShardSample, 0, len(d.shards))
	for _, ref := range d.shards {
		st := ref.shard.Stats()
		out = append(out, metrics.ShardSample{
			Cluster:             ref.cluster,
			Shard:               st.ID,
			Records:             st.Records,
			Fields:              st.Fields,
			Terms:               st.Index.Terms,
			BloomFillRatio:      st.BloomFillRatio,
			BloomChecks:         st.Index.BloomChecks,
			BloomNegatives:      st.Index.BloomNegatives,
			BloomFalsePositives: st.Index.BloomFalsePositives,
		})
	}
	return out
}

// PoolSample implements metrics.PoolSource.
func (d *Database) PoolSample() metrics.PoolSample {
	return metrics.PoolSample{
		Size:      d.pool.Size(),
		Active:    d.pool.Active(),
		Completed: d.pool.Completed(),
	}
}

// Closed reports whether Close has been called.
func (d *Database) Closed() bool { return d.closed.Load() }

// Close rejects further operations and closes every cluster.
func (d *Database) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	var firstErr error
	for _, c := range d.clusters {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.logger.Info("database closed", "generation", d.Generation())
	return firstErr
}

func (d *Database) startSpan(ctx context.Context, op string) (context.Context, *tracing.Span, bool) {
	root := tracing.FromContext(ctx) == nil
	traceID := ""
	if qid, ok := logger.QueryID(ctx); ok {
		traceID = qid
	}
	ctx, span := tracing.Start(ctx, op, traceID)
	return ctx, span, root
}

func (d *Database) endSpan(ctx context.Context, span *tracing.Span, root bool) {
	span.End()
	if root {
		span.Log(logger.FromContext(ctx))
	}
}
