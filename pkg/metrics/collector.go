package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ShardSample is a point-in-time reading of one shard.
type ShardSample struct {
	Cluster             int
	Shard               int
	Records             int
	Fields              int
	Terms               int
	BloomFillRatio      float64
	BloomChecks         uint64
	BloomNegatives      uint64
	BloomFalsePositives uint64
}

// ShardSource produces shard samples on every scrape.
type ShardSource interface {
	ShardSamples() []ShardSample
}

// PoolSample is a point-in-time reading of the shared worker pool.
type PoolSample struct {
	Size      int
	Active    int64
	Completed uint64
}

// PoolSource is implemented by a ShardSource that also exposes the worker
// pool its shard tasks run on.
type PoolSource interface {
	PoolSample() PoolSample
}

// ShardCollector exports per-shard gauges and bloom filter counters read
// from a ShardSource at scrape time, plus worker pool usage when the source
// is also a PoolSource.
type ShardCollector struct {
	src ShardSource

	records        *prometheus.Desc
	fields         *prometheus.Desc
	terms          *prometheus.Desc
	fill           *prometheus.Desc
	checks         *prometheus.Desc
	negatives      *prometheus.Desc
	falsePositives *prometheus.Desc
	poolSize       *prometheus.Desc
	poolActive     *prometheus.Desc
	poolTasks      *prometheus.Desc
}

func NewShardCollector(src ShardSource) *ShardCollector {
	labels := []string{"cluster_id", "shard_id"}
	return &ShardCollector{
		src:            src,
		records:        prometheus.NewDesc("fieldindex_shard_record_count", "Records stored per shard, replicas included.", labels, nil),
		fields:         prometheus.NewDesc("fieldindex_shard_field_count", "Field indexes per shard.", labels, nil),
		terms:          prometheus.NewDesc("fieldindex_shard_term_count", "Distinct live terms per shard across fields; terms emptied by replaces are excluded.", labels, nil),
		fill:           prometheus.NewDesc("fieldindex_shard_bloom_fill_ratio", "Mean fraction of bloom filter bits set per shard.", labels, nil),
		checks:         prometheus.NewDesc("fieldindex_bloom_checks_total", "Exact lookups checked against a bloom filter.", labels, nil),
		negatives:      prometheus.NewDesc("fieldindex_bloom_negatives_total", "Exact lookups rejected by a bloom filter.", labels, nil),
		falsePositives: prometheus.NewDesc("fieldindex_bloom_false_positives_total", "Bloom positives not confirmed by the inverted map.", labels, nil),
		poolSize:       prometheus.NewDesc("fieldindex_pool_workers", "Worker slots in the shared shard task pool.", nil, nil),
		poolActive:     prometheus.NewDesc("fieldindex_pool_active_tasks", "Shard tasks currently holding a worker slot.", nil, nil),
		poolTasks:      prometheus.NewDesc("fieldindex_pool_tasks_total", "Shard tasks completed by the pool.", nil, nil),
	}
}

func (c *ShardCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.fields
	ch <- c.terms
	ch <- c.fill
	ch <- c.checks
	ch <- c.negatives
	ch <- c.falsePositives
	ch <- c.poolSize
	ch <- c.poolActive
	ch <- c.poolTasks
}

func (c *ShardCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src.ShardSamples() {
		labels := []string{strconv.Itoa(s.Cluster), strconv.Itoa(s.Shard)}
		ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(s.Records), labels...)
		ch <- prometheus.MustNewConstMetric(c.fields, prometheus.GaugeValue, float64(s.Fields), labels...)
		ch <- prometheus.MustNewConstMetric(c.terms, prometheus.GaugeValue, float64(s.Terms), labels...)
		ch <- prometheus.MustNewConstMetric(c.fill, prometheus.GaugeValue, s.BloomFillRatio, labels...)
		ch <- prometheus.MustNewConstMetric(c.checks, prometheus.CounterValue, float64(s.BloomChecks), labels...)
		ch <- prometheus.MustNewConstMetric(c.negatives, prometheus.CounterValue, float64(s.BloomNegatives), labels...)
		ch <- prometheus.MustNewConstMetric(c.falsePositives, prometheus.CounterValue, float64(s.BloomFalsePositives), labels...)
	}
	if ps, ok := c.src.(PoolSource); ok {
		p := ps.PoolSample()
		ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(p.Size))
		ch <- prometheus.MustNewConstMetric(c.poolActive, prometheus.GaugeValue, float64(p.Active))
		ch <- prometheus.MustNewConstMetric(c.poolTasks, prometheus.CounterValue, float64(p.Completed))
	}
}
