// Package metrics defines the Prometheus collectors for the field index and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so library callers that do not scrape need not build one.
type Metrics struct {
	RecordsIndexedTotal *prometheus.CounterVec
	ReplicaWritesTotal  *prometheus.CounterVec
	WriteLatency        prometheus.Histogram
	QueriesTotal        *prometheus.CounterVec
	QueryLatency        *prometheus.HistogramVec
	QueryResultsCount   *prometheus.HistogramVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	IngestMessagesTotal *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldindex_records_indexed_total",
				Help: "Records submitted to the index by status (ok, error).",
			},
			[]string{"status"},
		),
		ReplicaWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldindex_replica_writes_total",
				Help: "Shard-level record copies written by status (committed, aborted).",
			},
			[]string{"status"},
		),
		WriteLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fieldindex_write_latency_seconds",
				Help:    "Replicated record write latency in seconds.",
				Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldindex_queries_total",
				Help: "Queries by operation and result type (hit, zero_result, error).",
			},
			[]string{"op", "result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldindex_query_latency_seconds",
				Help:    "Query latency in seconds by operation.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
		QueryResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldindex_query_results_count",
				Help:    "Number of records returned per query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 1000, 10000},
			},
			[]string{"op"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldindex_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldindex_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		IngestMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldindex_ingest_messages_total",
				Help: "Record events consumed from Kafka by status (indexed, invalid, failed).",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fieldindex_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldindex_http_requests_total",
				Help: "Query API requests by method, path and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldindex_http_request_duration_seconds",
				Help:    "Query API request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldindex_http_requests_in_flight",
				Help: "Query API requests currently being served.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.RecordsIndexedTotal,
			m.ReplicaWritesTotal,
			m.WriteLatency,
			m.QueriesTotal,
			m.QueryLatency,
			m.QueryResultsCount,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.IngestMessagesTotal,
			m.CircuitBreakerState,
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
		)
	}
	return m
}

// ObserveQuery records one completed query.
func (m *Metrics) ObserveQuery(op string, seconds float64, results int, err error) {
	if m == nil {
		return
	}
	result := "hit"
	switch {
	case err != nil:
		result = "error"
	case results == 0:
		result = "zero_result"
	}
	m.QueriesTotal.WithLabelValues(op, result).Inc()
	m.QueryLatency.WithLabelValues(op).Observe(seconds)
	if err == nil {
		m.QueryResultsCount.WithLabelValues(op).Observe(float64(results))
	}
}

// ObserveWrite records one replicated write of copies shard-level copies.
func (m *Metrics) ObserveWrite(seconds float64, copies int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RecordsIndexedTotal.WithLabelValues("error").Inc()
		m.ReplicaWritesTotal.WithLabelValues("aborted").Add(float64(copies))
		return
	}
	m.RecordsIndexedTotal.WithLabelValues("ok").Inc()
	m.ReplicaWritesTotal.WithLabelValues("committed").Add(float64(copies))
	m.WriteLatency.Observe(seconds)
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) IngestMessage(status string) {
	if m != nil {
		m.IngestMessagesTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

// Handler returns the Prometheus scrape HTTP handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a scrape handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
