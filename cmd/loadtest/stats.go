package main

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats collects per-request outcomes from concurrent workers.
type Stats struct {
	total     atomic.Int64
	errors    atomic.Int64
	cached    atomic.Int64
	results   atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
}

func NewStats() *Stats {
	return &Stats{latencies: make([]time.Duration, 0, 100000)}
}

func (s *Stats) Record(d time.Duration, results int, cached bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if cached {
		s.cached.Add(1)
	}
	s.results.Add(int64(results))
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

// Summary is a latency digest over the successful requests.
type Summary struct {
	Count              int
	Min, Avg, Max      time.Duration
	P50, P90, P95, P99 time.Duration
	StdDev             time.Duration
}

func (s *Stats) Summary() Summary {
	s.mu.Lock()
	latencies := make([]time.Duration, len(s.latencies))
	copy(latencies, s.latencies)
	s.mu.Unlock()
	return summarize(latencies)
}

func summarize(latencies []time.Duration) Summary {
	if len(latencies) == 0 {
		return Summary{}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		diff := float64(l - avg)
		sq += diff * diff
	}
	return Summary{
		Count:  len(latencies),
		Min:    latencies[0],
		Avg:    avg,
		Max:    latencies[len(latencies)-1],
		P50:    percentile(latencies, 50),
		P90:    percentile(latencies, 90),
		P95:    percentile(latencies, 95),
		P99:    percentile(latencies, 99),
		StdDev: time.Duration(math.Sqrt(sq / float64(len(latencies)))),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (s *Stats) Print(elapsed time.Duration) {
	total := s.total.Load()
	errs := s.errors.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total queries:   %d\n", total)
	fmt.Printf("Errors:          %d\n", errs)
	fmt.Printf("Cached:          %d\n", s.cached.Load())
	fmt.Printf("Records matched: %d\n", s.results.Load())
	if total > 0 {
		fmt.Printf("Queries/sec:     %.2f\n", float64(total)/elapsed.Seconds())
	}

	sum := s.Summary()
	if sum.Count == 0 {
		return
	}
	fmt.Println()
	fmt.Println("=== Latency ===")
	fmt.Printf("Min:    %s\n", sum.Min)
	fmt.Printf("Avg:    %s\n", sum.Avg)
	fmt.Printf("P50:    %s\n", sum.P50)
	fmt.Printf("P90:    %s\n", sum.P90)
	fmt.Printf("P95:    %s\n", sum.P95)
	fmt.Printf("P99:    %s\n", sum.P99)
	fmt.Printf("Max:    %s\n", sum.Max)
	fmt.Printf("StdDev: %s\n", sum.StdDev)
}
