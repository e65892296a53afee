package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/database"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/seed"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/logger"
)

type options struct {
	mode        string
	records     int
	fields      int
	device      bool
	seed        uint64
	concurrency int
	duration    time.Duration
	baseURL     string
}

func main() {
	configPath := flag.String("config", "", "path to config file (defaults when empty)")
	var opts options
	flag.StringVar(&opts.mode, "mode", "local", "local: index in-process and query; kafka: publish record events; http: query a running indexd")
	flag.IntVar(&opts.records, "records", 100000, "records to generate")
	flag.IntVar(&opts.fields, "fields", 10, "fields per generated record")
	flag.BoolVar(&opts.device, "device", false, "generate the fixed device record instead of random fields")
	flag.Uint64Var(&opts.seed, "seed", 1, "generator seed")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "concurrent query workers")
	flag.DurationVar(&opts.duration, "duration", 10*time.Second, "query phase duration")
	flag.StringVar(&opts.baseURL, "url", "http://localhost:9090", "indexd base URL for -mode=http")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("warn", "text")

	ctx := context.Background()
	switch opts.mode {
	case "local":
		err = runLocal(ctx, cfg, opts)
	case "kafka":
		err = runKafka(ctx, cfg, opts)
	case "http":
		err = runHTTP(ctx, opts)
	default:
		err = fmt.Errorf("unknown mode %q", opts.mode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "loadtest failed: %v\n", err)
		os.Exit(1)
	}
}

func (o options) record(g *seed.Generator) map[string]value.Value {
	if o.device {
		return seed.Device()
	}
	return g.Record(o.fields)
}

// sampleQueries builds queries from terms that exist in the generated data,
// so most queries match.
func sampleQueries(opts options, n int) []string {
	if opts.device {
		return []string{"Face", "Apple Bio*", "A2894", "iOS 16", "Hexa-core GHz", "Wi-Fi dual-band", "*Sub6*"}
	}
	g := seed.NewGenerator(opts.seed)
	var queries []string
	for i := 0; len(queries) < n && i < n*10; i++ {
		for _, v := range g.Record(opts.fields) {
			s, ok := v.AsString()
			if !ok || len(s) < 8 {
				continue
			}
			if len(queries)%2 == 0 {
				queries = append(queries, s)
			} else {
				queries = append(queries, s[:4]+"*")
			}
			break
		}
	}
	return queries
}

func runLocal(ctx context.Context, cfg *config.Config, opts options) error {
	db, err := database.New(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("=== Field Index Load Test (local) ===")
	fmt.Printf("Clusters:    %d x %d shards, R=%d\n", cfg.Database.Clusters, cfg.Database.ShardsPerCluster, cfg.Database.ReplicationFactor)
	fmt.Printf("Records:     %d\n", opts.records)

	start := time.Now()
	writers := max(opts.concurrency, 1)
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			gen := seed.NewGenerator(opts.seed)
			for i := 0; i < opts.records; i++ {
				rec := opts.record(gen)
				if i%writers != w {
					continue
				}
				if err := db.AddRecord(ctx, seed.ID("rec", i), rec); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	elapsed := time.Since(start)
	fmt.Printf("Indexed in:  %s (%.0f records/sec)\n\n", elapsed, float64(opts.records)/elapsed.Seconds())

	queries := sampleQueries(opts, 64)
	stats := runWorkers(ctx, opts, queries, func(ctx context.Context, q string) (int, bool, error) {
		recs, err := db.Query(ctx, q)
		return len(recs), false, err
	})
	stats.Print(opts.duration)
	return nil
}

func runKafka(ctx context.Context, cfg *config.Config, opts options) error {
	producer := ingest.NewPublisher(cfg.Kafka)
	defer producer.Close()

	fmt.Println("=== Field Index Load Test (kafka) ===")
	fmt.Printf("Topic:       %s\n", cfg.Kafka.RecordsTopic)
	fmt.Printf("Records:     %d\n", opts.records)

	start := time.Now()
	gen := seed.NewGenerator(opts.seed)
	batch := make([]ingest.RecordEvent, 0, 100)
	for i := 0; i < opts.records; i++ {
		batch = append(batch, ingest.RecordEvent{ID: seed.ID("rec", i), Fields: opts.record(gen)})
		if len(batch) == cap(batch) || i == opts.records-1 {
			if err := producer.Publish(ctx, batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("Published in: %s (%.0f events/sec)\n", elapsed, float64(opts.records)/elapsed.Seconds())
	return nil
}

func runHTTP(ctx context.Context, opts options) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	fmt.Println("=== Field Index Load Test (http) ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)

	queries := sampleQueries(opts, 64)
	stats := runWorkers(ctx, opts, queries, func(ctx context.Context, q string) (int, bool, error) {
		target := fmt.Sprintf("%s/v1/query?q=%s&limit=10", opts.baseURL, url.QueryEscape(q))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return 0, false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, false, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return 0, false, fmt.Errorf("status %d", resp.StatusCode)
		}
		var body struct {
			Count  int  `json:"count"`
			Cached bool `json:"cached"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return 0, false, err
		}
		return body.Count, body.Cached, nil
	})
	stats.Print(opts.duration)
	if stats.total.Load() == 0 {
		return fmt.Errorf("no requests completed; is indexd running at %s?", opts.baseURL)
	}
	return nil
}

type queryFunc func(ctx context.Context, q string) (results int, cached bool, err error)

func runWorkers(ctx context.Context, opts options, queries []string, fn queryFunc) *Stats {
	stats := NewStats()
	if len(queries) == 0 {
		return stats
	}
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(opts.seed, uint64(workerID)))
			for ctx.Err() == nil {
				q := queries[rng.IntN(len(queries))]
				start := time.Now()
				n, cached, err := fn(ctx, q)
				if ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), n, cached, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}
