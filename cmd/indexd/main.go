package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/database"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/querycache"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/source"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("indexd failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexd stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	db, err := database.New(cfg, database.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()
	prometheus.MustRegister(metrics.NewShardCollector(db))

	checker := health.NewChecker()
	checker.Register("database", health.DatabaseCheck(db))

	if cfg.Postgres.Enabled {
		if err := bulkLoad(ctx, cfg.Postgres, db); err != nil {
			return err
		}
	}

	var cache *querycache.QueryCache
	if cfg.Cache.Enabled {
		rc, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer rc.Close()
			cache = querycache.New(rc, db, cfg.Cache.TTL, m)
			checker.RegisterOptional("redis", health.PingCheck(rc.Ping))
		}
	}

	extra := map[string]http.Handler{
		"/health/live":  checker.LiveHandler(),
		"/health/ready": checker.ReadyHandler(),
	}
	if cfg.API.Enabled {
		extra["/v1/"] = api.New(db, cache, cfg.API.DefaultLimit, cfg.API.MaxResults).Routes(m)
	}
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, metrics.Handler(), extra)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("http server shutdown failed", "error", err)
			}
		}()
	}

	if !cfg.Kafka.Enabled {
		slog.Info("indexd ready, kafka ingest disabled")
		<-ctx.Done()
		return nil
	}

	brokers := cfg.Kafka.Brokers
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, brokers)
	}))
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.RecordsTopic, ingest.NewHandler(db, m).MessageHandler())
	slog.Info("indexd ready, consuming from kafka",
		"topic", cfg.Kafka.RecordsTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	processed, failed := consumer.Counts()
	slog.Info("kafka consumer stopped", "processed", processed, "failed", failed)
	return nil
}

func bulkLoad(ctx context.Context, cfg config.PostgresConfig, db *database.Database) error {
	var pg *postgres.Client
	err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
		var err error
		pg, err = postgres.New(ctx, cfg)
		return err
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pg.Close()

	loader, err := source.NewLoader(pg, cfg.Table, cfg.BatchSize)
	if err != nil {
		return err
	}
	n, err := loader.Load(ctx, db)
	if err != nil {
		return err
	}
	slog.Info("postgres bulk load finished", "records", n, "generation", db.Generation())
	return nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var rc *redis.Client
	err := resilience.Retry(ctx, "redis-connect", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		var err error
		rc, err = redis.NewClient(ctx, cfg)
		return err
	})
	return rc, err
}
