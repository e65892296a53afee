// Package config loads and validates configuration from YAML files with
// environment-variable overrides. It provides typed structs for the index
// topology (Database, Index, Bloom) and for the optional infrastructure the
// entry points wire around it (Cache, Redis, Kafka, Postgres, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Index    IndexConfig    `yaml:"index"`
	Bloom    BloomConfig    `yaml:"bloom"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
}

// Duplicate policies for re-submitted record IDs.
const (
	DuplicateReplace = "replace"
	DuplicateReject  = "reject"
)

// Field index strategies.
const (
	StrategyTrie = "trie"
	StrategyScan = "scan"
)

// DatabaseConfig describes the cluster/shard topology and write policy.
type DatabaseConfig struct {
	Clusters          int    `yaml:"clusters"`
	ShardsPerCluster  int    `yaml:"shardsPerCluster"`
	ReplicationFactor int    `yaml:"replicationFactor"`
	Workers           int    `yaml:"workers"`
	DuplicatePolicy   string `yaml:"duplicatePolicy"`
}

// IndexConfig selects the per-field indexing strategy.
type IndexConfig struct {
	Strategy string `yaml:"strategy"`
	Wildcard string `yaml:"wildcard"`
}

// WildcardRune returns the configured wildcard token as a rune.
func (c IndexConfig) WildcardRune() rune {
	for _, r := range c.Wildcard {
		return r
	}
	return '*'
}

// BloomConfig sizes every per-field bloom filter.
type BloomConfig struct {
	ExpectedTerms     int     `yaml:"expectedTerms"`
	FalsePositiveRate float64 `yaml:"falsePositiveRate"`
}

// CacheConfig controls the Redis-backed query result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	RecordsTopic  string   `yaml:"recordsTopic"`
}

// PostgresConfig holds PostgreSQL connection parameters for the bulk record
// source.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
	BatchSize       int           `yaml:"batchSize"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// APIConfig controls the HTTP query API served next to /metrics.
type APIConfig struct {
	Enabled      bool `yaml:"enabled"`
	DefaultLimit int  `yaml:"defaultLimit"`
	MaxResults   int  `yaml:"maxResults"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config suitable for local development and tests.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Clusters:          1,
			ShardsPerCluster:  8,
			ReplicationFactor: 1,
			Workers:           runtime.GOMAXPROCS(0),
			DuplicatePolicy:   DuplicateReplace,
		},
		Index: IndexConfig{
			Strategy: StrategyTrie,
			Wildcard: "*",
		},
		Bloom: BloomConfig{
			ExpectedTerms:     1 << 16,
			FalsePositiveRate: 0.01,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fieldindex-group",
			RecordsTopic:  "records",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fieldindex",
			User:            "fieldindex",
			Password:        "localdev",
			SSLMode:         "disable",
			Table:           "records",
			BatchSize:       1000,
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		API: APIConfig{
			Enabled:      true,
			DefaultLimit: 100,
			MaxResults:   10000,
		},
	}
}

// Validate checks the topology and index settings.
func (c *Config) Validate() error {
	return c.Database.Validate()
}

// Validate checks that the topology can be built. A replication factor must
// leave every replica on a distinct shard.
func (d DatabaseConfig) Validate() error {
	const op = "config.validate"
	if d.Clusters < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, op, "clusters must be >= 1, got %d", d.Clusters)
	}
	if d.ShardsPerCluster < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, op, "shardsPerCluster must be >= 1, got %d", d.ShardsPerCluster)
	}
	if d.ReplicationFactor < 0 || d.ReplicationFactor >= d.ShardsPerCluster {
		return apperrors.Newf(apperrors.ErrInvalidConfig, op,
			"replicationFactor must be in [0, %d), got %d", d.ShardsPerCluster, d.ReplicationFactor)
	}
	if d.Workers < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, op, "workers must be >= 0, got %d", d.Workers)
	}
	switch d.DuplicatePolicy {
	case "", DuplicateReplace, DuplicateReject:
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, op, "unknown duplicatePolicy %q", d.DuplicatePolicy)
	}
	return nil
}

// applyEnvOverrides reads FI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FI_DATABASE_CLUSTERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Clusters = n
		}
	}
	if v := os.Getenv("FI_DATABASE_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.ShardsPerCluster = n
		}
	}
	if v := os.Getenv("FI_DATABASE_REPLICATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.ReplicationFactor = n
		}
	}
	if v := os.Getenv("FI_DATABASE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Workers = n
		}
	}
	if v := os.Getenv("FI_DATABASE_DUPLICATE_POLICY"); v != "" {
		cfg.Database.DuplicatePolicy = v
	}
	if v := os.Getenv("FI_INDEX_STRATEGY"); v != "" {
		cfg.Index.Strategy = v
	}
	if v := os.Getenv("FI_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("FI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FI_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FI_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FI_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FI_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FI_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
