package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Database.Clusters)
	assert.Equal(t, 8, cfg.Database.ShardsPerCluster)
	assert.Equal(t, DuplicateReplace, cfg.Database.DuplicatePolicy)
	assert.Equal(t, '*', cfg.Index.WildcardRune())
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
database:
  clusters: 2
  shardsPerCluster: 4
  replicationFactor: 2
index:
  strategy: scan
  wildcard: "%"
cache:
  enabled: true
  ttl: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))
	t.Setenv("FI_DATABASE_SHARDS", "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Database.Clusters)
	assert.Equal(t, 6, cfg.Database.ShardsPerCluster)
	assert.Equal(t, 2, cfg.Database.ReplicationFactor)
	assert.Equal(t, StrategyScan, cfg.Index.Strategy)
	assert.Equal(t, '%', cfg.Index.WildcardRune())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Cache.TTL)
	// untouched sections keep defaults
	assert.Equal(t, "records", cfg.Kafka.RecordsTopic)
}

func TestValidateRejectsBadTopology(t *testing.T) {
	cases := map[string]DatabaseConfig{
		"no clusters":          {Clusters: 0, ShardsPerCluster: 1},
		"no shards":            {Clusters: 1, ShardsPerCluster: 0},
		"replication too high": {Clusters: 1, ShardsPerCluster: 3, ReplicationFactor: 3},
		"negative replication": {Clusters: 1, ShardsPerCluster: 3, ReplicationFactor: -1},
		"unknown policy":       {Clusters: 1, ShardsPerCluster: 3, DuplicatePolicy: "merge"},
	}
	for name, dc := range cases {
		t.Run(name, func(t *testing.T) {
			err := dc.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
