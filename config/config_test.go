package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventtriage.yml")
	raw := `
eventtriage:
  store:
    path: /tmp/events.db
    max_page_size: 50
  cache:
    enabled: false
    backend: Redis
  scoring:
    scheme: normalized
    weights:
      attack_type: 50
      traffic_volume: 20
      port_criticality: 15
      frequency: 10
      time_factor: 5
  http:
    addr: 127.0.0.1:9000
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	ApplyDefaults(cfg)

	et := cfg.EventTriage
	assert.Equal(t, "/tmp/events.db", et.Store.Path)
	assert.Equal(t, 50, et.Store.MaxPageSize)
	assert.Equal(t, 25, et.Store.DefaultPageSize)
	assert.Equal(t, 5*time.Second, et.Store.QueryTimeout)
	assert.False(t, et.Cache.CacheEnabled())
	assert.Equal(t, "redis", et.Cache.Backend)
	assert.Equal(t, 60*time.Second, et.Cache.TTL.Summary)
	assert.Equal(t, 10*time.Minute, et.Cache.TTL.Heatmap)
	assert.Equal(t, "normalized", et.Scoring.Scheme)
	assert.Equal(t, 50.0, et.Scoring.Weights.AttackType)
	assert.Equal(t, ThresholdsConfig{Critical: 80, High: 60, Medium: 40}, et.Scoring.Thresholds)
	assert.Equal(t, "127.0.0.1:9000", et.HTTP.Addr)
	assert.Equal(t, "info", et.Logging.Level)
}

func TestApplyDefaultsOnEmptyConfig(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	et := cfg.EventTriage
	assert.True(t, et.Cache.CacheEnabled())
	assert.Equal(t, "memory", et.Cache.Backend)
	assert.Equal(t, "five_factor", et.Scoring.Scheme)
	assert.Equal(t, HoursConfig{Start: 9, End: 18}, et.Scoring.WorkingHours)
	assert.Equal(t, 50000, et.Store.ExportMaxRows)
	assert.Equal(t, 30*24*time.Hour, et.Filter.KPIMaxRange)
	assert.Zero(t, et.Filter.MaxRange)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("eventtriage: [unclosed"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
