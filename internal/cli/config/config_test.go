package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaco-sound/spaco/pattern/manager"
)

func chdir(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(prev) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "spaco.db", cfg.Database.URL)
	assert.Equal(t, manager.DefaultCacheCapacity, cfg.Cache.Capacity)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 0.85, cfg.Monitor.HighThreshold)
	assert.Equal(t, 0.95, cfg.Monitor.CriticalThreshold)
	assert.Equal(t, 0.5, cfg.Monitor.ReliefFraction)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
database:
  url: /var/lib/spaco/patterns.db
cache:
  capacity: 250
monitor:
  interval: 30s
  high_threshold: 0.80
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spaco.yml"), []byte(content), 0644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/spaco/patterns.db", cfg.Database.URL)
	assert.Equal(t, 250, cfg.Cache.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 0.80, cfg.Monitor.HighThreshold)
	// Unset keys keep their defaults.
	assert.Equal(t, 0.95, cfg.Monitor.CriticalThreshold)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spaco.yml"), []byte("database: ["), 0644))
	chdir(t, dir)

	_, err := Load()
	assert.Error(t, err)
}

func TestManagerOptions(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "patterns.db"},
		Cache:    CacheConfig{Capacity: 50},
		Monitor: MonitorConfig{
			Interval:          45 * time.Second,
			HighThreshold:     0.8,
			CriticalThreshold: 0.9,
			ReliefFraction:    0.25,
		},
	}

	opts := cfg.ManagerOptions()
	assert.Equal(t, "patterns.db", opts.DatabaseURL)
	assert.Equal(t, 50, opts.CacheCapacity)
	assert.Equal(t, 45*time.Second, opts.Monitor.Interval)
	assert.Equal(t, 0.8, opts.Monitor.HighThreshold)
	assert.True(t, opts.DisableMonitor)
}
