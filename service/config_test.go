package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	config := NewConfig()
	require.NoError(t, config.Validate(), "default configuration must validate")

	assert.Equal(t, "courtmix", config.Name)
	assert.Equal(t, ":8080", config.API.Address)
	assert.Equal(t, StorageBackendMemory, config.Storage.Backend)
	require.NotNil(t, config.Scheduler)
	assert.Equal(t, "monte_carlo", config.Scheduler.Strategy)
}

func TestConfigLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte(`
name: club-night
api:
  address: ":9090"
scheduler:
  strategy: simulated_annealing
  seed: 99
storage:
  backend: file
  dir: /tmp/courtmix-test
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "club-night", config.Name, "overlay must replace the name")
	assert.Equal(t, ":9090", config.API.Address)
	assert.Equal(t, "simulated_annealing", config.Scheduler.Strategy)
	assert.Equal(t, int64(99), config.Scheduler.Seed)
	assert.Equal(t, StorageBackendFile, config.Storage.Backend)
	// Untouched defaults survive the overlay.
	assert.Equal(t, "info", config.Logger.Level)
	assert.Equal(t, 15000, config.Socket.PingPeriodMs)
}

func TestConfigLoadMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "chatty" }},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"file backend without dir", func(c *Config) { c.Storage.Backend = StorageBackendFile; c.Storage.Dir = "" }},
		{"postgres backend without dsn", func(c *Config) { c.Storage.Backend = StorageBackendPostgres }},
		{"zero ping period", func(c *Config) { c.Socket.PingPeriodMs = 0 }},
		{"bad scheduler strategy", func(c *Config) { c.Scheduler.Strategy = "round_robin" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := NewConfig()
			tc.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestConfigValidateBackfillsScheduler(t *testing.T) {
	config := NewConfig()
	config.Scheduler = nil
	require.NoError(t, config.Validate())
	require.NotNil(t, config.Scheduler)
}

func TestStoreConfig(t *testing.T) {
	config := NewConfig()
	StoreConfig(config)
	assert.Same(t, config, ActiveConfig())
}
