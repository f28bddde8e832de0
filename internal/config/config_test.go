// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/testutil"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("FEM_DATA_DIR", dataDir)

	cfg, err := NewLoader("", "v-test").Load()
	require.NoError(t, err)

	assert.Equal(t, "v-test", cfg.Version)
	assert.Equal(t, DefaultTenant, cfg.Tenant)
	assert.Equal(t, DefaultMaxBulkSize, cfg.Scheduler.MaxBulkSize)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dataDir, "fem.sqlite"), cfg.Store.Path)
	assert.Equal(t, time.Hour, cfg.Sweeper.RemoteTimeout)
	assert.Equal(t, DefaultDeletionStorage, cfg.Storage.DeletionStorage)
	assert.Empty(t, cfg.Priorities.ByKind())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
tenant: ACME
dataDir: `+dir+`
store:
  backend: memory
scheduler:
  maxBulkSize: 250
  delayBeforeProcessing: 30s
priorities:
  deletion: HIGH
  copy: low
notifications:
  active: true
outbox:
  enabled: true
`)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "ACME", cfg.Tenant)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, 250, cfg.Scheduler.MaxBulkSize)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DelayBeforeProcessing)
	assert.Equal(t, DefaultSchedulerTick, cfg.Scheduler.Interval, "absent keys keep their default")
	assert.True(t, cfg.Notifications.Active)
	assert.Equal(t, filepath.Join(dir, "outbox"), cfg.Outbox.Path)
	assert.Equal(t, map[model.Kind]model.Priority{
		model.KindDeletion: model.PriorityHigh,
		model.KindCopy:     model.PriorityLow,
	}, cfg.Priorities.ByKind())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
dataDir: `+dir+`
scheduler:
  maxBulkSize: 250
bus:
  backend: memory
`)
	t.Setenv("FEM_SCHEDULER_MAX_BULK_SIZE", "42")
	t.Setenv("FEM_SCHEDULER_DELAY", "2m")
	t.Setenv("FEM_BUS_BACKEND", "redis")
	t.Setenv("FEM_REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("FEM_STORAGE_TOKEN", "secret")
	t.Setenv("FEM_WORKERS_COUNT", "not-a-number")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Scheduler.MaxBulkSize)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.DelayBeforeProcessing)
	assert.Equal(t, "redis", cfg.Bus.Backend)
	assert.Equal(t, "127.0.0.1:6379", cfg.Bus.Redis.Addr)
	assert.Equal(t, "secret", cfg.Storage.Token)
	assert.Equal(t, DefaultWorkers, cfg.Workers.Count, "invalid values are ignored")
	assert.Contains(t, l.ConsumedEnvKeys, "FEM_SCHEDULER_MAX_BULK_SIZE")
	assert.Contains(t, l.ConsumedEnvKeys, "FEM_WORKERS_COUNT")
}

func TestLoad_StrictFile(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		unknown bool
	}{
		{name: "unknown top-level key", body: "tenant: A\nbogus: 1\n", unknown: true},
		{name: "unknown nested key", body: "scheduler:\n  maxBulk: 3\n", unknown: true},
		{name: "trailing document", body: "tenant: A\n---\ntenant: B\n"},
		{name: "bad priority", body: "priorities:\n  creation: URGENT\n"},
		{name: "bad duration", body: "sweeper:\n  remoteTimeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Setenv("FEM_DATA_DIR", dir)
			_, err := NewLoader(writeConfig(t, dir, tt.body), "").Load()
			require.Error(t, err)
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownConfigField))
		})
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FEM_DATA_DIR", dir)
	cfg, err := NewLoader(writeConfig(t, dir, ""), "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTenant, cfg.Tenant)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "").Load()
	require.ErrorContains(t, err, "unsupported config format")
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) AppConfig {
		cfg := Defaults()
		cfg.DataDir = t.TempDir()
		cfg.Store.Backend = "memory"
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "empty tenant", mutate: func(c *AppConfig) { c.Tenant = " " }, field: "tenant"},
		{name: "tenant with colon", mutate: func(c *AppConfig) { c.Tenant = "A:B" }, field: "tenant"},
		{name: "bulk size too large", mutate: func(c *AppConfig) { c.Scheduler.MaxBulkSize = MaxBulkSizeLimit + 1 }, field: "scheduler.maxBulkSize"},
		{name: "bulk size zero", mutate: func(c *AppConfig) { c.Scheduler.MaxBulkSize = 0 }, field: "scheduler.maxBulkSize"},
		{name: "negative delay", mutate: func(c *AppConfig) { c.Scheduler.DelayBeforeProcessing = -time.Second }, field: "scheduler.delayBeforeProcessing"},
		{name: "no workers", mutate: func(c *AppConfig) { c.Workers.Count = 0 }, field: "workers.count"},
		{name: "unknown store", mutate: func(c *AppConfig) { c.Store.Backend = "mongo" }, field: "store.backend"},
		{name: "postgres without dsn", mutate: func(c *AppConfig) { c.Store.Backend = "postgres" }, field: "store.dsn"},
		{name: "redis without addr", mutate: func(c *AppConfig) { c.Bus.Backend = "redis" }, field: "bus.redis.addr"},
		{name: "bad storage url", mutate: func(c *AppConfig) { c.Storage.BaseURL = "ftp://gw" }, field: "storage.baseURL"},
		{name: "bad log level", mutate: func(c *AppConfig) { c.LogLevel = "loud" }, field: "logLevel"},
		{name: "bad sampling", mutate: func(c *AppConfig) { c.Tracing.Enabled = true; c.Tracing.SamplingRate = 2 }, field: "tracing.samplingRate"},
		{name: "plugin root missing", mutate: func(c *AppConfig) {
			c.Plugins = []PluginConfig{{ID: "p", Type: "file", Root: filepath.Join(c.DataDir, "missing")}}
		}, field: "plugins[0].root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("FEM_DATA_DIR", t.TempDir())
	path := filepath.Join(testutil.MustRepoRoot(t), "config.example.yaml")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTenant, cfg.Tenant)
	assert.Equal(t, model.PriorityHigh, cfg.Priorities.Deletion)
	assert.Equal(t, ":9464", cfg.Ops.ListenAddr)
}
