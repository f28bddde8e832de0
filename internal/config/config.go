// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence is ENV > YAML file > defaults. The YAML file is decoded
// strictly: unknown keys and trailing documents are errors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultTenant          = "DEFAULT"
	DefaultDataDir         = "/var/lib/fem"
	DefaultStoreBackend    = "sqlite"
	DefaultSchedulerTick   = time.Second
	DefaultMaxBulkSize     = 100
	DefaultWorkers         = 4
	DefaultQueueSize       = 64
	DefaultBusBatch        = 100
	DefaultRelayInterval   = time.Second
	DefaultStorageURL      = "http://127.0.0.1:8090"
	DefaultStorageTimeout  = 10 * time.Second
	DefaultDeletionStorage = "ONLINE_CONF"
	DefaultOpsListenAddr   = ":9464"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string

	// ConsumedEnvKeys records the FEM_ variables read by the last Load.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a configuration loader. An empty configPath loads from
// defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.configPath
}

// Load builds the configuration: defaults, then the file, then the
// environment. The result is validated.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.ConsumedEnvKeys = make(map[string]struct{})
	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Tenant:   DefaultTenant,
		DataDir:  DefaultDataDir,
		LogLevel: "info",
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
		},
		Scheduler: SchedulerConfig{
			Interval:    DefaultSchedulerTick,
			MaxBulkSize: DefaultMaxBulkSize,
		},
		Workers: WorkersConfig{
			Count:     DefaultWorkers,
			QueueSize: DefaultQueueSize,
		},
		Sweeper: SweeperConfig{
			Interval:      time.Minute,
			RemoteTimeout: time.Hour,
			PageSize:      1000,
			MaxPages:      50,
		},
		Bus: BusConfig{
			Backend:   "memory",
			BatchSize: DefaultBusBatch,
			Redis: RedisConfig{
				StreamPrefix:   "fem:",
				Group:          "fem",
				RedeliverAfter: 5 * time.Second,
			},
		},
		Outbox: OutboxConfig{
			RelayInterval: DefaultRelayInterval,
		},
		Storage: StorageConfig{
			BaseURL:          DefaultStorageURL,
			Timeout:          DefaultStorageTimeout,
			MaxRetries:       3,
			DeletionStorage:  DefaultDeletionStorage,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Ops: OpsConfig{
			ListenAddr: DefaultOpsListenAddr,
		},
		Tracing: TracingConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

// resolvePaths fills file locations derived from the data directory.
func resolvePaths(cfg *AppConfig) {
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "fem.sqlite")
	}
	if cfg.Outbox.Enabled && cfg.Outbox.Path == "" {
		cfg.Outbox.Path = filepath.Join(cfg.DataDir, "outbox")
	}
}

// loadFile decodes the YAML file at path over cfg.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}
