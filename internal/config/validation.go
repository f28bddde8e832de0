// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/validate"
)

// MaxBulkSizeLimit bounds scheduler.maxBulkSize.
const MaxBulkSizeLimit = 10000

// Validate validates an AppConfig using the centralized validation package.
// A missing data directory is created.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.NotEmpty("tenant", cfg.Tenant)
	if strings.Contains(cfg.Tenant, ":") {
		v.AddError("tenant", "must not contain ':'", cfg.Tenant)
	}
	v.Directory("dataDir", cfg.DataDir, false)
	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", "must be one of debug, info, warn, error", cfg.LogLevel)
	}

	v.OneOf("store.backend", cfg.Store.Backend, []string{"memory", "sqlite", "postgres"})
	switch cfg.Store.Backend {
	case "sqlite":
		v.NotEmpty("store.path", cfg.Store.Path)
	case "postgres":
		v.NotEmpty("store.dsn", cfg.Store.DSN)
	}

	v.PositiveDuration("scheduler.interval", cfg.Scheduler.Interval)
	v.Range("scheduler.maxBulkSize", cfg.Scheduler.MaxBulkSize, 1, MaxBulkSizeLimit)
	if cfg.Scheduler.DelayBeforeProcessing < 0 {
		v.AddError("scheduler.delayBeforeProcessing", "cannot be negative", cfg.Scheduler.DelayBeforeProcessing)
	}

	for kind, p := range map[string]model.Priority{
		"creation":     cfg.Priorities.Creation,
		"update":       cfg.Priorities.Update,
		"deletion":     cfg.Priorities.Deletion,
		"notification": cfg.Priorities.Notification,
		"reference":    cfg.Priorities.Reference,
		"copy":         cfg.Priorities.Copy,
	} {
		if p != model.PriorityUnset && !p.Valid() {
			v.AddError("priorities."+kind, "must be HIGH, NORMAL or LOW", p)
		}
	}

	v.Positive("workers.count", cfg.Workers.Count)
	v.Positive("workers.queueSize", cfg.Workers.QueueSize)

	v.PositiveDuration("sweeper.interval", cfg.Sweeper.Interval)
	v.PositiveDuration("sweeper.remoteTimeout", cfg.Sweeper.RemoteTimeout)
	v.Range("sweeper.pageSize", cfg.Sweeper.PageSize, 1, MaxBulkSizeLimit)
	v.Positive("sweeper.maxPages", cfg.Sweeper.MaxPages)

	v.OneOf("bus.backend", cfg.Bus.Backend, []string{"memory", "redis"})
	v.Positive("bus.batchSize", cfg.Bus.BatchSize)
	if cfg.Bus.Backend == "redis" {
		v.NotEmpty("bus.redis.addr", cfg.Bus.Redis.Addr)
		v.NotEmpty("bus.redis.group", cfg.Bus.Redis.Group)
		v.Range("bus.redis.db", cfg.Bus.Redis.DB, 0, 15)
		v.PositiveDuration("bus.redis.redeliverAfter", cfg.Bus.Redis.RedeliverAfter)
	}

	if cfg.Outbox.Enabled {
		v.PositiveDuration("outbox.relayInterval", cfg.Outbox.RelayInterval)
	}

	v.URL("storage.baseURL", cfg.Storage.BaseURL, []string{"http", "https"})
	v.NonNegative("storage.ratePerSecond", cfg.Storage.RatePerSecond)
	v.NonNegative("storage.burst", cfg.Storage.Burst)
	v.Range("storage.maxRetries", cfg.Storage.MaxRetries, 0, 10)
	v.PositiveDuration("storage.timeout", cfg.Storage.Timeout)
	v.NotEmpty("storage.deletionStorage", cfg.Storage.DeletionStorage)
	v.Positive("storage.breakerThreshold", cfg.Storage.BreakerThreshold)
	v.PositiveDuration("storage.breakerReset", cfg.Storage.BreakerReset)

	seen := make(map[string]bool, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		field := fmt.Sprintf("plugins[%d]", i)
		v.NotEmpty(field+".id", p.ID)
		if seen[p.ID] {
			v.AddError(field+".id", "duplicate plugin id", p.ID)
		}
		seen[p.ID] = true
		v.OneOf(field+".type", p.Type, []string{"file"})
		v.Directory(field+".root", p.Root, true)
	}

	v.NonNegative("ops.rateLimit", cfg.Ops.RateLimit)

	if cfg.Tracing.Enabled {
		v.OneOf("tracing.exporter", cfg.Tracing.Exporter, []string{"grpc", "http"})
		v.NotEmpty("tracing.endpoint", cfg.Tracing.Endpoint)
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			v.AddError("tracing.samplingRate", "must be between 0 and 1", cfg.Tracing.SamplingRate)
		}
	}

	return v.Err()
}
