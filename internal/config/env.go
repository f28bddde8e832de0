// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fem/internal/log"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "FEM_"

// mergeEnvConfig applies FEM_ environment overrides. Invalid values are
// logged and ignored.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	e := envReader{logger: log.WithComponent("config"), consumed: l.ConsumedEnvKeys}

	e.str("FEM_TENANT", &cfg.Tenant)
	e.str("FEM_DATA_DIR", &cfg.DataDir)
	e.str("FEM_LOG_LEVEL", &cfg.LogLevel)

	e.str("FEM_STORE_BACKEND", &cfg.Store.Backend)
	e.str("FEM_STORE_PATH", &cfg.Store.Path)
	e.str("FEM_STORE_DSN", &cfg.Store.DSN)

	e.duration("FEM_SCHEDULER_INTERVAL", &cfg.Scheduler.Interval)
	e.integer("FEM_SCHEDULER_MAX_BULK_SIZE", &cfg.Scheduler.MaxBulkSize)
	e.duration("FEM_SCHEDULER_DELAY", &cfg.Scheduler.DelayBeforeProcessing)

	e.integer("FEM_WORKERS_COUNT", &cfg.Workers.Count)
	e.integer("FEM_WORKERS_QUEUE_SIZE", &cfg.Workers.QueueSize)

	e.boolean("FEM_NOTIFICATIONS_ACTIVE", &cfg.Notifications.Active)

	e.duration("FEM_SWEEPER_INTERVAL", &cfg.Sweeper.Interval)
	e.duration("FEM_SWEEPER_REMOTE_TIMEOUT", &cfg.Sweeper.RemoteTimeout)

	e.str("FEM_BUS_BACKEND", &cfg.Bus.Backend)
	e.str("FEM_REDIS_ADDR", &cfg.Bus.Redis.Addr)
	e.str("FEM_REDIS_PASSWORD", &cfg.Bus.Redis.Password)
	e.integer("FEM_REDIS_DB", &cfg.Bus.Redis.DB)
	e.str("FEM_REDIS_CONSUMER", &cfg.Bus.Redis.Consumer)

	e.boolean("FEM_OUTBOX_ENABLED", &cfg.Outbox.Enabled)
	e.str("FEM_OUTBOX_PATH", &cfg.Outbox.Path)

	e.str("FEM_STORAGE_BASE_URL", &cfg.Storage.BaseURL)
	e.str("FEM_STORAGE_TOKEN", &cfg.Storage.Token)
	e.integer("FEM_STORAGE_RATE_PER_SECOND", &cfg.Storage.RatePerSecond)
	e.str("FEM_STORAGE_DELETION_STORAGE", &cfg.Storage.DeletionStorage)

	e.str("FEM_MODELS_FILE", &cfg.Models.File)

	e.str("FEM_OPS_LISTEN_ADDR", &cfg.Ops.ListenAddr)
	e.integer("FEM_OPS_RATE_LIMIT", &cfg.Ops.RateLimit)

	e.boolean("FEM_TRACING_ENABLED", &cfg.Tracing.Enabled)
	e.str("FEM_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	e.str("FEM_TRACING_ENDPOINT", &cfg.Tracing.Endpoint)
	e.float("FEM_TRACING_SAMPLING_RATE", &cfg.Tracing.SamplingRate)
}

type envReader struct {
	logger   zerolog.Logger
	consumed map[string]struct{}
}

// lookup returns the value of key when it is set and not empty.
func (e envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	if e.consumed != nil {
		e.consumed[key] = struct{}{}
	}
	return v, true
}

func (e envReader) str(key string, dst *string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	ev := e.logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", v)
	}
	ev.Msg("using environment variable")
	*dst = v
}

func (e envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "integer")
		return
	}
	e.logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	*dst = i
}

func (e envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(key, v, "boolean")
		return
	}
	e.logger.Debug().Str("key", key).Bool("value", b).Str("source", "environment").Msg("using environment variable")
	*dst = b
}

func (e envReader) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(key, v, "float")
		return
	}
	e.logger.Debug().Str("key", key).Float64("value", f).Str("source", "environment").Msg("using environment variable")
	*dst = f
}

// duration reads Go duration format (e.g. "5s").
func (e envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, "duration")
		return
	}
	e.logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	*dst = d
}

func (e envReader) invalid(key, value, kind string) {
	e.logger.Warn().
		Str("key", key).
		Str("value", value).
		Msgf("invalid %s in environment variable, keeping configured value", kind)
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "dsn")
}
