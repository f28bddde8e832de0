// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bootstrap is the production composition root: it turns an
// AppConfig into a wired set of components and a daemon.App running them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/config"
	"github.com/ManuGH/fem/internal/daemon"
	"github.com/ManuGH/fem/internal/feature/admission"
	"github.com/ManuGH/fem/internal/feature/dissemination"
	"github.com/ManuGH/fem/internal/feature/plugin"
	"github.com/ManuGH/fem/internal/feature/processor"
	"github.com/ManuGH/fem/internal/feature/publish"
	"github.com/ManuGH/fem/internal/feature/scheduler"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/feature/sweeper"
	"github.com/ManuGH/fem/internal/feature/validation"
	"github.com/ManuGH/fem/internal/feature/worker"
	"github.com/ManuGH/fem/internal/health"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/ops"
	"github.com/ManuGH/fem/internal/outbox"
	"github.com/ManuGH/fem/internal/storageclient"
	"github.com/ManuGH/fem/internal/telemetry"
)

const outboxDegradedBacklog = 10000

// Container is the production composition root output.
type Container struct {
	Config    config.AppConfig
	Holder    *config.ConfigHolder
	Logger    zerolog.Logger
	Telemetry *telemetry.Provider

	Store         store.Store
	Bus           bus.Bus
	Outbox        *outbox.Outbox
	Models        *validation.ModelRegistry
	Plugins       *plugin.Registry
	Admission     *admission.Pipeline
	Processor     *processor.Service
	Dissemination *dissemination.Service
	Pool          *worker.Pool
	Scheduler     *scheduler.Scheduler
	Sweeper       *sweeper.Sweeper
	Health        *health.Manager
	App           *daemon.App

	closers []func() error
}

// WireServices loads the configuration at configPath and builds the
// container.
func WireServices(ctx context.Context, version, configPath string) (*Container, error) {
	loader := config.NewLoader(configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Output: os.Stdout, Version: version})

	c, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Holder = config.NewConfigHolder(cfg, loader)
	c.App = c.newApp()
	return c, nil
}

// Build wires every component for cfg. Nothing runs until App.Run.
func Build(ctx context.Context, cfg config.AppConfig) (c *Container, err error) {
	c = &Container{Config: cfg, Logger: log.WithComponent("bootstrap")}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	c.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "fem",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Tracing.Environment,
		ExporterType:   cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return c, fmt.Errorf("telemetry: %w", err)
	}
	c.closers = append(c.closers, func() error { return c.Telemetry.Shutdown(context.Background()) })

	target := cfg.Store.Path
	if cfg.Store.Backend == "postgres" {
		target = cfg.Store.DSN
	}
	c.Store, err = store.Open(ctx, cfg.Store.Backend, target)
	if err != nil {
		return c, fmt.Errorf("open store: %w", err)
	}
	c.closers = append(c.closers, c.Store.Close)

	c.Bus, err = bus.Open(ctx, cfg.Bus.Backend, redisConfig(cfg.Bus.Redis))
	if err != nil {
		return c, fmt.Errorf("open bus: %w", err)
	}
	c.closers = append(c.closers, c.Bus.Close)

	var sink publish.Sink = c.Bus
	if cfg.Outbox.Enabled {
		c.Outbox, err = outbox.Open(cfg.Outbox.Path, c.Bus)
		if err != nil {
			return c, err
		}
		c.closers = append(c.closers, c.Outbox.Close)
		sink = c.Outbox
	}
	publisher := publish.New(sink)

	var models validation.ModelValidator
	if cfg.Models.File != "" {
		c.Models, err = validation.LoadModelRegistry(cfg.Models.File)
		if err != nil {
			return c, err
		}
		models = c.Models
	}

	c.Plugins = plugin.NewRegistry()
	for _, p := range cfg.Plugins {
		if err := c.Plugins.Register(p.ID, plugin.FileGenerator{Root: p.Root}); err != nil {
			return c, err
		}
	}

	c.Admission = admission.New(c.Store, validation.New(models), publisher,
		admission.WithPriorities(cfg.Priorities.ByKind()))

	gateway := storageclient.New(cfg.Storage.BaseURL, storageclient.Options{
		Timeout:          cfg.Storage.Timeout,
		MaxRetries:       cfg.Storage.MaxRetries,
		RateLimit:        rate.Limit(cfg.Storage.RatePerSecond),
		RateLimitBurst:   cfg.Storage.Burst,
		UserAgent:        "fem/" + cfg.Version,
		Token:            cfg.Storage.Token,
		BreakerThreshold: cfg.Storage.BreakerThreshold,
		BreakerReset:     cfg.Storage.BreakerReset,
	})

	c.Processor = processor.New(processor.Deps{
		Store:     c.Store,
		Gateway:   gateway,
		Publisher: publisher,
		Plugins:   c.Plugins,
		Admitter:  c.Admission,
	}, ProcessorConfig(cfg))

	c.Dissemination = dissemination.New(c.Store)

	c.Pool = worker.New(c.Processor, cfg.Workers.Count, cfg.Workers.QueueSize)
	c.Scheduler = scheduler.New(c.Store, c.Pool, SchedulerConfig(cfg))
	c.Sweeper = sweeper.New(c.Store, SweeperConfig(cfg))

	c.Health = health.NewManager(cfg.Version)
	c.Health.RegisterChecker(health.NewPingChecker("store", c.Store.Ping))
	if p, ok := c.Bus.(interface{ Ping(context.Context) error }); ok {
		c.Health.RegisterChecker(health.NewPingChecker("bus", p.Ping))
	}
	if c.Outbox != nil {
		c.Health.RegisterChecker(health.NewBacklogChecker("outbox", outboxDegradedBacklog, c.Outbox.Backlog))
	}
	c.Health.RegisterChecker(health.NewFileChecker("models", cfg.Models.File))

	c.Logger.Info().
		Str(log.FieldEvent, "bootstrap.wired").
		Str("store", cfg.Store.Backend).
		Str("bus", cfg.Bus.Backend).
		Bool("outbox", cfg.Outbox.Enabled).
		Bool("notifications", cfg.Notifications.Active).
		Int("plugins", len(cfg.Plugins)).
		Msg("components wired")
	return c, nil
}

// Services lists the long-running components of the container.
func (c *Container) Services() []daemon.Service {
	cfg := c.Config
	svcs := []daemon.Service{
		{Name: "worker", Run: c.Pool.Run},
		daemon.Loop("scheduler", c.Scheduler.Run),
		daemon.Loop("sweeper", c.Sweeper.Run),
		{Name: "admission", Run: admission.NewListener(c.Bus, c.Admission, cfg.Bus.BatchSize).Run},
		{Name: "storage_responses", Run: processor.NewStorageListener(c.Bus, c.Processor, cfg.Bus.BatchSize).Run},
		{Name: "disseminations", Run: dissemination.NewListener(c.Bus, c.Dissemination, cfg.Bus.BatchSize).Run},
	}
	if c.Outbox != nil {
		svcs = append(svcs, daemon.Loop("outbox", func(ctx context.Context) {
			c.Outbox.Run(ctx, cfg.Outbox.RelayInterval)
		}))
	}
	if cfg.Ops.ListenAddr != "" {
		router := ops.NewRouter(ops.Deps{
			Health:    c.Health,
			Admin:     c.Processor,
			Metrics:   promhttp.Handler(),
			RateLimit: cfg.Ops.RateLimit,
		})
		svcs = append(svcs, daemon.Service{Name: "ops", Run: ops.NewServer(cfg.Ops.ListenAddr, router).Run})
	}
	return svcs
}

func (c *Container) newApp() *daemon.App {
	return daemon.NewApp(daemon.Deps{
		Logger:   log.WithComponent("daemon"),
		Holder:   c.Holder,
		Apply:    c.Apply,
		Recover:  c.Processor.Recover,
		Services: c.Services(),
	})
}

// Apply pushes the reloadable parts of cfg into the running components.
// Store, bus, outbox and ops settings only change on restart.
func (c *Container) Apply(cfg config.AppConfig) {
	c.Scheduler.SetConfig(SchedulerConfig(cfg))
	c.Sweeper.SetConfig(SweeperConfig(cfg))
	c.Processor.SetConfig(ProcessorConfig(cfg))
	c.Admission.SetPriorities(cfg.Priorities.ByKind())

	if c.Models != nil && cfg.Models.File != "" {
		defs, err := readModels(cfg.Models.File)
		if err == nil {
			err = c.Models.Replace(defs)
		}
		if err != nil {
			c.Logger.Error().Err(err).
				Str(log.FieldEvent, "bootstrap.models_reload_failed").
				Str(log.FieldPath, cfg.Models.File).
				Msg("keeping previous model definitions")
		}
	}
}

func readModels(path string) ([]validation.ModelDefinition, error) {
	// #nosec G304 -- the models file path comes from the operator config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	return validation.ParseModels(data)
}

// Close releases the resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func SchedulerConfig(cfg config.AppConfig) scheduler.Config {
	return scheduler.Config{
		Interval:              cfg.Scheduler.Interval,
		MaxBulkSize:           cfg.Scheduler.MaxBulkSize,
		DelayBeforeProcessing: cfg.Scheduler.DelayBeforeProcessing,
	}
}

func SweeperConfig(cfg config.AppConfig) sweeper.Config {
	return sweeper.Config{
		Interval: cfg.Sweeper.Interval,
		Timeout:  cfg.Sweeper.RemoteTimeout,
		PageSize: cfg.Sweeper.PageSize,
		MaxPages: cfg.Sweeper.MaxPages,
	}
}

func ProcessorConfig(cfg config.AppConfig) processor.Config {
	return processor.Config{
		Tenant:              cfg.Tenant,
		NotificationsActive: cfg.Notifications.Active,
		DeletionStorage:     cfg.Storage.DeletionStorage,
	}
}

func redisConfig(r config.RedisConfig) bus.RedisConfig {
	consumer := r.Consumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	return bus.RedisConfig{
		Addr:           r.Addr,
		Password:       r.Password,
		DB:             r.DB,
		StreamPrefix:   r.StreamPrefix,
		Group:          r.Group,
		Consumer:       consumer,
		MaxLen:         r.MaxLen,
		RedeliverAfter: r.RedeliverAfter,
	}
}
