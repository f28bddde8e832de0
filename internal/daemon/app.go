// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the runtime lifecycle of the orchestrator: startup
// recovery, config reloads and the long-running services.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/fem/internal/config"
	"github.com/ManuGH/fem/internal/log"
)

// Service is a long-running component. Run blocks until ctx is canceled.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Loop adapts a ticker loop without an error result.
func Loop(name string, run func(ctx context.Context)) Service {
	return Service{Name: name, Run: func(ctx context.Context) error {
		run(ctx)
		return nil
	}}
}

// Deps are the collaborators of an App.
type Deps struct {
	Logger zerolog.Logger
	// Holder is optional; without it config reloads are disabled.
	Holder *config.ConfigHolder
	// Apply pushes a reloaded configuration into the running components.
	Apply func(config.AppConfig)
	// Recover runs once before any service starts.
	Recover  func(ctx context.Context) (int, error)
	Services []Service
}

// App runs the services of one daemon process.
type App struct {
	deps         Deps
	reloadSignal os.Signal
}

func NewApp(d Deps) *App {
	return &App{deps: d, reloadSignal: syscall.SIGHUP}
}

// Run recovers interrupted work, starts every service and blocks until ctx
// is canceled or a service fails. A service returning early stops the
// daemon.
func (a *App) Run(ctx context.Context) error {
	if len(a.deps.Services) == 0 {
		return ErrNoServices
	}
	logger := a.deps.Logger

	if a.deps.Recover != nil {
		n, err := a.deps.Recover(ctx)
		if err != nil {
			return fmt.Errorf("startup recovery: %w", err)
		}
		logger.Info().Str(log.FieldEvent, "daemon.recovered").Int(log.FieldCount, n).Msg("startup recovery done")
	}

	g, ctx := errgroup.WithContext(ctx)

	if h := a.deps.Holder; h != nil {
		if err := h.StartWatcher(ctx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		if a.deps.Apply != nil {
			applyCh := make(chan config.AppConfig, 1)
			h.RegisterListener(applyCh)
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case cfg := <-applyCh:
						a.deps.Apply(cfg)
						logger.Info().Str(log.FieldEvent, "config.applied").Msg("reloaded configuration applied")
					}
				}
			})
		}

		if a.reloadSignal != nil {
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, a.reloadSignal)
				defer signal.Stop(hup)
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hup:
						logger.Info().
							Str(log.FieldEvent, "config.reload_signal").
							Str("signal", a.reloadSignal.String()).
							Msg("received reload signal, reloading config")
						if err := h.Reload(ctx); err != nil {
							logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	for _, svc := range a.deps.Services {
		g.Go(func() error {
			logger.Debug().Str(log.FieldEvent, "daemon.service_started").Str("service", svc.Name).Msg("service started")
			err := svc.Run(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", svc.Name, err)
			}
			if ctx.Err() == nil {
				return fmt.Errorf("%s: %w", svc.Name, ErrServiceStopped)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped with error")
		return err
	}
	logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
	return nil
}
