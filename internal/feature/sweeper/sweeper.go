// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sweeper aborts requests that waited too long on a remote
// collaborator.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

const msgAborted = "Request has been aborted."

const (
	DefaultInterval = time.Minute
	DefaultTimeout  = time.Hour
	DefaultPageSize = 1000
	DefaultMaxPages = 50
)

// Config holds the values read on every pass. Zero fields use the defaults.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	PageSize int
	MaxPages int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	return c
}

// Store is the part of the request store the sweeper uses.
type Store interface {
	FindRequests(ctx context.Context, q store.RequestQuery) ([]*model.Request, error)
	CommitRequests(ctx context.Context, save []*model.Request, remove []int64, guard store.Guard) ([]int64, error)
}

type Sweeper struct {
	store Store
	now   func() time.Time

	mu  sync.RWMutex
	cfg Config
}

// Option configures a Sweeper.
type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(st Store, cfg Config, opts ...Option) *Sweeper {
	s := &Sweeper{store: st, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetConfig replaces the configuration; the next pass uses it.
func (s *Sweeper) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Sweeper) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.withDefaults()
}

// Run sweeps on every tick until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	cfg := s.config()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logger := log.WithComponent("sweeper")
	logger.Info().
		Str(log.FieldEvent, "sweeper.started").
		Dur("interval", cfg.Interval).
		Dur("timeout", cfg.Timeout).
		Msg("timeout sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Str(log.FieldEvent, "sweeper.pass_failed").Msg("sweep failed")
			}
		}
	}
}

// SweepOnce aborts every GRANTED request whose remote step has not moved
// for longer than the timeout, reading at most MaxPages pages. It returns
// the number of aborted requests.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cfg := s.config()
	deadline := s.now().Add(-cfg.Timeout)
	logger := log.WithComponentFromContext(ctx, "sweeper")

	total := 0
	for page := 0; page < cfg.MaxPages; page++ {
		reqs, err := s.store.FindRequests(ctx, store.RequestQuery{
			Steps:         model.TimeoutSteps(),
			States:        []model.State{model.StateGranted},
			UpdatedBefore: deadline,
			Limit:         cfg.PageSize,
		})
		if err != nil {
			return total, fmt.Errorf("sweeper: find timed out requests: %w", err)
		}
		if len(reqs) == 0 {
			break
		}

		// a request that moved on since it was read is left alone
		guard := store.GuardOf(reqs)
		for _, r := range reqs {
			from := r.Step
			if err := r.Fail(model.EvTimeout, msgAborted); err != nil {
				logger.Error().Err(err).
					Str(log.FieldEvent, "sweeper.transition_failed").
					Str(log.FieldRequestID, r.RequestID).
					Msg("timeout edge missing, request forced to LOCAL_ERROR")
			} else if want, _ := model.TimeoutErrorStep(from); want != r.Step {
				logger.Warn().
					Str(log.FieldEvent, "sweeper.unexpected_step").
					Str(log.FieldRequestID, r.RequestID).
					Str(log.FieldNewStep, string(r.Step)).
					Msg("timed out request landed on an unexpected step")
			}
		}
		done, err := s.store.CommitRequests(ctx, reqs, nil, guard)
		if err != nil {
			return total, fmt.Errorf("sweeper: save %d aborted requests: %w", len(reqs), err)
		}
		aborted := make(map[int64]bool, len(done))
		for _, id := range done {
			aborted[id] = true
		}
		for _, r := range reqs {
			from := guard[r.ID]
			if !aborted[r.ID] {
				logger.Debug().
					Str(log.FieldEvent, "sweeper.skipped").
					Str(log.FieldRequestID, r.RequestID).
					Str(log.FieldStep, string(from)).
					Msg("request settled while it was being aborted")
				continue
			}
			metrics.RecordSweeperAbort(string(from))
			logger.Warn().
				Str(log.FieldEvent, "sweeper.aborted").
				Str(log.FieldKind, string(r.Kind())).
				Str(log.FieldRequestID, r.RequestID).
				Str(log.FieldOldStep, string(from)).
				Str(log.FieldNewStep, string(r.Step)).
				Time("last_update", r.LastUpdate).
				Msg("request aborted after remote timeout")
		}
		total += len(done)
		if len(reqs) < cfg.PageSize {
			break
		}
	}
	return total, nil
}
