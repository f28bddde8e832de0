// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scheduler selects pending requests in bounded batches and hands
// them to the worker pool as jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

// Config holds the values the scheduler reads on every pass.
type Config struct {
	Interval              time.Duration
	MaxBulkSize           int
	DelayBeforeProcessing time.Duration
}

// Store is the part of the request store the scheduler uses.
type Store interface {
	FindRequests(ctx context.Context, q store.RequestQuery) ([]*model.Request, error)
	FindByURNs(ctx context.Context, kind model.Kind, urns []string, steps []model.Step) ([]*model.Request, error)
	ClaimRequests(ctx context.Context, ids []int64, from, to model.Step) ([]int64, error)
	SaveRequests(ctx context.Context, reqs []*model.Request) error
}

// Dispatcher accepts jobs for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.Job) error
}

// Scheduler runs the per-kind selection passes and the notifier pass.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	now        func() time.Time
	group      singleflight.Group

	mu  sync.RWMutex
	cfg Config
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(st Store, d Dispatcher, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{store: st, dispatcher: d, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetConfig replaces the configuration; the next pass uses it.
func (s *Scheduler) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Scheduler) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run calls RunOnce on every tick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config().Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := log.WithComponent("scheduler")
	logger.Info().Str(log.FieldEvent, "scheduler.started").Dur("interval", interval).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Str(log.FieldEvent, "scheduler.pass_failed").Msg("scheduling pass failed")
			}
		}
	}
}

// RunOnce runs one pass for every kind and then the notifier pass.
// Concurrent callers share the running pass.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("schedule", func() (any, error) {
		total := 0
		for _, k := range model.Kinds {
			n, err := s.ScheduleBatch(ctx, k)
			if err != nil {
				return total, err
			}
			total += n
		}
		n, err := s.ScheduleNotifications(ctx)
		return total + n, err
	})
	n, _ := v.(int)
	return n, err
}

// ScheduleBatch selects up to MaxBulkSize delayed requests of kind, claims
// them and dispatches one job. It returns the number of requests scheduled,
// 0 when nothing was eligible.
func (s *Scheduler) ScheduleBatch(ctx context.Context, kind model.Kind) (int, error) {
	cfg := s.config()
	q := store.RequestQuery{
		Kind:   kind,
		Steps:  []model.Step{model.StepLocalDelayed},
		States: []model.State{model.StateGranted},
		Limit:  cfg.MaxBulkSize,
	}
	if kind == model.KindCreation || kind == model.KindUpdate {
		q.RegisteredBefore = s.now().Add(-cfg.DelayBeforeProcessing)
	}
	page, err := s.store.FindRequests(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("scheduler: select %s requests: %w", kind, err)
	}
	if len(page) == 0 {
		return 0, nil
	}

	switch kind {
	case model.KindCreation:
		var deferred int
		page, deferred = dedupByProvider(page)
		metrics.RecordDeferred(string(kind), "provider_in_batch", deferred)
	case model.KindUpdate:
		page, err = s.filterUpdates(ctx, page)
		if err != nil {
			return 0, err
		}
	}
	return s.claimAndDispatch(ctx, kind, model.StageProcess, page, model.StepLocalDelayed, model.StepLocalScheduled)
}

// ScheduleNotifications moves requests owing a notification to
// REMOTE_NOTIFICATION_REQUESTED and dispatches one notify job per kind.
func (s *Scheduler) ScheduleNotifications(ctx context.Context) (int, error) {
	page, err := s.store.FindRequests(ctx, store.RequestQuery{
		Steps:  []model.Step{model.StepLocalToBeNotified},
		States: []model.State{model.StateGranted},
		Limit:  s.config().MaxBulkSize,
	})
	if err != nil {
		return 0, fmt.Errorf("scheduler: select requests to notify: %w", err)
	}

	byKind := make(map[model.Kind][]*model.Request)
	for _, r := range page {
		byKind[r.Kind()] = append(byKind[r.Kind()], r)
	}
	total := 0
	for _, k := range model.Kinds {
		if len(byKind[k]) == 0 {
			continue
		}
		n, err := s.claimAndDispatch(ctx, k, model.StageNotify, byKind[k], model.StepLocalToBeNotified, model.StepRemoteNotifyReq)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Scheduler) claimAndDispatch(ctx context.Context, kind model.Kind, stage model.Stage, page []*model.Request, from, to model.Step) (int, error) {
	if len(page) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(page))
	for i, r := range page {
		ids[i] = r.ID
	}
	claimed, err := s.store.ClaimRequests(ctx, ids, from, to)
	if err != nil {
		return 0, fmt.Errorf("scheduler: claim %s requests: %w", kind, err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	// keep selection order; the first request carries the highest priority
	won := make(map[int64]bool, len(claimed))
	for _, id := range claimed {
		won[id] = true
	}
	job := model.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Stage:     stage,
		CreatedAt: s.now(),
	}
	for _, r := range page {
		if !won[r.ID] {
			continue
		}
		if len(job.RequestIDs) == 0 {
			job.Priority = r.Priority
		}
		job.RequestIDs = append(job.RequestIDs, r.ID)
	}

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		// give the requests back so the next pass picks them up again
		if _, rerr := s.store.ClaimRequests(ctx, job.RequestIDs, to, from); rerr != nil {
			return 0, fmt.Errorf("scheduler: dispatch %s job: %w (release: %v)", kind, err, rerr)
		}
		return 0, fmt.Errorf("scheduler: dispatch %s job: %w", kind, err)
	}

	metrics.RecordScheduled(string(kind), string(stage), len(job.RequestIDs))
	logger := log.WithComponent("scheduler")
	logger.Info().
		Str(log.FieldEvent, "scheduler.batch_scheduled").
		Str(log.FieldJobID, job.ID).
		Str(log.FieldKind, string(kind)).
		Str(log.FieldStage, string(stage)).
		Str(log.FieldPriority, job.Priority.String()).
		Int(log.FieldCount, len(job.RequestIDs)).
		Msg("job dispatched")
	return len(job.RequestIDs), nil
}
