// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker executes scheduled jobs on a fixed number of goroutines,
// highest priority first.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

var (
	ErrQueueFull = errors.New("job queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

// Handler executes one job. A returned error is logged; the requests of a
// failed job stay where the handler left them.
type Handler interface {
	Handle(ctx context.Context, job model.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job model.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job model.Job) error { return f(ctx, job) }

// Pool is a bounded priority queue drained by Workers goroutines.
type Pool struct {
	handler Handler
	workers int

	mu      sync.Mutex
	queue   jobQueue
	seq     uint64
	stopped bool
	// one token per queued job
	ready chan struct{}
}

func New(h Handler, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		handler: h,
		workers: workers,
		ready:   make(chan struct{}, queueSize),
	}
}

// Dispatch queues job without blocking.
func (p *Pool) Dispatch(_ context.Context, job model.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if len(p.queue) >= cap(p.ready) {
		return fmt.Errorf("%w (%d jobs)", ErrQueueFull, len(p.queue))
	}
	p.seq++
	p.queue.push(job, p.seq)
	p.ready <- struct{}{}
	metrics.SetJobQueueDepth(len(p.queue))
	return nil
}

// Len returns the number of queued jobs.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) next() model.Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	job := p.queue.pop()
	metrics.SetJobQueueDepth(len(p.queue))
	return job
}

// Run starts the workers and blocks until ctx is canceled and the jobs in
// progress have returned. Jobs still queued are dropped; their requests are
// recovered on the next start.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-p.ready:
					p.execute(ctx, p.next())
				}
			}
		})
	}
	err := g.Wait()

	p.mu.Lock()
	p.stopped = true
	dropped := len(p.queue)
	p.mu.Unlock()
	if dropped > 0 {
		logger := log.WithComponent("worker")
		logger.Warn().Str(log.FieldEvent, "worker.jobs_dropped").Int(log.FieldCount, dropped).Msg("pool stopped with queued jobs")
	}
	return err
}

func (p *Pool) execute(ctx context.Context, job model.Job) {
	ctx = log.ContextWithJobID(ctx, job.ID)
	logger := log.WithComponentFromContext(ctx, "worker")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str(log.FieldEvent, "worker.job_panic").
				Str(log.FieldKind, string(job.Kind)).
				Interface("panic", r).
				Msg("job panicked")
		}
	}()

	err := p.handler.Handle(ctx, job)
	metrics.ObserveJob(string(job.Kind), string(job.Stage), time.Since(start))
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "worker.job_failed").
			Str(log.FieldKind, string(job.Kind)).
			Str(log.FieldStage, string(job.Stage)).
			Int(log.FieldCount, len(job.RequestIDs)).
			Msg("job failed")
		return
	}
	logger.Debug().
		Str(log.FieldEvent, "worker.job_done").
		Str(log.FieldKind, string(job.Kind)).
		Dur("duration", time.Since(start)).
		Msg("job done")
}
