// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package processor applies scheduled requests to the feature store and
// drives the storage and notification collaborators.
//
// Processing failures are recorded on the request and committed; they never
// abort a job. Only store failures are returned, in which case the job's
// requests stay where they are and are recovered on the next start.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/fem/internal/feature/admission"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/ports"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/feature/version"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
	"github.com/ManuGH/fem/internal/telemetry"
)

const (
	tracerName = "fem.processor"

	msgUnknownURN    = "No feature referenced in database with following URN : %s"
	msgUnknownPlugin = "Unknown plugin for configuration %s"
	msgUnknownFile   = "No file with checksum %s in feature %s"
)

// DefaultDeletionStorage is the storage targeted by file deletions when the
// configuration names none.
const DefaultDeletionStorage = "ONLINE_CONF"

// Store is the persistence surface processors use.
type Store interface {
	store.RequestStore
	store.FeatureStore
}

// Admitter receives events synthesized during processing.
type Admitter interface {
	Admit(ctx context.Context, events []model.Event) (admission.Result, error)
}

// Config holds the values processors read on every job.
type Config struct {
	Tenant              string
	NotificationsActive bool
	DeletionStorage     string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     Store
	Allocator *version.Allocator
	Gateway   ports.StorageGateway
	Publisher ports.EventPublisher
	Plugins   ports.PluginRegistry
	Admitter  Admitter
	Now       func() time.Time
}

// Service executes jobs. It implements worker.Handler.
type Service struct {
	store     Store
	allocator *version.Allocator
	gateway   ports.StorageGateway
	publisher ports.EventPublisher
	plugins   ports.PluginRegistry
	admitter  Admitter
	now       func() time.Time

	mu  sync.RWMutex
	cfg Config
}

func New(d Deps, cfg Config) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Allocator == nil {
		d.Allocator = version.NewAllocator(d.Store)
	}
	return &Service{
		store:     d.Store,
		allocator: d.Allocator,
		gateway:   d.Gateway,
		publisher: d.Publisher,
		plugins:   d.Plugins,
		admitter:  d.Admitter,
		now:       d.Now,
		cfg:       cfg,
	}
}

// SetConfig replaces the configuration used by subsequent jobs.
func (s *Service) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	if cfg.DeletionStorage == "" {
		cfg.DeletionStorage = DefaultDeletionStorage
	}
	return cfg
}

// outcome counts how the requests of one job ended.
type outcome struct {
	succeeded int
	failed    int
	pending   int
}

// Handle loads the job's requests and runs the processor of its kind.
func (s *Service) Handle(ctx context.Context, job model.Job) (err error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "fem.job."+string(job.Stage))
	span.SetAttributes(telemetry.JobAttributes(job.ID, string(job.Kind), string(job.Stage), job.Priority.String(), len(job.RequestIDs))...)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	reqs, err := s.store.GetRequests(ctx, job.RequestIDs)
	if err != nil {
		return fmt.Errorf("load %s job %s: %w", job.Kind, job.ID, err)
	}

	want := model.StepLocalScheduled
	if job.Stage == model.StageNotify {
		want = model.StepRemoteNotifyReq
	}
	live := reqs[:0]
	for _, r := range reqs {
		if r.Step == want {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return nil
	}

	var out outcome
	if job.Stage == model.StageNotify {
		out, err = s.notify(ctx, live)
	} else {
		out, err = s.process(ctx, live)
	}
	if err != nil {
		return err
	}

	span.SetAttributes(telemetry.OutcomeAttributes(out.succeeded, out.failed, out.pending)...)
	kind := string(job.Kind)
	metrics.RecordProcessed(kind, "success", out.succeeded)
	metrics.RecordProcessed(kind, "error", out.failed)
	metrics.RecordProcessed(kind, "pending", out.pending)
	return nil
}

// process splits reqs by payload type and runs the matching processor.
func (s *Service) process(ctx context.Context, reqs []*model.Request) (outcome, error) {
	var creations, updates, deletions, notifications, references, copies []*model.Request
	for _, r := range reqs {
		switch r.Payload.(type) {
		case *model.CreationPayload:
			creations = append(creations, r)
		case *model.UpdatePayload:
			updates = append(updates, r)
		case *model.DeletionPayload:
			deletions = append(deletions, r)
		case *model.NotificationPayload:
			notifications = append(notifications, r)
		case *model.ReferencePayload:
			references = append(references, r)
		case *model.CopyPayload:
			copies = append(copies, r)
		default:
			return outcome{}, fmt.Errorf("request %s: unsupported payload %T", r.RequestID, r.Payload)
		}
	}

	steps := []struct {
		reqs []*model.Request
		run  func(context.Context, []*model.Request) (outcome, error)
	}{
		{creations, s.processCreations},
		{updates, s.processUpdates},
		{deletions, s.processDeletions},
		{notifications, s.processNotifications},
		{references, s.processReferences},
		{copies, s.processCopies},
	}
	var total outcome
	for _, st := range steps {
		if len(st.reqs) == 0 {
			continue
		}
		out, err := st.run(ctx, st.reqs)
		if err != nil {
			return total, err
		}
		total.succeeded += out.succeeded
		total.failed += out.failed
		total.pending += out.pending
	}
	return total, nil
}

// commit writes the outcome of a job: saved requests first, then deleted ones.
func (s *Service) commit(ctx context.Context, save []*model.Request, remove []*model.Request) error {
	if len(save) > 0 {
		if err := s.store.SaveRequests(ctx, save); err != nil {
			return fmt.Errorf("save %d requests: %w", len(save), err)
		}
	}
	if len(remove) > 0 {
		ids := make([]int64, len(remove))
		for i, r := range remove {
			ids[i] = r.ID
		}
		if err := s.store.DeleteRequests(ctx, ids); err != nil {
			return fmt.Errorf("delete %d requests: %w", len(remove), err)
		}
	}
	return nil
}

// fail records a processing error on r.
func (s *Service) fail(ctx context.Context, r *model.Request, ev model.StepEvent, msgs ...string) {
	from := r.Step
	terr := r.Fail(ev, msgs...)
	logger := requestLogger(ctx, "processor", r)
	entry := logger.Warn()
	if terr != nil {
		// a missing edge still leaves r in LOCAL_ERROR
		entry = logger.Error().AnErr("transition_error", terr)
	}
	entry.
		Str(log.FieldEvent, lowerKind(r.Kind())+".failed").
		Str(log.FieldOldStep, string(from)).
		Str(log.FieldNewStep, string(r.Step)).
		Strs("errors", msgs).
		Msg("request failed")
}

// requestLogger returns a component logger carrying r's request id.
func requestLogger(ctx context.Context, component string, r *model.Request) zerolog.Logger {
	return log.WithComponentFromContext(log.ContextWithRequestID(ctx, r.RequestID), component)
}

// advance applies ev, which the step tables allow by construction.
func advance(r *model.Request, ev model.StepEvent) error {
	if err := r.Apply(ev); err != nil {
		return fmt.Errorf("advance request: %w", err)
	}
	return nil
}

func (s *Service) publishEvents(ctx context.Context, events []model.RequestEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.publisher.PublishRequestEvents(ctx, events...); err != nil {
		logger := log.WithComponentFromContext(ctx, "processor")
		logger.Error().Err(err).
			Str(log.FieldEvent, "processor.publish_failed").
			Int(log.FieldCount, len(events)).
			Msg("failed to publish request events")
	}
}

func (s *Service) publishNotifications(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	return s.publisher.PublishNotifications(ctx, ns...)
}

// success builds the SUCCESS lifecycle event of r. The request itself stays
// GRANTED while it still owes a notification.
func (s *Service) success(r *model.Request, urn string) model.RequestEvent {
	return model.RequestEvent{
		RequestID:    r.RequestID,
		RequestOwner: r.RequestOwner,
		Kind:         r.Kind(),
		ProviderID:   r.ProviderID(),
		URN:          urn,
		State:        model.StateSuccess,
		Timestamp:    s.now(),
	}
}

func (s *Service) notification(action model.NotificationAction, r *model.Request, urn string, f *model.Feature, source, session string) model.Notification {
	return model.Notification{
		Action:       action,
		RequestID:    r.RequestID,
		RequestOwner: r.RequestOwner,
		URN:          urn,
		Feature:      f,
		Source:       source,
		Session:      session,
		Timestamp:    s.now(),
	}
}

func urnsOf(reqs []*model.Request) []string {
	seen := make(map[string]bool, len(reqs))
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if u := r.URN(); u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func lowerKind(k model.Kind) string {
	if k == "" {
		return "request"
	}
	return strings.ToLower(string(k))
}
