// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission turns incoming feature events into persisted requests.
// Every event yields exactly one GRANTED or DENIED lifecycle event; only
// granted requests are persisted.
package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/ports"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/feature/validation"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
	"github.com/ManuGH/fem/internal/validate"
)

const msgDuplicateRequestID = "Request id already exists"

// RequestWriter is the part of the store admission needs.
type RequestWriter interface {
	InsertRequests(ctx context.Context, reqs []*model.Request) error
	ExistingRequestIDs(ctx context.Context, kind model.Kind, ids []string) (map[string]bool, error)
}

// EventValidator validates one event.
type EventValidator interface {
	Validate(ev model.Event) validation.ErrorSet
}

// Result lists the outcome of one Admit call. Granted requests carry their
// store id.
type Result struct {
	Granted []*model.Request
	Denied  []Decision
}

// Pipeline admits events.
type Pipeline struct {
	store     RequestWriter
	validator EventValidator
	publisher ports.EventPublisher
	now       func() time.Time

	mu         sync.RWMutex
	priorities map[model.Kind]model.Priority
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used for lifecycle event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithPriorities sets the priority given to events that do not carry one.
func WithPriorities(prio map[model.Kind]model.Priority) Option {
	return func(p *Pipeline) { p.priorities = prio }
}

func New(st RequestWriter, v EventValidator, pub ports.EventPublisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		validator: v,
		publisher: pub,
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetPriorities replaces the default priorities, for config reloads.
func (p *Pipeline) SetPriorities(prio map[model.Kind]model.Priority) {
	p.mu.Lock()
	p.priorities = prio
	p.mu.Unlock()
}

func (p *Pipeline) defaultPriority(k model.Kind) model.Priority {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if prio, ok := p.priorities[k]; ok && prio.Valid() {
		return prio
	}
	return model.PriorityNormal
}

// Admit validates events, persists the granted ones in a single write and
// publishes one lifecycle event per input event. An error is returned only
// when the store cannot be read or written; in that case nothing is
// published.
func (p *Pipeline) Admit(ctx context.Context, events []model.Event) (Result, error) {
	logger := log.WithComponentFromContext(ctx, "admission")
	if len(events) == 0 {
		return Result{}, nil
	}
	metrics.AdmissionBatchSize.Observe(float64(len(events)))

	taken, err := p.registeredIDs(ctx, events)
	if err != nil {
		return Result{}, err
	}

	decisions := make([]Decision, 0, len(events))
	for _, ev := range events {
		var errs validation.ErrorSet
		if p.validator != nil {
			errs = p.validator.Validate(ev)
		}
		d := decide(ev, errs, taken, p.defaultPriority)
		if d.Granted() {
			taken[idKey{ev.Kind(), d.Request.RequestID}] = true
		}
		decisions = append(decisions, d)
	}

	if err := p.persist(ctx, decisions); err != nil {
		return Result{}, err
	}

	var res Result
	lifecycle := make([]model.RequestEvent, 0, len(decisions))
	for _, d := range decisions {
		lifecycle = append(lifecycle, p.lifecycleEvent(d))
		kind := "unknown"
		if d.Event != nil {
			kind = string(d.Event.Kind())
		}
		if d.Granted() {
			res.Granted = append(res.Granted, d.Request)
			metrics.RecordAdmission(kind, "granted")
			continue
		}
		res.Denied = append(res.Denied, d)
		metrics.RecordAdmission(kind, "denied")
		denied := log.WithComponentFromContext(log.ContextWithRequestID(ctx, requestID(d.Event)), "admission")
		denied.Info().
			Str(log.FieldEvent, "admission.denied").
			Str(log.FieldKind, kind).
			Strs("errors", d.Errors.Messages()).
			Msg("request denied")
	}

	if err := p.publisher.PublishRequestEvents(ctx, lifecycle...); err != nil {
		// the requests are persisted; the scheduler proceeds regardless
		logger.Error().Err(err).
			Str(log.FieldEvent, "admission.publish_failed").
			Int(log.FieldCount, len(lifecycle)).
			Msg("failed to publish admission events")
	}

	logger.Debug().
		Str(log.FieldEvent, "admission.batch_admitted").
		Int("granted", len(res.Granted)).
		Int("denied", len(res.Denied)).
		Msg("admission batch done")
	return res, nil
}

// AdmitOne is Admit for a single event.
func (p *Pipeline) AdmitOne(ctx context.Context, ev model.Event) (Result, error) {
	return p.Admit(ctx, []model.Event{ev})
}

func (p *Pipeline) registeredIDs(ctx context.Context, events []model.Event) (map[idKey]bool, error) {
	byKind := make(map[model.Kind][]string)
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if id := ev.Header().RequestID; id != "" {
			byKind[ev.Kind()] = append(byKind[ev.Kind()], id)
		}
	}
	taken := make(map[idKey]bool)
	for kind, ids := range byKind {
		existing, err := p.store.ExistingRequestIDs(ctx, kind, ids)
		if err != nil {
			return nil, fmt.Errorf("admission: lookup request ids: %w", err)
		}
		for id := range existing {
			taken[idKey{kind, id}] = true
		}
	}
	return taken, nil
}

// persist writes the granted requests in one call. When another admitter
// registered one of the ids in between, it falls back to one insert per
// request and denies the duplicates.
func (p *Pipeline) persist(ctx context.Context, decisions []Decision) error {
	var granted []*model.Request
	for _, d := range decisions {
		if d.Granted() {
			granted = append(granted, d.Request)
		}
	}
	if len(granted) == 0 {
		return nil
	}
	err := p.store.InsertRequests(ctx, granted)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrDuplicateRequestID) {
		return fmt.Errorf("admission: persist %d requests: %w", len(granted), err)
	}

	for i := range decisions {
		d := &decisions[i]
		if !d.Granted() {
			continue
		}
		err := p.store.InsertRequests(ctx, []*model.Request{d.Request})
		switch {
		case err == nil:
		case errors.Is(err, store.ErrDuplicateRequestID):
			d.Errors = append(d.Errors, validate.Error{Field: "requestId", Value: d.Request.RequestID, Message: msgDuplicateRequestID})
			d.Request = nil
		default:
			return fmt.Errorf("admission: persist request %s: %w", d.Request.RequestID, err)
		}
	}
	return nil
}

func (p *Pipeline) lifecycleEvent(d Decision) model.RequestEvent {
	out := model.RequestEvent{Timestamp: p.now()}
	if d.Event != nil {
		h := d.Event.Header()
		out.RequestID = h.RequestID
		out.RequestOwner = h.RequestOwner
		out.Kind = d.Event.Kind()
		out.ProviderID, out.URN = identity(d.Event)
	}
	if d.Granted() {
		out.State = model.StateGranted
		return out
	}
	out.State = model.StateDenied
	out.Errors = d.Errors.Messages()
	return out
}

func requestID(ev model.Event) string {
	if ev == nil {
		return ""
	}
	return ev.Header().RequestID
}
