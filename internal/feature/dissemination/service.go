// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dissemination records which recipients were sent a feature
// entity and which of them acknowledged it.
//
// Updates are applied with a compare-and-swap on the entity's recipients,
// so they never overwrite a concurrent feature update and two consumers
// never lose each other's recipients.
package dissemination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

const swapAttempts = 3

// ErrContended is returned when an entity's recipients kept changing
// under every attempt to apply an update.
var ErrContended = errors.New("dissemination: recipients changed concurrently")

// Store is the slice of the feature store the service needs.
type Store interface {
	GetEntities(ctx context.Context, urns []string) (map[string]*model.Entity, error)
	SwapDisseminations(ctx context.Context, urn string, old, next []model.Dissemination) (bool, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

type Option func(*Service)

// WithClock overrides the date given to updates that carry none.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Result counts what Apply did with a batch.
type Result struct {
	Applied int
	// Skipped updates target an unknown entity, or acknowledge an entity
	// never sent to the recipient.
	Skipped int
}

// Apply records updates on their entities, in order per entity.
func (s *Service) Apply(ctx context.Context, updates []model.DisseminationUpdate) (Result, error) {
	var (
		res   Result
		urns  []string
		byURN = make(map[string][]model.DisseminationUpdate)
	)
	for _, u := range updates {
		if u.Date.IsZero() {
			u.Date = s.now()
		}
		if _, ok := byURN[u.URN]; !ok {
			urns = append(urns, u.URN)
		}
		byURN[u.URN] = append(byURN[u.URN], u)
	}

	logger := log.WithComponentFromContext(ctx, "dissemination")
	pending := urns
	for attempt := 0; attempt < swapAttempts && len(pending) > 0; attempt++ {
		ents, err := s.store.GetEntities(ctx, pending)
		if err != nil {
			return res, fmt.Errorf("dissemination: load entities: %w", err)
		}
		var retry []string
		for _, urn := range pending {
			e, ok := ents[urn]
			if !ok {
				res.Skipped += len(byURN[urn])
				logger.Debug().
					Str(log.FieldEvent, "dissemination.unknown_entity").
					Str(log.FieldURN, urn).
					Msg("dissemination update for unknown entity dropped")
				continue
			}
			next := e.Clone()
			t := make(tally)
			for _, u := range byURN[urn] {
				if apply(next, u) {
					t.add(u)
				} else {
					res.Skipped++
				}
			}
			swapped, err := s.store.SwapDisseminations(ctx, urn, e.Disseminations, next.Disseminations)
			if err != nil {
				return res, fmt.Errorf("dissemination: %w", err)
			}
			if !swapped {
				retry = append(retry, urn)
				continue
			}
			res.Applied += t.total()
			t.record(logger, e)
		}
		pending = retry
	}
	if len(pending) > 0 {
		return res, fmt.Errorf("%w: %d entities", ErrContended, len(pending))
	}
	return res, nil
}

func apply(e *model.Entity, u model.DisseminationUpdate) bool {
	switch u.Type {
	case model.DisseminationPut:
		e.PutRecipient(u.RecipientLabel, u.Date, u.AckRequired)
		return true
	case model.DisseminationAck:
		return e.AckRecipient(u.RecipientLabel, u.Date)
	}
	return false
}

// counts are the session tallies of one recipient.
type counts struct {
	running, acknowledged, done int
}

type tally map[string]*counts

func (t tally) add(u model.DisseminationUpdate) {
	c, ok := t[u.RecipientLabel]
	if !ok {
		c = &counts{}
		t[u.RecipientLabel] = c
	}
	switch {
	case u.Type == model.DisseminationAck:
		c.acknowledged++
		c.done++
	case u.AckRequired:
		c.running++
	default:
		c.done++
	}
}

func (t tally) total() int {
	n := 0
	for _, c := range t {
		n += c.running + c.done
	}
	return n
}

func (t tally) record(logger zerolog.Logger, e *model.Entity) {
	for label, c := range t {
		metrics.RecordDissemination(label, c.running, c.acknowledged, c.done)
		logger.Info().
			Str(log.FieldEvent, "dissemination.recorded").
			Str(log.FieldURN, e.URN).
			Str(log.FieldSession, e.Session).
			Str("source", e.SessionOwner).
			Str("recipient", label).
			Int("running", c.running-c.acknowledged).
			Int("done", c.done).
			Msg("dissemination recorded")
	}
}
