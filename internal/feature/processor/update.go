// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
)

// applyPatch merges patch into e. Nil property values unset the property.
// The unlocated geometry leaves the current geometry in place. Files are not
// touched.
func applyPatch(e *model.Entity, patch model.Feature, now time.Time) {
	e.Feature.Properties = e.Feature.Properties.Merge(patch.Properties)
	if !patch.Geometry.IsUnlocated() {
		e.Feature.Geometry = patch.Geometry
	}
	e.LastUpdate = now
}

// processUpdates applies the patches in registration order, so several
// updates of one feature within a job compose.
func (s *Service) processUpdates(ctx context.Context, reqs []*model.Request) (outcome, error) {
	cfg := s.config()
	logger := log.WithComponentFromContext(ctx, "update")

	ordered := slices.Clone(reqs)
	slices.SortStableFunc(ordered, func(a, b *model.Request) int {
		if c := a.RegistrationDate.Compare(b.RegistrationDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	entities, err := s.store.GetEntities(ctx, urnsOf(ordered))
	if err != nil {
		return outcome{}, fmt.Errorf("update: load entities: %w", err)
	}

	var (
		out     outcome
		touched []*model.Entity
		seen    = make(map[string]bool)
		save    []*model.Request
		remove  []*model.Request
		events  []model.RequestEvent
	)
	for _, r := range ordered {
		p := r.Payload.(*model.UpdatePayload)
		e, ok := entities[p.URN]
		if !ok {
			s.fail(ctx, r, model.EvFail, fmt.Sprintf(msgUnknownURN, p.URN))
			save = append(save, r)
			out.failed++
			continue
		}

		applyPatch(e, p.Feature, s.now())
		if !seen[e.URN] {
			seen[e.URN] = true
			touched = append(touched, e)
		}
		events = append(events, s.success(r, e.URN))
		out.succeeded++

		if !cfg.NotificationsActive {
			remove = append(remove, r)
			continue
		}
		f := e.Feature.Clone()
		p.ToNotify = &f
		p.SourceToNotify = e.SessionOwner
		p.SessionToNotify = e.Session
		if err := advance(r, model.EvAwaitNotification); err != nil {
			return outcome{}, err
		}
		save = append(save, r)
	}

	if len(touched) > 0 {
		if err := s.store.SaveEntities(ctx, touched); err != nil {
			return outcome{}, fmt.Errorf("update: save %d entities: %w", len(touched), err)
		}
	}
	if err := s.commit(ctx, save, remove); err != nil {
		return outcome{}, fmt.Errorf("update: %w", err)
	}
	s.publishEvents(ctx, events)

	logger.Debug().
		Str(log.FieldEvent, "update.batch_applied").
		Int("entities", len(touched)).
		Int(log.FieldCount, len(ordered)).
		Msg("updates applied")
	return out, nil
}
