// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"fmt"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
)

// processNotifications re-emits the current snapshot of each feature. A
// feature still at its creation snapshot is announced as a CREATION.
func (s *Service) processNotifications(ctx context.Context, reqs []*model.Request) (outcome, error) {
	entities, err := s.store.GetEntities(ctx, urnsOf(reqs))
	if err != nil {
		return outcome{}, fmt.Errorf("notification: load entities: %w", err)
	}

	var (
		out   outcome
		save  []*model.Request
		sent  []*model.Request
		notes []model.Notification
	)
	for _, r := range reqs {
		p := r.Payload.(*model.NotificationPayload)
		e, ok := entities[p.URN]
		if !ok {
			s.fail(ctx, r, model.EvFail, fmt.Sprintf(msgUnknownURN, p.URN))
			save = append(save, r)
			out.failed++
			continue
		}
		action := model.ActionUpdate
		if e.NeverUpdated() {
			action = model.ActionCreation
		}
		f := e.Feature.Clone()
		notes = append(notes, s.notification(action, r, e.URN, &f, e.SessionOwner, e.Session))
		sent = append(sent, r)
	}

	// delivery is fire-and-forget: sent requests are deleted either way
	var events []model.RequestEvent
	if err := s.publishNotifications(ctx, notes); err != nil {
		logger := log.WithComponentFromContext(ctx, "notification")
		logger.Error().Err(err).
			Str(log.FieldEvent, "notification.publish_failed").
			Int(log.FieldCount, len(sent)).
			Msg("notifications lost, requests deleted")
		out.failed += len(sent)
	} else {
		for _, r := range sent {
			events = append(events, s.success(r, r.URN()))
		}
		out.succeeded += len(sent)
	}

	if err := s.commit(ctx, save, sent); err != nil {
		return outcome{}, fmt.Errorf("notification: %w", err)
	}
	s.publishEvents(ctx, events)
	return out, nil
}
