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

// notify publishes the notifications deferred by updates and deletions and
// deletes their requests. When publishing fails the requests are left in
// REMOTE_NOTIFICATION_REQUESTED; the sweeper aborts them after the remote
// timeout so they can be retried.
func (s *Service) notify(ctx context.Context, reqs []*model.Request) (outcome, error) {
	notes := make([]model.Notification, 0, len(reqs))
	for _, r := range reqs {
		n, ok := s.deferredNotification(r)
		if !ok {
			return outcome{}, fmt.Errorf("notify: %s request %s carries no notification", r.Kind(), r.RequestID)
		}
		notes = append(notes, n)
	}

	if err := s.publishNotifications(ctx, notes); err != nil {
		return outcome{}, fmt.Errorf("notify: publish %d notifications: %w", len(notes), err)
	}
	if err := s.commit(ctx, nil, reqs); err != nil {
		return outcome{}, fmt.Errorf("notify: %w", err)
	}

	logger := log.WithComponentFromContext(ctx, "notifier")
	logger.Debug().
		Str(log.FieldEvent, "notifier.sent").
		Int(log.FieldCount, len(notes)).
		Msg("deferred notifications published")
	return outcome{succeeded: len(reqs)}, nil
}

func (s *Service) deferredNotification(r *model.Request) (model.Notification, bool) {
	switch p := r.Payload.(type) {
	case *model.UpdatePayload:
		return s.notification(model.ActionUpdate, r, p.URN, p.ToNotify, p.SourceToNotify, p.SessionToNotify), true
	case *model.DeletionPayload:
		action := model.ActionDeletion
		if p.AlreadyDeleted {
			action = model.ActionAlreadyDeleted
		}
		return s.notification(action, r, p.URN, p.ToNotify, p.SourceToNotify, p.SessionToNotify), true
	}
	return model.Notification{}, false
}
