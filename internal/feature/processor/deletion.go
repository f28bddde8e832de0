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

const (
	msgAlreadyDeleted = "Feature already deleted. Skipping silently!"
	unknownValue      = "unknown"
)

// processDeletions removes features. A feature without files is deleted at
// once; one with files is deleted when storage confirms the file release.
func (s *Service) processDeletions(ctx context.Context, reqs []*model.Request) (outcome, error) {
	cfg := s.config()
	logger := log.WithComponentFromContext(ctx, "deletion")

	entities, err := s.store.GetEntities(ctx, urnsOf(reqs))
	if err != nil {
		return outcome{}, fmt.Errorf("deletion: load entities: %w", err)
	}

	var (
		out     outcome
		gone    []string
		save    []*model.Request
		remove  []*model.Request
		events  []model.RequestEvent
		claimed = make(map[string]bool)
	)
	for _, r := range reqs {
		p := r.Payload.(*model.DeletionPayload)
		e, ok := entities[p.URN]

		switch {
		case !ok && !p.ForceDeletion:
			s.fail(ctx, r, model.EvFail, fmt.Sprintf(msgUnknownURN, p.URN))
			save = append(save, r)
			out.failed++

		case !ok || claimed[p.URN]:
			// the feature is gone, or an earlier request of this job takes it
			p.AlreadyDeleted = true
			ev := s.success(r, p.URN)
			ev.Errors = []string{msgAlreadyDeleted}
			events = append(events, ev)
			out.succeeded++
			deferred, err := s.deferDeletionNotice(cfg, r, placeholder(p.URN), unknownValue, unknownValue)
			if err != nil {
				return outcome{}, err
			}
			if deferred {
				save = append(save, r)
			} else {
				remove = append(remove, r)
			}

		case !e.Feature.HasFiles():
			claimed[p.URN] = true
			gone = append(gone, e.URN)
			events = append(events, s.success(r, e.URN))
			out.succeeded++
			deferred, err := s.deferDeletionNotice(cfg, r, &e.Feature, e.SessionOwner, e.Session)
			if err != nil {
				return outcome{}, err
			}
			if deferred {
				save = append(save, r)
			} else {
				remove = append(remove, r)
			}

		default:
			claimed[p.URN] = true
			gid, err := s.requestDeletion(ctx, cfg.DeletionStorage, e, p.ForceDeletion)
			if err != nil {
				s.fail(ctx, r, model.EvFail, err.Error())
				save = append(save, r)
				out.failed++
				continue
			}
			r.GroupIDs = []string{gid}
			if err := advance(r, model.EvStorageDelRequested); err != nil {
				return outcome{}, err
			}
			save = append(save, r)
			out.pending++
			logger.Debug().
				Str(log.FieldEvent, "deletion.storage_requested").
				Str(log.FieldRequestID, r.RequestID).
				Str(log.FieldURN, e.URN).
				Str(log.FieldGroupID, gid).
				Msg("file deletion submitted to storage")
		}
	}

	if len(gone) > 0 {
		if err := s.store.DeleteEntities(ctx, gone); err != nil {
			return outcome{}, fmt.Errorf("deletion: delete %d entities: %w", len(gone), err)
		}
	}
	if err := s.commit(ctx, save, remove); err != nil {
		return outcome{}, fmt.Errorf("deletion: %w", err)
	}
	s.publishEvents(ctx, events)
	return out, nil
}

// deferDeletionNotice stores the deletion notification on r when
// notifications are active and reports whether it did. r must be at a step
// with an EvAwaitNotification edge.
func (s *Service) deferDeletionNotice(cfg Config, r *model.Request, f *model.Feature, source, session string) (bool, error) {
	if !cfg.NotificationsActive {
		return false, nil
	}
	p := r.Payload.(*model.DeletionPayload)
	c := f.Clone()
	p.ToNotify = &c
	p.SourceToNotify = source
	p.SessionToNotify = session
	if err := advance(r, model.EvAwaitNotification); err != nil {
		return false, err
	}
	return true, nil
}

// placeholder stands in for a feature that no longer exists.
func placeholder(urn string) *model.Feature {
	return &model.Feature{
		ID:         unknownValue,
		URN:        urn,
		Model:      unknownValue,
		EntityType: model.DefaultEntityType,
		Geometry:   model.Unlocated(),
	}
}
