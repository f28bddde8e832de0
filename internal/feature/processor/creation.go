// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/feature/version"
	"github.com/ManuGH/fem/internal/log"
)

type creation struct {
	req     *model.Request
	payload *model.CreationPayload
	entity  *model.Entity
	// fresh is set when the entity was inserted by this job.
	fresh bool
}

// processCreations creates one entity per request and hands attached files
// to the Storage Gateway. A request whose entity already exists (a retry
// after a storage failure) resumes at the storage calls.
func (s *Service) processCreations(ctx context.Context, reqs []*model.Request) (outcome, error) {
	cfg := s.config()
	logger := log.WithComponentFromContext(ctx, "creation")

	var resume []string
	for _, r := range reqs {
		if p := r.Payload.(*model.CreationPayload); p.URN != "" {
			resume = append(resume, p.URN)
		}
	}
	existing := map[string]*model.Entity{}
	if len(resume) > 0 {
		var err error
		if existing, err = s.store.GetEntities(ctx, resume); err != nil {
			return outcome{}, fmt.Errorf("creation: load entities: %w", err)
		}
	}

	var (
		out     outcome
		work    []*creation
		failed  []*model.Request
		fresh   []*model.Entity
		holds   []version.Reservation
		release = func() {
			for _, h := range holds {
				h.Release()
			}
		}
	)
	defer release()

	var providers []string
	for _, r := range reqs {
		p := r.Payload.(*model.CreationPayload)
		if _, ok := existing[p.URN]; ok && p.URN != "" {
			continue
		}
		if !slices.Contains(providers, p.ProviderID) {
			providers = append(providers, p.ProviderID)
		}
	}
	// provider ids are reserved in ascending order so jobs sharing
	// providers cannot wait on each other in a cycle
	slices.Sort(providers)
	reserved := make(map[string]version.Reservation, len(providers))
	refused := make(map[string]error)
	for _, id := range providers {
		res, err := s.allocator.Reserve(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return outcome{}, ctx.Err()
			}
			refused[id] = err
			continue
		}
		holds = append(holds, res)
		reserved[id] = res
	}

	batchV := make(map[string]int)
	for _, r := range reqs {
		p := r.Payload.(*model.CreationPayload)
		if e, ok := existing[p.URN]; ok && p.URN != "" {
			work = append(work, &creation{req: r, payload: p, entity: e})
			continue
		}
		p.URN = ""
		if err, ok := refused[p.ProviderID]; ok {
			s.fail(ctx, r, model.EvFail, err.Error())
			failed = append(failed, r)
			continue
		}

		v, prev := batchV[p.ProviderID]+1, batchV[p.ProviderID]
		if prev == 0 {
			res := reserved[p.ProviderID]
			v, prev = res.Version, res.Previous
		}
		batchV[p.ProviderID] = v

		e := s.newEntity(cfg.Tenant, p, v, prev)
		work = append(work, &creation{req: r, payload: p, entity: e, fresh: true})
		fresh = append(fresh, e)
	}

	work, lost, err := s.insertEntities(ctx, cfg.Tenant, work, fresh)
	if err != nil {
		return outcome{}, err
	}
	failed = append(failed, lost...)
	release()
	holds = nil

	// the entity urn is durable on the request before any storage call
	toSave := make([]*model.Request, 0, len(work)+len(failed))
	for _, w := range work {
		w.payload.URN = w.entity.URN
		w.payload.Feature.URN = w.entity.URN
		toSave = append(toSave, w.req)
	}
	if err := s.commit(ctx, append(toSave, failed...), nil); err != nil {
		return outcome{}, fmt.Errorf("creation: %w", err)
	}
	out.failed = len(failed)

	var (
		save      []*model.Request
		remove    []*model.Request
		rollback  []string
		events    []model.RequestEvent
		notes     []model.Notification
		overrides []model.Event
	)
	for _, w := range work {
		r := w.req
		groups, err := s.requestStorage(ctx, w.entity.URN, w.payload.Feature, w.payload.Metadata)
		if err != nil {
			if w.fresh {
				rollback = append(rollback, w.entity.URN)
				w.payload.URN = ""
				w.payload.Feature.URN = ""
			}
			s.fail(ctx, r, model.EvFail, err.Error())
			save = append(save, r)
			out.failed++
			continue
		}
		if w.payload.Feature.HasFiles() {
			r.GroupIDs = groups
			if err := advance(r, model.EvStorageRequested); err != nil {
				return outcome{}, err
			}
			save = append(save, r)
			out.pending++
			logger.Debug().
				Str(log.FieldEvent, "creation.storage_requested").
				Str(log.FieldRequestID, r.RequestID).
				Str(log.FieldURN, w.entity.URN).
				Strs("group_ids", groups).
				Msg("files submitted to storage")
			continue
		}

		ev, note, override := s.completeCreation(cfg, r, w.payload, w.entity)
		events = append(events, ev)
		if note != nil {
			notes = append(notes, *note)
		}
		if override != nil {
			overrides = append(overrides, override)
		}
		remove = append(remove, r)
		out.succeeded++
	}

	if len(rollback) > 0 {
		if err := s.store.DeleteEntities(ctx, rollback); err != nil {
			return outcome{}, fmt.Errorf("creation: roll back entities: %w", err)
		}
	}
	if err := s.commit(ctx, save, remove); err != nil {
		return outcome{}, fmt.Errorf("creation: %w", err)
	}

	s.publishEvents(ctx, events)
	if err := s.publishNotifications(ctx, notes); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "creation.notify_failed").Msg("failed to publish creation notifications")
	}
	s.admitOverrides(ctx, overrides)
	return out, nil
}

func (s *Service) newEntity(tenant string, p *model.CreationPayload, v, prev int) *model.Entity {
	now := s.now()
	f := p.Feature.Clone()
	f.URN = model.NewURN(f.EntityType, tenant, p.ProviderID, v).String()
	e := &model.Entity{
		URN:          f.URN,
		ProviderID:   p.ProviderID,
		Model:        f.Model,
		Session:      p.Metadata.Session,
		SessionOwner: p.Metadata.SessionOwner,
		Version:      v,
		Feature:      f,
		CreationDate: now,
		LastUpdate:   now,
	}
	if prev > 0 {
		e.PreviousVersionURN = model.NewURN(f.EntityType, tenant, p.ProviderID, prev).String()
	}
	return e
}

// insertEntities writes all fresh entities at once. When another instance
// took one of the versions, it falls back to one insert per entity and
// retries a conflicting one once with a re-read version. Requests whose
// entity could not be written are returned failed.
func (s *Service) insertEntities(ctx context.Context, tenant string, work []*creation, fresh []*model.Entity) ([]*creation, []*model.Request, error) {
	if len(fresh) == 0 {
		return work, nil, nil
	}
	err := s.store.InsertEntities(ctx, fresh)
	if err == nil {
		return work, nil, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return nil, nil, fmt.Errorf("creation: insert %d entities: %w", len(fresh), err)
	}

	var (
		kept   []*creation
		failed []*model.Request
	)
	for _, w := range work {
		if !w.fresh {
			kept = append(kept, w)
			continue
		}
		err := s.store.InsertEntities(ctx, []*model.Entity{w.entity})
		if errors.Is(err, store.ErrVersionConflict) {
			var maxV int
			if maxV, err = s.store.MaxVersion(ctx, w.payload.ProviderID); err == nil {
				w.entity = s.newEntity(tenant, w.payload, maxV+1, maxV)
				err = s.store.InsertEntities(ctx, []*model.Entity{w.entity})
			}
		}
		switch {
		case err == nil:
			kept = append(kept, w)
		case errors.Is(err, store.ErrVersionConflict):
			s.fail(ctx, w.req, model.EvFail, fmt.Sprintf("Version %d of %s already exists", w.entity.Version, w.payload.ProviderID))
			failed = append(failed, w.req)
		default:
			return nil, nil, fmt.Errorf("creation: insert entity %s: %w", w.entity.URN, err)
		}
	}
	return kept, failed, nil
}

// completeCreation marks r successful and returns its lifecycle event, the
// CREATION notification when notifications are active, and the deletion of
// the previous version when the request asked for an override.
func (s *Service) completeCreation(cfg Config, r *model.Request, p *model.CreationPayload, e *model.Entity) (model.RequestEvent, *model.Notification, model.Event) {
	ev := s.success(r, e.URN)

	var note *model.Notification
	if cfg.NotificationsActive {
		f := e.Feature.Clone()
		n := s.notification(model.ActionCreation, r, e.URN, &f, e.SessionOwner, e.Session)
		note = &n
	}

	var override model.Event
	if p.Metadata.Override && e.PreviousVersionURN != "" {
		override = model.DeletionEvent{
			EventHeader: model.EventHeader{
				RequestID:    uuid.NewString(),
				RequestOwner: p.Metadata.SessionOwner,
				RequestDate:  s.now(),
				Priority:     r.Priority,
			},
			URN: e.PreviousVersionURN,
		}
	}
	return ev, note, override
}

func (s *Service) admitOverrides(ctx context.Context, events []model.Event) {
	if len(events) == 0 || s.admitter == nil {
		return
	}
	logger := log.WithComponentFromContext(ctx, "creation")
	res, err := s.admitter.Admit(ctx, events)
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "creation.override_failed").
			Int(log.FieldCount, len(events)).
			Msg("failed to admit deletion of previous versions")
		return
	}
	for _, d := range res.Denied {
		logger.Warn().
			Str(log.FieldEvent, "creation.override_denied").
			Strs("errors", d.Errors.Messages()).
			Msg("deletion of previous version denied")
	}
}
