// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

const defaultResponseBatch = 100

// HandleStorageResponses settles the requests waiting on the reported
// storage groups. A request completes once all of its groups succeeded and
// fails on the first failed group. Responses for unknown groups, or for
// requests no longer waiting, are logged and dropped.
func (s *Service) HandleStorageResponses(ctx context.Context, resps []model.StorageResponse) error {
	if len(resps) == 0 {
		return nil
	}
	cfg := s.config()
	logger := log.WithComponentFromContext(ctx, "storage_responses")

	byGroup := make(map[string]model.StorageResponse, len(resps))
	gids := make([]string, 0, len(resps))
	for _, resp := range resps {
		if _, dup := byGroup[resp.GroupID]; !dup {
			gids = append(gids, resp.GroupID)
		}
		byGroup[resp.GroupID] = resp
	}

	reqs, err := s.store.FindByGroupIDs(ctx, gids)
	if err != nil {
		return fmt.Errorf("storage responses: load requests: %w", err)
	}
	guard := store.GuardOf(reqs)

	var (
		matched  = make(map[string]bool, len(gids))
		save     []*model.Request
		complete []*model.Request
	)
	for _, r := range reqs {
		var (
			remaining []string
			errs      []string
			failed    bool
		)
		for _, g := range r.GroupIDs {
			resp, ok := byGroup[g]
			if !ok {
				remaining = append(remaining, g)
				continue
			}
			matched[g] = true
			if !resp.Success {
				failed = true
				if len(resp.Errors) == 0 {
					errs = append(errs, fmt.Sprintf("Storage group %s failed", g))
				}
				errs = append(errs, resp.Errors...)
			}
		}

		if r.Step != model.StepRemoteStorageReq && r.Step != model.StepRemoteStorageDel {
			stale := requestLogger(ctx, "storage_responses", r)
			stale.Warn().
				Str(log.FieldEvent, "storage_responses.stale").
				Str(log.FieldStep, string(r.Step)).
				Msg("storage response for a request no longer waiting")
			continue
		}

		r.GroupIDs = remaining
		switch {
		case failed:
			s.fail(ctx, r, model.EvStorageFailed, errs...)
			save = append(save, r)
			metrics.RecordProcessed(string(r.Kind()), "error", 1)
		case len(remaining) > 0:
			save = append(save, r)
		default:
			complete = append(complete, r)
		}
	}

	for _, g := range gids {
		if !matched[g] {
			metrics.IncBusDropReason(bus.TopicStorageResponses, "unknown_group")
			logger.Warn().
				Str(log.FieldEvent, "storage_responses.unknown_group").
				Str(log.FieldGroupID, g).
				Msg("no request waits for storage group")
		}
	}

	return s.completeStorage(ctx, cfg, guard, save, complete)
}

// completeStorage finishes the requests whose storage groups all succeeded
// and commits them together with save. Requests that left the step guard
// recorded for them in the meantime, for instance aborted by the sweeper,
// are neither written nor announced.
func (s *Service) completeStorage(ctx context.Context, cfg Config, guard store.Guard, save, complete []*model.Request) error {
	entities, err := s.store.GetEntities(ctx, urnsOf(complete))
	if err != nil {
		return fmt.Errorf("storage responses: load entities: %w", err)
	}

	var (
		remove    []int64
		gone      []string
		events    = make(map[int64]model.RequestEvent, len(complete))
		notes     = make(map[int64]model.Notification)
		overrides = make(map[int64]model.Event)
	)
	for _, r := range complete {
		e, ok := entities[r.URN()]
		switch p := r.Payload.(type) {
		case *model.CreationPayload:
			if !ok {
				s.fail(ctx, r, model.EvStorageFailed, fmt.Sprintf(msgUnknownURN, p.URN))
				save = append(save, r)
				metrics.RecordProcessed(string(r.Kind()), "error", 1)
				continue
			}
			ev, note, override := s.completeCreation(cfg, r, p, e)
			events[r.ID] = ev
			if note != nil {
				notes[r.ID] = *note
			}
			if override != nil {
				overrides[r.ID] = override
			}
			remove = append(remove, r.ID)

		case *model.DeletionPayload:
			f, source, session := placeholder(p.URN), unknownValue, unknownValue
			if ok {
				gone = append(gone, e.URN)
				f, source, session = &e.Feature, e.SessionOwner, e.Session
			} else {
				p.AlreadyDeleted = true
			}
			events[r.ID] = s.success(r, p.URN)
			deferred, err := s.deferDeletionNotice(cfg, r, f, source, session)
			if err != nil {
				return err
			}
			if deferred {
				save = append(save, r)
			} else {
				remove = append(remove, r.ID)
			}

		default:
			return fmt.Errorf("storage responses: %s request %s cannot wait for storage", r.Kind(), r.RequestID)
		}
		metrics.RecordProcessed(string(r.Kind()), "success", 1)
	}

	if len(gone) > 0 {
		if err := s.store.DeleteEntities(ctx, gone); err != nil {
			return fmt.Errorf("storage responses: delete %d entities: %w", len(gone), err)
		}
	}
	done, err := s.store.CommitRequests(ctx, save, remove, guard)
	if err != nil {
		return fmt.Errorf("storage responses: commit %d requests: %w", len(save)+len(remove), err)
	}
	written := make(map[int64]bool, len(done))
	for _, id := range done {
		written[id] = true
	}

	var (
		announce []model.RequestEvent
		notify   []model.Notification
		admit    []model.Event
	)
	for _, r := range complete {
		if !written[r.ID] {
			lost := requestLogger(ctx, "storage_responses", r)
			lost.Warn().
				Str(log.FieldEvent, "storage_responses.superseded").
				Str(log.FieldStep, string(guard[r.ID])).
				Msg("request changed while its storage completed, completion dropped")
			continue
		}
		if ev, ok := events[r.ID]; ok {
			announce = append(announce, ev)
		}
		if n, ok := notes[r.ID]; ok {
			notify = append(notify, n)
		}
		if o, ok := overrides[r.ID]; ok {
			admit = append(admit, o)
		}
	}

	s.publishEvents(ctx, announce)
	if err := s.publishNotifications(ctx, notify); err != nil {
		logger := log.WithComponentFromContext(ctx, "storage_responses")
		logger.Error().Err(err).
			Str(log.FieldEvent, "storage_responses.notify_failed").
			Msg("failed to publish creation notifications")
	}
	s.admitOverrides(ctx, admit)
	return nil
}

// StorageListener feeds storage completion messages into a Service.
type StorageListener struct {
	bus     bus.Bus
	service *Service
	batch   int
}

func NewStorageListener(b bus.Bus, s *Service, batch int) *StorageListener {
	if batch <= 0 {
		batch = defaultResponseBatch
	}
	return &StorageListener{bus: b, service: s, batch: batch}
}

// Run consumes until ctx is canceled or the subscription closes.
func (l *StorageListener) Run(ctx context.Context) error {
	sub, err := l.bus.Subscribe(ctx, bus.TopicStorageResponses)
	if err != nil {
		return fmt.Errorf("storage responses: subscribe %s: %w", bus.TopicStorageResponses, err)
	}
	defer func() { _ = sub.Close() }()

	logger := log.WithComponent("storage_responses")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			msgs, resps := l.drain(ctx, msg, sub.C())
			if len(resps) == 0 {
				continue
			}
			batchCtx := log.ContextWithCorrelationID(ctx, msg.ID)
			if err := l.service.HandleStorageResponses(batchCtx, resps); err != nil {
				bus.NackAll(msgs)
				if ctx.Err() != nil {
					return nil
				}
				logger.Error().Err(err).
					Str(log.FieldEvent, "storage_responses.batch_failed").
					Int(log.FieldCount, len(resps)).
					Msg("storage responses not applied, batch left for redelivery")
				continue
			}
			if err := bus.AckAll(ctx, msgs); err != nil {
				logger.Warn().Err(err).
					Str(log.FieldEvent, "storage_responses.ack_failed").
					Msg("applied storage responses not acknowledged")
			}
		}
	}
}

// drain collects the messages already queued behind first, up to the batch
// size. Undecodable messages are acked and dropped.
func (l *StorageListener) drain(ctx context.Context, first bus.Message, ch <-chan bus.Message) ([]bus.Message, []model.StorageResponse) {
	msgs := make([]bus.Message, 0, l.batch)
	out := make([]model.StorageResponse, 0, l.batch)
	add := func(msg bus.Message) {
		r, ok := decodeResponse(msg)
		if !ok {
			_ = msg.Ack(ctx)
			return
		}
		msgs = append(msgs, msg)
		out = append(out, r)
	}
	add(first)
	for len(out) < l.batch {
		select {
		case msg, ok := <-ch:
			if !ok {
				return msgs, out
			}
			add(msg)
		default:
			return msgs, out
		}
	}
	return msgs, out
}

func decodeResponse(msg bus.Message) (model.StorageResponse, bool) {
	var resp model.StorageResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil || resp.GroupID == "" {
		metrics.IncBusDropReason(bus.TopicStorageResponses, "decode")
		logger := log.WithComponent("storage_responses")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "storage_responses.decode_failed").
			Str("message_id", msg.ID).
			Msg("dropping undecodable storage response")
		return model.StorageResponse{}, false
	}
	return resp, true
}
