// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"fmt"

	"github.com/ManuGH/fem/internal/feature/model"
)

// processCopies records that a file of a feature has been copied to another
// storage by adding the matching location.
func (s *Service) processCopies(ctx context.Context, reqs []*model.Request) (outcome, error) {
	entities, err := s.store.GetEntities(ctx, urnsOf(reqs))
	if err != nil {
		return outcome{}, fmt.Errorf("copy: load entities: %w", err)
	}

	var (
		out     outcome
		touched []*model.Entity
		seen    = make(map[string]bool)
		save    []*model.Request
		remove  []*model.Request
		events  []model.RequestEvent
	)
	for _, r := range reqs {
		p := r.Payload.(*model.CopyPayload)
		e, ok := entities[p.URN]
		if !ok {
			s.fail(ctx, r, model.EvFail, fmt.Sprintf(msgUnknownURN, p.URN))
			save = append(save, r)
			out.failed++
			continue
		}
		i := e.Feature.FileIndex(p.Checksum)
		if i < 0 {
			s.fail(ctx, r, model.EvFail, fmt.Sprintf(msgUnknownFile, p.Checksum, p.URN))
			save = append(save, r)
			out.failed++
			continue
		}

		file := &e.Feature.Files[i]
		if !file.HasLocation(p.Storage) {
			file.Locations = append(file.Locations, model.Location{Storage: p.Storage})
			e.LastUpdate = s.now()
			if !seen[e.URN] {
				seen[e.URN] = true
				touched = append(touched, e)
			}
		}
		events = append(events, s.success(r, e.URN))
		remove = append(remove, r)
		out.succeeded++
	}

	if len(touched) > 0 {
		if err := s.store.SaveEntities(ctx, touched); err != nil {
			return outcome{}, fmt.Errorf("copy: save %d entities: %w", len(touched), err)
		}
	}
	if err := s.commit(ctx, save, remove); err != nil {
		return outcome{}, fmt.Errorf("copy: %w", err)
	}
	s.publishEvents(ctx, events)
	return out, nil
}
