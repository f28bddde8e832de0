// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/ports"
	"github.com/ManuGH/fem/internal/log"
)

// processReferences turns each reference into a creation request: the
// feature is generated by the plugin named in the request and admitted
// under the same request id.
func (s *Service) processReferences(ctx context.Context, reqs []*model.Request) (outcome, error) {
	logger := log.WithComponentFromContext(ctx, "reference")

	var (
		out     outcome
		save    []*model.Request
		pending []*model.Request
		events  []model.Event
	)
	for _, r := range reqs {
		p := r.Payload.(*model.ReferencePayload)
		var gen ports.FeatureGenerator
		if s.plugins != nil {
			if g, ok := s.plugins.Resolve(p.PluginBusinessID); ok {
				gen = g
			}
		}
		if gen == nil {
			s.fail(ctx, r, model.EvFail, fmt.Sprintf(msgUnknownPlugin, p.PluginBusinessID))
			save = append(save, r)
			out.failed++
			continue
		}

		f, err := gen.Generate(ctx, p.Location)
		if err != nil {
			if ctx.Err() != nil {
				return outcome{}, ctx.Err()
			}
			s.fail(ctx, r, model.EvFail, fmt.Sprintf("Feature generation failed for %s: %v", p.Location, err))
			save = append(save, r)
			out.failed++
			continue
		}
		logger.Debug().
			Str(log.FieldEvent, "reference.generated").
			Str(log.FieldRequestID, r.RequestID).
			Str(log.FieldPluginID, p.PluginBusinessID).
			Str("feature_id", f.ID).
			Msg("feature generated")

		events = append(events, model.CreationEvent{
			EventHeader: model.EventHeader{
				RequestID:    r.RequestID,
				RequestOwner: r.RequestOwner,
				RequestDate:  s.now(),
				Priority:     r.Priority,
			},
			Feature:  f,
			Metadata: p.Metadata,
		})
		pending = append(pending, r)
	}

	var (
		remove []*model.Request
		done   []model.RequestEvent
	)
	if len(events) > 0 {
		if s.admitter == nil {
			return outcome{}, fmt.Errorf("reference: no admission pipeline configured")
		}
		res, err := s.admitter.Admit(ctx, events)
		if err != nil {
			return outcome{}, fmt.Errorf("reference: admit %d creations: %w", len(events), err)
		}
		denied := make(map[string][]string, len(res.Denied))
		for _, d := range res.Denied {
			denied[d.Event.Header().RequestID] = d.Errors.Messages()
		}
		for _, r := range pending {
			if msgs, ok := denied[r.RequestID]; ok {
				s.fail(ctx, r, model.EvFail, "Generated feature denied: "+strings.Join(msgs, ", "))
				save = append(save, r)
				out.failed++
				continue
			}
			done = append(done, s.success(r, ""))
			remove = append(remove, r)
			out.succeeded++
		}
	}

	if err := s.commit(ctx, save, remove); err != nil {
		return outcome{}, fmt.Errorf("reference: %w", err)
	}
	s.publishEvents(ctx, done)
	return out, nil
}
