// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"context"
	"fmt"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

const msgBeingDeleted = "Feature with urn %s is being deleted"

// dedupByProvider keeps the first request of every provider id. The others
// stay delayed for a later pass.
func dedupByProvider(page []*model.Request) ([]*model.Request, int) {
	seen := make(map[string]bool, len(page))
	out := page[:0:0]
	for _, r := range page {
		pid := r.ProviderID()
		if seen[pid] {
			continue
		}
		seen[pid] = true
		out = append(out, r)
	}
	return out, len(page) - len(out)
}

// filterUpdates drops updates on urns already being updated by a running
// job and fails updates on urns with a pending deletion.
func (s *Scheduler) filterUpdates(ctx context.Context, page []*model.Request) ([]*model.Request, error) {
	urns := make([]string, 0, len(page))
	seen := make(map[string]bool, len(page))
	for _, r := range page {
		if u := r.URN(); !seen[u] {
			seen[u] = true
			urns = append(urns, u)
		}
	}

	running, err := s.store.FindByURNs(ctx, model.KindUpdate, urns, []model.Step{model.StepLocalScheduled})
	if err != nil {
		return nil, fmt.Errorf("scheduler: find running updates: %w", err)
	}
	deleting, err := s.store.FindByURNs(ctx, model.KindDeletion, urns,
		[]model.Step{model.StepLocalScheduled, model.StepRemoteStorageDel})
	if err != nil {
		return nil, fmt.Errorf("scheduler: find pending deletions: %w", err)
	}
	busy := make(map[string]bool, len(running))
	for _, r := range running {
		busy[r.URN()] = true
	}
	doomed := make(map[string]bool, len(deleting))
	for _, r := range deleting {
		doomed[r.URN()] = true
	}

	var (
		keep    []*model.Request
		failed  []*model.Request
		skipped int
	)
	for _, r := range page {
		switch {
		case doomed[r.URN()]:
			if err := r.Fail(model.EvFail, fmt.Sprintf(msgBeingDeleted, r.URN())); err != nil {
				return nil, err
			}
			failed = append(failed, r)
		case busy[r.URN()]:
			skipped++
		default:
			keep = append(keep, r)
		}
	}
	metrics.RecordDeferred(string(model.KindUpdate), "urn_busy", skipped)

	if len(failed) > 0 {
		if err := s.store.SaveRequests(ctx, failed); err != nil {
			return nil, fmt.Errorf("scheduler: save rejected updates: %w", err)
		}
		metrics.RecordProcessed(string(model.KindUpdate), "error", len(failed))
		logger := log.WithComponent("scheduler")
		for _, r := range failed {
			logger.Warn().
				Str(log.FieldEvent, "scheduler.update_rejected").
				Str(log.FieldRequestID, r.RequestID).
				Str(log.FieldURN, r.URN()).
				Msg("update targets a feature being deleted")
		}
	}
	return keep, nil
}
