// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/log"
)

var (
	ErrNotRetryable = errors.New("request is not retryable")
	ErrNotDeletable = errors.New("request is not deletable")
)

const recoverPageSize = 1000

// Retry reschedules errored requests. Either every request of ids is
// retried or none is. A creation whose entity survived its failure resumes
// at the storage calls.
func (s *Service) Retry(ctx context.Context, ids []int64) (int, error) {
	reqs, err := s.loadAll(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("retry: %w", err)
	}
	for _, r := range reqs {
		if !r.IsRetryable() {
			return 0, fmt.Errorf("retry %s request %s in state %s: %w", r.Kind(), r.RequestID, r.State, ErrNotRetryable)
		}
	}

	for _, r := range reqs {
		from := r.Step
		if err := r.Apply(model.EvRetry); err != nil {
			// a request forced into LOCAL_ERROR restarts from scratch
			r.State = model.StateGranted
			r.Step = model.StepLocalDelayed
			r.Errors = nil
		}
		r.GroupIDs = nil
		logger := requestLogger(ctx, "processor", r)
		logger.Info().
			Str(log.FieldEvent, lowerKind(r.Kind())+".retried").
			Str(log.FieldOldStep, string(from)).
			Str(log.FieldNewStep, string(r.Step)).
			Msg("request rescheduled")
	}
	if err := s.store.SaveRequests(ctx, reqs); err != nil {
		return 0, fmt.Errorf("retry: save %d requests: %w", len(reqs), err)
	}
	return len(reqs), nil
}

// Delete removes errored requests. Either every request of ids is deleted or
// none is.
func (s *Service) Delete(ctx context.Context, ids []int64) (int, error) {
	reqs, err := s.loadAll(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	for _, r := range reqs {
		if !r.IsDeletable() {
			return 0, fmt.Errorf("delete %s request %s in state %s: %w", r.Kind(), r.RequestID, r.State, ErrNotDeletable)
		}
	}
	if err := s.commit(ctx, nil, reqs); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return len(reqs), nil
}

func (s *Service) loadAll(ctx context.Context, ids []int64) ([]*model.Request, error) {
	reqs, err := s.store.GetRequests(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	if len(reqs) != len(ids) {
		found := make(map[int64]bool, len(reqs))
		for _, r := range reqs {
			found[r.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, fmt.Errorf("request %d: %w", id, store.ErrNotFound)
			}
		}
	}
	return reqs, nil
}

// Recover hands back requests whose job died with a previous process:
// scheduled requests return to LOCAL_DELAYED and notifications being sent
// return to LOCAL_TO_BE_NOTIFIED.
func (s *Service) Recover(ctx context.Context) (int, error) {
	moves := []struct{ from, to model.Step }{
		{model.StepLocalScheduled, model.StepLocalDelayed},
		{model.StepRemoteNotifyReq, model.StepLocalToBeNotified},
	}
	total := 0
	for _, m := range moves {
		for {
			page, err := s.store.FindRequests(ctx, store.RequestQuery{
				Steps:  []model.Step{m.from},
				States: []model.State{model.StateGranted},
				Limit:  recoverPageSize,
			})
			if err != nil {
				return total, fmt.Errorf("recover: find %s requests: %w", m.from, err)
			}
			if len(page) == 0 {
				break
			}
			ids := make([]int64, len(page))
			for i, r := range page {
				ids[i] = r.ID
			}
			moved, err := s.store.ClaimRequests(ctx, ids, m.from, m.to)
			if err != nil {
				return total, fmt.Errorf("recover: move %s requests: %w", m.from, err)
			}
			total += len(moved)
			if len(moved) == 0 {
				break
			}
		}
	}

	if total > 0 {
		logger := log.WithComponentFromContext(ctx, "processor")
		logger.Info().
			Str(log.FieldEvent, "processor.recovered").
			Int(log.FieldCount, total).
			Msg("requests of interrupted jobs handed back to the scheduler")
	}
	return total, nil
}
