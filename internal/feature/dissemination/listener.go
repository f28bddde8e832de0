// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dissemination

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

const defaultBatch = 100

// Listener feeds updates published on bus.TopicDisseminations into a
// Service, batching the messages already queued.
type Listener struct {
	bus     bus.Bus
	service *Service
	batch   int
}

func NewListener(b bus.Bus, s *Service, batch int) *Listener {
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Listener{bus: b, service: s, batch: batch}
}

// Run consumes until ctx is canceled or the subscription closes.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.bus.Subscribe(ctx, bus.TopicDisseminations)
	if err != nil {
		return fmt.Errorf("dissemination: subscribe %s: %w", bus.TopicDisseminations, err)
	}
	defer func() { _ = sub.Close() }()

	logger := log.WithComponent("dissemination")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			msgs, updates := l.drain(ctx, msg, sub.C())
			if len(updates) == 0 {
				continue
			}
			batchCtx := log.ContextWithCorrelationID(ctx, msg.ID)
			res, err := l.service.Apply(batchCtx, updates)
			if err != nil {
				bus.NackAll(msgs)
				if ctx.Err() != nil {
					return nil
				}
				logger.Error().Err(err).
					Str(log.FieldEvent, "dissemination.batch_failed").
					Int(log.FieldCount, len(updates)).
					Msg("dissemination updates not applied, batch left for redelivery")
				continue
			}
			if err := bus.AckAll(ctx, msgs); err != nil {
				logger.Warn().Err(err).
					Str(log.FieldEvent, "dissemination.ack_failed").
					Msg("applied dissemination updates not acknowledged")
			}
			logger.Debug().
				Str(log.FieldEvent, "dissemination.batch_applied").
				Int("applied", res.Applied).
				Int("skipped", res.Skipped).
				Msg("dissemination batch applied")
		}
	}
}

// drain collects the messages already queued behind first, up to the batch
// size. Invalid messages are acked and dropped.
func (l *Listener) drain(ctx context.Context, first bus.Message, ch <-chan bus.Message) ([]bus.Message, []model.DisseminationUpdate) {
	msgs := make([]bus.Message, 0, l.batch)
	out := make([]model.DisseminationUpdate, 0, l.batch)
	add := func(msg bus.Message) {
		u, ok := decode(msg)
		if !ok {
			_ = msg.Ack(ctx)
			return
		}
		msgs = append(msgs, msg)
		out = append(out, u)
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

func decode(msg bus.Message) (model.DisseminationUpdate, bool) {
	var u model.DisseminationUpdate
	err := json.Unmarshal(msg.Payload, &u)
	if err == nil {
		err = u.Validate()
	}
	if err != nil {
		metrics.IncBusDropReason(bus.TopicDisseminations, "decode")
		logger := log.WithComponent("dissemination")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "dissemination.decode_failed").
			Str("message_id", msg.ID).
			Msg("dropping invalid dissemination update")
		return model.DisseminationUpdate{}, false
	}
	return u, true
}
