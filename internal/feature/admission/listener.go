// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

const defaultListenerBatch = 100

// Listener feeds events published on bus.TopicRequests into a Pipeline.
// Messages already queued on the subscription are admitted together, up to
// the batch size.
type Listener struct {
	bus      bus.Bus
	pipeline *Pipeline
	batch    int
}

func NewListener(b bus.Bus, p *Pipeline, batch int) *Listener {
	if batch <= 0 {
		batch = defaultListenerBatch
	}
	return &Listener{bus: b, pipeline: p, batch: batch}
}

// Run consumes until ctx is canceled or the subscription closes.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.bus.Subscribe(ctx, bus.TopicRequests)
	if err != nil {
		return fmt.Errorf("admission: subscribe %s: %w", bus.TopicRequests, err)
	}
	defer func() { _ = sub.Close() }()

	logger := log.WithComponent("admission")
	logger.Info().
		Str(log.FieldEvent, "admission.listener_started").
		Str(log.FieldTopic, bus.TopicRequests).
		Msg("listening for feature requests")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			msgs, events := l.drain(ctx, msg, sub.C())
			if len(events) == 0 {
				continue
			}
			batchCtx := log.ContextWithCorrelationID(ctx, msg.ID)
			if _, err := l.pipeline.Admit(batchCtx, events); err != nil {
				bus.NackAll(msgs)
				if ctx.Err() != nil {
					return nil
				}
				logger.Error().Err(err).
					Str(log.FieldEvent, "admission.batch_failed").
					Int(log.FieldCount, len(events)).
					Msg("admission failed, batch left for redelivery")
				continue
			}
			if err := bus.AckAll(ctx, msgs); err != nil {
				logger.Warn().Err(err).
					Str(log.FieldEvent, "admission.ack_failed").
					Msg("admitted batch not acknowledged")
			}
		}
	}
}

// drain collects the messages already queued behind first, up to the batch
// size. Undecodable messages are acked and dropped.
func (l *Listener) drain(ctx context.Context, first bus.Message, ch <-chan bus.Message) ([]bus.Message, []model.Event) {
	msgs := make([]bus.Message, 0, l.batch)
	events := make([]model.Event, 0, l.batch)
	add := func(msg bus.Message) {
		ev, ok := decode(msg)
		if !ok {
			_ = msg.Ack(ctx)
			return
		}
		msgs = append(msgs, msg)
		events = append(events, ev)
	}
	add(first)
	for len(events) < l.batch {
		select {
		case msg, ok := <-ch:
			if !ok {
				return msgs, events
			}
			add(msg)
		default:
			return msgs, events
		}
	}
	return msgs, events
}

func decode(msg bus.Message) (model.Event, bool) {
	var env model.Envelope
	err := json.Unmarshal(msg.Payload, &env)
	var ev model.Event
	if err == nil {
		ev, err = model.DecodeEvent(env)
	}
	if err != nil {
		metrics.IncBusDropReason(bus.TopicRequests, "decode")
		logger := log.WithComponent("admission")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "admission.decode_failed").
			Str("message_id", msg.ID).
			Msg("dropping undecodable request message")
		return nil, false
	}
	return ev, true
}
