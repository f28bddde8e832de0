// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package publish emits request lifecycle events and feature notifications
// on the bus, directly or through the outbox.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/ports"
	"github.com/ManuGH/fem/internal/log"
)

// Sink is where encoded messages go: a bus.Bus or an outbox.Outbox.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Publisher implements ports.EventPublisher on top of a Sink.
type Publisher struct {
	sink Sink
}

func New(sink Sink) *Publisher {
	return &Publisher{sink: sink}
}

func (p *Publisher) PublishRequestEvents(ctx context.Context, events ...model.RequestEvent) error {
	var errs []error
	for _, ev := range events {
		if err := p.send(ctx, bus.TopicRequestEvents, ev); err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", ev.RequestID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) PublishNotifications(ctx context.Context, notifications ...model.Notification) error {
	var errs []error
	for _, n := range notifications {
		if err := p.send(ctx, bus.TopicNotifications, n); err != nil {
			errs = append(errs, fmt.Errorf("notification %s %s: %w", n.Action, n.URN, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) send(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := p.sink.Publish(ctx, topic, data); err != nil {
		logger := log.WithComponentFromContext(ctx, "publisher")
		logger.Warn().Err(err).Str(log.FieldTopic, topic).Msg("publish failed")
		return err
	}
	return nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
