// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the message transport between the orchestrator and its
// producers and consumers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Topics used by the orchestrator.
const (
	TopicRequests         = "feature.requests"
	TopicRequestEvents    = "feature.request-events"
	TopicNotifications    = "feature.notifications"
	TopicStorageResponses = "storage.responses"
	TopicDisseminations   = "feature.disseminations"
)

// Message is one delivered payload. ID is transport specific and only
// meaningful for logging.
//
// Consumers settle every message with Ack once it is handled or Nack when
// handling failed. Transports that cannot redeliver treat both as no-ops.
type Message struct {
	ID      string
	Payload []byte

	ack  func(context.Context) error
	nack func()
}

// Ack confirms that the message was handled.
func (m Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

// Nack hands the message back to the transport for a later redelivery.
func (m Message) Nack() {
	if m.nack != nil {
		m.nack()
	}
}

// AckAll acks msgs and returns the first error.
func AckAll(ctx context.Context, msgs []Message) error {
	var first error
	for _, m := range msgs {
		if err := m.Ack(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NackAll nacks msgs.
func NackAll(msgs []Message) {
	for _, m := range msgs {
		m.Nack()
	}
}

type Subscriber interface {
	// C returns a read-only message channel, closed by Close.
	C() <-chan Message
	// Close unsubscribes.
	Close() error
}

// Bus is the event transport abstraction.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
	Close() error
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b Bus, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", topic, err)
	}
	return b.Publish(ctx, topic, data)
}
