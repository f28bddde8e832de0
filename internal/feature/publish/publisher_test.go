// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRoutesTopics(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	events, err := b.Subscribe(ctx, bus.TopicRequestEvents)
	require.NoError(t, err)
	notes, err := b.Subscribe(ctx, bus.TopicNotifications)
	require.NoError(t, err)

	p := New(b)
	require.NoError(t, p.PublishRequestEvents(ctx, model.RequestEvent{
		RequestID: "r1", Kind: model.KindCreation, ProviderID: "P1", State: model.StateGranted,
	}))
	require.NoError(t, p.PublishNotifications(ctx, model.Notification{Action: model.ActionCreation, URN: "u1"}))

	var ev model.RequestEvent
	require.NoError(t, json.Unmarshal((<-events.C()).Payload, &ev))
	assert.Equal(t, "r1", ev.RequestID)
	assert.Equal(t, model.StateGranted, ev.State)

	var n model.Notification
	require.NoError(t, json.Unmarshal((<-notes.C()).Payload, &n))
	assert.Equal(t, model.ActionCreation, n.Action)
	assert.Equal(t, "u1", n.URN)
}

type failingSink struct{ calls int }

func (f *failingSink) Publish(context.Context, string, []byte) error {
	f.calls++
	return errors.New("down")
}

func TestPublisherJoinsErrors(t *testing.T) {
	sink := &failingSink{}
	p := New(sink)
	err := p.PublishRequestEvents(context.Background(),
		model.RequestEvent{RequestID: "a", Timestamp: time.Now()},
		model.RequestEvent{RequestID: "b", Timestamp: time.Now()},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request a")
	assert.Contains(t, err.Error(), "request b")
	assert.Equal(t, 2, sink.calls, "one failure does not stop the rest")
}
