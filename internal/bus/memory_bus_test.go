// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/fem/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMemoryBusFanOut(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	s1, err := b.Subscribe(context.Background(), TopicNotifications)
	require.NoError(t, err)
	s2, err := b.Subscribe(context.Background(), TopicNotifications)
	require.NoError(t, err)
	other, err := b.Subscribe(context.Background(), TopicRequests)
	require.NoError(t, err)

	require.NoError(t, PublishJSON(context.Background(), b, TopicNotifications, map[string]string{"urn": "u1"}))

	for _, s := range []Subscriber{s1, s2} {
		select {
		case msg := <-s.C():
			assert.JSONEq(t, `{"urn":"u1"}`, string(msg.Payload))
			assert.NotEmpty(t, msg.ID)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
	select {
	case <-other.C():
		t.Fatal("message leaked to another topic")
	default:
	}
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", []byte("msg")))
	}

	initial := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", []byte("blocked"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	final := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))
	require.Greater(t, final, initial, "expected reasoned bus drop counter to increase")
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus()
	//nolint:staticcheck // exercising the nil guard
	err := b.Publish(nil, "topic", []byte("msg"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusCloseUnblocksPublisher(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	for i := 0; i < subscriberCap; i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", []byte("x")))
	}

	published := make(chan error, 1)
	go func() {
		published <- b.Publish(context.Background(), "topic", []byte("blocked"))
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after subscriber close")
	}

	drained := 0
	for range sub.C() {
		drained++
	}
	assert.Equal(t, subscriberCap, drained)
}

func TestMemoryBusClose(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, open := <-sub.C()
	assert.False(t, open)

	assert.Error(t, b.Publish(context.Background(), "topic", nil))
	_, err = b.Subscribe(context.Background(), "topic")
	assert.Error(t, err)
	assert.NoError(t, sub.Close())
}
