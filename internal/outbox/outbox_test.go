// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	got    []string
	failAt int // fail the n-th call (1-based), 0 never
	calls  int
}

func (s *recordingSink) Publish(_ context.Context, topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return errors.New("bus unavailable")
	}
	s.got = append(s.got, topic+"/"+string(payload))
	return nil
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestOutboxFlushInOrder(t *testing.T) {
	sink := &recordingSink{}
	o, err := Open(t.TempDir(), sink)
	require.NoError(t, err)
	defer o.Close()

	ctx := context.Background()
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, o.Publish(ctx, "events", []byte(p)))
	}
	n, err := o.Backlog()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sent, err := o.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []string{"events/a", "events/b", "events/c"}, sink.messages())

	n, err = o.Backlog()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxStopsAtFirstFailure(t *testing.T) {
	sink := &recordingSink{failAt: 2}
	o, err := Open("", sink)
	require.NoError(t, err)
	defer o.Close()

	ctx := context.Background()
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, o.Publish(ctx, "t", []byte(p)))
	}

	sent, err := o.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, sent)
	n, _ := o.Backlog()
	assert.Equal(t, 2, n)

	sent, err = o.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"t/1", "t/2", "t/3"}, sink.messages())
}

func TestOutboxSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	o, err := Open(dir, &recordingSink{})
	require.NoError(t, err)
	require.NoError(t, o.Publish(ctx, "t", []byte("before")))
	require.NoError(t, o.Close())

	sink := &recordingSink{}
	o, err = Open(dir, sink)
	require.NoError(t, err)
	defer o.Close()
	require.NoError(t, o.Publish(ctx, "t", []byte("after")))

	_, err = o.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t/before", "t/after"}, sink.messages())
}

func TestOutboxRunRelaysToBus(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()
	sub, err := b.Subscribe(context.Background(), bus.TopicNotifications)
	require.NoError(t, err)

	o, err := Open("", b)
	require.NoError(t, err)
	defer o.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx, time.Hour)
		close(done)
	}()

	require.NoError(t, o.Publish(context.Background(), bus.TopicNotifications, []byte(`{"urn":"u"}`)))
	select {
	case msg := <-sub.C():
		assert.JSONEq(t, `{"urn":"u"}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("outbox did not relay")
	}
	cancel()
	<-done
}
