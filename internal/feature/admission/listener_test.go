// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/fem/internal/bus"
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
)

func TestListenerAdmitsBusEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := store.NewMemoryStore()
	p, pub := newPipeline(t, st)
	l := NewListener(b, p, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	env, err := model.EncodeEvent(creation("r1", "P1"))
	require.NoError(t, err)

	// the subscription is registered asynchronously
	require.Eventually(t, func() bool {
		pubCtx, pubCancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer pubCancel()
		if err := bus.PublishJSON(pubCtx, b, bus.TopicRequests, env); err != nil {
			return false
		}
		reqs, err := st.FindRequests(ctx, store.RequestQuery{})
		return err == nil && len(reqs) > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, b.Publish(ctx, bus.TopicRequests, []byte("{not json")))
	require.Eventually(t, func() bool {
		return len(pub.EventsWithState(model.StateGranted)) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

// flakyStore fails the first InsertRequests calls.
type flakyStore struct {
	*store.MemoryStore
	failures atomic.Int32
}

func (f *flakyStore) InsertRequests(ctx context.Context, reqs []*model.Request) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("store unavailable")
	}
	return f.MemoryStore.InsertRequests(ctx, reqs)
}

func TestListenerRedeliversBatchAfterStoreFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := bus.NewRedisBus(ctx, bus.RedisConfig{
		Addr:           mr.Addr(),
		StreamPrefix:   "fem:",
		Group:          "fem",
		Block:          20 * time.Millisecond,
		RedeliverAfter: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	env, err := model.EncodeEvent(creation("r1", "P1"))
	require.NoError(t, err)
	require.NoError(t, bus.PublishJSON(ctx, b, bus.TopicRequests, env))

	st := &flakyStore{MemoryStore: store.NewMemoryStore()}
	st.failures.Store(2)
	p, pub := newPipeline(t, st)
	l := NewListener(b, p, 10)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(pub.EventsWithState(model.StateGranted)) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, allRequests(t, st.MemoryStore), 1)
	assert.Less(t, st.failures.Load(), int32(0), "the failed batch was handled again")

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()
	require.Eventually(t, func() bool {
		pending, err := client.XPending(ctx, "fem:"+bus.TopicRequests, "fem").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
