// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBus(t *testing.T) (*miniredis.Miniredis, *RedisBus) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBus(context.Background(), RedisConfig{
		Addr:         mr.Addr(),
		StreamPrefix: "fem:",
		Block:        50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return mr, b
}

func receive(t *testing.T, s Subscriber) Message {
	t.Helper()
	select {
	case msg, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr, b := setupRedisBus(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, TopicStorageResponses)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, TopicStorageResponses, []byte(`{"groupId":"g1","success":true}`)))
	msg := receive(t, sub)
	assert.JSONEq(t, `{"groupId":"g1","success":true}`, string(msg.Payload))
	assert.NotEmpty(t, msg.ID)

	assert.True(t, mr.Exists("fem:"+TopicStorageResponses))
	require.NoError(t, sub.Close())
	_, open := <-sub.C()
	assert.False(t, open)
}

func TestRedisBusDeliversBacklogToNewGroup(t *testing.T) {
	_, b := setupRedisBus(t)
	ctx := context.Background()

	// The group starts at "0": messages published before the first
	// subscription are still delivered.
	require.NoError(t, b.Publish(ctx, TopicRequests, []byte("early")))
	sub, err := b.Subscribe(ctx, TopicRequests)
	require.NoError(t, err)
	assert.Equal(t, "early", string(receive(t, sub).Payload))

	// Subscribing again reuses the existing group.
	again, err := b.Subscribe(ctx, TopicRequests)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestRedisBusMaxLen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := newRedisBus(client, RedisConfig{MaxLen: 2})
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, "t", []byte("x")))
	}
	n, err := client.XLen(ctx, "t").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(5))
	assert.GreaterOrEqual(t, n, int64(2))
}

func TestRedisBusConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisBus(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestOpenBackends(t *testing.T) {
	b, err := Open(context.Background(), "memory", RedisConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBus{}, b)
	require.NoError(t, b.Close())

	_, err = Open(context.Background(), "kafka", RedisConfig{})
	assert.Error(t, err)
}

func TestRedisBusRedeliversUntilAcked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := newRedisBus(client, RedisConfig{Block: 20 * time.Millisecond, RedeliverAfter: 30 * time.Millisecond})
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, TopicStorageResponses)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, TopicStorageResponses, []byte("g1")))

	first := receive(t, sub)
	first.Nack()
	again := receive(t, sub)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "g1", string(again.Payload))

	require.NoError(t, again.Ack(ctx))
	pending, err := client.XPending(ctx, TopicStorageResponses, "fem").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	select {
	case msg := <-sub.C():
		t.Fatalf("acked message delivered again: %s", msg.ID)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRedisBusDeliversPendingOnResubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := newRedisBus(client, RedisConfig{Block: 20 * time.Millisecond})
	defer b.Close()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, TopicRequests)
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, TopicRequests, []byte("unsettled")))
	msg := receive(t, sub)
	require.NoError(t, sub.Close())

	// a restarted consumer picks up what the previous one never acked
	next, err := b.Subscribe(ctx, TopicRequests)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, receive(t, next).ID)
}

func TestMemoryMessageSettleIsNoop(t *testing.T) {
	msg := Message{ID: "1"}
	assert.NoError(t, msg.Ack(context.Background()))
	msg.Nack()
	assert.NoError(t, AckAll(context.Background(), []Message{msg}))
}
