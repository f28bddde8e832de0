// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
)

// MemoryBus is an in-memory pub/sub used for single-process deployments and
// tests. It is not durable and provides at-least-once in-process delivery
// while publish contexts remain active.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	seq    atomic.Uint64
	closed bool
}

const (
	dropLogEvery  = 100
	subscriberCap = 64
)

var dropCount atomic.Uint64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// Publish delivers payload to every current subscriber of topic. The read
// lock is held while sending; a closing subscriber releases a blocked send
// through its done channel.
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("publish topic %q: bus closed", topic)
	}

	msg := Message{ID: strconv.FormatUint(b.seq.Add(1), 10), Payload: payload}
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			reason := publishDropReason(ctx.Err())
			metrics.IncBusDropReason(topic, reason)
			count := dropCount.Add(1)
			if count%dropLogEvery == 0 {
				logger := log.WithComponent("bus")
				logger.Warn().
					Str(log.FieldTopic, topic).
					Str("reason", reason).
					Uint64("dropped", count).
					Msg("memory bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish topic %q: %w", topic, ctx.Err())
		}
	}
	metrics.IncBusPublished("memory", topic)
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, topic string) (Subscriber, error) {
	sub := &memSub{b: b, topic: topic, ch: make(chan Message, subscriberCap), done: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe topic %q: bus closed", topic)
	}
	b.subs[topic] = append(b.subs[topic], sub)
	return sub, nil
}

// Close closes every subscription.
func (b *MemoryBus) Close() error {
	b.mu.RLock()
	var all []*memSub
	for _, lst := range b.subs {
		all = append(all, lst...)
	}
	b.mu.RUnlock()
	for _, sub := range all {
		_ = sub.Close()
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	s.once.Do(func() {
		close(s.done) // Unblock publishers
		s.b.mu.Lock()
		defer s.b.mu.Unlock()

		lst := s.b.subs[s.topic]
		if idx := slices.Index(lst, s); idx >= 0 {
			lst = slices.Delete(lst, idx, idx+1)
		}
		if len(lst) == 0 {
			delete(s.b.subs, s.topic)
		} else {
			s.b.subs[s.topic] = lst
		}
		close(s.ch)
	})
	return nil
}

var _ Bus = (*MemoryBus)(nil)
