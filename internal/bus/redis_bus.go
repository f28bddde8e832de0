// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const payloadField = "payload"

// RedisConfig holds Redis Streams connection configuration.
type RedisConfig struct {
	Addr           string // host:port
	Password       string
	DB             int
	StreamPrefix   string // prepended to topic names, e.g. "fem:"
	Group          string // consumer group shared by orchestrator instances
	Consumer       string // consumer name, unique per instance
	MaxLen         int64  // approximate stream cap, 0 disables trimming
	Block          time.Duration
	RedeliverAfter time.Duration // delay before nacked messages are read again
}

// RedisBus carries messages over Redis Streams. Every topic is a stream;
// subscribers of the same group share the stream, so a message is handled
// by one orchestrator instance.
type RedisBus struct {
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[*redisSub]struct{}
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.Addr,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           3 * time.Second,
		WriteTimeout:          3 * time.Second,
		ContextTimeoutEnabled: true,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisBus(client, cfg), nil
}

func newRedisBus(client *redis.Client, cfg RedisConfig) *RedisBus {
	if cfg.Group == "" {
		cfg.Group = "fem"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "fem-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 500 * time.Millisecond
	}
	if cfg.RedeliverAfter <= 0 {
		cfg.RedeliverAfter = 5 * time.Second
	}
	logger := log.WithComponent("bus")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("group", cfg.Group).
		Msg("connected to Redis streams")
	return &RedisBus{
		client: client,
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*redisSub]struct{}),
	}
}

func (b *RedisBus) stream(topic string) string {
	return b.cfg.StreamPrefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: b.stream(topic),
		Values: map[string]any{payloadField: payload},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	metrics.IncBusPublished("redis", topic)
	return nil
}

// Subscribe joins the consumer group of topic, creating stream and group on
// first use. A message stays in the group's pending list until it is acked;
// nacked messages are delivered again after RedeliverAfter, and messages
// left pending by a previous run are delivered on subscription.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	stream := b.stream(topic)
	err := b.client.XGroupCreateMkStream(ctx, stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group for %q: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &redisSub{
		b:        b,
		stream:   stream,
		ch:       make(chan Message, subscriberCap),
		cancel:   cancel,
		done:     make(chan struct{}),
		inflight: make(map[string]struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.loop(subCtx)
	return s, nil
}

// Close stops every subscription and closes the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := make([]*redisSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

type redisSub struct {
	b      *RedisBus
	stream string
	ch     chan Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	inflight map[string]struct{}
	nacked   atomic.Bool
}

func (s *redisSub) C() <-chan Message { return s.ch }

func (s *redisSub) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
	})
	return nil
}

func (s *redisSub) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	// Pending entries are walked from "0" by advancing the cursor to the
	// last id read; once the walk comes back empty new entries are read
	// with ">".
	cursor := "0"
	scanned := time.Now()
	for ctx.Err() == nil {
		if cursor == ">" && s.nacked.Load() && time.Since(scanned) >= s.b.cfg.RedeliverAfter {
			s.nacked.Store(false)
			cursor = "0"
		}
		res, err := s.b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.b.cfg.Group,
			Consumer: s.b.cfg.Consumer,
			Streams:  []string{s.stream, cursor},
			Count:    64,
			Block:    s.b.cfg.Block,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return
			}
			s.b.logger.Warn().Err(err).Str(log.FieldTopic, s.stream).Msg("redis stream read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		read, last := 0, ""
		for _, st := range res {
			for _, xm := range st.Messages {
				read++
				last = xm.ID
				if !s.claim(xm.ID) {
					continue
				}
				payload, _ := xm.Values[payloadField].(string)
				select {
				case s.ch <- s.message(xm.ID, payload):
				case <-ctx.Done():
					return
				}
			}
		}
		if cursor != ">" {
			if read == 0 {
				cursor = ">"
				scanned = time.Now()
			} else {
				cursor = last
			}
		}
	}
}

// claim marks id as handed to the consumer. An id already in flight is not
// delivered twice.
func (s *redisSub) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *redisSub) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *redisSub) message(id, payload string) Message {
	return Message{
		ID:      id,
		Payload: []byte(payload),
		ack: func(ctx context.Context) error {
			defer s.release(id)
			if err := s.b.client.XAck(ctx, s.stream, s.b.cfg.Group, id).Err(); err != nil {
				s.nacked.Store(true)
				return fmt.Errorf("ack %s on %s: %w", id, s.stream, err)
			}
			return nil
		},
		nack: func() {
			s.release(id)
			s.nacked.Store(true)
		},
	}
}

var _ Bus = (*RedisBus)(nil)
