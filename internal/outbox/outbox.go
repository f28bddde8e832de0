// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package outbox persists outgoing bus messages before they are relayed, so
// a lifecycle event or notification survives a bus outage or a restart.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/fem/internal/log"
	"github.com/ManuGH/fem/internal/metrics"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

var (
	keyPrefix = []byte("ob:")
	seqKey    = []byte("seq:outbox")
)

const relayBatch = 256

// Sink receives relayed messages, typically a bus.Bus.
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type record struct {
	Topic      string    `json:"topic"`
	Payload    []byte    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Outbox is a FIFO of messages backed by badger.
//
// key = "ob:" + big-endian sequence, value = JSON record
type Outbox struct {
	db     *badger.DB
	seq    *badger.Sequence
	sink   Sink
	wake   chan struct{}
	logger zerolog.Logger
}

// Open opens (or creates) the outbox at path. An empty path keeps the
// outbox in memory, which only helps with bus outages, not restarts.
func Open(path string, sink Sink) (*Outbox, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("outbox sequence: %w", err)
	}
	o := &Outbox{
		db:     db,
		seq:    seq,
		sink:   sink,
		wake:   make(chan struct{}, 1),
		logger: log.WithComponent("outbox"),
	}
	if n, err := o.Backlog(); err == nil {
		metrics.OutboxBacklog.Set(float64(n))
	}
	return o, nil
}

func (o *Outbox) Close() error {
	return errors.Join(o.seq.Release(), o.db.Close())
}

// Publish appends a message. It satisfies the same contract as a bus so
// publishers can write through the outbox transparently.
func (o *Outbox) Publish(_ context.Context, topic string, payload []byte) error {
	n, err := o.seq.Next()
	if err != nil {
		return fmt.Errorf("outbox sequence: %w", err)
	}
	buf, err := json.Marshal(record{Topic: topic, Payload: payload, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], n)

	if err := o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	}); err != nil {
		return fmt.Errorf("outbox append: %w", err)
	}
	metrics.OutboxBacklog.Inc()
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Backlog counts the messages not yet relayed.
func (o *Outbox) Backlog() (int, error) {
	n := 0
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: keyPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

type pending struct {
	key []byte
	rec record
}

func (o *Outbox) next() ([]pending, error) {
	var out []pending
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: keyPrefix, PrefetchValues: true, PrefetchSize: relayBatch})
		defer it.Close()
		for it.Rewind(); it.Valid() && len(out) < relayBatch; it.Next() {
			item := it.Item()
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, pending{key: item.KeyCopy(nil), rec: rec})
		}
		return nil
	})
	return out, err
}

// Flush relays pending messages in order and returns how many were sent.
// It stops at the first sink failure so ordering is kept.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		batch, err := o.next()
		if err != nil {
			return sent, err
		}
		if len(batch) == 0 {
			return sent, nil
		}
		for _, p := range batch {
			if err := ctx.Err(); err != nil {
				return sent, err
			}
			if err := o.sink.Publish(ctx, p.rec.Topic, p.rec.Payload); err != nil {
				metrics.OutboxRelayedTotal.WithLabelValues("failure").Inc()
				return sent, fmt.Errorf("relay to %s: %w", p.rec.Topic, err)
			}
			if err := o.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(p.key)
			}); err != nil {
				return sent, fmt.Errorf("outbox delete: %w", err)
			}
			sent++
			metrics.OutboxRelayedTotal.WithLabelValues("success").Inc()
			metrics.OutboxBacklog.Dec()
		}
	}
}

// Run relays on every append and at least every interval until ctx ends.
func (o *Outbox) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info().Dur("interval", interval).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.wake:
		}
		if n, err := o.Flush(ctx); err != nil && ctx.Err() == nil {
			o.logger.Warn().Err(err).Int(log.FieldCount, n).Msg("outbox relay interrupted")
		}
	}
}
