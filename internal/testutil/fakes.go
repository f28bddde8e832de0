// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/ports"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Publisher records everything published to it.
type Publisher struct {
	mu            sync.Mutex
	events        []model.RequestEvent
	notifications []model.Notification
	Err           error
}

func (p *Publisher) PublishRequestEvents(_ context.Context, events ...model.RequestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *Publisher) PublishNotifications(_ context.Context, ns ...model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.notifications = append(p.notifications, ns...)
	return nil
}

func (p *Publisher) Events() []model.RequestEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.RequestEvent(nil), p.events...)
}

// EventsWithState returns the recorded events in state s.
func (p *Publisher) EventsWithState(s model.State) []model.RequestEvent {
	var out []model.RequestEvent
	for _, e := range p.Events() {
		if e.State == s {
			out = append(out, e)
		}
	}
	return out
}

func (p *Publisher) Notifications() []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Notification(nil), p.notifications...)
}

// Gateway is a storage gateway handing out sequential group ids.
type Gateway struct {
	mu         sync.Mutex
	seq        int
	Stores     [][]ports.FileStoreRequest
	References [][]ports.FileReferenceRequest
	Deletes    [][]ports.FileDeletionRequest
	// Err, when set, fails every call.
	Err error
}

func (g *Gateway) next() (string, error) {
	if g.Err != nil {
		return "", g.Err
	}
	g.seq++
	return fmt.Sprintf("group-%d", g.seq), nil
}

func (g *Gateway) Store(_ context.Context, reqs []ports.FileStoreRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := g.next()
	if err == nil {
		g.Stores = append(g.Stores, reqs)
	}
	return id, err
}

func (g *Gateway) Reference(_ context.Context, reqs []ports.FileReferenceRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := g.next()
	if err == nil {
		g.References = append(g.References, reqs)
	}
	return id, err
}

func (g *Gateway) Delete(_ context.Context, reqs []ports.FileDeletionRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := g.next()
	if err == nil {
		g.Deletes = append(g.Deletes, reqs)
	}
	return id, err
}

// Calls returns the number of successful gateway calls.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Stores) + len(g.References) + len(g.Deletes)
}

// GeneratorFunc adapts a function to ports.FeatureGenerator.
type GeneratorFunc func(ctx context.Context, location string) (model.Feature, error)

func (f GeneratorFunc) Generate(ctx context.Context, location string) (model.Feature, error) {
	return f(ctx, location)
}

// Plugins is a static plugin registry.
type Plugins map[string]ports.FeatureGenerator

func (p Plugins) Resolve(id string) (ports.FeatureGenerator, bool) {
	g, ok := p[id]
	return g, ok
}

var (
	_ ports.EventPublisher = (*Publisher)(nil)
	_ ports.StorageGateway = (*Gateway)(nil)
	_ ports.PluginRegistry = Plugins(nil)
)
