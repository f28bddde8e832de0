// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ManuGH/fem/internal/feature/model"
)

// MemoryStore is an in-process Store used by tests and the "memory" backend.
// Values are cloned on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	opts     options
	nextID   int64
	requests map[int64]*model.Request
	byReqID  map[string]int64
	entities map[string]*model.Entity
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:     buildOptions(opts),
		requests: make(map[int64]*model.Request),
		byReqID:  make(map[string]int64),
		entities: make(map[string]*model.Entity),
	}
}

func reqKey(kind model.Kind, requestID string) string {
	return string(kind) + "|" + requestID
}

func (m *MemoryStore) InsertRequests(_ context.Context, reqs []*model.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		k := reqKey(r.Kind(), r.RequestID)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRequestID, r.RequestID)
		}
		if _, exists := m.byReqID[k]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateRequestID, r.RequestID)
		}
		seen[k] = struct{}{}
	}

	now := m.opts.now()
	for _, r := range reqs {
		m.nextID++
		r.ID = m.nextID
		if r.RegistrationDate.IsZero() {
			r.RegistrationDate = now
		}
		r.LastUpdate = now
		m.requests[r.ID] = r.Clone()
		m.byReqID[reqKey(r.Kind(), r.RequestID)] = r.ID
	}
	return nil
}

func (m *MemoryStore) ExistingRequestIDs(_ context.Context, kind model.Kind, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool)
	for _, id := range ids {
		if _, ok := m.byReqID[reqKey(kind, id)]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (m *MemoryStore) GetRequests(_ context.Context, ids []int64) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Request, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.requests[id]; ok {
			out = append(out, r.Clone())
		}
	}
	sortRequests(out)
	return out, nil
}

func (m *MemoryStore) FindRequests(_ context.Context, q RequestQuery) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Request
	for _, r := range m.requests {
		if q.matches(r) {
			out = append(out, r.Clone())
		}
	}
	sortRequests(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) FindByURNs(_ context.Context, kind model.Kind, urns []string, steps []model.Step) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Request
	for _, r := range m.requests {
		if r.Kind() != kind || !slices.Contains(urns, r.URN()) {
			continue
		}
		if len(steps) > 0 && !slices.Contains(steps, r.Step) {
			continue
		}
		out = append(out, r.Clone())
	}
	sortRequests(out)
	return out, nil
}

func (m *MemoryStore) FindByGroupIDs(_ context.Context, groupIDs []string) ([]*model.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Request
	for _, r := range m.requests {
		for _, g := range r.GroupIDs {
			if slices.Contains(groupIDs, g) {
				out = append(out, r.Clone())
				break
			}
		}
	}
	sortRequests(out)
	return out, nil
}

func (m *MemoryStore) ClaimRequests(_ context.Context, ids []int64, from, to model.Step) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.now()
	var claimed []int64
	for _, id := range ids {
		r, ok := m.requests[id]
		if !ok || r.Step != from {
			continue
		}
		r.Step = to
		r.LastUpdate = now
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (m *MemoryStore) SaveRequests(_ context.Context, reqs []*model.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reqs {
		if _, ok := m.requests[r.ID]; !ok {
			return fmt.Errorf("save request %d: %w", r.ID, ErrNotFound)
		}
	}
	now := m.opts.now()
	for _, r := range reqs {
		r.LastUpdate = now
		m.requests[r.ID] = r.Clone()
	}
	return nil
}

func (m *MemoryStore) DeleteRequests(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if r, ok := m.requests[id]; ok {
			delete(m.byReqID, reqKey(r.Kind(), r.RequestID))
			delete(m.requests, id)
		}
	}
	return nil
}

func (m *MemoryStore) CommitRequests(_ context.Context, save []*model.Request, remove []int64, guard Guard) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.now()
	var done []int64
	for _, r := range save {
		cur, ok := m.requests[r.ID]
		if !ok || !guard.allows(r.ID, cur.Step) {
			continue
		}
		r.LastUpdate = now
		m.requests[r.ID] = r.Clone()
		done = append(done, r.ID)
	}
	for _, id := range remove {
		cur, ok := m.requests[id]
		if !ok || !guard.allows(id, cur.Step) {
			continue
		}
		delete(m.byReqID, reqKey(cur.Kind(), cur.RequestID))
		delete(m.requests, id)
		done = append(done, id)
	}
	return done, nil
}

func (m *MemoryStore) MaxVersion(_ context.Context, providerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	maxV := 0
	for _, e := range m.entities {
		if e.ProviderID == providerID && e.Version > maxV {
			maxV = e.Version
		}
	}
	return maxV, nil
}

func (m *MemoryStore) InsertEntities(_ context.Context, entities []*model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	type pv struct {
		provider string
		version  int
	}
	taken := make(map[pv]struct{}, len(m.entities))
	for _, e := range m.entities {
		taken[pv{e.ProviderID, e.Version}] = struct{}{}
	}
	urns := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		k := pv{e.ProviderID, e.Version}
		if _, dup := taken[k]; dup {
			return fmt.Errorf("%w: %s v%d", ErrVersionConflict, e.ProviderID, e.Version)
		}
		if _, dup := m.entities[e.URN]; dup {
			return fmt.Errorf("%w: %s", ErrVersionConflict, e.URN)
		}
		if _, dup := urns[e.URN]; dup {
			return fmt.Errorf("%w: %s", ErrVersionConflict, e.URN)
		}
		taken[k] = struct{}{}
		urns[e.URN] = struct{}{}
	}
	for _, e := range entities {
		m.entities[e.URN] = e.Clone()
	}
	return nil
}

func (m *MemoryStore) GetEntities(_ context.Context, urns []string) (map[string]*model.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*model.Entity, len(urns))
	for _, u := range urns {
		if e, ok := m.entities[u]; ok {
			out[u] = e.Clone()
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveEntities(_ context.Context, entities []*model.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		if _, ok := m.entities[e.URN]; !ok {
			return fmt.Errorf("save entity %s: %w", e.URN, ErrNotFound)
		}
	}
	for _, e := range entities {
		c := e.Clone()
		c.Disseminations = m.entities[e.URN].Disseminations
		m.entities[e.URN] = c
	}
	return nil
}

func (m *MemoryStore) SwapDisseminations(_ context.Context, urn string, old, next []model.Dissemination) (bool, error) {
	want, err := encodeDisseminations(old)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[urn]
	if !ok {
		return false, nil
	}
	have, err := encodeDisseminations(e.Disseminations)
	if err != nil || have != want {
		return false, err
	}
	c := e.Clone()
	c.Disseminations = model.CloneDisseminations(next)
	m.entities[urn] = c
	return true, nil
}

func (m *MemoryStore) DeleteEntities(_ context.Context, urns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urns {
		delete(m.entities, u)
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
