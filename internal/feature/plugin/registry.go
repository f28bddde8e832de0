// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package plugin resolves the feature generators used by reference requests.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/fem/internal/feature/ports"
)

// Registry maps plugin business ids to generators. It is safe for
// concurrent use.
type Registry struct {
	mu   sync.RWMutex
	gens map[string]ports.FeatureGenerator
}

var _ ports.PluginRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{gens: make(map[string]ports.FeatureGenerator)}
}

// Register adds gen under businessID. A business id can be registered once.
func (r *Registry) Register(businessID string, gen ports.FeatureGenerator) error {
	if businessID == "" {
		return fmt.Errorf("register plugin: empty business id")
	}
	if gen == nil {
		return fmt.Errorf("register plugin %s: nil generator", businessID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.gens[businessID]; dup {
		return fmt.Errorf("register plugin %s: already registered", businessID)
	}
	r.gens[businessID] = gen
	return nil
}

func (r *Registry) Resolve(businessID string) (ports.FeatureGenerator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gens[businessID]
	return g, ok
}

// IDs returns the registered business ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.gens))
	for id := range r.gens {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
