// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package version allocates monotonic feature versions per provider id.
//
// Allocation holds a per-provider lock for the lifetime of a Reservation and
// relies on the store rejecting a duplicate (providerId, version) for
// anything that escapes the lock, such as a second scheduler instance.
package version

import (
	"context"
	"fmt"
)

// MaxVersionReader is the slice of the feature store the allocator needs.
type MaxVersionReader interface {
	MaxVersion(ctx context.Context, providerID string) (int, error)
}

type Allocator struct {
	store MaxVersionReader
	locks *KeyedMutex
}

func NewAllocator(store MaxVersionReader) *Allocator {
	return &Allocator{store: store, locks: NewKeyedMutex()}
}

// NextVersion returns 1 when providerID has no version yet, else max+1.
func (a *Allocator) NextVersion(ctx context.Context, providerID string) (int, error) {
	r, err := a.Reserve(ctx, providerID)
	if err != nil {
		return 0, err
	}
	r.Release()
	return r.Version, nil
}

// Reservation is a version held for one provider id until Release.
type Reservation struct {
	ProviderID string
	Version    int
	// Previous is the version the reservation supersedes, 0 if none.
	Previous int
	release  func()
}

// Release frees the provider id. It is safe to call more than once.
func (r Reservation) Release() {
	if r.release != nil {
		r.release()
	}
}

// Reserve locks providerID and computes its next version. The caller must
// Release once the entity carrying the version is persisted or abandoned.
// A caller holding several reservations at once must reserve provider ids
// in ascending order.
func (a *Allocator) Reserve(ctx context.Context, providerID string) (Reservation, error) {
	if providerID == "" {
		return Reservation{}, fmt.Errorf("allocate version: empty provider id")
	}
	unlock, err := a.locks.Lock(ctx, providerID)
	if err != nil {
		return Reservation{}, err
	}
	maxV, err := a.store.MaxVersion(ctx, providerID)
	if err != nil {
		unlock()
		return Reservation{}, fmt.Errorf("allocate version for %s: %w", providerID, err)
	}
	return Reservation{ProviderID: providerID, Version: maxV + 1, Previous: maxV, release: unlock}, nil
}
