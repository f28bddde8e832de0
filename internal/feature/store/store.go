// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists feature requests and feature entities. It is the
// single source of truth shared by admission, scheduling and processing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateRequestID = errors.New("duplicate request id")
	ErrVersionConflict    = errors.New("feature version conflict")
	ErrCorrupt            = errors.New("database integrity check failed")
)

// RequestQuery selects requests for scheduling and reconciliation. Zero
// fields do not filter. Results are ordered by priority, then registration
// date, then id.
type RequestQuery struct {
	Kind             model.Kind
	Steps            []model.Step
	States           []model.State
	RegisteredBefore time.Time
	UpdatedBefore    time.Time
	Limit            int
}

// RequestStore persists requests of every kind in one logical table.
type RequestStore interface {
	// InsertRequests persists new requests atomically, assigning ID,
	// RegistrationDate (when zero) and LastUpdate.
	InsertRequests(ctx context.Context, reqs []*model.Request) error
	// ExistingRequestIDs returns which of ids are already registered for kind.
	ExistingRequestIDs(ctx context.Context, kind model.Kind, ids []string) (map[string]bool, error)
	GetRequests(ctx context.Context, ids []int64) ([]*model.Request, error)
	FindRequests(ctx context.Context, q RequestQuery) ([]*model.Request, error)
	// FindByURNs returns requests of kind targeting one of urns whose step is in steps.
	FindByURNs(ctx context.Context, kind model.Kind, urns []string, steps []model.Step) ([]*model.Request, error)
	FindByGroupIDs(ctx context.Context, groupIDs []string) ([]*model.Request, error)
	// ClaimRequests moves the requests still at step from to step to, and
	// returns the ids that were actually moved.
	ClaimRequests(ctx context.Context, ids []int64, from, to model.Step) ([]int64, error)
	// SaveRequests rewrites existing requests and stamps LastUpdate.
	SaveRequests(ctx context.Context, reqs []*model.Request) error
	DeleteRequests(ctx context.Context, ids []int64) error
	// CommitRequests rewrites save and deletes remove in one write. A request
	// listed in guard is only touched while its stored step still equals the
	// guarded one; missing requests are skipped. It returns the ids written
	// or deleted.
	CommitRequests(ctx context.Context, save []*model.Request, remove []int64, guard Guard) ([]int64, error)
}

// Guard maps request ids to the step a conditional write expects.
type Guard map[int64]model.Step

// GuardOf records the current step of reqs.
func GuardOf(reqs ...[]*model.Request) Guard {
	g := make(Guard)
	for _, list := range reqs {
		for _, r := range list {
			g[r.ID] = r.Step
		}
	}
	return g
}

func (g Guard) allows(id int64, step model.Step) bool {
	want, ok := g[id]
	return !ok || want == step
}

// FeatureStore persists feature entities.
type FeatureStore interface {
	// MaxVersion returns the highest stored version for providerID, 0 if none.
	MaxVersion(ctx context.Context, providerID string) (int, error)
	// InsertEntities persists new entities atomically. A duplicate
	// (providerId, version) or urn yields ErrVersionConflict.
	InsertEntities(ctx context.Context, entities []*model.Entity) error
	GetEntities(ctx context.Context, urns []string) (map[string]*model.Entity, error)
	// SaveEntities rewrites existing entities. Their disseminations are left
	// to SwapDisseminations.
	SaveEntities(ctx context.Context, entities []*model.Entity) error
	DeleteEntities(ctx context.Context, urns []string) error
	// SwapDisseminations replaces the recipients of urn with next while the
	// stored ones still equal old. It reports false when they changed or
	// the entity is gone.
	SwapDisseminations(ctx context.Context, urn string, old, next []model.Dissemination) (bool, error)
}

// encodeDisseminations is the stored form of an entity's recipients. Equal
// recipient lists encode identically.
func encodeDisseminations(ds []model.Dissemination) (string, error) {
	if len(ds) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ds)
	return string(b), err
}

// Store is the full persistence surface.
type Store interface {
	RequestStore
	FeatureStore
	Ping(ctx context.Context) error
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for registration and update stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// sortRequests applies the scheduling order: priority, registration, id.
func sortRequests(reqs []*model.Request) {
	sort.SliceStable(reqs, func(i, j int) bool {
		a, b := reqs[i], reqs[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.RegistrationDate.Equal(b.RegistrationDate) {
			return a.RegistrationDate.Before(b.RegistrationDate)
		}
		return a.ID < b.ID
	})
}

func (q RequestQuery) matches(r *model.Request) bool {
	if q.Kind != "" && r.Kind() != q.Kind {
		return false
	}
	if len(q.Steps) > 0 && !slices.Contains(q.Steps, r.Step) {
		return false
	}
	if len(q.States) > 0 && !slices.Contains(q.States, r.State) {
		return false
	}
	if !q.RegisteredBefore.IsZero() && !r.RegistrationDate.Before(q.RegisteredBefore) {
		return false
	}
	if !q.UpdatedBefore.IsZero() && !r.LastUpdate.Before(q.UpdatedBefore) {
		return false
	}
	return true
}
