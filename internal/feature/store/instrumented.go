// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fem_store_ops_total",
			Help: "Total feature store operations",
		},
		[]string{"backend", "op", "result"}, // result=success/error
	)
	storeLat = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fem_store_op_seconds",
			Help:    "Feature store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

// instrumentedStore wraps any Store to capture metrics.
type instrumentedStore struct {
	inner   Store
	backend string
}

// NewInstrumentedStore decorates inner with operation counters and latencies.
func NewInstrumentedStore(inner Store, backend string) Store {
	return &instrumentedStore{inner: inner, backend: backend}
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	res := "success"
	if err != nil {
		res = "error"
	}
	storeOps.WithLabelValues(i.backend, op, res).Inc()
	storeLat.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumentedStore) InsertRequests(ctx context.Context, reqs []*model.Request) (err error) {
	defer func(start time.Time) { i.observe("insert_requests", start, err) }(time.Now())
	return i.inner.InsertRequests(ctx, reqs)
}

func (i *instrumentedStore) ExistingRequestIDs(ctx context.Context, kind model.Kind, ids []string) (m map[string]bool, err error) {
	defer func(start time.Time) { i.observe("existing_request_ids", start, err) }(time.Now())
	return i.inner.ExistingRequestIDs(ctx, kind, ids)
}

func (i *instrumentedStore) GetRequests(ctx context.Context, ids []int64) (out []*model.Request, err error) {
	defer func(start time.Time) { i.observe("get_requests", start, err) }(time.Now())
	return i.inner.GetRequests(ctx, ids)
}

func (i *instrumentedStore) FindRequests(ctx context.Context, q RequestQuery) (out []*model.Request, err error) {
	defer func(start time.Time) { i.observe("find_requests", start, err) }(time.Now())
	return i.inner.FindRequests(ctx, q)
}

func (i *instrumentedStore) FindByURNs(ctx context.Context, kind model.Kind, urns []string, steps []model.Step) (out []*model.Request, err error) {
	defer func(start time.Time) { i.observe("find_by_urns", start, err) }(time.Now())
	return i.inner.FindByURNs(ctx, kind, urns, steps)
}

func (i *instrumentedStore) FindByGroupIDs(ctx context.Context, groupIDs []string) (out []*model.Request, err error) {
	defer func(start time.Time) { i.observe("find_by_group_ids", start, err) }(time.Now())
	return i.inner.FindByGroupIDs(ctx, groupIDs)
}

func (i *instrumentedStore) ClaimRequests(ctx context.Context, ids []int64, from, to model.Step) (out []int64, err error) {
	defer func(start time.Time) { i.observe("claim_requests", start, err) }(time.Now())
	return i.inner.ClaimRequests(ctx, ids, from, to)
}

func (i *instrumentedStore) SaveRequests(ctx context.Context, reqs []*model.Request) (err error) {
	defer func(start time.Time) { i.observe("save_requests", start, err) }(time.Now())
	return i.inner.SaveRequests(ctx, reqs)
}

func (i *instrumentedStore) DeleteRequests(ctx context.Context, ids []int64) (err error) {
	defer func(start time.Time) { i.observe("delete_requests", start, err) }(time.Now())
	return i.inner.DeleteRequests(ctx, ids)
}

func (i *instrumentedStore) CommitRequests(ctx context.Context, save []*model.Request, remove []int64, guard Guard) (out []int64, err error) {
	defer func(start time.Time) { i.observe("commit_requests", start, err) }(time.Now())
	return i.inner.CommitRequests(ctx, save, remove, guard)
}

func (i *instrumentedStore) MaxVersion(ctx context.Context, providerID string) (v int, err error) {
	defer func(start time.Time) { i.observe("max_version", start, err) }(time.Now())
	return i.inner.MaxVersion(ctx, providerID)
}

func (i *instrumentedStore) InsertEntities(ctx context.Context, entities []*model.Entity) (err error) {
	defer func(start time.Time) { i.observe("insert_entities", start, err) }(time.Now())
	return i.inner.InsertEntities(ctx, entities)
}

func (i *instrumentedStore) GetEntities(ctx context.Context, urns []string) (out map[string]*model.Entity, err error) {
	defer func(start time.Time) { i.observe("get_entities", start, err) }(time.Now())
	return i.inner.GetEntities(ctx, urns)
}

func (i *instrumentedStore) SaveEntities(ctx context.Context, entities []*model.Entity) (err error) {
	defer func(start time.Time) { i.observe("save_entities", start, err) }(time.Now())
	return i.inner.SaveEntities(ctx, entities)
}

func (i *instrumentedStore) SwapDisseminations(ctx context.Context, urn string, old, next []model.Dissemination) (ok bool, err error) {
	defer func(start time.Time) { i.observe("swap_disseminations", start, err) }(time.Now())
	return i.inner.SwapDisseminations(ctx, urn, old, next)
}

func (i *instrumentedStore) DeleteEntities(ctx context.Context, urns []string) (err error) {
	defer func(start time.Time) { i.observe("delete_entities", start, err) }(time.Now())
	return i.inner.DeleteEntities(ctx, urns)
}

func (i *instrumentedStore) Ping(ctx context.Context) error {
	return i.inner.Ping(ctx)
}

func (i *instrumentedStore) Close() error {
	return i.inner.Close()
}
