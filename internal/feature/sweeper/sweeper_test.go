// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/testutil"
)

func request(id string, step model.Step, p model.Payload) *model.Request {
	return &model.Request{
		RequestID:    id,
		RequestOwner: "owner",
		State:        model.StateGranted,
		Step:         step,
		Priority:     model.PriorityNormal,
		Payload:      p,
	}
}

func insert(t *testing.T, st *store.MemoryStore, reqs ...*model.Request) {
	t.Helper()
	require.NoError(t, st.InsertRequests(context.Background(), reqs))
}

func get(t *testing.T, st *store.MemoryStore, id int64) *model.Request {
	t.Helper()
	reqs, err := st.GetRequests(context.Background(), []int64{id})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	return reqs[0]
}

func TestSweepOnceAbortsTimedOutRequests(t *testing.T) {
	clock := testutil.NewClock()
	st := store.NewMemoryStore(store.WithClock(clock.Now))

	creation := request("c1", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P1"})
	deletion := request("d1", model.StepRemoteStorageDel, &model.DeletionPayload{URN: "U1"})
	notify := request("u1", model.StepRemoteNotifyReq, &model.UpdatePayload{URN: "U2"})
	local := request("u2", model.StepLocalToBeNotified, &model.UpdatePayload{URN: "U3"})
	insert(t, st, creation, deletion, notify, local)

	clock.Advance(30 * time.Minute)
	fresh := request("c2", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P2"})
	insert(t, st, fresh)
	clock.Advance(45 * time.Minute)

	s := New(st, Config{Timeout: time.Hour}, WithClock(clock.Now))
	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tests := []struct {
		req      *model.Request
		wantStep model.Step
		aborted  bool
	}{
		{creation, model.StepRemoteStorageError, true},
		{deletion, model.StepRemoteStorageError, true},
		{notify, model.StepRemoteNotifyError, true},
		{local, model.StepLocalToBeNotified, false},
		{fresh, model.StepRemoteStorageReq, false},
	}
	for _, tt := range tests {
		t.Run(tt.req.RequestID, func(t *testing.T) {
			got := get(t, st, tt.req.ID)
			assert.Equal(t, tt.wantStep, got.Step)
			if !tt.aborted {
				assert.Equal(t, model.StateGranted, got.State)
				assert.Empty(t, got.Errors)
				return
			}
			assert.Equal(t, model.StateError, got.State)
			assert.Equal(t, tt.req.Step, got.LastErrorStep)
			assert.Equal(t, []string{"Request has been aborted."}, got.Errors)
			assert.True(t, got.IsRetryable())
		})
	}

	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "aborted requests are not swept twice")
}

func TestSweepOnceBoundsPages(t *testing.T) {
	clock := testutil.NewClock()
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	for i := range 5 {
		insert(t, st, request(fmt.Sprintf("c%d", i), model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P"}))
	}
	clock.Advance(2 * time.Hour)

	s := New(st, Config{Timeout: time.Hour, PageSize: 2, MaxPages: 2}, WithClock(clock.Now))
	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetConfigChangesTimeout(t *testing.T) {
	clock := testutil.NewClock()
	st := store.NewMemoryStore(store.WithClock(clock.Now))
	insert(t, st, request("c1", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P"}))
	clock.Advance(10 * time.Minute)

	s := New(st, Config{}, WithClock(clock.Now))
	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "default timeout is one hour")

	s.SetConfig(Config{Timeout: 5 * time.Minute})
	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	st := store.NewMemoryStore()
	insert(t, st, request("c1", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P"}))
	s := New(st, Config{Interval: 5 * time.Millisecond, Timeout: time.Nanosecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		reqs, err := st.FindRequests(context.Background(), store.RequestQuery{States: []model.State{model.StateError}})
		return err == nil && len(reqs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// settlingStore runs settle right before the first conditional write, the
// way a storage completion can land between the sweeper's read and write.
type settlingStore struct {
	*store.MemoryStore
	settle func()
}

func (s *settlingStore) CommitRequests(ctx context.Context, save []*model.Request, remove []int64, guard store.Guard) ([]int64, error) {
	if s.settle != nil {
		s.settle()
		s.settle = nil
	}
	return s.MemoryStore.CommitRequests(ctx, save, remove, guard)
}

func TestSweepOnceKeepsRequestsSettledConcurrently(t *testing.T) {
	clock := testutil.NewClock()
	mem := store.NewMemoryStore(store.WithClock(clock.Now))
	completed := request("c1", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P1"})
	advanced := request("c2", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P2"})
	stuck := request("c3", model.StepRemoteStorageReq, &model.CreationPayload{ProviderID: "P3"})
	insert(t, mem, completed, advanced, stuck)
	clock.Advance(2 * time.Hour)

	ctx := context.Background()
	st := &settlingStore{MemoryStore: mem, settle: func() {
		require.NoError(t, mem.DeleteRequests(ctx, []int64{completed.ID}))
		moved, err := mem.ClaimRequests(ctx, []int64{advanced.ID}, model.StepRemoteStorageReq, model.StepLocalToBeNotified)
		require.NoError(t, err)
		require.Len(t, moved, 1)
	}}

	s := New(st, Config{Timeout: time.Hour}, WithClock(clock.Now))
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := get(t, mem, advanced.ID)
	assert.Equal(t, model.StepLocalToBeNotified, got.Step)
	assert.Equal(t, model.StateGranted, got.State)
	assert.Empty(t, got.Errors)

	assert.Equal(t, model.StepRemoteStorageError, get(t, mem, stuck.ID).Step)

	left, err := mem.GetRequests(ctx, []int64{completed.ID})
	require.NoError(t, err)
	assert.Empty(t, left, "a deleted request is not resurrected")
}
