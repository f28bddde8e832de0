// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package version

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubReader struct {
	max map[string]int
	err error
}

func (s stubReader) MaxVersion(_ context.Context, id string) (int, error) {
	return s.max[id], s.err
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		name     string
		existing int
		want     int
	}{
		{name: "first version", existing: 0, want: 1},
		{name: "next after existing", existing: 4, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllocator(stubReader{max: map[string]int{"P1": tt.existing}})
			v, err := a.NextVersion(context.Background(), "P1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestNextVersionErrors(t *testing.T) {
	a := NewAllocator(stubReader{err: errors.New("db down")})
	_, err := a.NextVersion(context.Background(), "P1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	_, err = a.NextVersion(context.Background(), "")
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewAllocator(stubReader{}).NextVersion(ctx, "P1")
	assert.ErrorIs(t, err, context.Canceled)
}

// Concurrent reservations for one provider id never hand out the same
// version: each reservation is persisted before it is released.
func TestReserveIsMonotonicUnderContention(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	st := store.NewMemoryStore()
	a := NewAllocator(st)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := a.Reserve(ctx, "P1")
			if err != nil {
				errs <- err
				return
			}
			defer r.Release()
			now := time.Now()
			errs <- st.InsertEntities(ctx, []*model.Entity{{
				URN:          model.NewURN("", "T", "P1", r.Version).String(),
				ProviderID:   "P1",
				Version:      r.Version,
				CreationDate: now,
				LastUpdate:   now,
			}})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	maxV, err := st.MaxVersion(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, n, maxV)
	assert.Zero(t, a.locks.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	k := NewKeyedMutex()
	unlockA, err := k.Lock(ctx, "a")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if unlockB, err := k.Lock(ctx, "b"); err == nil {
			unlockB()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}

	var order []int
	var mu sync.Mutex
	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		unlock, err := k.Lock(ctx, "a")
		if err != nil {
			return
		}
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlockA()
	unlockA() // second call is a no-op
	<-blocked

	assert.True(t, sort.IntsAreSorted(order))
	assert.Equal(t, []int{1, 2}, order)
	assert.Zero(t, k.Len())
}

func TestKeyedMutexLockHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, k.Len())

	unlock, err = k.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func TestReserveWaitsForContext(t *testing.T) {
	a := NewAllocator(stubReader{})
	held, err := a.Reserve(context.Background(), "P1")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Reserve(ctx, "P1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
