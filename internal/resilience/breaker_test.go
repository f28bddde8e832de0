// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fem/internal/testutil"
)

var errRemote = errors.New("remote down")

func fail() error    { return errRemote }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := testutil.NewClock()
	cb := NewCircuitBreaker("test_open", 3, time.Minute, WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Execute(fail), errRemote)
	}
	assert.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(fail), errRemote)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test_reset", 2, time.Minute)
	require.Error(t, cb.Execute(fail))
	require.NoError(t, cb.Execute(succeed))
	require.Error(t, cb.Execute(fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{name: "probe succeeds", probe: succeed, want: StateClosed},
		{name: "probe fails", probe: fail, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewClock()
			cb := NewCircuitBreaker("test_probe", 1, 30*time.Second, WithClock(clock.Now))
			require.Error(t, cb.Execute(fail))
			require.Equal(t, StateOpen, cb.State())

			clock.Advance(10 * time.Second)
			require.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

			clock.Advance(20 * time.Second)
			_ = cb.Execute(tt.probe)
			assert.Equal(t, tt.want, cb.State())
		})
	}
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("test_cancel", 1, time.Minute)
	err := cb.Execute(func() error { return fmt.Errorf("post: %w", context.Canceled) })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}
