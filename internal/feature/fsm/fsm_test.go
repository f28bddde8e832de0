// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func TestTableNext(t *testing.T) {
	tbl, err := New([]Transition[state, event]{
		{From: "idle", Event: "start", To: "running"},
		{From: "running", Event: "stop", To: "idle"},
	})
	require.NoError(t, err)

	to, err := tbl.Next("idle", "start")
	require.NoError(t, err)
	assert.Equal(t, state("running"), to)

	to, err = tbl.Next("idle", "stop")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state("idle"), to)

	assert.True(t, tbl.Can("running", "stop"))
	assert.Equal(t, []state{"idle", "running"}, tbl.States())
}

func TestTableRejectsDuplicates(t *testing.T) {
	_, err := New([]Transition[state, event]{
		{From: "a", Event: "go", To: "b"},
		{From: "a", Event: "go", To: "c"},
	})
	assert.Error(t, err)
	assert.Panics(t, func() {
		MustNew([]Transition[state, event]{
			{From: "a", Event: "go", To: "b"},
			{From: "a", Event: "go", To: "c"},
		})
	})
}

func TestTableGuard(t *testing.T) {
	blocked := errors.New("blocked")
	tbl := MustNew([]Transition[state, event]{
		{From: "a", Event: "go", To: "b", Guard: func(state, event) error { return blocked }},
	})
	to, err := tbl.Next("a", "go")
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, state("a"), to)
}
