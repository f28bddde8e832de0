// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm holds a small declarative transition table. The current state
// is owned by the caller (a persisted row), so the table itself is stateless
// and safe for concurrent use.
package fsm

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge. Guard may reject the transition.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
	Guard func(from S, event E) error
}

// Table is an immutable set of transitions.
type Table[S ~string, E ~string] struct {
	index map[string]Transition[S, E]
}

// New builds a table. Duplicate (From, Event) pairs are rejected.
func New[S ~string, E ~string](transitions []Transition[S, E]) (*Table[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t
	}
	return &Table[S, E]{index: idx}, nil
}

// MustNew is New for package-level tables.
func MustNew[S ~string, E ~string](transitions []Transition[S, E]) *Table[S, E] {
	t, err := New(transitions)
	if err != nil {
		panic(err)
	}
	return t
}

// Next returns the target of (from, event) after running its guard.
func (t *Table[S, E]) Next(from S, event E) (S, error) {
	tr, ok := t.index[key(from, event)]
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}
	if tr.Guard != nil {
		if err := tr.Guard(from, event); err != nil {
			return from, err
		}
	}
	return tr.To, nil
}

// Can reports whether an edge exists, ignoring guards.
func (t *Table[S, E]) Can(from S, event E) bool {
	_, ok := t.index[key(from, event)]
	return ok
}

// States returns every state mentioned by the table, sorted.
func (t *Table[S, E]) States() []S {
	seen := make(map[S]struct{})
	for _, tr := range t.index {
		seen[tr.From] = struct{}{}
		seen[tr.To] = struct{}{}
	}
	out := make([]S, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
