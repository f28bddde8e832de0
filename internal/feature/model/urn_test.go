// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewURNIsStablePerProvider(t *testing.T) {
	a := NewURN("", "PROJECT", "P1", 1)
	b := NewURN("", "PROJECT", "P1", 2)
	c := NewURN("", "PROJECT", "P2", 1)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.Equal(t, DefaultEntityType, a.EntityType)
	assert.Regexp(t, `^URN:FEATURE:DATA:PROJECT:[0-9a-f-]{36}:V001$`, a.String())
}

func TestParseURN(t *testing.T) {
	u := NewURN("DATA", "PROJECT", "P1", 12)
	parsed, err := ParseURN(u.String())
	require.NoError(t, err)
	assert.Equal(t, u, parsed)

	bad := []string{
		"",
		"URN:FEATURE:DATA:PROJECT",
		"URN:DATASET:DATA:PROJECT:" + u.ID.String() + ":V1",
		"URN:FEATURE:DATA:PROJECT:not-a-uuid:V1",
		"URN:FEATURE:DATA:PROJECT:" + u.ID.String() + ":1",
		"URN:FEATURE:DATA:PROJECT:" + u.ID.String() + ":V0",
		"URN:FEATURE::PROJECT:" + u.ID.String() + ":V1",
	}
	for _, s := range bad {
		_, err := ParseURN(s)
		assert.ErrorIs(t, err, ErrInvalidURN, s)
	}
}
