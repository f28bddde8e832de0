// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityRecipients(t *testing.T) {
	at := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	e := &Entity{URN: "U"}
	assert.False(t, e.DisseminationPending())
	assert.False(t, e.AckRecipient("mirror", at), "never sent")

	e.PutRecipient("mirror", at, true)
	e.PutRecipient("catalog", at, false)
	assert.True(t, e.DisseminationPending())

	c := e.Clone()
	require.True(t, c.AckRecipient("mirror", at.Add(time.Hour)))
	assert.False(t, c.DisseminationPending())
	assert.True(t, e.DisseminationPending(), "clone does not share recipients")
	assert.Equal(t, at.Add(time.Hour), *c.Disseminations[0].AckDate)

	c.Disseminations[1].AckDate = nil
	require.NotNil(t, e.Disseminations[1].AckDate, "ack dates are copied")
}

func TestDisseminationUpdateValidate(t *testing.T) {
	ok := DisseminationUpdate{URN: "U", RecipientLabel: "mirror", Type: DisseminationAck}
	require.NoError(t, ok.Validate())

	for _, bad := range []DisseminationUpdate{
		{RecipientLabel: "mirror", Type: DisseminationAck},
		{URN: "U", Type: DisseminationPut},
		{URN: "U", RecipientLabel: "mirror", Type: "GET"},
	} {
		assert.Error(t, bad.Validate())
	}
}
