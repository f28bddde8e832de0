// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryAndDeleteEligibility(t *testing.T) {
	for _, st := range []State{StateGranted, StateSuccess, StateDenied, StateError} {
		r := &Request{State: st, Payload: &NotificationPayload{}}
		want := st == StateError
		assert.Equal(t, want, r.IsRetryable(), st)
		assert.Equal(t, want, r.IsDeletable(), st)
	}
}

func TestRequestFailRecordsStep(t *testing.T) {
	r := &Request{State: StateGranted, Step: StepLocalScheduled, Payload: &UpdatePayload{}}
	require.NoError(t, r.Fail(EvFail, "boom", "boom", ""))

	assert.Equal(t, StateError, r.State)
	assert.Equal(t, StepLocalError, r.Step)
	assert.Equal(t, StepLocalScheduled, r.LastErrorStep)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestRequestAccessorsFollowPayload(t *testing.T) {
	c := &Request{Payload: &CreationPayload{ProviderID: "P1", URN: "u1"}}
	assert.Equal(t, KindCreation, c.Kind())
	assert.Equal(t, "P1", c.ProviderID())
	assert.Equal(t, "u1", c.URN())

	ref := &Request{Payload: &ReferencePayload{Location: "/tmp/x"}}
	assert.Empty(t, ref.ProviderID())
	assert.Empty(t, ref.URN())
	assert.Equal(t, Kind(""), (&Request{}).Kind())
}

func TestRequestCloneIsIndependent(t *testing.T) {
	r := &Request{
		Errors:   []string{"a"},
		GroupIDs: []string{"g1"},
		Payload: &UpdatePayload{
			Feature: Feature{Properties: Properties{"a": 1}},
		},
	}
	c := r.Clone()
	c.Errors[0] = "b"
	c.GroupIDs = append(c.GroupIDs, "g2")
	c.Payload.(*UpdatePayload).Feature.Properties["a"] = 2

	assert.Equal(t, []string{"a"}, r.Errors)
	assert.Equal(t, []string{"g1"}, r.GroupIDs)
	assert.Equal(t, 1, r.Payload.(*UpdatePayload).Feature.Properties["a"])
}

func TestDecodePayloadKeepsTombstones(t *testing.T) {
	raw, err := EncodePayload(&UpdatePayload{
		URN:     "u",
		Feature: Feature{Properties: Properties{"a": nil, "b": "x"}},
	})
	require.NoError(t, err)

	p, err := DecodePayload(KindUpdate, raw)
	require.NoError(t, err)
	props := p.(*UpdatePayload).Feature.Properties
	v, ok := props["a"]
	assert.True(t, ok)
	assert.Nil(t, v)

	_, err = DecodePayload("BOGUS", raw)
	assert.Error(t, err)
}

func TestStepFlags(t *testing.T) {
	assert.True(t, StepRemoteStorageReq.IsRemote())
	assert.True(t, StepRemoteStorageReq.HasTimeout())
	assert.True(t, StepRemoteStorageError.IsRemote())
	assert.False(t, StepRemoteStorageError.HasTimeout())
	assert.False(t, StepLocalScheduled.IsRemote())
	assert.True(t, StepLocalError.IsError())
	assert.False(t, Step("NOPE").Valid())

	for _, s := range TimeoutSteps() {
		to, ok := TimeoutErrorStep(s)
		require.True(t, ok, s)
		assert.True(t, to.IsError(), s)
	}
}

func TestPriorityText(t *testing.T) {
	p, err := ParsePriority("high")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)
	assert.Less(t, int(PriorityHigh), int(PriorityNormal))
	assert.Less(t, int(PriorityNormal), int(PriorityLow))

	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}

func TestEventEnvelope(t *testing.T) {
	ev := DeletionEvent{
		EventHeader: EventHeader{RequestID: "r1", RequestOwner: "me", Priority: PriorityLow},
		URN:         "URN:FEATURE:DATA:T:x:V001",
	}
	env, err := EncodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, KindDeletion, env.Kind)
	assert.Contains(t, string(env.Event), `"priority":"LOW"`)

	back, err := DecodeEvent(env)
	require.NoError(t, err)
	assert.Equal(t, ev, back)
}
