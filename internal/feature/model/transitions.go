// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"

	"github.com/ManuGH/fem/internal/feature/fsm"
)

// StepEvent drives a request from one step to the next.
type StepEvent string

const (
	EvSchedule            StepEvent = "schedule"
	EvRecover             StepEvent = "recover"
	EvFail                StepEvent = "fail"
	EvRetry               StepEvent = "retry"
	EvStorageRequested    StepEvent = "storage_requested"
	EvStorageDelRequested StepEvent = "storage_deletion_requested"
	EvStorageFailed       StepEvent = "storage_failed"
	EvAwaitNotification   StepEvent = "await_notification"
	EvNotificationSent    StepEvent = "notification_sent"
	EvTimeout             StepEvent = "timeout"
)

type edge = fsm.Transition[Step, StepEvent]

// common edges every kind shares.
func common() []edge {
	return []edge{
		{From: StepLocalDelayed, Event: EvSchedule, To: StepLocalScheduled},
		{From: StepLocalScheduled, Event: EvRecover, To: StepLocalDelayed},
		{From: StepLocalScheduled, Event: EvFail, To: StepLocalError},
		{From: StepLocalError, Event: EvRetry, To: StepLocalDelayed},
	}
}

// notifying edges for kinds that defer their notification.
func notifying() []edge {
	return []edge{
		{From: StepLocalScheduled, Event: EvAwaitNotification, To: StepLocalToBeNotified},
		{From: StepLocalToBeNotified, Event: EvNotificationSent, To: StepRemoteNotifyReq},
		{From: StepRemoteNotifyReq, Event: EvRecover, To: StepLocalToBeNotified},
		{From: StepRemoteNotifyReq, Event: EvTimeout, To: StepRemoteNotifyError},
		{From: StepRemoteNotifyError, Event: EvRetry, To: StepLocalToBeNotified},
	}
}

func join(parts ...[]edge) []edge {
	var out []edge
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var tables = map[Kind]*fsm.Table[Step, StepEvent]{
	KindCreation: fsm.MustNew(join(common(), []edge{
		{From: StepLocalScheduled, Event: EvStorageRequested, To: StepRemoteStorageReq},
		{From: StepRemoteStorageReq, Event: EvStorageFailed, To: StepRemoteStorageError},
		{From: StepRemoteStorageReq, Event: EvTimeout, To: StepRemoteStorageError},
		{From: StepRemoteStorageError, Event: EvRetry, To: StepLocalDelayed},
	})),
	KindUpdate: fsm.MustNew(join(common(), notifying(), []edge{
		// an update aimed at a feature being deleted is rejected before scheduling
		{From: StepLocalDelayed, Event: EvFail, To: StepLocalError},
	})),
	KindDeletion: fsm.MustNew(join(common(), notifying(), []edge{
		{From: StepLocalScheduled, Event: EvStorageDelRequested, To: StepRemoteStorageDel},
		{From: StepRemoteStorageDel, Event: EvStorageFailed, To: StepRemoteStorageError},
		{From: StepRemoteStorageDel, Event: EvTimeout, To: StepRemoteStorageError},
		{From: StepRemoteStorageDel, Event: EvAwaitNotification, To: StepLocalToBeNotified},
		{From: StepRemoteStorageError, Event: EvRetry, To: StepLocalDelayed},
	})),
	KindNotification: fsm.MustNew(common()),
	KindReference:    fsm.MustNew(common()),
	KindCopy:         fsm.MustNew(common()),
}

// Table returns the step table of kind k.
func Table(k Kind) (*fsm.Table[Step, StepEvent], bool) {
	t, ok := tables[k]
	return t, ok
}

// Apply moves the request along the edge selected by ev. Entering an error
// step marks the request ERROR and records the step it failed from; leaving
// an error step through EvRetry makes it GRANTED again.
func (r *Request) Apply(ev StepEvent) error {
	t, ok := tables[r.Kind()]
	if !ok {
		return fmt.Errorf("request %s: no step table for kind %q", r.RequestID, r.Kind())
	}
	to, err := t.Next(r.Step, ev)
	if err != nil {
		return fmt.Errorf("%s request %s: %w", r.Kind(), r.RequestID, err)
	}
	switch {
	case to.IsError():
		r.LastErrorStep = r.Step
		r.State = StateError
	case ev == EvRetry:
		r.State = StateGranted
		r.Errors = nil
	}
	r.Step = to
	return nil
}

// Fail applies ev, which must lead to an error step, and records msgs. When
// the table has no such edge the request is still forced into LOCAL_ERROR so
// the failure is never lost; the transition error is returned for logging.
func (r *Request) Fail(ev StepEvent, msgs ...string) error {
	err := r.Apply(ev)
	if err != nil || !r.Step.IsError() {
		r.LastErrorStep = r.Step
		r.State = StateError
		r.Step = StepLocalError
	}
	r.AddErrors(msgs...)
	return err
}
