// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Step is a request's position in its kind-specific state machine.
type Step string

const (
	StepLocalDenied        Step = "LOCAL_DENIED"
	StepLocalDelayed       Step = "LOCAL_DELAYED"
	StepLocalScheduled     Step = "LOCAL_SCHEDULED"
	StepLocalError         Step = "LOCAL_ERROR"
	StepLocalToBeNotified  Step = "LOCAL_TO_BE_NOTIFIED"
	StepRemoteStorageReq   Step = "REMOTE_STORAGE_REQUESTED"
	StepRemoteStorageDel   Step = "REMOTE_STORAGE_DELETION_REQUESTED"
	StepRemoteStorageError Step = "REMOTE_STORAGE_ERROR"
	StepRemoteNotifyReq    Step = "REMOTE_NOTIFICATION_REQUESTED"
	StepRemoteNotifyError  Step = "REMOTE_NOTIFICATION_ERROR"
)

type stepFlags struct {
	remote  bool
	timeout bool
	failed  bool
}

var steps = map[Step]stepFlags{
	StepLocalDenied:        {},
	StepLocalDelayed:       {},
	StepLocalScheduled:     {},
	StepLocalError:         {failed: true},
	StepLocalToBeNotified:  {},
	StepRemoteStorageReq:   {remote: true, timeout: true},
	StepRemoteStorageDel:   {remote: true, timeout: true},
	StepRemoteStorageError: {remote: true, failed: true},
	StepRemoteNotifyReq:    {remote: true, timeout: true},
	StepRemoteNotifyError:  {remote: true, failed: true},
}

func (s Step) Valid() bool {
	_, ok := steps[s]
	return ok
}

// IsRemote reports whether the request is waiting on an external collaborator.
func (s Step) IsRemote() bool { return steps[s].remote }

// HasTimeout reports whether the step is reconciled by the timeout sweeper.
func (s Step) HasTimeout() bool { return steps[s].timeout }

// IsError reports whether the step is one of the error steps.
func (s Step) IsError() bool { return steps[s].failed }

// TimeoutSteps returns every step that carries a timeout.
func TimeoutSteps() []Step {
	return []Step{StepRemoteStorageReq, StepRemoteStorageDel, StepRemoteNotifyReq}
}

// TimeoutErrorStep maps a timed-out remote step to the error step it aborts into.
func TimeoutErrorStep(s Step) (Step, bool) {
	switch s {
	case StepRemoteStorageReq, StepRemoteStorageDel:
		return StepRemoteStorageError, true
	case StepRemoteNotifyReq:
		return StepRemoteNotifyError, true
	}
	return "", false
}
