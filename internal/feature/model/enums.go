// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// Kind discriminates the request variants handled by the orchestrator.
type Kind string

const (
	KindCreation     Kind = "CREATION"
	KindUpdate       Kind = "UPDATE"
	KindDeletion     Kind = "DELETION"
	KindNotification Kind = "NOTIFICATION"
	KindReference    Kind = "REFERENCE"
	KindCopy         Kind = "COPY"
)

// Kinds lists every request kind in scheduling order.
var Kinds = []Kind{KindCreation, KindUpdate, KindDeletion, KindNotification, KindReference, KindCopy}

func (k Kind) Valid() bool {
	switch k {
	case KindCreation, KindUpdate, KindDeletion, KindNotification, KindReference, KindCopy:
		return true
	}
	return false
}

// State is the coarse lifecycle state of a request.
type State string

const (
	StateGranted State = "GRANTED"
	StateDenied  State = "DENIED"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
)

// Priority orders requests for scheduling. Lower values are served first;
// the zero value means "not specified" and is resolved at admission.
type Priority int

const (
	PriorityUnset Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	case PriorityUnset:
		return ""
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ParsePriority accepts HIGH, NORMAL or LOW (case-insensitive). An empty
// string yields PriorityUnset.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return PriorityUnset, nil
	case "HIGH":
		return PriorityHigh, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "LOW":
		return PriorityLow, nil
	}
	return PriorityUnset, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// FileUpdateMode controls how files of an update patch combine with the
// existing ones.
type FileUpdateMode string

const (
	FileUpdateAppend  FileUpdateMode = "APPEND"
	FileUpdateReplace FileUpdateMode = "REPLACE"
)

// NotificationAction classifies a notification fan-out payload.
type NotificationAction string

const (
	ActionCreation       NotificationAction = "CREATION"
	ActionUpdate         NotificationAction = "UPDATE"
	ActionDeletion       NotificationAction = "DELETION"
	ActionAlreadyDeleted NotificationAction = "ALREADY_DELETED"
	ActionCopy           NotificationAction = "COPY"
)

// ValidationMode selects the model validation rules.
type ValidationMode string

const (
	ModeCreation ValidationMode = "CREATION"
	ModePatch    ValidationMode = "PATCH"
)
