// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventHeader carries the fields every incoming request event has.
type EventHeader struct {
	RequestID    string    `json:"requestId"`
	RequestOwner string    `json:"requestOwner"`
	RequestDate  time.Time `json:"requestDate"`
	Priority     Priority  `json:"priority,omitempty"`
}

// Header returns the common header.
func (h EventHeader) Header() EventHeader { return h }

// Event is an externally submitted request, before admission.
type Event interface {
	Kind() Kind
	Header() EventHeader
}

type CreationEvent struct {
	EventHeader
	Feature  Feature  `json:"feature"`
	Metadata Metadata `json:"metadata"`
}

type UpdateEvent struct {
	EventHeader
	Feature        Feature           `json:"feature"`
	Storages       []StorageMetadata `json:"storages,omitempty"`
	FileUpdateMode FileUpdateMode    `json:"fileUpdateMode,omitempty"`
}

type DeletionEvent struct {
	EventHeader
	URN           string `json:"urn"`
	ForceDeletion bool   `json:"forceDeletion,omitempty"`
}

type NotificationEvent struct {
	EventHeader
	URN string `json:"urn"`
}

type ReferenceEvent struct {
	EventHeader
	Location         string   `json:"location"`
	PluginBusinessID string   `json:"pluginBusinessId"`
	Metadata         Metadata `json:"metadata"`
}

type CopyEvent struct {
	EventHeader
	URN      string `json:"urn"`
	Storage  string `json:"storage"`
	Checksum string `json:"checksum"`
}

func (CreationEvent) Kind() Kind     { return KindCreation }
func (UpdateEvent) Kind() Kind       { return KindUpdate }
func (DeletionEvent) Kind() Kind     { return KindDeletion }
func (NotificationEvent) Kind() Kind { return KindNotification }
func (ReferenceEvent) Kind() Kind    { return KindReference }
func (CopyEvent) Kind() Kind         { return KindCopy }

// Envelope is the wire form of an incoming event on the bus.
type Envelope struct {
	Kind  Kind            `json:"kind"`
	Event json.RawMessage `json:"event"`
}

// DecodeEvent restores the concrete event carried by an envelope.
func DecodeEvent(env Envelope) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch env.Kind {
	case KindCreation:
		var e CreationEvent
		err = json.Unmarshal(env.Event, &e)
		ev = e
	case KindUpdate:
		var e UpdateEvent
		err = json.Unmarshal(env.Event, &e)
		ev = e
	case KindDeletion:
		var e DeletionEvent
		err = json.Unmarshal(env.Event, &e)
		ev = e
	case KindNotification:
		var e NotificationEvent
		err = json.Unmarshal(env.Event, &e)
		ev = e
	case KindReference:
		var e ReferenceEvent
		err = json.Unmarshal(env.Event, &e)
		ev = e
	case KindCopy:
		var e CopyEvent
		err = json.Unmarshal(env.Event, &e)
		ev = e
	default:
		return nil, fmt.Errorf("decode event: unknown kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Kind, err)
	}
	return ev, nil
}

// EncodeEvent wraps ev into an envelope.
func EncodeEvent(ev Event) (Envelope, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}
	return Envelope{Kind: ev.Kind(), Event: raw}, nil
}

// RequestEvent is the lifecycle event published for a request.
type RequestEvent struct {
	RequestID    string    `json:"requestId"`
	RequestOwner string    `json:"requestOwner,omitempty"`
	Kind         Kind      `json:"kind"`
	ProviderID   string    `json:"providerId,omitempty"`
	URN          string    `json:"urn,omitempty"`
	State        State     `json:"state"`
	Errors       []string  `json:"errors,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notification is the fan-out payload emitted for a feature change.
type Notification struct {
	Action       NotificationAction `json:"action"`
	RequestID    string             `json:"requestId,omitempty"`
	RequestOwner string             `json:"requestOwner,omitempty"`
	URN          string             `json:"urn"`
	Feature      *Feature           `json:"feature,omitempty"`
	Source       string             `json:"source,omitempty"`
	Session      string             `json:"session,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// StorageResponse reports completion of a storage group.
type StorageResponse struct {
	GroupID string   `json:"groupId"`
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}
