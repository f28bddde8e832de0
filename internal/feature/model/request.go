// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Request is the persisted record shared by every request kind. The
// kind-specific part lives in Payload.
type Request struct {
	ID               int64
	RequestID        string
	RequestOwner     string
	RequestDate      time.Time
	RegistrationDate time.Time
	LastUpdate       time.Time
	State            State
	Step             Step
	Priority         Priority
	Errors           []string
	LastErrorStep    Step
	GroupIDs         []string
	Payload          Payload
}

// Kind returns the kind of the request payload.
func (r *Request) Kind() Kind {
	if r.Payload == nil {
		return ""
	}
	return r.Payload.Kind()
}

// ProviderID returns the provider id the request targets, if the kind has one.
func (r *Request) ProviderID() string {
	switch p := r.Payload.(type) {
	case *CreationPayload:
		return p.ProviderID
	case *UpdatePayload:
		return p.ProviderID
	}
	return ""
}

// URN returns the feature urn the request targets, if known.
func (r *Request) URN() string {
	switch p := r.Payload.(type) {
	case *CreationPayload:
		return p.URN
	case *UpdatePayload:
		return p.URN
	case *DeletionPayload:
		return p.URN
	case *NotificationPayload:
		return p.URN
	case *CopyPayload:
		return p.URN
	}
	return ""
}

// IsRetryable reports whether the request may be rescheduled.
func (r *Request) IsRetryable() bool { return r.State == StateError }

// IsDeletable reports whether the request may be removed by an operator.
func (r *Request) IsDeletable() bool { return r.State == StateError }

// AddErrors appends messages not already present.
func (r *Request) AddErrors(msgs ...string) {
	for _, m := range msgs {
		if m != "" && !slices.Contains(r.Errors, m) {
			r.Errors = append(r.Errors, m)
		}
	}
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Errors = slices.Clone(r.Errors)
	out.GroupIDs = slices.Clone(r.GroupIDs)
	if r.Payload != nil {
		out.Payload = r.Payload.clone()
	}
	return &out
}

// Payload is implemented by the kind-specific request variants only.
type Payload interface {
	Kind() Kind
	clone() Payload
}

// Metadata is the session metadata of a creation or reference request.
type Metadata struct {
	SessionOwner string            `json:"sessionOwner"`
	Session      string            `json:"session"`
	Storages     []StorageMetadata `json:"storages,omitempty"`
	Override     bool              `json:"override,omitempty"`
}

// StorageMetadata names a storage target for attached files.
type StorageMetadata struct {
	PluginBusinessID string   `json:"pluginBusinessId"`
	StorePath        string   `json:"storePath,omitempty"`
	TargetTypes      []string `json:"targetTypes,omitempty"`
}

type CreationPayload struct {
	ProviderID string   `json:"providerId"`
	Feature    Feature  `json:"feature"`
	Metadata   Metadata `json:"metadata"`
	// URN is set once the entity has been created.
	URN string `json:"urn,omitempty"`
}

type UpdatePayload struct {
	ProviderID      string            `json:"providerId"`
	URN             string            `json:"urn"`
	Feature         Feature           `json:"feature"`
	Storages        []StorageMetadata `json:"storages,omitempty"`
	FileUpdateMode  FileUpdateMode    `json:"fileUpdateMode"`
	ToNotify        *Feature          `json:"toNotify,omitempty"`
	SourceToNotify  string            `json:"sourceToNotify,omitempty"`
	SessionToNotify string            `json:"sessionToNotify,omitempty"`
}

type DeletionPayload struct {
	URN             string   `json:"urn"`
	ForceDeletion   bool     `json:"forceDeletion,omitempty"`
	AlreadyDeleted  bool     `json:"alreadyDeleted,omitempty"`
	ToNotify        *Feature `json:"toNotify,omitempty"`
	SourceToNotify  string   `json:"sourceToNotify,omitempty"`
	SessionToNotify string   `json:"sessionToNotify,omitempty"`
}

type NotificationPayload struct {
	URN string `json:"urn"`
}

type ReferencePayload struct {
	Location         string   `json:"location"`
	PluginBusinessID string   `json:"pluginBusinessId"`
	Metadata         Metadata `json:"metadata"`
}

type CopyPayload struct {
	URN      string `json:"urn"`
	Storage  string `json:"storage"`
	Checksum string `json:"checksum"`
}

func (*CreationPayload) Kind() Kind     { return KindCreation }
func (*UpdatePayload) Kind() Kind       { return KindUpdate }
func (*DeletionPayload) Kind() Kind     { return KindDeletion }
func (*NotificationPayload) Kind() Kind { return KindNotification }
func (*ReferencePayload) Kind() Kind    { return KindReference }
func (*CopyPayload) Kind() Kind         { return KindCopy }

func (p *CreationPayload) clone() Payload {
	c := *p
	c.Feature = p.Feature.Clone()
	c.Metadata.Storages = slices.Clone(p.Metadata.Storages)
	return &c
}

func (p *UpdatePayload) clone() Payload {
	c := *p
	c.Feature = p.Feature.Clone()
	c.Storages = slices.Clone(p.Storages)
	if p.ToNotify != nil {
		f := p.ToNotify.Clone()
		c.ToNotify = &f
	}
	return &c
}

func (p *DeletionPayload) clone() Payload {
	c := *p
	if p.ToNotify != nil {
		f := p.ToNotify.Clone()
		c.ToNotify = &f
	}
	return &c
}

func (p *NotificationPayload) clone() Payload { c := *p; return &c }

func (p *ReferencePayload) clone() Payload {
	c := *p
	c.Metadata.Storages = slices.Clone(p.Metadata.Storages)
	return &c
}

func (p *CopyPayload) clone() Payload { c := *p; return &c }

// EncodePayload serialises a payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload restores a payload of the given kind.
func DecodePayload(k Kind, data []byte) (Payload, error) {
	var p Payload
	switch k {
	case KindCreation:
		p = &CreationPayload{}
	case KindUpdate:
		p = &UpdatePayload{}
	case KindDeletion:
		p = &DeletionPayload{}
	case KindNotification:
		p = &NotificationPayload{}
	case KindReference:
		p = &ReferencePayload{}
	case KindCopy:
		p = &CopyPayload{}
	default:
		return nil, fmt.Errorf("decode payload: unknown kind %q", k)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", k, err)
	}
	return p, nil
}
