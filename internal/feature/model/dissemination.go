// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"time"
)

// DisseminationType tells whether a recipient was sent an entity or
// acknowledged it.
type DisseminationType string

const (
	DisseminationPut DisseminationType = "PUT"
	DisseminationAck DisseminationType = "ACK"
)

// DisseminationUpdate reports one recipient's view of one entity.
type DisseminationUpdate struct {
	URN            string            `json:"urn"`
	RecipientLabel string            `json:"recipientLabel"`
	Type           DisseminationType `json:"type"`
	// AckRequired is only read for PUT updates.
	AckRequired bool      `json:"ackRequired,omitempty"`
	Date        time.Time `json:"date"`
}

// Validate rejects updates that cannot be applied to any entity.
func (u DisseminationUpdate) Validate() error {
	switch {
	case u.URN == "":
		return fmt.Errorf("dissemination update: urn is required")
	case u.RecipientLabel == "":
		return fmt.Errorf("dissemination update: recipient label is required")
	case u.Type != DisseminationPut && u.Type != DisseminationAck:
		return fmt.Errorf("dissemination update: unknown type %q", u.Type)
	}
	return nil
}

// Dissemination records the entity's delivery to one recipient. A nil
// AckDate means the recipient still owes an acknowledgement.
type Dissemination struct {
	Label       string     `json:"label"`
	RequestDate time.Time  `json:"requestDate"`
	AckDate     *time.Time `json:"ackDate,omitempty"`
}

// Acknowledged reports whether the recipient no longer owes an ack.
func (d Dissemination) Acknowledged() bool { return d.AckDate != nil }

func (e *Entity) dissemination(label string) *Dissemination {
	for i := range e.Disseminations {
		if e.Disseminations[i].Label == label {
			return &e.Disseminations[i]
		}
	}
	return nil
}

// PutRecipient records that label was sent the entity at date. A recipient
// already known is reset as if sent for the first time. Without a required
// ack the delivery counts as acknowledged immediately.
func (e *Entity) PutRecipient(label string, date time.Time, ackRequired bool) {
	d := e.dissemination(label)
	if d == nil {
		e.Disseminations = append(e.Disseminations, Dissemination{Label: label})
		d = &e.Disseminations[len(e.Disseminations)-1]
	}
	d.RequestDate = date
	d.AckDate = nil
	if !ackRequired {
		ack := date
		d.AckDate = &ack
	}
}

// AckRecipient records label's acknowledgement at date. It reports false
// when the entity was never sent to label.
func (e *Entity) AckRecipient(label string, date time.Time) bool {
	d := e.dissemination(label)
	if d == nil {
		return false
	}
	ack := date
	d.AckDate = &ack
	return true
}

// DisseminationPending reports whether any recipient still owes an ack.
func (e *Entity) DisseminationPending() bool {
	for _, d := range e.Disseminations {
		if !d.Acknowledged() {
			return true
		}
	}
	return false
}

// CloneDisseminations returns a deep copy of in.
func CloneDisseminations(in []Dissemination) []Dissemination {
	if in == nil {
		return nil
	}
	out := make([]Dissemination, len(in))
	for i, d := range in {
		out[i] = d
		if d.AckDate != nil {
			ack := *d.AckDate
			out[i].AckDate = &ack
		}
	}
	return out
}
