// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package admission

import (
	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/validation"
	"github.com/ManuGH/fem/internal/validate"
)

// Decision is the outcome of admitting one event. Request is nil when the
// event is denied.
type Decision struct {
	Event   model.Event
	Request *model.Request
	Errors  validation.ErrorSet
}

func (d Decision) Granted() bool { return d.Request != nil }

// idKey identifies a request id within its kind.
type idKey struct {
	kind model.Kind
	id   string
}

// decide validates ev and builds its request. taken reports request ids
// already registered or granted earlier in the same batch. It has no side
// effects.
func decide(ev model.Event, errs validation.ErrorSet, taken map[idKey]bool, priority func(model.Kind) model.Priority) Decision {
	d := Decision{Event: ev, Errors: errs}
	if ev == nil {
		return d
	}
	h := ev.Header()
	if h.RequestID != "" && taken[idKey{ev.Kind(), h.RequestID}] {
		d.Errors = append(d.Errors, validate.Error{Field: "requestId", Value: h.RequestID, Message: "Request id already exists"})
	}
	if !d.Errors.Empty() {
		return d
	}

	prio := h.Priority
	if prio == model.PriorityUnset {
		prio = priority(ev.Kind())
	}
	d.Request = &model.Request{
		RequestID:    h.RequestID,
		RequestOwner: h.RequestOwner,
		RequestDate:  h.RequestDate,
		State:        model.StateGranted,
		Step:         model.StepLocalDelayed,
		Priority:     prio,
		Payload:      payloadOf(ev),
	}
	return d
}

func payloadOf(ev model.Event) model.Payload {
	switch e := ev.(type) {
	case model.CreationEvent:
		f := e.Feature.Clone()
		return &model.CreationPayload{ProviderID: f.ID, Feature: f, Metadata: e.Metadata}
	case model.UpdateEvent:
		f := e.Feature.Clone()
		mode := e.FileUpdateMode
		if mode == "" {
			mode = model.FileUpdateAppend
		}
		return &model.UpdatePayload{ProviderID: f.ID, URN: f.URN, Feature: f, Storages: e.Storages, FileUpdateMode: mode}
	case model.DeletionEvent:
		return &model.DeletionPayload{URN: e.URN, ForceDeletion: e.ForceDeletion}
	case model.NotificationEvent:
		return &model.NotificationPayload{URN: e.URN}
	case model.ReferenceEvent:
		return &model.ReferencePayload{Location: e.Location, PluginBusinessID: e.PluginBusinessID, Metadata: e.Metadata}
	case model.CopyEvent:
		return &model.CopyPayload{URN: e.URN, Storage: e.Storage, Checksum: e.Checksum}
	}
	return nil
}

// identity returns the provider id and urn an event refers to, for events.
func identity(ev model.Event) (providerID, urn string) {
	switch e := ev.(type) {
	case model.CreationEvent:
		return e.Feature.ID, ""
	case model.UpdateEvent:
		return e.Feature.ID, e.Feature.URN
	case model.DeletionEvent:
		return "", e.URN
	case model.NotificationEvent:
		return "", e.URN
	case model.CopyEvent:
		return "", e.URN
	}
	return "", ""
}
