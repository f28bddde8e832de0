// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validation checks incoming request events before admission.
// Validation is pure: it neither reads nor writes any store.
package validation

import (
	"fmt"
	"strings"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/validate"
)

// MaxRequestIDLength bounds caller supplied request ids.
const MaxRequestIDLength = 128

// ErrorSet is the outcome of validating one event. Empty means valid.
type ErrorSet []validate.Error

func (s ErrorSet) Empty() bool { return len(s) == 0 }

// Messages renders each entry as "field: message".
func (s ErrorSet) Messages() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.Error()
	}
	return out
}

func (s ErrorSet) Error() string {
	return strings.Join(s.Messages(), "; ")
}

// ModelValidator checks a feature against its declared data model.
type ModelValidator interface {
	ValidateModel(modelName string, f model.Feature, mode model.ValidationMode) ErrorSet
}

// Validator runs the structural pass and, for creation and update events
// declaring a model, the model pass.
type Validator struct {
	models ModelValidator
}

// New returns a Validator. models may be nil, in which case the model pass
// is skipped.
func New(models ModelValidator) *Validator {
	return &Validator{models: models}
}

// Validate returns every problem found in ev.
func (v *Validator) Validate(ev model.Event) ErrorSet {
	if ev == nil {
		return ErrorSet{{Message: "event is empty"}}
	}
	acc := validate.New()
	header(acc, ev.Header())

	switch e := ev.(type) {
	case model.CreationEvent:
		feature(acc, "feature", e.Feature, false)
		metadata(acc, e.Metadata)
		v.modelPass(acc, e.Feature, model.ModeCreation)
	case model.UpdateEvent:
		feature(acc, "feature", e.Feature, true)
		storages(acc, "storages", e.Storages)
		if e.FileUpdateMode != "" && e.FileUpdateMode != model.FileUpdateAppend && e.FileUpdateMode != model.FileUpdateReplace {
			acc.AddError("fileUpdateMode", fmt.Sprintf("unknown file update mode %q", e.FileUpdateMode), e.FileUpdateMode)
		}
		v.modelPass(acc, e.Feature, model.ModePatch)
	case model.DeletionEvent:
		urn(acc, "urn", e.URN)
	case model.NotificationEvent:
		urn(acc, "urn", e.URN)
	case model.ReferenceEvent:
		acc.NotEmpty("location", e.Location)
		acc.NotEmpty("pluginBusinessId", e.PluginBusinessID)
		metadata(acc, e.Metadata)
	case model.CopyEvent:
		urn(acc, "urn", e.URN)
		acc.NotEmpty("storage", e.Storage)
		acc.NotEmpty("checksum", e.Checksum)
	default:
		acc.AddError("kind", fmt.Sprintf("unsupported event %T", ev), nil)
	}
	return ErrorSet(acc.Errors())
}

func (v *Validator) modelPass(acc *validate.Validator, f model.Feature, mode model.ValidationMode) {
	if v.models == nil || f.Model == "" {
		return
	}
	acc.Merge("feature", v.models.ValidateModel(f.Model, f, mode))
}

func header(acc *validate.Validator, h model.EventHeader) {
	acc.NotEmpty("requestId", h.RequestID)
	acc.MaxLength("requestId", h.RequestID, MaxRequestIDLength)
	acc.NotEmpty("requestOwner", h.RequestOwner)
	if h.RequestDate.IsZero() {
		acc.AddError("requestDate", "request date is required", nil)
	}
	if h.Priority != model.PriorityUnset && !h.Priority.Valid() {
		acc.AddError("priority", fmt.Sprintf("unknown priority %d", h.Priority), h.Priority)
	}
}

func feature(acc *validate.Validator, field string, f model.Feature, patch bool) {
	acc.NotEmpty(field+".id", f.ID)
	if patch {
		urn(acc, field+".urn", f.URN)
	} else if f.URN != "" {
		acc.AddError(field+".urn", "urn is assigned by the system", f.URN)
	}
	for i, file := range f.Files {
		prefix := fmt.Sprintf("%s.files[%d]", field, i)
		acc.NotEmpty(prefix+".attributes.filename", file.Attributes.Filename)
		acc.NotEmpty(prefix+".attributes.checksum", file.Attributes.Checksum)
		acc.NotEmpty(prefix+".attributes.algorithm", file.Attributes.Algorithm)
		acc.NotEmpty(prefix+".attributes.mimeType", file.Attributes.MimeType)
		if len(file.Locations) == 0 {
			acc.AddError(prefix+".locations", "at least one location is required", nil)
		}
		for j, loc := range file.Locations {
			if loc.URL == "" && loc.Storage == "" {
				acc.AddError(fmt.Sprintf("%s.locations[%d]", prefix, j), "location needs an url or a storage", nil)
			}
		}
	}
}

func metadata(acc *validate.Validator, md model.Metadata) {
	acc.NotEmpty("metadata.session", md.Session)
	acc.NotEmpty("metadata.sessionOwner", md.SessionOwner)
	storages(acc, "metadata.storages", md.Storages)
}

func storages(acc *validate.Validator, field string, list []model.StorageMetadata) {
	for i, s := range list {
		acc.NotEmpty(fmt.Sprintf("%s[%d].pluginBusinessId", field, i), s.PluginBusinessID)
	}
}

func urn(acc *validate.Validator, field, value string) {
	if value == "" {
		acc.AddError(field, "urn is required", value)
		return
	}
	if _, err := model.ParseURN(value); err != nil {
		acc.AddError(field, err.Error(), value)
	}
}
