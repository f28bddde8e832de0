// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validURN = model.NewURN("", "TENANT", "P1", 1).String()

func hdr(id string) model.EventHeader {
	return model.EventHeader{RequestID: id, RequestOwner: "owner", RequestDate: time.Now()}
}

func creationEvent() model.CreationEvent {
	return model.CreationEvent{
		EventHeader: hdr("r1"),
		Feature:     model.Feature{ID: "P1", Geometry: model.Unlocated()},
		Metadata:    model.Metadata{Session: "S1", SessionOwner: "SO"},
	}
}

func fields(set ErrorSet) []string {
	out := make([]string, len(set))
	for i, e := range set {
		out[i] = e.Field
	}
	return out
}

func TestValidateStructural(t *testing.T) {
	withFile := creationEvent()
	withFile.Feature.Files = []model.File{{Attributes: model.FileAttributes{Filename: "a.dat"}}}

	badURN := creationEvent()
	badURN.Feature.URN = validURN

	badPriority := creationEvent()
	badPriority.Priority = model.Priority(9)

	longID := creationEvent()
	longID.RequestID = strings.Repeat("x", MaxRequestIDLength+1)

	tests := []struct {
		name  string
		event model.Event
		want  []string
	}{
		{name: "valid creation", event: creationEvent()},
		{name: "nil event", event: nil, want: []string{""}},
		{
			name:  "empty header",
			event: model.CreationEvent{Feature: model.Feature{ID: "P1"}, Metadata: model.Metadata{Session: "S", SessionOwner: "O"}},
			want:  []string{"requestId", "requestOwner", "requestDate"},
		},
		{name: "request id too long", event: longID, want: []string{"requestId"}},
		{name: "unknown priority", event: badPriority, want: []string{"priority"}},
		{name: "creation with urn", event: badURN, want: []string{"feature.urn"}},
		{
			name:  "incomplete file",
			event: withFile,
			want: []string{
				"feature.files[0].attributes.checksum",
				"feature.files[0].attributes.algorithm",
				"feature.files[0].attributes.mimeType",
				"feature.files[0].locations",
			},
		},
		{
			name:  "update needs urn",
			event: model.UpdateEvent{EventHeader: hdr("u1"), Feature: model.Feature{ID: "P1"}},
			want:  []string{"feature.urn"},
		},
		{
			name:  "update bad mode",
			event: model.UpdateEvent{EventHeader: hdr("u1"), Feature: model.Feature{ID: "P1", URN: validURN}, FileUpdateMode: "MERGE"},
			want:  []string{"fileUpdateMode"},
		},
		{name: "deletion ok", event: model.DeletionEvent{EventHeader: hdr("d1"), URN: validURN}},
		{name: "deletion malformed urn", event: model.DeletionEvent{EventHeader: hdr("d1"), URN: "URN:X"}, want: []string{"urn"}},
		{name: "notification missing urn", event: model.NotificationEvent{EventHeader: hdr("n1")}, want: []string{"urn"}},
		{
			name:  "reference",
			event: model.ReferenceEvent{EventHeader: hdr("ref1"), Metadata: model.Metadata{Session: "S", SessionOwner: "O"}},
			want:  []string{"location", "pluginBusinessId"},
		},
		{
			name:  "copy",
			event: model.CopyEvent{EventHeader: hdr("c1"), URN: validURN},
			want:  []string{"storage", "checksum"},
		},
	}

	v := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.event)
			if len(tt.want) == 0 {
				assert.True(t, got.Empty(), "unexpected errors: %s", got.Error())
				return
			}
			assert.Equal(t, tt.want, fields(got))
		})
	}
}

func TestValidateModelPass(t *testing.T) {
	reg, err := NewModelRegistry([]ModelDefinition{{
		Name:       "M",
		Attributes: []Attribute{{Name: "title", Type: TypeString}},
	}})
	require.NoError(t, err)
	v := New(reg)

	ev := creationEvent()
	ev.Feature.Model = "M"
	got := v.Validate(ev)
	assert.Equal(t, []string{"feature.properties.title"}, fields(got))

	// no model declared: model pass skipped
	ev.Feature.Model = ""
	assert.True(t, v.Validate(ev).Empty())

	// update events validate in patch mode
	upd := model.UpdateEvent{EventHeader: hdr("u1"), Feature: model.Feature{
		ID: "P1", URN: validURN, Model: "M", Properties: model.Properties{"title": "x"},
	}}
	got = v.Validate(upd)
	assert.Equal(t, []string{"feature.properties.title"}, fields(got))
	assert.Contains(t, got.Error(), "not alterable")
}
