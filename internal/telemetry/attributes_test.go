// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func asMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value
	}
	return out
}

func TestJobAttributes(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		priority string
		wantLen  int
	}{
		{name: "all fields", id: "j1", priority: "HIGH", wantLen: 5},
		{name: "no id", priority: "LOW", wantLen: 4},
		{name: "minimal", wantLen: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := JobAttributes(tt.id, "UPDATE", "notify", tt.priority, 7)
			assert.Len(t, attrs, tt.wantLen)
			m := asMap(attrs)
			assert.Equal(t, "UPDATE", m[JobKindKey].AsString())
			assert.Equal(t, "notify", m[JobStageKey].AsString())
			assert.Equal(t, int64(7), m[JobSizeKey].AsInt64())
		})
	}
}

func TestOutcomeAttributes(t *testing.T) {
	m := asMap(OutcomeAttributes(3, 1, 2))
	assert.Equal(t, int64(3), m[SucceededKey].AsInt64())
	assert.Equal(t, int64(1), m[FailedKey].AsInt64())
	assert.Equal(t, int64(2), m[PendingKey].AsInt64())
}

func TestStorageAttributes(t *testing.T) {
	assert.Len(t, StorageAttributes("store", 2, ""), 2)
	m := asMap(StorageAttributes("delete", 1, "g-1"))
	assert.Equal(t, "delete", m[StorageOpKey].AsString())
	assert.Equal(t, "g-1", m[StorageGroupKey].AsString())
}

func TestErrorAttributes(t *testing.T) {
	m := asMap(ErrorAttributes(errors.New("boom"), "store"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "store", m[ErrorTypeKey].AsString())
}
