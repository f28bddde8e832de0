// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	// Job attributes
	JobIDKey       = "fem.job.id"
	JobKindKey     = "fem.job.kind"
	JobStageKey    = "fem.job.stage"
	JobPriorityKey = "fem.job.priority"
	JobSizeKey     = "fem.job.size"

	// Outcome attributes
	SucceededKey = "fem.requests.succeeded"
	FailedKey    = "fem.requests.failed"
	PendingKey   = "fem.requests.pending"

	// Storage attributes
	StorageOpKey    = "fem.storage.op"
	StorageFilesKey = "fem.storage.files"
	StorageGroupKey = "fem.storage.group_id"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// JobAttributes describes a scheduled job.
func JobAttributes(id, kind, stage, priority string, size int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(JobKindKey, kind),
		attribute.String(JobStageKey, stage),
		attribute.Int(JobSizeKey, size),
	}
	if id != "" {
		attrs = append(attrs, attribute.String(JobIDKey, id))
	}
	if priority != "" {
		attrs = append(attrs, attribute.String(JobPriorityKey, priority))
	}
	return attrs
}

// OutcomeAttributes summarizes how the requests of a job ended.
func OutcomeAttributes(succeeded, failed, pending int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SucceededKey, succeeded),
		attribute.Int(FailedKey, failed),
		attribute.Int(PendingKey, pending),
	}
}

// StorageAttributes describes one Storage Gateway call.
func StorageAttributes(op string, files int, groupID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(StorageOpKey, op),
		attribute.Int(StorageFilesKey, files),
	}
	if groupID != "" {
		attrs = append(attrs, attribute.String(StorageGroupKey, groupID))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
