// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldRequestOwner  = "request_owner"
	FieldCorrelationID = "correlation_id"
	FieldJobID         = "job_id"
	FieldGroupID       = "group_id"
	FieldProviderID    = "provider_id"
	FieldURN           = "urn"
	FieldSession       = "session"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldKind      = "kind"
	FieldStage     = "stage"
	FieldPriority  = "priority"
	FieldCount     = "count"

	// State fields
	FieldState    = "state"
	FieldOldStep  = "old_step"
	FieldNewStep  = "new_step"
	FieldStep     = "step"
	FieldVersion  = "version"
	FieldStorage  = "storage"
	FieldPluginID = "plugin_id"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldTopic   = "topic"
)
