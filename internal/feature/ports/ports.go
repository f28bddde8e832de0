// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports declares the collaborators the orchestrator core consumes.
package ports

import (
	"context"

	"github.com/ManuGH/fem/internal/feature/model"
)

// FileStoreRequest asks storage to copy a file from SourceURL onto Storage.
type FileStoreRequest struct {
	Filename     string `json:"filename"`
	Checksum     string `json:"checksum"`
	Algorithm    string `json:"algorithm"`
	MimeType     string `json:"mimeType"`
	OwnerURN     string `json:"owner"`
	SessionOwner string `json:"sessionOwner,omitempty"`
	Session      string `json:"session,omitempty"`
	SourceURL    string `json:"originUrl"`
	Storage      string `json:"storage"`
	SubDirectory string `json:"subDirectory,omitempty"`
}

// FileReferenceRequest records a file already present at URL on Storage.
type FileReferenceRequest struct {
	Filename     string `json:"filename"`
	Checksum     string `json:"checksum"`
	Algorithm    string `json:"algorithm"`
	MimeType     string `json:"mimeType"`
	Filesize     int64  `json:"filesize,omitempty"`
	OwnerURN     string `json:"owner"`
	SessionOwner string `json:"sessionOwner,omitempty"`
	Session      string `json:"session,omitempty"`
	Storage      string `json:"storage"`
	URL          string `json:"url"`
}

// FileDeletionRequest releases one owner's claim on a file.
type FileDeletionRequest struct {
	Checksum      string `json:"checksum"`
	Storage       string `json:"storage"`
	OwnerURN      string `json:"owner"`
	SessionOwner  string `json:"sessionOwner,omitempty"`
	Session       string `json:"session,omitempty"`
	ForceDeletion bool   `json:"forceDeletion"`
}

// StorageGateway submits file requests. Each call returns the group id that
// correlates the asynchronous completion with the submitting request.
type StorageGateway interface {
	Store(ctx context.Context, reqs []FileStoreRequest) (string, error)
	Reference(ctx context.Context, reqs []FileReferenceRequest) (string, error)
	Delete(ctx context.Context, reqs []FileDeletionRequest) (string, error)
}

// EventPublisher emits lifecycle events and notification payloads.
// Delivery is at-least-once.
type EventPublisher interface {
	PublishRequestEvents(ctx context.Context, events ...model.RequestEvent) error
	PublishNotifications(ctx context.Context, notifications ...model.Notification) error
}

// FeatureGenerator materializes a feature from an external location.
type FeatureGenerator interface {
	Generate(ctx context.Context, location string) (model.Feature, error)
}

// PluginRegistry resolves feature generators by business id.
type PluginRegistry interface {
	Resolve(businessID string) (FeatureGenerator, bool)
}
