// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package processor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/feature/ports"
	"github.com/ManuGH/fem/internal/metrics"
	"github.com/ManuGH/fem/internal/telemetry"
)

// errNoStorageTarget fails a creation whose files no storage call covers.
var errNoStorageTarget = errors.New("no storage target accepts the files of the feature")

// storageCalls builds the store and reference requests for the files of f.
// Without storage targets in md, a location naming a storage is referenced
// there. Otherwise every target accepting the file's data type gets a store
// call for a location without storage, and a reference call for one with.
func storageCalls(urn string, f model.Feature, md model.Metadata) ([]ports.FileStoreRequest, []ports.FileReferenceRequest) {
	var (
		stores []ports.FileStoreRequest
		refs   []ports.FileReferenceRequest
	)
	for _, file := range f.Files {
		a := file.Attributes
		reference := func(loc model.Location) {
			refs = append(refs, ports.FileReferenceRequest{
				Filename:     a.Filename,
				Checksum:     a.Checksum,
				Algorithm:    a.Algorithm,
				MimeType:     a.MimeType,
				Filesize:     a.Filesize,
				OwnerURN:     urn,
				SessionOwner: md.SessionOwner,
				Session:      md.Session,
				Storage:      loc.Storage,
				URL:          loc.URL,
			})
		}
		for _, loc := range file.Locations {
			if len(md.Storages) == 0 && loc.Storage != "" {
				reference(loc)
				continue
			}
			for _, target := range md.Storages {
				if len(target.TargetTypes) > 0 && !slices.Contains(target.TargetTypes, a.DataType) {
					continue
				}
				if loc.Storage != "" {
					reference(loc)
					continue
				}
				stores = append(stores, ports.FileStoreRequest{
					Filename:     a.Filename,
					Checksum:     a.Checksum,
					Algorithm:    a.Algorithm,
					MimeType:     a.MimeType,
					OwnerURN:     urn,
					SessionOwner: md.SessionOwner,
					Session:      md.Session,
					SourceURL:    loc.URL,
					Storage:      target.PluginBusinessID,
					SubDirectory: target.StorePath,
				})
			}
		}
	}
	return stores, refs
}

// requestStorage submits the files of f and returns the group ids to wait
// for. A feature without files has nothing to submit and gets none; one
// with files gets at least one group or errNoStorageTarget.
func (s *Service) requestStorage(ctx context.Context, urn string, f model.Feature, md model.Metadata) ([]string, error) {
	if !f.HasFiles() {
		return nil, nil
	}
	stores, refs := storageCalls(urn, f, md)
	if len(stores) == 0 && len(refs) == 0 {
		return nil, errNoStorageTarget
	}
	var groups []string
	if len(stores) > 0 {
		gid, err := s.storageCall(ctx, "store", len(stores), func(ctx context.Context) (string, error) {
			return s.gateway.Store(ctx, stores)
		})
		if err != nil {
			return nil, err
		}
		groups = append(groups, gid)
	}
	if len(refs) > 0 {
		gid, err := s.storageCall(ctx, "reference", len(refs), func(ctx context.Context) (string, error) {
			return s.gateway.Reference(ctx, refs)
		})
		if err != nil {
			return nil, err
		}
		groups = append(groups, gid)
	}
	return groups, nil
}

// requestDeletion releases every file of e on storage.
func (s *Service) requestDeletion(ctx context.Context, storage string, e *model.Entity, force bool) (string, error) {
	reqs := make([]ports.FileDeletionRequest, 0, len(e.Feature.Files))
	for _, file := range e.Feature.Files {
		reqs = append(reqs, ports.FileDeletionRequest{
			Checksum:      file.Attributes.Checksum,
			Storage:       storage,
			OwnerURN:      e.URN,
			SessionOwner:  e.SessionOwner,
			Session:       e.Session,
			ForceDeletion: force,
		})
	}
	return s.storageCall(ctx, "delete", len(reqs), func(ctx context.Context) (string, error) {
		return s.gateway.Delete(ctx, reqs)
	})
}

func (s *Service) storageCall(ctx context.Context, op string, files int, call func(context.Context) (string, error)) (string, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "fem.storage."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	gid, err := call(ctx)
	metrics.RecordStorageCall(op, err)
	span.SetAttributes(telemetry.StorageAttributes(op, files, gid)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("storage %s request failed: %w", op, err)
	}
	return gid, nil
}
