// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"encoding/json"
	"maps"
	"slices"
)

// GeometryUnlocated is the sentinel type of a feature without location.
const GeometryUnlocated = "Unlocated"

// DefaultEntityType is the entity type written into URNs when a feature
// does not declare one.
const DefaultEntityType = "DATA"

// Geometry is carried opaquely; only the sentinel type is interpreted.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
}

// Unlocated returns the sentinel geometry.
func Unlocated() Geometry {
	return Geometry{Type: GeometryUnlocated}
}

// IsUnlocated reports whether g is the sentinel (an empty type counts too).
func (g Geometry) IsUnlocated() bool {
	return g.Type == "" || g.Type == GeometryUnlocated
}

// Properties is the free-form attribute map of a feature. A nil value inside
// a patch is a tombstone.
type Properties map[string]any

// Merge applies patch on top of p and returns the result. Keys whose patch
// value is nil are removed; other keys are overwritten. p is not modified.
func (p Properties) Merge(patch Properties) Properties {
	out := make(Properties, len(p)+len(patch))
	maps.Copy(out, p)
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Location is one place a file can be found.
type Location struct {
	Storage string `json:"storage,omitempty"`
	URL     string `json:"url,omitempty"`
}

// FileAttributes describe the content of a file.
type FileAttributes struct {
	DataType  string `json:"dataType,omitempty"`
	Filename  string `json:"filename"`
	Checksum  string `json:"checksum"`
	Algorithm string `json:"algorithm"`
	MimeType  string `json:"mimeType"`
	Filesize  int64  `json:"filesize,omitempty"`
}

// File is a file attached to a feature.
type File struct {
	Attributes FileAttributes `json:"attributes"`
	Locations  []Location     `json:"locations"`
}

// HasLocation reports whether the file already has a location on storage.
func (f File) HasLocation(storage string) bool {
	return slices.ContainsFunc(f.Locations, func(l Location) bool { return l.Storage == storage })
}

// Feature is the value object managed by the orchestrator.
type Feature struct {
	ID         string     `json:"id"`
	URN        string     `json:"urn,omitempty"`
	Model      string     `json:"model,omitempty"`
	EntityType string     `json:"entityType,omitempty"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties,omitempty"`
	Files      []File     `json:"files,omitempty"`
}

// HasFiles reports whether at least one file is attached.
func (f Feature) HasFiles() bool {
	return len(f.Files) > 0
}

// Clone returns a deep copy of f. Property values are shared.
func (f Feature) Clone() Feature {
	out := f
	if f.Properties != nil {
		out.Properties = maps.Clone(f.Properties)
	}
	if f.Geometry.Coordinates != nil {
		out.Geometry.Coordinates = slices.Clone(f.Geometry.Coordinates)
	}
	if f.Files != nil {
		out.Files = make([]File, len(f.Files))
		for i, file := range f.Files {
			out.Files[i] = File{Attributes: file.Attributes, Locations: slices.Clone(file.Locations)}
		}
	}
	return out
}

// FileIndex returns the index of the file with the given checksum, or -1.
func (f Feature) FileIndex(checksum string) int {
	return slices.IndexFunc(f.Files, func(file File) bool { return file.Attributes.Checksum == checksum })
}
