// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ManuGH/fem/internal/feature/model"
	"github.com/ManuGH/fem/internal/fsutil"
)

// ErrOutsideRoot is returned for locations escaping the generator root.
var ErrOutsideRoot = fsutil.ErrOutsideRoot

const maxFeatureFileSize = 16 << 20

// FileGenerator reads a feature document from a file below Root. Locations
// are relative to Root; absolute locations must lie below it.
type FileGenerator struct {
	Root string
}

func (g FileGenerator) Generate(ctx context.Context, location string) (model.Feature, error) {
	if err := ctx.Err(); err != nil {
		return model.Feature{}, err
	}
	path, err := fsutil.Confine(g.Root, location)
	if err != nil {
		return model.Feature{}, fmt.Errorf("read feature %s: %w", location, err)
	}

	info, err := fsutil.IsRegularFile(path)
	if err != nil {
		return model.Feature{}, fmt.Errorf("read feature %s: %w", location, err)
	}
	if info.Size() > maxFeatureFileSize {
		return model.Feature{}, fmt.Errorf("read feature %s: file exceeds %d bytes", location, maxFeatureFileSize)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- confined to Root
	if err != nil {
		return model.Feature{}, fmt.Errorf("read feature %s: %w", location, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f model.Feature
	if err := dec.Decode(&f); err != nil {
		return model.Feature{}, fmt.Errorf("decode feature %s: %w", location, err)
	}
	if f.Geometry.Type == "" {
		f.Geometry = model.Unlocated()
	}
	return f, nil
}
