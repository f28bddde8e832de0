// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/fem/internal/feature/model"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("files", FileGenerator{Root: t.TempDir()}))
	require.NoError(t, r.Register("other", FileGenerator{}))

	assert.Error(t, r.Register("files", FileGenerator{}))
	assert.Error(t, r.Register("", FileGenerator{}))
	assert.Error(t, r.Register("nil", nil))

	_, ok := r.Resolve("files")
	assert.True(t, ok)
	_, ok = r.Resolve("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"files", "other"}, r.IDs())
}

func TestFileGenerator(t *testing.T) {
	root := t.TempDir()
	doc := `{
  "id": "P1",
  "model": "sample",
  "geometry": {"type": "Point", "coordinates": [1.5, 43.6]},
  "properties": {"name": "first"},
  "files": [{"attributes": {"filename": "a.dat", "checksum": "c1", "algorithm": "MD5", "mimeType": "text/plain"}, "locations": [{"url": "file:///a.dat"}]}]
}`
	require.NoError(t, os.MkdirAll(filepath.Join(root, "in"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "in", "p1.json"), []byte(doc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bare.json"), []byte(`{"id":"P2"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.json"), []byte(`{"id":"P3","color":"red"}`), 0o600))

	g := FileGenerator{Root: root}
	ctx := context.Background()

	f, err := g.Generate(ctx, "in/p1.json")
	require.NoError(t, err)
	assert.Equal(t, "P1", f.ID)
	assert.Equal(t, "Point", f.Geometry.Type)
	assert.Equal(t, "first", f.Properties["name"])
	require.Len(t, f.Files, 1)
	assert.Equal(t, "c1", f.Files[0].Attributes.Checksum)

	f, err = g.Generate(ctx, filepath.Join(root, "bare.json"))
	require.NoError(t, err)
	assert.True(t, f.Geometry.IsUnlocated())
	assert.Equal(t, model.GeometryUnlocated, f.Geometry.Type)

	_, err = g.Generate(ctx, "extra.json")
	assert.ErrorContains(t, err, "decode feature")

	_, err = g.Generate(ctx, "missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = g.Generate(ctx, "../escape.json")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
