// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfine(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.json"), []byte("{}"), 0o600))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.json"), filepath.Join(root, "link.json")))
	require.NoError(t, os.Symlink(filepath.Join(root, "sub", "a.json"), filepath.Join(root, "inner.json")))

	tests := []struct {
		name    string
		target  string
		outside bool
	}{
		{name: "relative", target: "sub/a.json"},
		{name: "absolute below root", target: filepath.Join(root, "sub", "a.json")},
		{name: "missing leaf", target: "sub/missing.json"},
		{name: "symlink inside root", target: "inner.json"},
		{name: "dot dot", target: "../x.json", outside: true},
		{name: "dot dot in the middle", target: "sub/../../x.json", outside: true},
		{name: "absolute outside", target: filepath.Join(outside, "secret.json"), outside: true},
		{name: "symlink escaping root", target: "link.json", outside: true},
		{name: "backslash", target: `sub\a.json`, outside: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Confine(root, tt.target)
			if tt.outside {
				require.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			realRoot, err := filepath.EvalSymlinks(root)
			require.NoError(t, err)
			assert.True(t, within(realRoot, got), got)
		})
	}
}

func TestConfine_MissingDirectory(t *testing.T) {
	_, err := Confine(t.TempDir(), "nope/a.json")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	info, err := IsRegularFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size())

	_, err = IsRegularFile(dir)
	assert.ErrorContains(t, err, "not a regular file")
}
