// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil confines file access below a root directory.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path outside of root")

// Confine resolves target below root. Relative targets are joined to root,
// absolute targets must already lie below it. Symlinks are followed, so a
// link pointing out of root is rejected as well. A missing leaf is allowed;
// the caller's open reports it.
func Confine(root, target string) (string, error) {
	if strings.Contains(target, `\`) {
		return "", fmt.Errorf("%w: backslash in %s", ErrOutsideRoot, target)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}

	path := target
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	path = filepath.Clean(path)
	if !within(absRoot, path) && !within(realRoot, path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}

	realPath, err := resolve(path)
	if err != nil {
		return "", err
	}
	if !within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %s escapes via symlink", ErrOutsideRoot, target)
	}
	return realPath, nil
}

// resolve follows symlinks of path, or of its parent when the leaf does not
// exist.
func resolve(path string) (string, error) {
	realPath, err := filepath.EvalSymlinks(path)
	if err == nil {
		return realPath, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Join(dir, filepath.Base(path)), nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsRegularFile returns an error unless path exists and is a regular file.
func IsRegularFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	return info, nil
}
