// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package version carries the build identity, set via ldflags:
//
//	-X github.com/ManuGH/fem/internal/version.Version=v0.2.0
package version

var (
	Version = "v0.1.0"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the build identity for logs and the version flag.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + Date + ")"
}
