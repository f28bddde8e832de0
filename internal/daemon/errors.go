// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrNoServices is returned when an App is run without services.
	ErrNoServices = errors.New("no services to run")

	// ErrServiceStopped is returned when a service returns while the daemon
	// is still running.
	ErrServiceStopped = errors.New("service stopped unexpectedly")
)
