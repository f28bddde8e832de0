// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
)

// Open creates a Store for the configured backend. target is a file path for
// sqlite and a DSN for postgres; it is ignored for memory.
func Open(ctx context.Context, backend, target string, opts ...Option) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	var (
		s   Store
		err error
	)
	switch backend {
	case "memory":
		s = NewMemoryStore(opts...)
	case "sqlite":
		s, err = OpenSQLite(ctx, target, opts...)
	case "postgres":
		s, err = OpenPostgres(ctx, target, opts...)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
	if err != nil {
		return nil, err
	}
	return NewInstrumentedStore(s, backend), nil
}
