// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"fmt"
)

// Open creates the bus for backend ("memory" or "redis").
func Open(ctx context.Context, backend string, redisCfg RedisConfig) (Bus, error) {
	switch backend {
	case "", "memory":
		return NewMemoryBus(), nil
	case "redis":
		return NewRedisBus(ctx, redisCfg)
	default:
		return nil, fmt.Errorf("unknown bus backend: %s", backend)
	}
}
