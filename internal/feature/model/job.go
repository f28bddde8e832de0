// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Stage tells a job whether it processes requests or flushes notifications.
type Stage string

const (
	StageProcess Stage = "process"
	StageNotify  Stage = "notify"
)

// Job is one scheduled batch of requests of a single kind.
type Job struct {
	ID         string
	Kind       Kind
	Stage      Stage
	RequestIDs []int64
	Priority   Priority
	CreatedAt  time.Time
}
