// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"container/heap"

	"github.com/ManuGH/fem/internal/feature/model"
)

type queued struct {
	job model.Job
	seq uint64
}

// jobQueue orders jobs by priority, then arrival. Not safe for concurrent use.
type jobQueue []queued

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].job.Priority != q[j].job.Priority {
		return q[i].job.Priority < q[j].job.Priority
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *jobQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = queued{}
	*q = old[:n-1]
	return it
}

func (q *jobQueue) push(job model.Job, seq uint64) { heap.Push(q, queued{job: job, seq: seq}) }

func (q *jobQueue) pop() model.Job { return heap.Pop(q).(queued).job }
