// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the feature orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No request ids or urns in labels.

var (
	// AdmissionTotal counts admission decisions by kind and decision (granted/denied).
	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_admission_total",
		Help: "Total number of admission decisions, by request kind and decision.",
	}, []string{"kind", "decision"})

	// AdmissionBatchSize observes the number of events handed to one admission call.
	AdmissionBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fem_admission_batch_size",
		Help:    "Number of events per admission call.",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
	})
)

// RecordAdmission increments the admission counter.
func RecordAdmission(kind, decision string) {
	AdmissionTotal.WithLabelValues(kind, decision).Inc()
}
