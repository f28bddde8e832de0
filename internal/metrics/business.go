// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scheduledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_scheduled_requests_total",
		Help: "Total number of requests claimed by the scheduler, by kind and stage",
	}, []string{"kind", "stage"})

	dedupSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_scheduler_deferred_total",
		Help: "Requests left delayed by the scheduler, by kind and reason",
	}, []string{"kind", "reason"}) // reason=duplicate_provider|urn_busy

	processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_processed_requests_total",
		Help: "Requests processed by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=success|error|remote|notify

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fem_job_duration_seconds",
		Help:    "Duration of processing jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "stage"})

	jobQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fem_job_queue_depth",
		Help: "Jobs waiting for a worker",
	})

	sweeperAbortedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_sweeper_aborted_total",
		Help: "Requests aborted by the timeout sweeper, by step",
	}, []string{"step"})

	storageCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_storage_calls_total",
		Help: "Storage gateway calls by operation and outcome",
	}, []string{"op", "outcome"})

	disseminationRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fem_dissemination_running",
		Help: "Entities sent to a recipient that still owe an acknowledgement",
	}, []string{"recipient"})

	disseminatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_disseminated_total",
		Help: "Entities delivered to a recipient without a pending acknowledgement",
	}, []string{"recipient"})

	configReloadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_config_reload_total",
		Help: "Configuration reloads by outcome",
	}, []string{"outcome"})
)

func RecordScheduled(kind, stage string, n int) {
	scheduledTotal.WithLabelValues(kind, stage).Add(float64(n))
}

func RecordDeferred(kind, reason string, n int) {
	if n > 0 {
		dedupSkippedTotal.WithLabelValues(kind, reason).Add(float64(n))
	}
}

func RecordProcessed(kind, outcome string, n int) {
	if n > 0 {
		processedTotal.WithLabelValues(kind, outcome).Add(float64(n))
	}
}

func ObserveJob(kind, stage string, d time.Duration) {
	jobDuration.WithLabelValues(kind, stage).Observe(d.Seconds())
}

func SetJobQueueDepth(n int) {
	jobQueueDepth.Set(float64(n))
}

func RecordSweeperAbort(step string) {
	sweeperAbortedTotal.WithLabelValues(step).Inc()
}

func RecordStorageCall(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	storageCallsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordDissemination moves running deliveries of recipient by running and
// acknowledged ones out of it, and counts done deliveries.
func RecordDissemination(recipient string, running, acknowledged, done int) {
	if d := running - acknowledged; d != 0 {
		disseminationRunning.WithLabelValues(recipient).Add(float64(d))
	}
	if done > 0 {
		disseminatedTotal.WithLabelValues(recipient).Add(float64(done))
	}
}

func RecordConfigReload(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	configReloadTotal.WithLabelValues(outcome).Inc()
}
