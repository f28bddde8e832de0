// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_bus_published_total",
		Help: "Total number of messages published, by backend and topic",
	}, []string{"backend", "topic"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_bus_dropped_total",
		Help: "Total number of bus message drops by topic and reason",
	}, []string{"topic", "reason"})

	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fem_outbox_backlog",
		Help: "Number of messages waiting in the publish outbox",
	})

	OutboxRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_outbox_relayed_total",
		Help: "Outbox relay attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

// IncBusPublished records a published message.
func IncBusPublished(backend, topic string) {
	BusPublishedTotal.WithLabelValues(backend, topic).Inc()
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}
