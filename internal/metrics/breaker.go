// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fem_circuit_breaker_state",
		Help: "Circuit breaker state by remote (1 for the active state, 0 otherwise)",
	}, []string{"remote", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fem_circuit_breaker_trips_total",
		Help: "Transitions of a circuit breaker to the open state",
	}, []string{"remote", "reason"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState marks state as the active one for remote.
func SetCircuitBreakerState(remote, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(remote, s).Set(value)
	}
}

func RecordCircuitBreakerTrip(remote, reason string) {
	circuitBreakerTrips.WithLabelValues(remote, reason).Inc()
}
