// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecordProcessedIgnoresEmptyBatches(t *testing.T) {
	before := testutil.ToFloat64(processedTotal.WithLabelValues("CREATION", "success"))
	RecordProcessed("CREATION", "success", 0)
	RecordProcessed("CREATION", "success", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(processedTotal.WithLabelValues("CREATION", "success")))
}

func TestRecordStorageCallOutcome(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{name: "success", outcome: "success"},
		{name: "failure", err: errors.New("boom"), outcome: "failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := storageCallsTotal.WithLabelValues("store", tt.outcome)
			before := testutil.ToFloat64(c)
			RecordStorageCall("store", tt.err)
			assert.Equal(t, before+1, testutil.ToFloat64(c))
		})
	}
}

func TestIncBusDropReasonDefaults(t *testing.T) {
	c := BusDroppedTotal.WithLabelValues("unknown", "unknown")
	before := testutil.ToFloat64(c)
	IncBusDropReason("", "")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("storage_test", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("storage_test", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("storage_test", "closed")))

	SetCircuitBreakerState("storage_test", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("storage_test", "open")))
}
