// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ops serves the operational HTTP surface of the daemon: probes,
// Prometheus metrics and the retry/delete endpoints for errored requests.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/fem/internal/feature/processor"
	"github.com/ManuGH/fem/internal/feature/store"
	"github.com/ManuGH/fem/internal/health"
	"github.com/ManuGH/fem/internal/log"
)

const maxIDsPerCall = 10000

// RequestAdmin retries or deletes errored requests.
type RequestAdmin interface {
	Retry(ctx context.Context, ids []int64) (int, error)
	Delete(ctx context.Context, ids []int64) (int, error)
}

// Deps are the handlers the router exposes.
type Deps struct {
	Health  *health.Manager
	Admin   RequestAdmin
	Metrics http.Handler
	// RateLimit is the number of admin calls per minute and client; zero
	// disables the limit.
	RateLimit int
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// NewRouter builds the ops handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(tracing)
	r.Use(instrument)

	r.Get("/healthz", d.Health.ServeHealth)
	r.Get("/readyz", d.Health.ServeReady)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	if d.Admin != nil {
		r.Route("/requests", func(r chi.Router) {
			if d.RateLimit > 0 {
				r.Use(rateLimit(d.RateLimit))
			}
			r.Post("/retry", adminHandler("retry", d.Admin.Retry))
			r.Post("/delete", adminHandler("delete", d.Admin.Delete))
		})
	}
	return r
}

func adminHandler(op string, call func(context.Context, []int64) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "ops")

		var body idsRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		if len(body.IDs) == 0 || len(body.IDs) > maxIDsPerCall {
			writeError(w, http.StatusBadRequest, "invalid_ids", "ids must hold between 1 and 10000 request ids")
			return
		}

		n, err := call(r.Context(), body.IDs)
		if err != nil {
			status := statusOf(err)
			if status == http.StatusInternalServerError {
				logger.Error().Err(err).Str(log.FieldEvent, "ops."+op+"_failed").Int(log.FieldCount, len(body.IDs)).Msg("request " + op + " failed")
			}
			writeError(w, status, op+"_rejected", err.Error())
			return
		}

		logger.Info().Str(log.FieldEvent, "ops."+op).Int(log.FieldCount, n).Msg("errored requests " + op + " done")
		writeJSON(w, http.StatusOK, countResponse{Count: n})
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, processor.ErrNotRetryable), errors.Is(err, processor.ErrNotDeletable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
