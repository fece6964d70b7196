// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/authwatch/internal/config"
)

// NewRouter builds the chi router for the read-only API.
func NewRouter(cfg config.ServerConfig, h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Monitoring endpoints are not rate limited.
	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics)

		r.Get("/profiles", h.ListProfiles)
		r.Get("/profiles/{userID}", h.GetProfile)
		r.Get("/runs/last", h.LastRun)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, &APIError{Code: ErrCodeNotFound, Message: "Route not found"}, nil)
	})
	return r
}

// NewServer returns an *http.Server for the API with conservative timeouts.
func NewServer(cfg *config.Config, h *Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           NewRouter(cfg.Server, h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
