// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package api serves the read-only watch-mode HTTP API using chi.
//
// Routes:
//
//	GET /healthz                    store reachability and uptime
//	GET /metrics                    Prometheus exposition
//	GET /api/v1/profiles            paginated summaries (limit 1-1000, offset >= 0)
//	GET /api/v1/profiles/{userID}   one profile's set, event count and model kind
//	GET /api/v1/runs/last           the most recent run record
//
// /api/v1 routes are rate limited per client IP with go-chi/httprate.
// Every JSON response uses the APIResponse envelope. Raw events are never
// returned.
package api
