// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

/*
Package metrics provides Prometheus metrics for Authwatch.

All collectors are registered on the default registry through promauto.
Batch runs can persist them with WriteTextfile for node_exporter's textfile
collector. In watch mode they are served at /metrics.

# Available Metrics

Run Metrics:
  - authwatch_runs_total{status}: success, failed, empty
  - authwatch_run_duration_seconds: histogram
  - authwatch_run_last_success_timestamp: gauge
  - authwatch_events_processed_total: counter

Normalization:
  - authwatch_parse_fallbacks_total{field}

Profiles and Models:
  - authwatch_profiles{set}: trained, deferred
  - authwatch_model_fits_total{outcome}: trained, degenerate_fixed, failed

Detectors:
  - authwatch_detector_flags_total{detector}
  - authwatch_detector_errors_total{detector}
  - authwatch_detector_duration_seconds{detector}
  - authwatch_anomalies_total

Store:
  - authwatch_store_operation_duration_seconds{operation}
  - authwatch_store_operation_errors_total{operation}

Watch Mode:
  - authwatch_alerts_published_total{backend,outcome}
  - authwatch_inbox_files_total{result}
  - authwatch_breaker_state: 0=closed, 1=half-open, 2=open
  - authwatch_api_requests_total{method,route,status_code}
  - authwatch_api_request_duration_seconds{method,route}

# Usage

	start := time.Now()
	err := store.Save(ctx, state)
	metrics.RecordStoreOperation("save", time.Since(start), err)
*/
package metrics
