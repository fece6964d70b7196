// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Pipeline runs (status, duration, event counts)
// - Normalization fallbacks
// - Profile store operations (BadgerDB)
// - Model fitting and detector outcomes
// - Alert publishing and the watch-mode API

var (
	// Run Metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"}, // "success", "failed", "empty"
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authwatch_run_duration_seconds",
			Help:    "Duration of complete pipeline runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	RunLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authwatch_run_last_success_timestamp",
			Help: "Unix timestamp of the last successful run",
		},
	)

	EventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authwatch_events_processed_total",
			Help: "Total number of normalized events scored",
		},
	)

	// Normalization Metrics
	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_parse_fallbacks_total",
			Help: "Total number of field values replaced by a default during normalization",
		},
		[]string{"field"}, // "event_time", "timezone", "device_age", "risk_score"
	)

	// Profile Metrics
	Profiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "authwatch_profiles",
			Help: "Number of user profiles in the history store by set",
		},
		[]string{"set"}, // "trained", "deferred"
	)

	ModelFits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_model_fits_total",
			Help: "Total number of per-user sequence model fits by outcome",
		},
		[]string{"outcome"}, // "trained", "degenerate_fixed", "failed"
	)

	// Detector Metrics
	DetectorFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_detector_flags_total",
			Help: "Total number of events flagged per detector",
		},
		[]string{"detector"},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_detector_errors_total",
			Help: "Total number of detector failures (batch scored as not anomalous)",
		},
		[]string{"detector"},
	)

	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authwatch_detector_duration_seconds",
			Help:    "Time spent scoring one batch per detector",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"detector"},
	)

	AnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authwatch_anomalies_total",
			Help: "Total number of events with a final anomaly verdict",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authwatch_store_operation_duration_seconds",
			Help:    "Duration of history store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "load", "save", "get_model", "put_model", "list"
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_store_operation_errors_total",
			Help: "Total number of failed history store operations",
		},
		[]string{"operation"},
	)

	// Alert Metrics
	AlertsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_alerts_published_total",
			Help: "Total number of anomaly alerts published by outcome",
		},
		[]string{"backend", "outcome"}, // outcome: "ok", "error"
	)

	// Watch Mode Metrics
	InboxFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_inbox_files_total",
			Help: "Total number of inbox files handled by result",
		},
		[]string{"result"}, // "processed", "failed", "deferred"
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authwatch_breaker_state",
			Help: "Inbox circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authwatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authwatch_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// RecordRun records the outcome of a pipeline run.
func RecordRun(status string, duration time.Duration, events int) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(duration.Seconds())
	EventsProcessed.Add(float64(events))
	if status == "success" {
		RunLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordParseFallback records a normalization default for field.
func RecordParseFallback(field string) {
	ParseFallbacks.WithLabelValues(field).Inc()
}

// SetProfileCounts updates the trained and deferred profile gauges.
func SetProfileCounts(trained, deferred int) {
	Profiles.WithLabelValues("trained").Set(float64(trained))
	Profiles.WithLabelValues("deferred").Set(float64(deferred))
}

// RecordModelFit records one per-user model fit outcome.
func RecordModelFit(outcome string) {
	ModelFits.WithLabelValues(outcome).Inc()
}

// RecordDetector records a detector pass. A non-nil err counts as a detector
// failure and flagged is ignored.
func RecordDetector(detector string, flagged int, duration time.Duration, err error) {
	DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	if err != nil {
		DetectorErrors.WithLabelValues(detector).Inc()
		return
	}
	DetectorFlags.WithLabelValues(detector).Add(float64(flagged))
}

// RecordAnomalies adds n final anomaly verdicts.
func RecordAnomalies(n int) {
	AnomaliesTotal.Add(float64(n))
}

// RecordStoreOperation records a history store operation metric.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAlertPublish records an alert publish attempt.
func RecordAlertPublish(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AlertsPublished.WithLabelValues(backend, outcome).Inc()
}

// RecordInboxFile records how an inbox file was handled.
func RecordInboxFile(result string) {
	InboxFiles.WithLabelValues(result).Inc()
}

// SetBreakerState records the numeric circuit breaker state.
func SetBreakerState(state int) {
	BreakerState.Set(float64(state))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for collection by node_exporter's textfile collector.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	return writeTextfile(path, prometheus.DefaultGatherer)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
