// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (authwatch.yaml or AUTHWATCH_CONFIG)
//  3. Environment Variables: override any mapped setting
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Input     InputConfig     `koanf:"input"`
	History   HistoryConfig   `koanf:"history"`
	Model     ModelConfig     `koanf:"model"`
	Detection DetectionConfig `koanf:"detection"`
	Report    ReportConfig    `koanf:"report"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Watch     WatchConfig     `koanf:"watch"`  // Optional: supervised inbox mode
	Server    ServerConfig    `koanf:"server"` // Optional: read-only API in watch mode
	Alerts    AlertsConfig    `koanf:"alerts"` // Optional: anomaly publishing
	Logging   LoggingConfig   `koanf:"logging"`
}

// InputConfig describes the raw log layout.
type InputConfig struct {
	Columns ColumnsConfig `koanf:"columns"`
}

// ColumnsConfig maps logical event fields to CSV header names.
// Header matching is case-insensitive. Empty optional columns are skipped.
type ColumnsConfig struct {
	UserID    string `koanf:"user_id" validate:"required"`
	Username  string `koanf:"username" validate:"required"`
	EventTime string `koanf:"event_time" validate:"required"`
	Timezone  string `koanf:"timezone" validate:"required"`
	IPAddress string `koanf:"ip_address" validate:"required"`
	EventType string `koanf:"event_type" validate:"required"`
	SessionID string `koanf:"session_id" validate:"required"`
	DeviceAge string `koanf:"device_age" validate:"required"`
	RiskScore string `koanf:"risk_score" validate:"required"`

	DeviceID string `koanf:"device_id"`
	Browser  string `koanf:"browser"`
	City     string `koanf:"city"`
}

// HistoryConfig configures the persisted profile store (BadgerDB).
type HistoryConfig struct {
	// Path is the BadgerDB directory holding profiles and detector models.
	Path string `koanf:"path" validate:"required"`

	// SyncWrites fsyncs every commit. A failed save aborts the run, so this
	// defaults to true.
	SyncWrites bool `koanf:"sync_writes"`

	// Compression enables Snappy block compression.
	Compression bool `koanf:"compression"`

	// MinEvents is the number of events a user needs before a model is fit.
	// Default: 3
	MinEvents int `koanf:"min_events" validate:"min=1"`
}

// ModelConfig tunes the per-user sequence model trainer.
type ModelConfig struct {
	MaxIterations int     `koanf:"max_iterations" validate:"min=1"`
	Tolerance     float64 `koanf:"tolerance" validate:"gt=0"`
	RidgeLambda   float64 `koanf:"ridge_lambda" validate:"gte=0"`
}

// DetectionConfig holds rule thresholds and statistical detector settings.
type DetectionConfig struct {
	// BurstThreshold flags users with more than this many events in one second.
	BurstThreshold int `koanf:"burst_threshold" validate:"min=1"`

	// FanInThreshold flags IPs used by more than this many distinct users in one second.
	FanInThreshold int `koanf:"fan_in_threshold" validate:"min=1"`

	// BruteForceWindow flags events closer than this to the user's previous event.
	BruteForceWindow time.Duration `koanf:"brute_force_window" validate:"gt=0"`

	// Contamination is the expected outlier fraction for statistical detectors.
	Contamination float64 `koanf:"contamination" validate:"gt=0,lt=0.5"`

	// ReuseModels loads persisted detector models when present.
	ReuseModels bool `koanf:"reuse_models"`

	// FeatureSet names the feature projection; part of the persisted model key.
	FeatureSet string `koanf:"feature_set" validate:"required,identifier"`

	DBSCAN          DBSCANConfig          `koanf:"dbscan"`
	IsolationForest IsolationForestConfig `koanf:"isolation_forest"`

	// AccountChangeEvents are event types reported as account changes.
	AccountChangeEvents []string `koanf:"account_change_events"`

	// DisabledDetectors lists detector types to skip (rules, dbscan, isolation_forest).
	DisabledDetectors []string `koanf:"disabled_detectors" validate:"dive,oneof=rules dbscan isolation_forest"`
}

// DBSCANConfig configures the density clustering detector.
type DBSCANConfig struct {
	// Eps is the neighborhood radius in standardized units. 0 selects it from
	// the k-distance distribution using Contamination.
	Eps float64 `koanf:"eps" validate:"gte=0"`

	// MinPoints is the neighborhood size for a core point.
	MinPoints int `koanf:"min_points" validate:"min=2"`
}

// IsolationForestConfig configures the isolation forest detector.
type IsolationForestConfig struct {
	Trees      int   `koanf:"trees" validate:"min=1"`
	SampleSize int   `koanf:"sample_size" validate:"min=2"`
	Seed       int64 `koanf:"seed"`
}

// ReportConfig configures output files.
type ReportConfig struct {
	// OutputDir receives processed, anomalies and summary CSV files.
	OutputDir string `koanf:"output_dir" validate:"required"`

	// RawDataRoot is the base directory for Month_Day_Year.csv name resolution.
	RawDataRoot string `koanf:"raw_data_root"`
}

// MetricsConfig configures metrics export in batch mode.
type MetricsConfig struct {
	// TextfilePath, when set, receives a Prometheus text exposition after each run.
	TextfilePath string `koanf:"textfile_path"`
}

// WatchConfig configures the supervised inbox mode.
type WatchConfig struct {
	InboxDir     string        `koanf:"inbox_dir"`
	ProcessedDir string        `koanf:"processed_dir"`
	FailedDir    string        `koanf:"failed_dir"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// BreakerFailures is the number of consecutive failed runs that opens the breaker.
	BreakerFailures uint32 `koanf:"breaker_failures" validate:"min=1"`

	// BreakerTimeout is how long the breaker stays open before a trial run.
	BreakerTimeout time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// ServerConfig configures the watch-mode HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// AlertsConfig configures anomaly publishing through Watermill.
type AlertsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Backend string `koanf:"backend" validate:"oneof=channel nats"`
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic" validate:"required"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false (default: false)
//   - LOG_FILE: path of a rotated log file (default: none)
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Caller     bool   `koanf:"caller"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
	Compress   bool   `koanf:"compress"`
}

// WatchEnabled reports whether an inbox directory is configured.
func (c *Config) WatchEnabled() bool {
	return c.Watch.InboxDir != ""
}

// ServerAddr returns the host:port listen address.
func (c *Config) ServerAddr() string {
	return joinHostPort(c.Server.Host, c.Server.Port)
}
