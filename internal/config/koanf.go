// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"authwatch.yaml",
	"authwatch.yml",
	"/etc/authwatch/config.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "AUTHWATCH_CONFIG"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Columns: ColumnsConfig{
				UserID:    "USER_ID",
				Username:  "USER_NAME",
				EventTime: "EVENT_TIME",
				Timezone:  "TIMEZONE",
				IPAddress: "IP_ADDRESS",
				EventType: "EVENT_TYPE",
				SessionID: "SESSION_ID",
				DeviceAge: "DATA_S_4",
				RiskScore: "RISK_SCORE",
				DeviceID:  "DATA_S_1",
				Browser:   "DATA_S_34",
				City:      "IP_CITY",
			},
		},
		History: HistoryConfig{
			Path:        "data/history",
			SyncWrites:  true,
			Compression: true,
			MinEvents:   3,
		},
		Model: ModelConfig{
			MaxIterations: 100,
			Tolerance:     1e-4,
			RidgeLambda:   1e-2,
		},
		Detection: DetectionConfig{
			BurstThreshold:   3,
			FanInThreshold:   5,
			BruteForceWindow: 60 * time.Second,
			Contamination:    0.05,
			ReuseModels:      true,
			FeatureSet:       "auth_v1",
			DBSCAN: DBSCANConfig{
				Eps:       0, // auto from k-distance quantile
				MinPoints: 5,
			},
			IsolationForest: IsolationForestConfig{
				Trees:      100,
				SampleSize: 256,
				Seed:       42,
			},
			AccountChangeEvents: []string{
				"CHANGE_EMAIL_SUCCESS",
				"CHANGE_PASSWORD_SUCCESS",
				"CHANGE_USERNAME_SUCCESS",
			},
			DisabledDetectors: []string{},
		},
		Report: ReportConfig{
			OutputDir:   "reports",
			RawDataRoot: "../Data/Raw_Data",
		},
		Watch: WatchConfig{
			PollInterval:    30 * time.Second,
			BreakerFailures: 3,
			BreakerTimeout:  5 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8490,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Alerts: AlertsConfig{
			Enabled: false,
			Backend: "channel",
			NATSURL: "nats://127.0.0.1:4222",
			Topic:   "authwatch.anomalies",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any mapped setting
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// AUTHWATCH_HISTORY_PATH -> history.path, LOG_LEVEL -> logging.level
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"detection.account_change_events",
	"detection.disabled_detectors",
}

// processSliceFields converts comma-separated env values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// History store
	"authwatch_history_path":        "history.path",
	"authwatch_history_sync_writes": "history.sync_writes",
	"authwatch_history_compression": "history.compression",
	"authwatch_min_events":          "history.min_events",

	// Model
	"authwatch_model_max_iterations": "model.max_iterations",
	"authwatch_model_tolerance":      "model.tolerance",
	"authwatch_model_ridge_lambda":   "model.ridge_lambda",

	// Detection
	"authwatch_burst_threshold":       "detection.burst_threshold",
	"authwatch_fan_in_threshold":      "detection.fan_in_threshold",
	"authwatch_brute_force_window":    "detection.brute_force_window",
	"authwatch_contamination":         "detection.contamination",
	"authwatch_reuse_models":          "detection.reuse_models",
	"authwatch_feature_set":           "detection.feature_set",
	"authwatch_dbscan_eps":            "detection.dbscan.eps",
	"authwatch_dbscan_min_points":     "detection.dbscan.min_points",
	"authwatch_iforest_trees":         "detection.isolation_forest.trees",
	"authwatch_iforest_sample_size":   "detection.isolation_forest.sample_size",
	"authwatch_iforest_seed":          "detection.isolation_forest.seed",
	"authwatch_account_change_events": "detection.account_change_events",
	"authwatch_disabled_detectors":    "detection.disabled_detectors",

	// Reports and metrics
	"authwatch_output_dir":       "report.output_dir",
	"authwatch_raw_data_root":    "report.raw_data_root",
	"authwatch_metrics_textfile": "metrics.textfile_path",

	// Watch mode
	"authwatch_inbox_dir":        "watch.inbox_dir",
	"authwatch_processed_dir":    "watch.processed_dir",
	"authwatch_failed_dir":       "watch.failed_dir",
	"authwatch_poll_interval":    "watch.poll_interval",
	"authwatch_breaker_failures": "watch.breaker_failures",
	"authwatch_breaker_timeout":  "watch.breaker_timeout",

	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Alerts
	"authwatch_alerts_enabled": "alerts.enabled",
	"authwatch_alerts_backend": "alerts.backend",
	"authwatch_alerts_topic":   "alerts.topic",
	"nats_url":                 "alerts.nats_url",

	// Logging
	"log_level":       "logging.level",
	"log_format":      "logging.format",
	"log_caller":      "logging.caller",
	"log_file":        "logging.file",
	"log_max_size_mb": "logging.max_size_mb",
	"log_max_backups": "logging.max_backups",
	"log_max_age":     "logging.max_age_days",
	"log_compress":    "logging.compress",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so unrelated environment
// variables never leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
