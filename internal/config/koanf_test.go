// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.History.MinEvents != 3 {
		t.Errorf("History.MinEvents = %d, want 3", cfg.History.MinEvents)
	}
	if !cfg.History.SyncWrites {
		t.Error("History.SyncWrites should be true by default")
	}

	if cfg.Detection.BurstThreshold != 3 {
		t.Errorf("Detection.BurstThreshold = %d, want 3", cfg.Detection.BurstThreshold)
	}
	if cfg.Detection.FanInThreshold != 5 {
		t.Errorf("Detection.FanInThreshold = %d, want 5", cfg.Detection.FanInThreshold)
	}
	if cfg.Detection.BruteForceWindow != 60*time.Second {
		t.Errorf("Detection.BruteForceWindow = %v, want 60s", cfg.Detection.BruteForceWindow)
	}
	if cfg.Detection.Contamination != 0.05 {
		t.Errorf("Detection.Contamination = %v, want 0.05", cfg.Detection.Contamination)
	}
	if cfg.Detection.DBSCAN.MinPoints != 5 {
		t.Errorf("Detection.DBSCAN.MinPoints = %d, want 5", cfg.Detection.DBSCAN.MinPoints)
	}
	if cfg.Detection.IsolationForest.Seed != 42 {
		t.Errorf("Detection.IsolationForest.Seed = %d, want 42", cfg.Detection.IsolationForest.Seed)
	}
	if len(cfg.Detection.AccountChangeEvents) != 3 {
		t.Errorf("len(AccountChangeEvents) = %d, want 3", len(cfg.Detection.AccountChangeEvents))
	}

	if cfg.Model.MaxIterations != 100 {
		t.Errorf("Model.MaxIterations = %d, want 100", cfg.Model.MaxIterations)
	}

	if cfg.Input.Columns.DeviceAge != "DATA_S_4" {
		t.Errorf("Input.Columns.DeviceAge = %q, want DATA_S_4", cfg.Input.Columns.DeviceAge)
	}

	if cfg.Alerts.Enabled {
		t.Error("Alerts.Enabled should be false by default")
	}
	if cfg.WatchEnabled() {
		t.Error("WatchEnabled() should be false by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig().Validate() error = %v", err)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AUTHWATCH_HISTORY_PATH", "history.path"},
		{"AUTHWATCH_MIN_EVENTS", "history.min_events"},
		{"AUTHWATCH_CONTAMINATION", "detection.contamination"},
		{"AUTHWATCH_DBSCAN_MIN_POINTS", "detection.dbscan.min_points"},
		{"AUTHWATCH_IFOREST_SEED", "detection.isolation_forest.seed"},
		{"AUTHWATCH_DISABLED_DETECTORS", "detection.disabled_detectors"},
		{"AUTHWATCH_OUTPUT_DIR", "report.output_dir"},
		{"AUTHWATCH_INBOX_DIR", "watch.inbox_dir"},
		{"HTTP_PORT", "server.port"},
		{"NATS_URL", "alerts.nats_url"},
		{"LOG_LEVEL", "logging.level"},
		{"log_format", "logging.format"},

		// Unknown (should return empty)
		{"RANDOM_VAR", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := envTransformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestFindConfigFile verifies config file discovery
func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	t.Run("no config file exists", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})

	t.Run("authwatch.yaml exists", func(t *testing.T) {
		if err := os.WriteFile("authwatch.yaml", []byte("history: {}"), 0o644); err != nil {
			t.Fatalf("Failed to create config file: %v", err)
		}
		defer os.Remove("authwatch.yaml")

		t.Setenv(ConfigPathEnvVar, "")
		if result := findConfigFile(); result != "authwatch.yaml" {
			t.Errorf("findConfigFile() = %q, want authwatch.yaml", result)
		}
	})

	t.Run("AUTHWATCH_CONFIG takes precedence", func(t *testing.T) {
		customPath := filepath.Join(tmpDir, "custom.yaml")
		if err := os.WriteFile(customPath, []byte("history: {}"), 0o644); err != nil {
			t.Fatalf("Failed to create custom config file: %v", err)
		}
		defer os.Remove(customPath)

		t.Setenv(ConfigPathEnvVar, customPath)
		if result := findConfigFile(); result != customPath {
			t.Errorf("findConfigFile() = %q, want %q", result, customPath)
		}
	})

	t.Run("AUTHWATCH_CONFIG with non-existent file", func(t *testing.T) {
		t.Setenv(ConfigPathEnvVar, "/non/existent/config.yaml")
		if result := findConfigFile(); result != "" {
			t.Errorf("findConfigFile() = %q, want empty string", result)
		}
	})
}

// TestLoadEnvVars tests loading configuration from environment variables
func TestLoadEnvVars(t *testing.T) {
	t.Setenv("AUTHWATCH_HISTORY_PATH", "/tmp/aw-history")
	t.Setenv("AUTHWATCH_CONTAMINATION", "0.1")
	t.Setenv("AUTHWATCH_BRUTE_FORCE_WINDOW", "90s")
	t.Setenv("AUTHWATCH_DISABLED_DETECTORS", "dbscan, isolation_forest")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.History.Path != "/tmp/aw-history" {
		t.Errorf("History.Path = %q, want /tmp/aw-history", cfg.History.Path)
	}
	if cfg.Detection.Contamination != 0.1 {
		t.Errorf("Detection.Contamination = %v, want 0.1", cfg.Detection.Contamination)
	}
	if cfg.Detection.BruteForceWindow != 90*time.Second {
		t.Errorf("Detection.BruteForceWindow = %v, want 90s", cfg.Detection.BruteForceWindow)
	}
	want := []string{"dbscan", "isolation_forest"}
	if !reflect.DeepEqual(cfg.Detection.DisabledDetectors, want) {
		t.Errorf("Detection.DisabledDetectors = %v, want %v", cfg.Detection.DisabledDetectors, want)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}

	// Defaults still applied for unset values
	if cfg.Detection.FeatureSet != "auth_v1" {
		t.Errorf("Detection.FeatureSet = %q, want auth_v1 (default)", cfg.Detection.FeatureSet)
	}
}

// TestLoadConfigFile tests loading configuration from a YAML file
func TestLoadConfigFile(t *testing.T) {
	configContent := `
history:
  path: "/srv/authwatch/history"
  min_events: 4

detection:
  contamination: 0.02
  reuse_models: false
  dbscan:
    eps: 1.5

report:
  output_dir: "/srv/authwatch/reports"

logging:
  level: "warn"
`
	configPath := filepath.Join(t.TempDir(), "authwatch.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.History.Path != "/srv/authwatch/history" {
		t.Errorf("History.Path = %q", cfg.History.Path)
	}
	if cfg.History.MinEvents != 4 {
		t.Errorf("History.MinEvents = %d, want 4", cfg.History.MinEvents)
	}
	if cfg.Detection.ReuseModels {
		t.Error("Detection.ReuseModels = true, want false from file")
	}
	if cfg.Detection.DBSCAN.Eps != 1.5 {
		t.Errorf("Detection.DBSCAN.Eps = %v, want 1.5", cfg.Detection.DBSCAN.Eps)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}

	// Defaults still applied for unset values
	if cfg.Detection.DBSCAN.MinPoints != 5 {
		t.Errorf("Detection.DBSCAN.MinPoints = %d, want 5 (default)", cfg.Detection.DBSCAN.MinPoints)
	}
}

// TestLoadEnvOverridesFile tests that env vars override config file
func TestLoadEnvOverridesFile(t *testing.T) {
	configContent := `
history:
  path: "/from/file"
logging:
  level: "warn"
`
	configPath := filepath.Join(t.TempDir(), "authwatch.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}
	t.Setenv("AUTHWATCH_HISTORY_PATH", "/from/env")

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.History.Path != "/from/env" {
		t.Errorf("History.Path = %q, want /from/env (env override)", cfg.History.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn (from file)", cfg.Logging.Level)
	}
}

// TestLoadValidation tests that invalid layered values are rejected
func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		errMsg  string
	}{
		{
			name:    "contamination out of range",
			envVars: map[string]string{"AUTHWATCH_CONTAMINATION": "0.7"},
			errMsg:  "detection.contamination",
		},
		{
			name:    "unknown detector",
			envVars: map[string]string{"AUTHWATCH_DISABLED_DETECTORS": "rules,lstm"},
			errMsg:  "disabled_detectors",
		},
		{
			name:    "feature set with separator",
			envVars: map[string]string{"AUTHWATCH_FEATURE_SET": "auth:v1"},
			errMsg:  "detection.feature_set",
		},
		{
			name:    "invalid log level",
			envVars: map[string]string{"LOG_LEVEL": "verbose"},
			errMsg:  "LOG_LEVEL",
		},
		{
			name:    "invalid port",
			envVars: map[string]string{"HTTP_PORT": "70000"},
			errMsg:  "server.port",
		},
		{
			name: "nats backend without url",
			envVars: map[string]string{
				"AUTHWATCH_ALERTS_ENABLED": "true",
				"AUTHWATCH_ALERTS_BACKEND": "nats",
				"NATS_URL":                 "",
			},
			errMsg: "NATS_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := LoadFile("")
			if err == nil {
				t.Fatal("LoadFile() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("LoadFile() error = %q, want to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestProcessSliceFields_FromFileList(t *testing.T) {
	configContent := `
detection:
  account_change_events:
    - CHANGE_EMAIL_SUCCESS
`
	configPath := filepath.Join(t.TempDir(), "authwatch.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if !reflect.DeepEqual(cfg.Detection.AccountChangeEvents, []string{"CHANGE_EMAIL_SUCCESS"}) {
		t.Errorf("AccountChangeEvents = %v", cfg.Detection.AccountChangeEvents)
	}
}
