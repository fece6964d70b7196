// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

/*
Package config provides centralized configuration management for Authwatch.

Configuration is layered with Koanf v2. Later layers override earlier ones:

 1. Built-in defaults (defaultConfig)
 2. YAML file: $AUTHWATCH_CONFIG, else authwatch.yaml, authwatch.yml or
    /etc/authwatch/config.yaml
 3. Environment variables listed in envMappings

Unmapped environment variables are ignored.

# Configuration Structure

  - InputConfig: CSV column names for each event field
  - HistoryConfig: BadgerDB profile store location and options
  - ModelConfig: sequence model iteration limits and ridge penalty
  - DetectionConfig: rule thresholds, contamination, DBSCAN and
    isolation forest settings, model reuse
  - ReportConfig: output directory and raw data root for name resolution
  - WatchConfig, ServerConfig, AlertsConfig: watch mode only
  - LoggingConfig: zerolog level/format and optional rotated file

# Example File

	history:
	  path: /var/lib/authwatch/history
	detection:
	  contamination: 0.05
	  reuse_models: true
	  disabled_detectors: [dbscan]
	report:
	  output_dir: /var/lib/authwatch/reports

# Environment Variables

Frequently used overrides:
  - AUTHWATCH_HISTORY_PATH: profile store directory
  - AUTHWATCH_OUTPUT_DIR: report output directory
  - AUTHWATCH_CONTAMINATION: statistical detector outlier fraction
  - AUTHWATCH_DISABLED_DETECTORS: comma-separated list
  - AUTHWATCH_INBOX_DIR: enables watch mode inputs
  - HTTP_PORT, HTTP_HOST: watch-mode API listen address
  - LOG_LEVEL, LOG_FORMAT, LOG_FILE

# Thread Safety

A loaded *Config is treated as read-only and may be shared freely.
*/
package config
