// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/authwatch/internal/validation"
)

// Validate checks that required configuration is present and valid.
// Field-level rules come from validate tags; cross-field rules follow.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateAlerts(); err != nil {
		return err
	}

	if err := c.validateWatch(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateAlerts requires a NATS URL when the nats backend is selected.
func (c *Config) validateAlerts() error {
	if !c.Alerts.Enabled || c.Alerts.Backend != "nats" {
		return nil
	}
	if c.Alerts.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required when alerts.backend=nats")
	}
	if !strings.HasPrefix(c.Alerts.NATSURL, "nats://") && !strings.HasPrefix(c.Alerts.NATSURL, "tls://") {
		return fmt.Errorf("NATS_URL must use nats:// or tls:// scheme, got %q", c.Alerts.NATSURL)
	}
	return nil
}

// validateWatch checks the inbox layout. Files are moved between these
// directories, so they must be distinct.
func (c *Config) validateWatch() error {
	if !c.WatchEnabled() {
		return nil
	}
	if c.Watch.ProcessedDir == "" || c.Watch.FailedDir == "" {
		return fmt.Errorf("watch.processed_dir and watch.failed_dir are required when watch.inbox_dir is set")
	}

	dirs := map[string]string{}
	for name, dir := range map[string]string{
		"watch.inbox_dir":     c.Watch.InboxDir,
		"watch.processed_dir": c.Watch.ProcessedDir,
		"watch.failed_dir":    c.Watch.FailedDir,
	} {
		clean := filepath.Clean(dir)
		if other, ok := dirs[clean]; ok {
			return fmt.Errorf("%s and %s must be different directories", other, name)
		}
		dirs[clean] = name
	}
	return nil
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
	"":        true, // empty defaults to json
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
