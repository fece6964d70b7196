// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package features turns a batch of normalized events into the numeric rows
// consumed by the rule engine and the statistical detectors.
//
// Columns:
//   - hour_deviation: |event hour - user's mean hour over valid history|
//   - burst: events by the same user in the same one-second bucket
//   - fan_in: distinct users on the same IP in the same one-second bucket
//   - numeric_suffix: digits trailing the username (0 when absent)
//   - seconds_since_previous: gap to the user's previous valid event, or -1
//
// Scaler standardizes rows before statistical scoring.
package features
