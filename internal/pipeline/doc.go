// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package pipeline runs one authentication log batch end to end.
//
// A run reads and normalizes the input, merges it into the persisted
// user history, refits the sequence model of every trained user touched
// by the batch, scores every event with the detection engine and writes
// the processed, anomalies and summary reports.
//
// Ordering:
//
//	read -> normalize -> load -> merge/train -> detect -> stage reports
//	     -> save history -> publish reports -> commit detector models
//	     -> alerts -> last-run record
//
// Any failure up to and including the history save leaves both the store
// and the report directory untouched. Steps after the save are
// best-effort and only logged.
package pipeline
