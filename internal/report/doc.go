// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package report writes run results as CSV through an in-memory DuckDB
// database.
//
// Each run produces three files in the output directory:
//
//	processed_<stem>.csv   every event with features and detector columns
//	anomalies_<stem>.csv   rows where is_anomaly is true
//	summary_<stem>.csv     one row per user
//
// Reports are staged under hidden ".<name>.partial" files first. The
// pipeline publishes them (rename) only after history has been saved and
// discards them otherwise, so a failed run leaves no report behind.
package report
