// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package history holds per-user event histories across runs.
//
// Profiles below the event threshold live in the deferred set and carry
// no model. Once a profile reaches the threshold it moves to the trained
// set and never leaves it. History is append-only; ingesting the same file
// twice doubles the events.
package history
