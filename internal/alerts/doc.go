// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package alerts publishes one Watermill message per anomalous event.
//
// Backends:
//   - channel: in-process gochannel pub/sub. Watch mode subscribes with
//     Listen and logs each alert.
//   - nats: core NATS through watermill-nats, for external consumers.
//
// Publishing runs after history has been saved and is best-effort: a
// failed publish is logged and counted in authwatch_alerts_published_total
// but never fails the run.
package alerts
