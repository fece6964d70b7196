// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package detection scores batches of authentication events and combines
// the detector flags into one verdict per event.
//
// Detection Architecture:
//
//	features.Row -> Engine -> RuleDetector             -> rule_violation
//	                       -> DBSCANDetector           -> clustering_outlier
//	                       -> IsolationForestDetector  -> isolation_outlier
//	                               |
//	                               v
//	            anomaly = rule_violation OR clustering_outlier OR isolation_outlier
//
// Rules:
//   - burst: more than BurstThreshold events by one user in one second
//   - fan_in: more than FanInThreshold users on one IP in one second
//   - numeric_guess: unknown username whose identity matches a known
//     username with a different digit suffix (john99 vs john42)
//   - brute_force: previous event less than BruteForceWindow ago
//   - account_change: informational only, never part of the verdict
//
// Model Persistence:
// Statistical detectors store their fitted state (scaler included) under
// "<detector>:<feature-set>" through a ModelStore. Fresh fits are staged
// during Run and written by Engine.Commit after history has been saved.
//
// A failing detector never fails the run. Its column stays false for the
// batch and the error is logged and counted.
package detection
