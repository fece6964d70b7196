// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package model fits per-user behavioral models.
//
// Each event is projected to [hour, timezone offset, device age, risk].
// A user's sequence is modelled with a Gaussian HMM (diagonal covariance,
// min(3, n) states) fit by Baum-Welch, and a ridge next-step regressor.
// The result is a State tagged absent, degenerate_fixed or trained.
package model
