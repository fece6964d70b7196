// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package logging provides centralized zerolog-based structured logging for Authwatch.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("input", path).Msg("run started")
//	logging.Err(err).Msg("history save failed")
//
//	// Run-scoped logging
//	ctx = logging.ContextWithNewRunID(ctx)
//	logging.Ctx(ctx).Info().Int("users", n).Msg("profiles merged")
//
// # File Output
//
// Setting Config.File.Path duplicates every log line into a file rotated by
// lumberjack. Console format only affects the primary writer.
//
// # Supervisor Integration
//
// NewSlogLogger returns an *slog.Logger backed by zerolog for sutureslog.
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
package logging
