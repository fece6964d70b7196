// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

// Package event reads raw authentication log exports and normalizes them
// into Events.
//
// Reading is strict: a header that lacks a required column fails the whole
// input with ErrMissingColumns. Normalization is lenient: a value that does
// not parse is replaced by a default (offset 0, device age 0, risk 0, hour
// 12 for invalid times) and counted in authwatch_parse_fallbacks_total.
//
//	rows, err := event.NewReader(cfg.Input.Columns).Read(ctx, f)
//	if err != nil {
//	    return err
//	}
//	events := event.NewNormalizer().NormalizeAll(rows)
package event
