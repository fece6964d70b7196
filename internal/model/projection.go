// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package model

import "github.com/tomtom215/authwatch/internal/event"

// Dimensions is the length of a projected observation vector.
const Dimensions = 4

// Project maps events to observation vectors
// [hour_of_day, timezone_offset, device_age, risk_score].
func Project(events []event.Event) [][]float64 {
	obs := make([][]float64, len(events))
	for i := range events {
		e := &events[i]
		obs[i] = []float64{
			e.Hour(),
			float64(e.TimezoneOffset),
			float64(e.DeviceAge),
			e.RiskScore,
		}
	}
	return obs
}
