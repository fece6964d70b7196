// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package event

import (
	"time"
)

// TimeLayout is the raw export timestamp layout (e.g. 03Mar2024:14:05:09).
const TimeLayout = "02Jan2006:15:04:05"

// DefaultHour is used for the hour of day when an event time is invalid.
const DefaultHour = 12.0

// Event is one normalized authentication log entry. Events are values and
// are never modified after normalization.
type Event struct {
	UserID string `json:"user_id"`

	// Username is the raw account name, e.g. "alice7".
	Username string `json:"username"`

	// IdentityUsername is Username with every digit removed ("alice").
	IdentityUsername string `json:"identity_username"`

	// Suffix is the digits of Username in order ("7"), NumericSuffix their value.
	Suffix        string `json:"suffix,omitempty"`
	NumericSuffix int64  `json:"numeric_suffix"`

	EventType string `json:"event_type"`

	// Time is the event time shifted by TimezoneOffset hours. Zero when
	// TimeValid is false.
	Time time.Time `json:"event_time"`

	// TimeText is Time rendered in TimeLayout, or the raw value when the
	// time could not be parsed.
	TimeText  string `json:"event_time_text"`
	TimeValid bool   `json:"time_valid"`

	TimezoneOffset int `json:"timezone_offset"`

	IPAddress string `json:"ip_address"`
	IPCity    string `json:"ip_city,omitempty"`
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id,omitempty"`
	DeviceAge int    `json:"device_age"`
	Browser   string `json:"browser,omitempty"`

	RiskScore float64 `json:"risk_score"`
}

// Hour returns the hour of day including minutes as a fraction, or
// DefaultHour for events without a valid time.
func (e *Event) Hour() float64 {
	if !e.TimeValid {
		return DefaultHour
	}
	return float64(e.Time.Hour()) + float64(e.Time.Minute())/60
}

// Second returns the event time truncated to the second and whether the
// event has a valid time.
func (e *Event) Second() (int64, bool) {
	if !e.TimeValid {
		return 0, false
	}
	return e.Time.Unix(), true
}

// Date returns the calendar date of the event (YYYY-MM-DD), or "" when the
// time is invalid.
func (e *Event) Date() string {
	if !e.TimeValid {
		return ""
	}
	return e.Time.Format(time.DateOnly)
}
