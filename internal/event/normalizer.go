// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package event

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
)

// Fallback field labels for authwatch_parse_fallbacks_total.
const (
	FieldEventTime = "event_time"
	FieldTimezone  = "timezone"
	FieldDeviceAge = "device_age"
	FieldRiskScore = "risk_score"
)

// Normalizer converts raw rows into Events. It never fails: unparseable
// values are replaced by defaults and counted.
type Normalizer struct {
	// onFallback is called for every defaulted field. Defaults to the
	// Prometheus counter.
	onFallback func(field string)
}

// NewNormalizer creates a Normalizer that reports fallbacks to metrics.
func NewNormalizer() *Normalizer {
	return &Normalizer{onFallback: metrics.RecordParseFallback}
}

// NormalizeAll normalizes rows in order.
func (n *Normalizer) NormalizeAll(rows []RawRow) []Event {
	events := make([]Event, len(rows))
	for i := range rows {
		events[i] = n.Normalize(rows[i])
	}
	return events
}

// Normalize converts one raw row.
//
//nolint:gocritic // RawRow is passed by value to keep the call site simple
func (n *Normalizer) Normalize(row RawRow) Event {
	identity, suffix, numeric := SplitUsername(row.Username)

	ev := Event{
		UserID:           row.UserID,
		Username:         row.Username,
		IdentityUsername: identity,
		Suffix:           suffix,
		NumericSuffix:    numeric,
		EventType:        row.EventType,
		IPAddress:        row.IPAddress,
		IPCity:           row.City,
		SessionID:        row.SessionID,
		DeviceID:         row.DeviceID,
		Browser:          row.Browser,
	}

	offset, ok := ParseTimezoneOffset(row.Timezone)
	if !ok {
		n.fallback(row, FieldTimezone, row.Timezone)
	}
	ev.TimezoneOffset = offset

	if t, ok := ParseEventTime(row.EventTime, offset); ok {
		ev.Time = t
		ev.TimeText = t.Format(TimeLayout)
		ev.TimeValid = true
	} else {
		ev.TimeText = row.EventTime
		n.fallback(row, FieldEventTime, row.EventTime)
	}

	if age, ok := parseInt(row.DeviceAge); ok {
		ev.DeviceAge = age
	} else {
		n.fallback(row, FieldDeviceAge, row.DeviceAge)
	}

	if risk, err := strconv.ParseFloat(strings.TrimSpace(row.RiskScore), 64); err == nil && !math.IsNaN(risk) && !math.IsInf(risk, 0) {
		ev.RiskScore = risk
	} else {
		n.fallback(row, FieldRiskScore, row.RiskScore)
	}

	return ev
}

func (n *Normalizer) fallback(row RawRow, field, raw string) { //nolint:gocritic // see Normalize
	if n.onFallback != nil {
		n.onFallback(field)
	}
	logging.Debug().
		Int("line", row.Line).
		Str("user_id", row.UserID).
		Str("field", field).
		Str("value", raw).
		Msg("field defaulted during normalization")
}

// SplitUsername splits a username into its non-digit identity and its digit
// suffix. The numeric value is 0 when there are no digits or on overflow.
func SplitUsername(username string) (identity, suffix string, numeric int64) {
	var id, digits strings.Builder
	for _, r := range username {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		} else {
			id.WriteRune(r)
		}
	}
	suffix = digits.String()
	if suffix != "" {
		if v, err := strconv.ParseInt(suffix, 10, 64); err == nil {
			numeric = v
		}
	}
	return id.String(), suffix, numeric
}

// ParseTimezoneOffset parses a whole-hour offset. Integers, decimals
// (truncated toward zero) and "±HH:MM" are accepted.
func ParseTimezoneOffset(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 24 {
			return 0, false
		}
		return int(f), true
	}

	sign := 1
	body := s
	switch s[0] {
	case '+':
		body = s[1:]
	case '-':
		sign = -1
		body = s[1:]
	}
	hh, mm, found := strings.Cut(body, ":")
	if !found {
		return 0, false
	}
	hours, err := strconv.Atoi(hh)
	if err != nil || hours < 0 || hours > 24 {
		return 0, false
	}
	if minutes, err := strconv.Atoi(mm); err != nil || minutes < 0 || minutes > 59 {
		return 0, false
	}
	return sign * hours, true
}

// ParseEventTime parses raw in TimeLayout (month names are matched
// case-insensitively) and adds offsetHours.
func ParseEventTime(raw string, offsetHours int) (time.Time, bool) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t.Add(time.Duration(offsetHours) * time.Hour).UTC(), true
}

// parseInt accepts integers and integral decimals such as "12.0".
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
