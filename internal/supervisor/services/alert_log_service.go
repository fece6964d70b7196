// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/authwatch/internal/alerts"
	"github.com/tomtom215/authwatch/internal/logging"
)

// AlertListener consumes published alerts.
//
// Satisfied by *alerts.Publisher.
type AlertListener interface {
	Listen(ctx context.Context, handle func(alerts.Alert)) error
}

// AlertLogService subscribes to the in-process alert topic and writes one
// warning log line per anomalous event.
type AlertLogService struct {
	listener AlertListener
	name     string
}

// NewAlertLogService creates an alert log service.
func NewAlertLogService(listener AlertListener) *AlertLogService {
	return &AlertLogService{listener: listener, name: "alert-log"}
}

// Serve implements suture.Service. A backend without a local subscriber
// stops the service permanently instead of restarting it.
func (s *AlertLogService) Serve(ctx context.Context) error {
	err := s.listener.Listen(ctx, logAlert)
	switch {
	case errors.Is(err, alerts.ErrNoSubscriber):
		logging.Info().Msg("Alert backend has no local subscriber, alert log disabled")
		return suture.ErrDoNotRestart
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return fmt.Errorf("alert listener: %w", err)
	}
	return nil
}

func logAlert(a alerts.Alert) {
	ev := logging.Warn().
		Str("run_id", a.RunID).
		Str("user_id", a.UserID).
		Str("username", a.Username).
		Str("event_type", a.EventType).
		Str("ip_address", a.IPAddress).
		Bool("rule_violation", a.RuleViolation).
		Bool("clustering_outlier", a.ClusteringOutlier).
		Bool("isolation_outlier", a.IsolationOutlier)
	if a.EventTime != nil {
		ev = ev.Time("event_time", *a.EventTime)
	}
	ev.Msg("Anomaly alert")
}

// String implements fmt.Stringer for logging.
func (s *AlertLogService) String() string {
	return s.name
}
