// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package report

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/authwatch/internal/detection"
)

const createResultsTable = `
	CREATE TABLE results (
		row_id INTEGER PRIMARY KEY,
		user_id VARCHAR,
		username VARCHAR,
		identity_username VARCHAR,
		numeric_suffix BIGINT,
		event_type VARCHAR,
		event_time TIMESTAMP,
		event_time_text VARCHAR,
		timezone_offset INTEGER,
		ip_address VARCHAR,
		ip_city VARCHAR,
		session_id VARCHAR,
		device_id VARCHAR,
		device_age INTEGER,
		browser VARCHAR,
		risk_score DOUBLE,
		hour_deviation DOUBLE,
		burst INTEGER,
		fan_in INTEGER,
		seconds_since_previous DOUBLE,
		rule_burst BOOLEAN,
		rule_fan_in BOOLEAN,
		rule_numeric_guess BOOLEAN,
		rule_brute_force BOOLEAN,
		rule_violation BOOLEAN,
		clustering_outlier BOOLEAN,
		isolation_outlier BOOLEAN,
		account_change BOOLEAN,
		is_anomaly BOOLEAN
	)`

const createSummaryTable = `
	CREATE TABLE summary (
		position INTEGER PRIMARY KEY,
		user_id VARCHAR,
		username VARCHAR,
		first_ip VARCHAR,
		events INTEGER,
		burst INTEGER,
		fan_in INTEGER,
		numeric_guess INTEGER,
		brute_force INTEGER,
		clustering_outliers INTEGER,
		isolation_outliers INTEGER,
		account_changes INTEGER,
		anomalies INTEGER,
		report_date VARCHAR
	)`

const selectProcessed = `
	SELECT user_id, username, identity_username, numeric_suffix, event_type,
		event_time, event_time_text, timezone_offset, ip_address, ip_city,
		session_id, device_id, device_age, browser, risk_score,
		hour_deviation, burst, fan_in, seconds_since_previous,
		rule_burst, rule_fan_in, rule_numeric_guess, rule_brute_force,
		rule_violation, clustering_outlier, isolation_outlier,
		account_change, is_anomaly
	FROM results`

const selectSummary = `
	SELECT user_id, username, first_ip, events, burst, fan_in, numeric_guess,
		brute_force, clustering_outliers, isolation_outliers, account_changes,
		anomalies, report_date
	FROM summary`

func createSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{createResultsTable, createSummaryTable} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create report schema: %w", err)
		}
	}
	return nil
}

// insertResults loads all results in one transaction.
func insertResults(ctx context.Context, db *sql.DB, results []detection.Result) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?
		)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range results {
		r := &results[i]
		e := &r.Event
		var eventTime any
		if e.TimeValid {
			eventTime = e.Time
		}
		if _, err := stmt.ExecContext(ctx,
			i, e.UserID, e.Username, e.IdentityUsername, e.NumericSuffix, e.EventType,
			eventTime, e.TimeText, e.TimezoneOffset, e.IPAddress, e.IPCity,
			e.SessionID, e.DeviceID, e.DeviceAge, e.Browser, e.RiskScore,
			r.Features.HourDeviation, r.Features.Burst, r.Features.FanIn, r.Features.SecondsSincePrevious,
			r.Hits.Burst, r.Hits.FanIn, r.Hits.NumericGuess, r.Hits.BruteForce,
			r.RuleViolation, r.ClusteringOutlier, r.IsolationOutlier,
			r.AccountChange, r.Anomaly,
		); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func insertSummaries(ctx context.Context, db *sql.DB, summaries []detection.Summary) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO summary VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare summary insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range summaries {
		s := &summaries[i]
		if _, err := stmt.ExecContext(ctx,
			i, s.UserID, s.Username, s.FirstIP, s.Events, s.Burst, s.FanIn,
			s.NumericGuess, s.BruteForce, s.ClusteringOutliers, s.IsolationOutliers,
			s.AccountChanges, s.Anomalies, s.ReportDate,
		); err != nil {
			return fmt.Errorf("insert summary %s: %w", s.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary insert: %w", err)
	}
	return nil
}
