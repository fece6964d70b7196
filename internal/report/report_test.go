// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/authwatch/internal/detection"
	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/features"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return records
}

func sampleResults() []detection.Result {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return []detection.Result{
		{
			Event:    event.Event{UserID: "u1", Username: "alice7", IdentityUsername: "alice", NumericSuffix: 7, EventType: "LOGIN_SUCCESS", Time: at, TimeValid: true, IPAddress: "1.1.1.1"},
			Features: features.Row{Burst: 4, FanIn: 1, SecondsSincePrevious: -1},
			Hits:     detection.RuleHits{Burst: true},

			RuleViolation: true,
			Anomaly:       true,
		},
		{
			Event:    event.Event{UserID: "u2", Username: "bob", EventType: "CHANGE_EMAIL_SUCCESS", TimeText: "garbage", IPAddress: "2.2.2.2"},
			Features: features.Row{Burst: 1, FanIn: 1, SecondsSincePrevious: -1},

			AccountChange: true,
		},
	}
}

func TestStem(t *testing.T) {
	tests := map[string]string{
		"/data/AUTH_DATA/March_2024/Mar_01_2024.csv": "Mar_01_2024",
		"auth.log.csv": "auth.log",
		"plain":        "plain",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStagePublish(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := NewWriter(dir)
	results := sampleResults()

	st, err := w.Stage(context.Background(), "Mar_01_2024", results, detection.Rollup(results))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	for _, p := range st.Final.List() {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s visible before Publish", filepath.Base(p))
		}
	}

	if err := st.Publish(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	processed := readCSV(t, st.Final.Processed)
	if len(processed) != 3 {
		t.Fatalf("processed rows = %d, want header + 2", len(processed))
	}
	if processed[0][0] != "user_id" || processed[0][len(processed[0])-1] != "is_anomaly" {
		t.Errorf("processed header = %v", processed[0])
	}
	if processed[1][0] != "u1" || processed[2][0] != "u2" {
		t.Errorf("processed order = %v, %v", processed[1][0], processed[2][0])
	}

	anomalies := readCSV(t, st.Final.Anomalies)
	if len(anomalies) != 2 || anomalies[1][0] != "u1" {
		t.Errorf("anomalies = %v, want only u1", anomalies)
	}

	summary := readCSV(t, st.Final.Summary)
	if len(summary) != 3 {
		t.Fatalf("summary rows = %d, want header + 2", len(summary))
	}
	if summary[0][0] != "user_id" || summary[0][len(summary[0])-1] != "report_date" {
		t.Errorf("summary header = %v", summary[0])
	}
	if summary[1][len(summary[1])-1] != "2024-03-01" {
		t.Errorf("report_date = %q, want 2024-03-01", summary[1][len(summary[1])-1])
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("output dir has %d entries, want 3", len(entries))
	}
}

func TestStageDiscard(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	st, err := w.Stage(context.Background(), "batch", sampleResults(), nil)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	st.Discard()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries after Discard, want 0", len(entries))
	}
}

func TestStage_EmptyAnomalies(t *testing.T) {
	w := NewWriter(t.TempDir())
	results := sampleResults()[1:]

	st, err := w.Stage(context.Background(), "quiet", results, detection.Rollup(results))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if err := st.Publish(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := readCSV(t, st.Final.Anomalies); len(got) != 1 {
		t.Errorf("anomalies rows = %d, want header only", len(got))
	}
}

func TestQuoteLiteral(t *testing.T) {
	if got := quoteLiteral("/tmp/o'brien.csv"); got != "'/tmp/o''brien.csv'" {
		t.Errorf("quoteLiteral() = %s", got)
	}
}
