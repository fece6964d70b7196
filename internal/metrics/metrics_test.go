// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("success"))
	eventsBefore := testutil.ToFloat64(EventsProcessed)

	RecordRun("success", 2*time.Second, 40)

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("success")) - before; got != 1 {
		t.Errorf("runs_total{success} delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(EventsProcessed) - eventsBefore; got != 40 {
		t.Errorf("events_processed delta = %v, want 40", got)
	}
	if testutil.ToFloat64(RunLastSuccess) == 0 {
		t.Error("expected last success timestamp to be set")
	}
}

func TestRecordRun_FailedDoesNotTouchLastSuccess(t *testing.T) {
	RunLastSuccess.Set(0)
	RecordRun("failed", time.Second, 0)
	if got := testutil.ToFloat64(RunLastSuccess); got != 0 {
		t.Errorf("RunLastSuccess = %v, want 0 after failed run", got)
	}
}

func TestRecordDetector(t *testing.T) {
	tests := []struct {
		name       string
		detector   string
		flagged    int
		err        error
		wantFlags  float64
		wantErrors float64
	}{
		{"flags counted", "rules", 3, nil, 3, 0},
		{"error counted, flags ignored", "dbscan", 7, errors.New("boom"), 0, 1},
		{"zero flags", "isolation_forest", 0, nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := testutil.ToFloat64(DetectorFlags.WithLabelValues(tt.detector))
			errs := testutil.ToFloat64(DetectorErrors.WithLabelValues(tt.detector))

			RecordDetector(tt.detector, tt.flagged, time.Millisecond, tt.err)

			if got := testutil.ToFloat64(DetectorFlags.WithLabelValues(tt.detector)) - flags; got != tt.wantFlags {
				t.Errorf("flags delta = %v, want %v", got, tt.wantFlags)
			}
			if got := testutil.ToFloat64(DetectorErrors.WithLabelValues(tt.detector)) - errs; got != tt.wantErrors {
				t.Errorf("errors delta = %v, want %v", got, tt.wantErrors)
			}
		})
	}
}

func TestSetProfileCounts(t *testing.T) {
	SetProfileCounts(12, 4)
	if got := testutil.ToFloat64(Profiles.WithLabelValues("trained")); got != 12 {
		t.Errorf("profiles{trained} = %v, want 12", got)
	}
	if got := testutil.ToFloat64(Profiles.WithLabelValues("deferred")); got != 4 {
		t.Errorf("profiles{deferred} = %v, want 4", got)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	before := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("save"))
	RecordStoreOperation("save", 5*time.Millisecond, nil)
	RecordStoreOperation("save", 5*time.Millisecond, errors.New("disk full"))
	if got := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("save")) - before; got != 1 {
		t.Errorf("store errors delta = %v, want 1", got)
	}
}

func TestRecordAlertPublish(t *testing.T) {
	ok := testutil.ToFloat64(AlertsPublished.WithLabelValues("channel", "ok"))
	bad := testutil.ToFloat64(AlertsPublished.WithLabelValues("channel", "error"))

	RecordAlertPublish("channel", nil)
	RecordAlertPublish("channel", errors.New("closed"))

	if got := testutil.ToFloat64(AlertsPublished.WithLabelValues("channel", "ok")) - ok; got != 1 {
		t.Errorf("ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AlertsPublished.WithLabelValues("channel", "error")) - bad; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/profiles", "200"))
	RecordAPIRequest("GET", "/api/v1/profiles", 200, 3*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/profiles", "200")) - before; got != 1 {
		t.Errorf("api requests delta = %v, want 1", got)
	}
}

func TestConcurrentMetricRecording(t *testing.T) {
	before := testutil.ToFloat64(ParseFallbacks.WithLabelValues("risk_score"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordParseFallback("risk_score")
			RecordModelFit("trained")
			RecordAnomalies(1)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(ParseFallbacks.WithLabelValues("risk_score")) - before; got != 50 {
		t.Errorf("parse fallbacks delta = %v, want 50", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "authwatch_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(2)

	path := filepath.Join(t.TempDir(), "nested", "authwatch.prom")
	if err := writeTextfile(path, reg); err != nil {
		t.Fatalf("writeTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "authwatch_test_total 2") {
		t.Errorf("textfile missing counter: %s", data)
	}
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	if err := WriteTextfile(""); err != nil {
		t.Errorf("WriteTextfile(\"\") error = %v, want nil", err)
	}
}
