// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package model

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/authwatch/internal/event"
)

func TestInvertMatrix(t *testing.T) {
	A := [][]float64{{4, 7}, {2, 6}}
	inv := invertMatrix(A)
	want := [][]float64{{0.6, -0.7}, {-0.2, 0.4}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(inv[i][j]-want[i][j]) > 1e-9 {
				t.Errorf("inv[%d][%d] = %v, want %v", i, j, inv[i][j], want[i][j])
			}
		}
	}

	if got := invertMatrix(nil); got != nil {
		t.Errorf("invertMatrix(nil) = %v, want nil", got)
	}

	singular := invertMatrix([][]float64{{1, 2}, {2, 4}})
	for i := range singular {
		for j := range singular[i] {
			if math.IsNaN(singular[i][j]) {
				t.Fatalf("singular inverse contains NaN at (%d,%d)", i, j)
			}
		}
	}
}

func assertStochasticRows(t *testing.T, h *HMM) {
	t.Helper()
	for i, row := range h.Transitions {
		var sum float64
		allZero := true
		for _, p := range row {
			sum += p
			if p != 0 {
				allZero = false
			}
		}
		if allZero {
			t.Errorf("transition row %d is all zero", i)
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("transition row %d sums to %v, want 1", i, sum)
		}
	}
}

func TestFitHMM_SeparatesClusters(t *testing.T) {
	obs := [][]float64{
		{1, 0}, {1.1, 0}, {0.9, 0}, {1, 0},
		{20, 5}, {20.2, 5}, {19.9, 5}, {20.1, 5},
	}

	h, err := FitHMM(obs, 2, DefaultHMMConfig())
	if err != nil {
		t.Fatalf("FitHMM() error = %v", err)
	}
	assertStochasticRows(t, h)

	path := h.Viterbi(obs)
	if len(path) != len(obs) {
		t.Fatalf("len(path) = %d, want %d", len(path), len(obs))
	}
	for i := 1; i < 4; i++ {
		if path[i] != path[0] {
			t.Errorf("path[%d] = %d, want %d (first cluster)", i, path[i], path[0])
		}
	}
	for i := 5; i < 8; i++ {
		if path[i] != path[4] {
			t.Errorf("path[%d] = %d, want %d (second cluster)", i, path[i], path[4])
		}
	}
	if path[0] == path[4] {
		t.Errorf("clusters share state %d", path[0])
	}
	if h.Iterations < 1 || h.Iterations > 100 {
		t.Errorf("Iterations = %d, want 1..100", h.Iterations)
	}
}

func TestFitHMM_DegenerateRowsFixed(t *testing.T) {
	// A single observation has no transitions at all.
	h, err := FitHMM([][]float64{{3, 1}}, 1, DefaultHMMConfig())
	if err != nil {
		t.Fatalf("FitHMM() error = %v", err)
	}
	if !h.Degenerate() {
		t.Error("Degenerate() = false, want true for single observation")
	}
	assertStochasticRows(t, h)
}

func TestFitHMM_ThreeIdenticalObservations(t *testing.T) {
	obs := [][]float64{{12, 0, 5, 0.1}, {12, 0, 5, 0.1}, {12, 0, 5, 0.1}}
	h, err := FitHMM(obs, 3, DefaultHMMConfig())
	if err != nil {
		t.Fatalf("FitHMM() error = %v", err)
	}
	assertStochasticRows(t, h)
	for i := range h.Variances {
		for d, v := range h.Variances[i] {
			if v < 1e-3 {
				t.Errorf("Variances[%d][%d] = %v, below floor", i, d, v)
			}
		}
	}
}

func TestFitHMM_Errors(t *testing.T) {
	if _, err := FitHMM(nil, 2, DefaultHMMConfig()); !errors.Is(err, ErrNoObservations) {
		t.Errorf("FitHMM(nil) error = %v, want ErrNoObservations", err)
	}
	if _, err := FitHMM([][]float64{{1, 2}, {1}}, 2, DefaultHMMConfig()); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("FitHMM(ragged) error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := FitHMM([][]float64{{math.NaN()}}, 1, DefaultHMMConfig()); err == nil {
		t.Error("FitHMM(NaN) expected error")
	}
}

func TestFitPredictor(t *testing.T) {
	seq := [][]float64{{0}, {1}, {2}, {3}, {4}}
	p, err := FitPredictor(seq, 1e-9)
	if err != nil {
		t.Fatalf("FitPredictor() error = %v", err)
	}
	if p.Pairs != 4 {
		t.Errorf("Pairs = %d, want 4", p.Pairs)
	}
	got := p.Predict([]float64{5})
	if math.Abs(got[0]-6) > 1e-3 {
		t.Errorf("Predict(5) = %v, want ~6", got[0])
	}
	if p.ResidualRMS > 1e-3 {
		t.Errorf("ResidualRMS = %v, want ~0", p.ResidualRMS)
	}
}

func TestFitPredictor_TooShort(t *testing.T) {
	if _, err := FitPredictor([][]float64{{1, 2}}, 0.01); !errors.Is(err, ErrInsufficientPairs) {
		t.Errorf("FitPredictor() error = %v, want ErrInsufficientPairs", err)
	}
}

func makeEvents(hours ...int) []event.Event {
	events := make([]event.Event, len(hours))
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, h := range hours {
		events[i] = event.Event{
			UserID:    "u1",
			Username:  "alice7",
			Time:      base.Add(time.Duration(i)*24*time.Hour + time.Duration(h)*time.Hour),
			TimeValid: true,
			DeviceAge: 10 + i,
			RiskScore: 0.1 * float64(i),
		}
	}
	return events
}

func TestTrainer_Train(t *testing.T) {
	tr := NewTrainer(DefaultTrainerConfig())
	fixed := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	state := tr.Train(context.Background(), "u1", makeEvents(9, 10, 22))
	if !state.Fitted() {
		t.Fatalf("Kind = %q, want fitted", state.Kind)
	}
	if state.Sequence.States != 3 {
		t.Errorf("States = %d, want min(3, 3)", state.Sequence.States)
	}
	if len(state.HiddenStates) != 3 {
		t.Errorf("len(HiddenStates) = %d, want 3", len(state.HiddenStates))
	}
	if state.Predictor == nil {
		t.Error("Predictor = nil, want fitted next-step model")
	}
	if !state.FittedAt.Equal(fixed) {
		t.Errorf("FittedAt = %v, want %v", state.FittedAt, fixed)
	}
	assertStochasticRows(t, state.Sequence)
}

func TestTrainer_BelowThreshold(t *testing.T) {
	tr := NewTrainer(DefaultTrainerConfig())
	state := tr.Train(context.Background(), "u1", makeEvents(9, 10))
	if state.Kind != KindAbsent {
		t.Errorf("Kind = %q, want absent", state.Kind)
	}
}

func TestTrainer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := NewTrainer(DefaultTrainerConfig()).Train(ctx, "u1", makeEvents(1, 2, 3, 4))
	if state.Kind != KindAbsent {
		t.Errorf("Kind = %q, want absent after canceled fit", state.Kind)
	}
}

func TestProject_InvalidTimeUsesDefaultHour(t *testing.T) {
	obs := Project([]event.Event{{TimeValid: false, TimezoneOffset: -5, DeviceAge: 3, RiskScore: 0.5}})
	want := []float64{12, -5, 3, 0.5}
	for i := range want {
		if obs[0][i] != want[i] {
			t.Errorf("obs[0][%d] = %v, want %v", i, obs[0][i], want[i])
		}
	}
}

func TestState_Normalize(t *testing.T) {
	var s State
	s.Normalize()
	if s.Kind != KindAbsent || s.Fitted() {
		t.Errorf("zero State normalized to %q", s.Kind)
	}
}
