// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/history"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func ev(user, ip string, at time.Time) event.Event {
	return event.Event{UserID: user, Username: user, IPAddress: ip, Time: at, TimeValid: true}
}

// merged returns a state holding prior followed by batch, as the pipeline
// leaves it before feature engineering.
func merged(prior, batch []event.Event) *history.State {
	st := history.NewState(3)
	ids, byUser := history.GroupByUser(prior)
	for _, id := range ids {
		st.Merge(id, byUser[id])
	}
	ids, byUser = history.GroupByUser(batch)
	for _, id := range ids {
		st.Merge(id, byUser[id])
	}
	return st
}

func TestBuild_Burst(t *testing.T) {
	batch := []event.Event{
		ev("u1", "1.1.1.1", base),
		ev("u1", "1.1.1.1", base.Add(100*time.Millisecond)),
		ev("u1", "1.1.1.1", base.Add(200*time.Millisecond)),
		ev("u1", "1.1.1.1", base.Add(300*time.Millisecond)),
		ev("u2", "2.2.2.2", base),
	}
	rows := Build(batch, merged(nil, batch))

	for i := 0; i < 4; i++ {
		if rows[i].Burst != 4 {
			t.Errorf("rows[%d].Burst = %d, want 4", i, rows[i].Burst)
		}
	}
	if rows[4].Burst != 1 {
		t.Errorf("rows[4].Burst = %d, want 1", rows[4].Burst)
	}
}

func TestBuild_FanIn(t *testing.T) {
	var batch []event.Event
	for _, u := range []string{"a", "b", "c", "d", "e", "f"} {
		batch = append(batch, ev(u, "10.0.0.5", base))
	}
	batch = append(batch, ev("a", "10.0.0.5", base.Add(2*time.Second)))

	rows := Build(batch, merged(nil, batch))
	for i := 0; i < 6; i++ {
		if rows[i].FanIn != 6 {
			t.Errorf("rows[%d].FanIn = %d, want 6", i, rows[i].FanIn)
		}
	}
	if rows[6].FanIn != 1 {
		t.Errorf("rows[6].FanIn = %d, want 1", rows[6].FanIn)
	}
}

func TestBuild_InvalidTimeHasNoBucket(t *testing.T) {
	bad := event.Event{UserID: "u1", IPAddress: "1.1.1.1"}
	batch := []event.Event{ev("u1", "1.1.1.1", base), bad, bad}

	rows := Build(batch, merged(nil, batch))
	for i := 1; i < 3; i++ {
		if rows[i].Burst != 1 || rows[i].FanIn != 1 {
			t.Errorf("rows[%d] = %+v, want burst 1 fan-in 1", i, rows[i])
		}
		if rows[i].SecondsSincePrevious != NoPrevious {
			t.Errorf("rows[%d].SecondsSincePrevious = %v, want -1", i, rows[i].SecondsSincePrevious)
		}
	}
	if rows[0].Burst != 1 {
		t.Errorf("rows[0].Burst = %d, want 1", rows[0].Burst)
	}
}

func TestBuild_SecondsSincePreviousUsesHistory(t *testing.T) {
	prior := []event.Event{
		ev("u1", "1.1.1.1", base.Add(-10*time.Minute)),
		ev("u1", "1.1.1.1", base.Add(-5*time.Minute)),
	}
	batch := []event.Event{
		ev("u1", "1.1.1.1", base),
		ev("u1", "1.1.1.1", base.Add(30*time.Second)),
		ev("u2", "1.1.1.1", base),
	}

	rows := Build(batch, merged(prior, batch))
	if rows[0].SecondsSincePrevious != 300 {
		t.Errorf("rows[0].SecondsSincePrevious = %v, want 300", rows[0].SecondsSincePrevious)
	}
	if rows[1].SecondsSincePrevious != 30 {
		t.Errorf("rows[1].SecondsSincePrevious = %v, want 30", rows[1].SecondsSincePrevious)
	}
	if rows[2].SecondsSincePrevious != NoPrevious {
		t.Errorf("rows[2].SecondsSincePrevious = %v, want -1", rows[2].SecondsSincePrevious)
	}
}

func TestBuild_HourDeviation(t *testing.T) {
	prior := []event.Event{
		ev("u1", "", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)),
		ev("u1", "", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
	batch := []event.Event{ev("u1", "", time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC))}

	rows := Build(batch, merged(prior, batch))
	// mean hour = (8 + 10 + 15) / 3 = 11
	if math.Abs(rows[0].HourDeviation-4) > 1e-9 {
		t.Errorf("HourDeviation = %v, want 4", rows[0].HourDeviation)
	}
}

func TestBuild_NumericSuffix(t *testing.T) {
	e := ev("u1", "", base)
	e.NumericSuffix = 99
	rows := Build([]event.Event{e}, merged(nil, []event.Event{e}))
	if got := rows[0].Vector()[3]; got != 99 {
		t.Errorf("numeric_suffix column = %v, want 99", got)
	}
	if len(rows[0].Vector()) != Dimensions || len(Columns) != Dimensions {
		t.Errorf("vector width = %d, want %d", len(rows[0].Vector()), Dimensions)
	}
}

func TestScaler(t *testing.T) {
	x := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s := FitScaler(x)

	if s.Mean[0] != 3 || s.Mean[1] != 5 {
		t.Errorf("Mean = %v, want [3 5]", s.Mean)
	}
	if s.Std[1] != 1 {
		t.Errorf("constant column Std = %v, want 1", s.Std[1])
	}

	z, err := s.Transform(x)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if z[1][0] != 0 || z[0][1] != 0 {
		t.Errorf("Transform() = %v", z)
	}
	if z[0][0] >= 0 || z[2][0] <= 0 {
		t.Errorf("Transform() sign = %v", z)
	}

	if _, err := s.Transform([][]float64{{1}}); !errors.Is(err, ErrScalerMismatch) {
		t.Errorf("Transform(width 1) error = %v, want ErrScalerMismatch", err)
	}
}
