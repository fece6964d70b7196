// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package features

import (
	"math"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/history"
)

// NoPrevious marks a row whose user has no earlier event with a valid time.
const NoPrevious = -1.0

// Columns names the feature columns in vector order.
var Columns = []string{
	"hour_deviation",
	"burst",
	"fan_in",
	"numeric_suffix",
	"seconds_since_previous",
}

// Dimensions is the length of a feature vector.
const Dimensions = 5

// Row holds the engineered features of one batch event.
type Row struct {
	HourDeviation        float64 `json:"hour_deviation"`
	Burst                int     `json:"burst"`
	FanIn                int     `json:"fan_in"`
	NumericSuffix        int64   `json:"numeric_suffix"`
	SecondsSincePrevious float64 `json:"seconds_since_previous"`
}

// Vector returns the row as a float slice in Columns order.
func (r *Row) Vector() []float64 {
	return []float64{
		r.HourDeviation,
		float64(r.Burst),
		float64(r.FanIn),
		float64(r.NumericSuffix),
		r.SecondsSincePrevious,
	}
}

// Matrix converts rows to vectors.
func Matrix(rows []Row) [][]float64 {
	out := make([][]float64, len(rows))
	for i := range rows {
		out[i] = rows[i].Vector()
	}
	return out
}

type userSecond struct {
	user   string
	second int64
}

type ipSecond struct {
	ip     string
	second int64
}

// Build computes one Row per batch event, in batch order.
//
// st must already contain the batch: each user's batch events are the tail
// of that user's profile. Hour means and previous-event gaps use the full
// history, so a user's first batch event is compared with its last prior
// event.
//
// Events with an invalid time belong to no one-second bucket, so their burst
// and fan-in are 1.
func Build(batch []event.Event, st *history.State) []Row {
	bursts := make(map[userSecond]int)
	fanIn := make(map[ipSecond]map[string]struct{})
	for i := range batch {
		e := &batch[i]
		sec, ok := e.Second()
		if !ok {
			continue
		}
		bursts[userSecond{e.UserID, sec}]++
		if e.IPAddress == "" {
			continue
		}
		key := ipSecond{e.IPAddress, sec}
		if fanIn[key] == nil {
			fanIn[key] = make(map[string]struct{})
		}
		fanIn[key][e.UserID] = struct{}{}
	}

	ids, byUser := history.GroupByUser(batch)
	timelines := make(map[string]*timeline, len(ids))
	for _, id := range ids {
		var prior []event.Event
		if p, _, ok := st.Lookup(id); ok {
			n := len(p.Events) - len(byUser[id])
			if n > 0 {
				prior = p.Events[:n]
			}
		}
		timelines[id] = newTimeline(prior, byUser[id])
	}

	rows := make([]Row, len(batch))
	for i := range batch {
		e := &batch[i]
		tl := timelines[e.UserID]

		row := Row{
			HourDeviation:        math.Abs(e.Hour() - tl.meanHour),
			Burst:                1,
			FanIn:                1,
			NumericSuffix:        e.NumericSuffix,
			SecondsSincePrevious: tl.next(e),
		}
		if sec, ok := e.Second(); ok {
			row.Burst = bursts[userSecond{e.UserID, sec}]
			if e.IPAddress != "" {
				row.FanIn = len(fanIn[ipSecond{e.IPAddress, sec}])
			}
		}
		rows[i] = row
	}
	return rows
}

// timeline walks one user's batch events in order, tracking the most recent
// valid event time seen so far.
type timeline struct {
	meanHour float64
	last     *event.Event
}

func newTimeline(prior, batch []event.Event) *timeline {
	tl := &timeline{meanHour: event.DefaultHour}

	var sum float64
	var n int
	for _, set := range [][]event.Event{prior, batch} {
		for i := range set {
			if set[i].TimeValid {
				sum += set[i].Hour()
				n++
			}
		}
	}
	if n > 0 {
		tl.meanHour = sum / float64(n)
	}

	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].TimeValid {
			tl.last = &prior[i]
			break
		}
	}
	return tl
}

// next returns the gap from the previous valid event to e and advances.
func (tl *timeline) next(e *event.Event) float64 {
	if !e.TimeValid {
		return NoPrevious
	}
	gap := NoPrevious
	if tl.last != nil {
		gap = e.Time.Sub(tl.last.Time).Seconds()
	}
	tl.last = e
	return gap
}
