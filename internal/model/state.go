// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package model

import "time"

// Kind tags the variant of a State.
type Kind string

const (
	// KindAbsent means no model: below the event threshold or after a failed fit.
	KindAbsent Kind = "absent"

	// KindDegenerateFixed means fitted with one or more uniform replacement rows.
	KindDegenerateFixed Kind = "degenerate_fixed"

	// KindTrained means fitted cleanly.
	KindTrained Kind = "trained"
)

// State is a user's model. Sequence, Predictor and HiddenStates are only
// set when Kind is not KindAbsent. Predictor may be nil even for a fitted
// model.
type State struct {
	Kind         Kind       `json:"kind"`
	Sequence     *HMM       `json:"sequence,omitempty"`
	Predictor    *Predictor `json:"predictor,omitempty"`
	HiddenStates []int      `json:"hidden_states,omitempty"`
	EventCount   int        `json:"event_count"`
	FittedAt     time.Time  `json:"fitted_at"`
}

// Absent returns the empty model state.
func Absent() State {
	return State{Kind: KindAbsent}
}

// Fitted reports whether the state carries a sequence model.
func (s *State) Fitted() bool {
	return s.Kind == KindTrained || s.Kind == KindDegenerateFixed
}

// Normalize maps the zero value to KindAbsent. Used after decoding.
func (s *State) Normalize() {
	if s.Kind == "" {
		s.Kind = KindAbsent
	}
}
