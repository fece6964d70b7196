// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
)

// MaxStates is the upper bound on hidden states per user.
const MaxStates = 3

// TrainerConfig configures per-user model fitting.
type TrainerConfig struct {
	// MinEvents is the history length at which a model is first fit.
	// Default: 3.
	MinEvents int

	HMM HMMConfig

	// RidgeLambda is the next-step regressor L2 penalty.
	// Default: 1e-2.
	RidgeLambda float64
}

// DefaultTrainerConfig returns default trainer configuration.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinEvents:   3,
		HMM:         DefaultHMMConfig(),
		RidgeLambda: 1e-2,
	}
}

// Trainer fits per-user sequence and next-step models.
type Trainer struct {
	cfg TrainerConfig
	now func() time.Time
}

// NewTrainer creates a Trainer.
func NewTrainer(cfg TrainerConfig) *Trainer {
	if cfg.MinEvents <= 0 {
		cfg.MinEvents = 3
	}
	return &Trainer{cfg: cfg, now: time.Now}
}

// Train fits a model over a user's full event history. It never returns an
// error: failures, including panics, are logged and yield an absent state.
func (t *Trainer) Train(ctx context.Context, userID string, events []event.Event) (state State) {
	if len(events) < t.cfg.MinEvents {
		return Absent()
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("user_id", userID).
				Interface("panic", r).
				Msg("model fit panicked")
			metrics.RecordModelFit("failed")
			state = Absent()
		}
	}()

	state, err := t.fit(ctx, events)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("user_id", userID).
			Int("events", len(events)).
			Msg("model fit failed")
		metrics.RecordModelFit("failed")
		return Absent()
	}

	metrics.RecordModelFit(string(state.Kind))
	if state.Kind == KindDegenerateFixed {
		logging.Ctx(ctx).Debug().
			Str("user_id", userID).
			Ints("fixed_rows", state.Sequence.FixedRows).
			Msg("transition rows replaced with uniform")
	}
	return state
}

func (t *Trainer) fit(ctx context.Context, events []event.Event) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}

	obs := Project(events)
	k := min(MaxStates, len(obs))

	hmm, err := FitHMM(obs, k, t.cfg.HMM)
	if err != nil {
		return State{}, fmt.Errorf("fit sequence model: %w", err)
	}

	path := hmm.Viterbi(obs)
	if len(path) != len(obs) {
		return State{}, fmt.Errorf("hidden state path length %d, want %d", len(path), len(obs))
	}

	kind := KindTrained
	if hmm.Degenerate() {
		kind = KindDegenerateFixed
	}

	state := State{
		Kind:         kind,
		Sequence:     hmm,
		HiddenStates: path,
		EventCount:   len(events),
		FittedAt:     t.now().UTC(),
	}

	pred, err := FitPredictor(obs, t.cfg.RidgeLambda)
	switch {
	case err == nil:
		state.Predictor = pred
	case errors.Is(err, ErrInsufficientPairs):
	default:
		return State{}, fmt.Errorf("fit next-step model: %w", err)
	}

	return state, nil
}
