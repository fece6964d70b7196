// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/store"
)

// ModelOptions controls detector model persistence.
type ModelOptions struct {
	// Store persists fitted models. Nil disables persistence.
	Store ModelStore

	// FeatureSet is the second half of the model key.
	FeatureSet string

	// Reuse loads a stored model instead of fitting when one exists.
	Reuse bool
}

// PendingModel is a fitted model waiting to be written.
type PendingModel struct {
	Meta store.ModelMetadata
	Data []byte
}

// persistence loads models and stages fitted ones. Staged models are only
// written by Commit, after history has been saved.
type persistence struct {
	opts ModelOptions

	pendingMu sync.Mutex
	pending   []PendingModel
}

func (p *persistence) name(detector DetectorType) string {
	return store.ModelName(string(detector), p.opts.FeatureSet)
}

// load decodes a stored model into v. It returns false when reuse is off,
// no store is configured, no model exists, or the model is unreadable.
func (p *persistence) load(ctx context.Context, detector DetectorType, v any) bool {
	if p.opts.Store == nil || !p.opts.Reuse {
		return false
	}
	name := p.name(detector)
	m, err := p.opts.Store.GetModel(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("model", name).Msg("Stored model unusable, refitting")
		return false
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("model", name).Msg("Stored model failed to decode, refitting")
		return false
	}
	logging.Ctx(ctx).Debug().
		Str("model", name).
		Int("version", m.Metadata.Version).
		Msg("Reusing stored detector model")
	return true
}

// stage queues a freshly fitted model for Commit.
func (p *persistence) stage(detector DetectorType, samples int, v any) error {
	if p.opts.Store == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s model: %w", detector, err)
	}
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending = append(p.pending, PendingModel{
		Meta: store.ModelMetadata{
			Name:       p.name(detector),
			Detector:   string(detector),
			FeatureSet: p.opts.FeatureSet,
			TrainedAt:  time.Now().UTC(),
			Samples:    samples,
		},
		Data: data,
	})
	return nil
}

// drain returns and clears the staged models.
func (p *persistence) drain() []PendingModel {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	out := p.pending
	p.pending = nil
	return out
}

// modelStager is implemented by detectors that persist fitted state.
type modelStager interface {
	drain() []PendingModel
}

// quantile returns the q-quantile of values using linear interpolation.
// values is sorted in place.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	pos := q * float64(len(values)-1)
	lo := int(pos)
	if lo >= len(values)-1 {
		return values[len(values)-1]
	}
	frac := pos - float64(lo)
	return values[lo] + frac*(values[lo+1]-values[lo])
}
