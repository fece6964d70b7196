// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/authwatch/internal/config"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
)

// Engine runs the registered detectors over a batch and combines their flags.
type Engine struct {
	detectors map[DetectorType]Detector
	order     []DetectorType
	models    ModelStore
	mu        sync.RWMutex
}

// Outcome is the result of one engine run.
type Outcome struct {
	Results []Result

	// Flagged counts true flags per detector.
	Flagged map[DetectorType]int

	// Errors holds the detectors that failed. Their flags are all false.
	Errors map[DetectorType]error
}

// Anomalies returns the number of anomalous results.
func (o *Outcome) Anomalies() int {
	n := 0
	for i := range o.Results {
		if o.Results[i].Anomaly {
			n++
		}
	}
	return n
}

// NewEngine creates an engine. models receives staged detector models on
// Commit and may be nil.
func NewEngine(models ModelStore) *Engine {
	return &Engine{
		detectors: make(map[DetectorType]Detector),
		models:    models,
	}
}

// NewEngineFromConfig builds an engine with the rule, DBSCAN and isolation
// forest detectors configured from cfg. retrain ignores stored models but
// still saves the fresh fits.
func NewEngineFromConfig(cfg *config.DetectionConfig, models ModelStore, retrain bool) *Engine {
	e := NewEngine(models)
	modelOpts := ModelOptions{
		Store:      models,
		FeatureSet: cfg.FeatureSet,
		Reuse:      cfg.ReuseModels && !retrain,
	}

	e.RegisterDetector(NewRuleDetector(RuleConfig{
		BurstThreshold:      cfg.BurstThreshold,
		FanInThreshold:      cfg.FanInThreshold,
		BruteForceWindow:    cfg.BruteForceWindow,
		AccountChangeEvents: cfg.AccountChangeEvents,
	}))
	e.RegisterDetector(NewDBSCANDetector(modelOpts,
		WithEps(cfg.DBSCAN.Eps),
		WithMinPoints(cfg.DBSCAN.MinPoints),
		WithDBSCANContamination(cfg.Contamination),
	))
	e.RegisterDetector(NewIsolationForestDetector(modelOpts,
		WithTrees(cfg.IsolationForest.Trees),
		WithSampleSize(cfg.IsolationForest.SampleSize),
		WithContamination(cfg.Contamination),
		WithSeed(cfg.IsolationForest.Seed),
	))

	for _, name := range cfg.DisabledDetectors {
		if err := e.SetDetectorEnabled(DetectorType(name), false); err != nil {
			logging.Warn().Err(err).Msg("Ignoring unknown disabled detector")
		}
	}
	return e
}

// RegisterDetector adds a detector to the engine, replacing any detector of
// the same type.
func (e *Engine) RegisterDetector(detector Detector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := detector.Type()
	if _, exists := e.detectors[t]; !exists {
		e.order = append(e.order, t)
	}
	e.detectors[t] = detector
	logging.Debug().Str("detector", string(t)).Msg("registered detector")
}

// GetDetector returns the detector registered for t.
func (e *Engine) GetDetector(t DetectorType) (Detector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.detectors[t]
	return d, ok
}

// SetDetectorEnabled enables or disables a registered detector.
func (e *Engine) SetDetectorEnabled(t DetectorType, enabled bool) error {
	d, ok := e.GetDetector(t)
	if !ok {
		return fmt.Errorf("detector not found: %s", t)
	}
	d.SetEnabled(enabled)
	return nil
}

// ListDetectors returns the registered detectors in registration order.
func (e *Engine) ListDetectors() []Detector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Detector, 0, len(e.order))
	for _, t := range e.order {
		out = append(out, e.detectors[t])
	}
	return out
}

// detectorRun is the outcome of one detector on one batch.
type detectorRun struct {
	flags []bool
	hits  []RuleHits
	err   error
}

// Run scores the batch with every enabled detector and combines the flags.
//
// Detectors score concurrently over the read-only batch. A detector that
// fails or panics contributes all-false flags; its error is logged, counted
// and reported in Outcome.Errors. Run itself only fails when ctx is done.
func (e *Engine) Run(ctx context.Context, batch *Batch) (*Outcome, error) {
	if len(batch.Rows) != batch.Len() {
		return nil, fmt.Errorf("batch has %d rows for %d events", len(batch.Rows), batch.Len())
	}

	detectors := e.ListDetectors()
	runs := make([]detectorRun, len(detectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		if !d.Enabled() {
			continue
		}
		g.Go(func() error {
			runs[i] = runDetector(gctx, d, batch)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Outcome{
		Results: make([]Result, batch.Len()),
		Flagged: make(map[DetectorType]int),
		Errors:  make(map[DetectorType]error),
	}
	for i := range batch.Events {
		out.Results[i] = Result{Event: batch.Events[i], Features: batch.Rows[i]}
	}

	var rules *RuleDetector
	for i, d := range detectors {
		if r, ok := d.(*RuleDetector); ok {
			rules = r
		}
		run := runs[i]
		if run.err != nil {
			out.Errors[d.Type()] = run.err
			logging.Ctx(ctx).Error().Err(run.err).Str("detector", string(d.Type())).Msg("Detector failed, flags cleared for batch")
			continue
		}
		if run.flags == nil {
			continue
		}
		for j, flag := range run.flags {
			if !flag {
				continue
			}
			out.Flagged[d.Type()]++
			res := &out.Results[j]
			switch d.Type() {
			case DetectorRules:
				res.RuleViolation = true
			case DetectorDBSCAN:
				res.ClusteringOutlier = true
			case DetectorIsolationForest:
				res.IsolationOutlier = true
			}
		}
		if run.hits != nil {
			for j := range run.hits {
				out.Results[j].Hits = run.hits[j]
			}
		}
	}

	for i := range out.Results {
		res := &out.Results[i]
		if rules != nil {
			res.AccountChange = rules.AccountChange(res.Event.EventType)
		}
		res.Anomaly = Combine(res.RuleViolation, res.ClusteringOutlier, res.IsolationOutlier)
	}

	metrics.RecordAnomalies(out.Anomalies())
	return out, nil
}

// runDetector scores one detector, converting panics and malformed output
// into errors and recording metrics.
func runDetector(ctx context.Context, d Detector, batch *Batch) (run detectorRun) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			run = detectorRun{err: fmt.Errorf("%s: panic: %v", d.Type(), r)}
		}
		flagged := 0
		for _, f := range run.flags {
			if f {
				flagged++
			}
		}
		metrics.RecordDetector(string(d.Type()), flagged, time.Since(start), run.err)
	}()

	if rd, ok := d.(*RuleDetector); ok {
		run.hits = rd.Evaluate(batch)
		run.flags = make([]bool, len(run.hits))
		for i := range run.hits {
			run.flags[i] = run.hits[i].Any()
		}
		return run
	}

	flags, err := d.Score(ctx, batch)
	if err != nil {
		return detectorRun{err: fmt.Errorf("%s: %w", d.Type(), err)}
	}
	if len(flags) != batch.Len() {
		return detectorRun{err: fmt.Errorf("%s: returned %d flags for %d rows", d.Type(), len(flags), batch.Len())}
	}
	run.flags = flags
	return run
}

// Commit writes models staged during Run. Call it after history has been
// saved. Failures are logged and returned; nothing is retried.
func (e *Engine) Commit(ctx context.Context) error {
	var firstErr error
	for _, d := range e.ListDetectors() {
		stager, ok := d.(modelStager)
		if !ok {
			continue
		}
		for _, pm := range stager.drain() {
			if e.models == nil {
				continue
			}
			meta, err := e.models.PutModel(ctx, pm.Meta, pm.Data)
			if err != nil {
				logging.Ctx(ctx).Warn().Err(err).Str("model", pm.Meta.Name).Msg("Failed to save detector model")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			logging.Ctx(ctx).Info().
				Str("model", meta.Name).
				Int("version", meta.Version).
				Int("samples", meta.Samples).
				Msg("Detector model saved")
		}
	}
	return firstErr
}

// Discard drops staged models, used when a run aborts before history is saved.
func (e *Engine) Discard() {
	for _, d := range e.ListDetectors() {
		if stager, ok := d.(modelStager); ok {
			stager.drain()
		}
	}
}
