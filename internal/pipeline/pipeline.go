// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tomtom215/authwatch/internal/config"
	"github.com/tomtom215/authwatch/internal/detection"
	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/features"
	"github.com/tomtom215/authwatch/internal/history"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
	"github.com/tomtom215/authwatch/internal/model"
	"github.com/tomtom215/authwatch/internal/report"
	"github.com/tomtom215/authwatch/internal/store"
)

// ErrEmptyInput is returned when the input has a header but no events.
var ErrEmptyInput = errors.New("input contains no events")

// IsInputError reports whether err was caused by the input file itself
// rather than the environment.
func IsInputError(err error) bool {
	var parseErr *csv.ParseError
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, event.ErrMissingColumns) ||
		errors.Is(err, event.ErrNoHeader) ||
		errors.As(err, &parseErr)
}

// Store is the persistence the pipeline needs.
type Store interface {
	history.Repository
	detection.ModelStore
	PutLastRun(ctx context.Context, rec *store.RunRecord) error
}

// AlertPublisher receives anomalies after history is saved.
type AlertPublisher interface {
	PublishAnomalies(ctx context.Context, runID string, results []detection.Result) int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAlerts publishes anomalies through a after each successful run.
func WithAlerts(a AlertPublisher) Option {
	return func(p *Pipeline) { p.alerts = a }
}

// Pipeline runs one log file through normalization, history merge, model
// training, detection and reporting.
//
// A Pipeline is not safe for concurrent runs against the same store.
type Pipeline struct {
	cfg        *config.Config
	store      Store
	reader     *event.Reader
	normalizer *event.Normalizer
	trainer    *model.Trainer
	writer     *report.Writer
	alerts     AlertPublisher
}

// New creates a pipeline.
func New(cfg *config.Config, st Store, opts ...Option) *Pipeline {
	hmm := model.DefaultHMMConfig()
	hmm.MaxIterations = cfg.Model.MaxIterations
	hmm.Tolerance = cfg.Model.Tolerance

	p := &Pipeline{
		cfg:        cfg,
		store:      st,
		reader:     event.NewReader(cfg.Input.Columns),
		normalizer: event.NewNormalizer(),
		trainer: model.NewTrainer(model.TrainerConfig{
			MinEvents:   cfg.History.MinEvents,
			HMM:         hmm,
			RidgeLambda: cfg.Model.RidgeLambda,
		}),
		writer: report.NewWriter(cfg.Report.OutputDir),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOptions controls a single run.
type RunOptions struct {
	// Retrain ignores stored detector models and saves fresh fits.
	Retrain bool
}

// Result summarizes a completed run.
type Result struct {
	RunID          string            `json:"run_id"`
	Input          string            `json:"input"`
	Events         int               `json:"events"`
	Users          int               `json:"users"`
	Anomalies      int               `json:"anomalies"`
	Trained        int               `json:"trained"`
	Deferred       int               `json:"deferred"`
	Reports        report.Paths      `json:"reports"`
	AlertsSent     int               `json:"alerts_sent"`
	DetectorErrors map[string]string `json:"detector_errors,omitempty"`
	Duration       time.Duration     `json:"duration"`
}

// RunFile runs the pipeline over the CSV file at path.
func (p *Pipeline) RunFile(ctx context.Context, path string, opts RunOptions) (*Result, error) {
	f, err := os.Open(path) //nolint:gosec // path is an operator-supplied input file
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return p.Run(ctx, path, f, opts)
}

// Run processes one batch read from src. name identifies the input and
// determines the report file stem.
//
// History is saved as the last state-mutating step. If anything before
// or including the save fails, no report is published and stored history
// is unchanged.
func (p *Pipeline) Run(ctx context.Context, name string, src io.Reader, opts RunOptions) (res *Result, err error) {
	if logging.RunIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewRunID(ctx)
	}
	log := logging.Ctx(ctx)
	start := time.Now()
	events := 0
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			log.Error().Err(err).Str("input", name).Msg("Run failed")
		}
		metrics.RecordRun(status, time.Since(start), events)
		if path := p.cfg.Metrics.TextfilePath; path != "" {
			if werr := metrics.WriteTextfile(path); werr != nil {
				log.Warn().Err(werr).Str("path", path).Msg("Failed to write metrics textfile")
			}
		}
	}()

	rows, err := p.reader.Read(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	batch := p.normalizer.NormalizeAll(rows)
	events = len(batch)

	state, err := p.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// Known usernames come from history before this batch is merged.
	known := state.KnownUsernames()

	ids, byUser := history.GroupByUser(batch)
	p.mergeAndTrain(ctx, state, ids, byUser)

	engine := detection.NewEngineFromConfig(&p.cfg.Detection, p.store, opts.Retrain)
	outcome, err := engine.Run(ctx, &detection.Batch{
		Events: batch,
		Rows:   features.Build(batch, state),
		Known:  known,
	})
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	summaries := detection.Rollup(outcome.Results)

	staged, err := p.writer.Stage(ctx, report.Stem(name), outcome.Results, summaries)
	if err != nil {
		engine.Discard()
		return nil, fmt.Errorf("write reports: %w", err)
	}

	if err := p.store.Save(ctx, state); err != nil {
		staged.Discard()
		engine.Discard()
		return nil, fmt.Errorf("save history: %w", err)
	}

	if err := staged.Publish(); err != nil {
		staged.Discard()
		return nil, fmt.Errorf("history saved but reports not published: %w", err)
	}

	trained, deferred := state.Counts()
	metrics.SetProfileCounts(trained, deferred)

	res = &Result{
		RunID:     logging.RunIDFromContext(ctx),
		Input:     name,
		Events:    len(batch),
		Users:     len(ids),
		Anomalies: outcome.Anomalies(),
		Trained:   trained,
		Deferred:  deferred,
		Reports:   staged.Final,
	}
	if len(outcome.Errors) > 0 {
		res.DetectorErrors = make(map[string]string, len(outcome.Errors))
		for t, derr := range outcome.Errors {
			res.DetectorErrors[string(t)] = derr.Error()
		}
	}

	// Everything below is best-effort: history and reports are final.
	if err := engine.Commit(ctx); err != nil {
		log.Warn().Err(err).Msg("Some detector models were not saved")
	}
	if p.alerts != nil && res.Anomalies > 0 {
		res.AlertsSent = p.alerts.PublishAnomalies(ctx, res.RunID, outcome.Results)
	}
	res.Duration = time.Since(start)
	p.recordLastRun(ctx, res, start)

	log.Info().
		Str("input", name).
		Int("events", res.Events).
		Int("users", res.Users).
		Int("anomalies", res.Anomalies).
		Int("trained", trained).
		Int("deferred", deferred).
		Dur("duration", res.Duration).
		Msg("Run complete")
	return res, nil
}

// mergeAndTrain appends each user's batch events to history and refits
// every user that is in the trained set after the merge.
func (p *Pipeline) mergeAndTrain(ctx context.Context, state *history.State, ids []string, byUser map[string][]event.Event) {
	log := logging.Ctx(ctx)
	for _, id := range ids {
		mr := state.Merge(id, byUser[id])
		if mr.Promoted {
			log.Debug().Str("user_id", id).Int("events", len(mr.Profile.Events)).Msg("Profile promoted to trained")
		}
		if mr.Set != history.SetTrained {
			continue
		}
		mr.Profile.Model = p.trainer.Train(ctx, id, mr.Profile.Events)
	}
}

func (p *Pipeline) recordLastRun(ctx context.Context, res *Result, start time.Time) {
	rec := &store.RunRecord{
		RunID:      res.RunID,
		Input:      res.Input,
		StartedAt:  start.UTC(),
		FinishedAt: time.Now().UTC(),
		Events:     res.Events,
		Users:      res.Users,
		Anomalies:  res.Anomalies,
		Trained:    res.Trained,
		Deferred:   res.Deferred,
		Reports:    res.Reports.List(),
	}
	if len(res.DetectorErrors) > 0 {
		rec.DetectorErrors = make(map[string]int, len(res.DetectorErrors))
		for t := range res.DetectorErrors {
			rec.DetectorErrors[t] = 1
		}
	}
	if err := p.store.PutLastRun(ctx, rec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record last run")
	}
}
