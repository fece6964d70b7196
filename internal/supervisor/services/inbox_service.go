// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/authwatch/internal/config"
	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
	"github.com/tomtom215/authwatch/internal/pipeline"
)

// Inbox file outcomes recorded in metrics.
const (
	InboxProcessed = "processed"
	InboxFailed    = "failed"
	InboxSkipped   = "skipped"
)

// Runner runs the pipeline over one file.
//
// Satisfied by *pipeline.Pipeline.
type Runner interface {
	RunFile(ctx context.Context, path string, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// InboxService polls an inbox directory and runs the pipeline over every
// CSV file in name order, one file at a time.
//
// A processed file moves to ProcessedDir and a failed one to FailedDir.
// Consecutive environment failures (anything but a malformed input file)
// open a circuit breaker; while it is open, files stay in the inbox and
// polling resumes after the breaker timeout.
type InboxService struct {
	runner   Runner
	cfg      config.WatchConfig
	cb       *gobreaker.CircuitBreaker[*pipeline.Result]
	name     string
	interval time.Duration

	mu    sync.Mutex
	stuck map[string]struct{}
}

// NewInboxService creates an inbox service. Empty processed or failed
// directories default to subdirectories of the inbox.
func NewInboxService(runner Runner, cfg config.WatchConfig) *InboxService {
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = filepath.Join(cfg.InboxDir, "processed")
	}
	if cfg.FailedDir == "" {
		cfg.FailedDir = filepath.Join(cfg.InboxDir, "failed")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}

	s := &InboxService{
		runner:   runner,
		cfg:      cfg,
		name:     "inbox",
		interval: cfg.PollInterval,
		stuck:    make(map[string]struct{}),
	}

	metrics.SetBreakerState(int(gobreaker.StateClosed))
	s.cb = gobreaker.NewCircuitBreaker[*pipeline.Result](gobreaker.Settings{
		Name:        "pipeline-runs",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Bad input files and shutdown are not failures of the environment.
		IsSuccessful: func(err error) bool {
			return err == nil || pipeline.IsInputError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.SetBreakerState(int(to))
		},
	})
	return s
}

// Serve implements suture.Service.
func (s *InboxService) Serve(ctx context.Context) error {
	for _, dir := range []string{s.cfg.InboxDir, s.cfg.ProcessedDir, s.cfg.FailedDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	logging.Info().
		Str("inbox", s.cfg.InboxDir).
		Dur("poll_interval", s.interval).
		Msg("Watching inbox")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll processes every pending file once and returns how many were run.
// It stops early when the breaker opens or ctx is canceled.
func (s *InboxService) Poll(ctx context.Context) int {
	files, err := s.pending()
	if err != nil {
		logging.Error().Err(err).Str("inbox", s.cfg.InboxDir).Msg("Failed to list inbox")
		return 0
	}

	ran := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return ran
		}
		if !s.process(ctx, path) {
			return ran
		}
		ran++
	}
	return ran
}

// pending lists inbox CSV files in name order, skipping hidden files and
// files that could not be moved out of the inbox earlier.
func (s *InboxService) pending() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// os.ReadDir returns entries sorted by filename.
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		path := filepath.Join(s.cfg.InboxDir, name)
		if _, ok := s.stuck[path]; ok {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// process runs one file. It returns false when polling should stop.
func (s *InboxService) process(ctx context.Context, path string) bool {
	log := logging.With().Str("file", filepath.Base(path)).Logger()

	res, err := s.cb.Execute(func() (*pipeline.Result, error) {
		return s.runner.RunFile(ctx, path, pipeline.RunOptions{})
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Warn().Err(err).Msg("Run skipped while circuit breaker is open")
		metrics.RecordInboxFile(InboxSkipped)
		return false
	case err != nil && ctx.Err() != nil:
		log.Info().Msg("Run interrupted by shutdown, file left in inbox")
		return false
	case err != nil:
		log.Error().Err(err).Bool("input_error", pipeline.IsInputError(err)).Msg("Run failed")
		metrics.RecordInboxFile(InboxFailed)
		s.move(path, s.cfg.FailedDir)
	default:
		log.Info().
			Str("run_id", res.RunID).
			Int("anomalies", res.Anomalies).
			Msg("Inbox file processed")
		metrics.RecordInboxFile(InboxProcessed)
		s.move(path, s.cfg.ProcessedDir)
	}
	return true
}

// move renames path into dir. An existing file of the same name is kept
// and the new one gets a timestamp suffix. A file that cannot be moved is
// never run again by this service.
func (s *InboxService) move(path, dir string) {
	base := filepath.Base(path)
	target := filepath.Join(dir, base)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(base)
		stamp := time.Now().UTC().Format("20060102T150405.000000000")
		target = filepath.Join(dir, strings.TrimSuffix(base, ext)+"."+stamp+ext)
	}

	if err := os.Rename(path, target); err != nil {
		logging.Error().Err(err).Str("file", path).Str("target", target).Msg("Failed to move inbox file")
		s.mu.Lock()
		s.stuck[path] = struct{}{}
		s.mu.Unlock()
	}
}

// BreakerState returns the current circuit breaker state.
func (s *InboxService) BreakerState() gobreaker.State {
	return s.cb.State()
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (s *InboxService) String() string {
	return s.name
}
