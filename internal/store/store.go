// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/authwatch/internal/logging"
	"github.com/tomtom215/authwatch/internal/metrics"
)

// Prefix keys for the different record types.
//
// Profiles are stored as versions tagged with the save sequence that wrote
// them: head:<user>:<seq> holds the set and model, events:<user>:<seq> the
// events appended by that save. keyProfileSeq names the last committed
// sequence; versions above it belong to an interrupted save.
const (
	prefixHead    = "head:"
	prefixEvents  = "events:"
	prefixModel   = "model:"
	keyProfileSeq = "meta:profile_seq"
	keyLastRun    = "meta:last_run"
)

// Errors
var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrNotFound is returned when a profile or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrChecksumMismatch is returned when a stored model fails verification.
	ErrChecksumMismatch = errors.New("model checksum mismatch")
)

// Config holds BadgerDB store configuration.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	Path string

	// SyncWrites forces fsync after every commit.
	SyncWrites bool

	// Compression enables Snappy block compression.
	Compression bool

	// InMemory keeps all data in memory. Path is ignored. Used by tests.
	InMemory bool

	// MinEvents is the promotion threshold applied to loaded state.
	MinEvents int

	// GCRatio is the value-log discard ratio for RunGC.
	// Default: 0.5
	GCRatio float64
}

// Store persists profiles, detector models and run metadata in BadgerDB.
//
// Badger holds an exclusive directory lock, so only one process can open
// a store at a time. Runs against one store are therefore serialized.
type Store struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites

	// Apply compression if enabled
	if cfg.Compression {
		opts.Compression = options.Snappy
	}

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	if !cfg.InMemory {
		logging.Info().
			Str("path", cfg.Path).
			Bool("sync_writes", cfg.SyncWrites).
			Bool("compression", cfg.Compression).
			Msg("History store opened")
	}

	return &Store{db: db, config: cfg}, nil
}

// Close closes the underlying database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	return nil
}

// checkOpen returns ErrClosed after Close. Callers hold s.mu for reading.
func (s *Store) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// RunGC reclaims value-log space until BadgerDB reports nothing left to rewrite.
func (s *Store) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.config.InMemory {
		return nil
	}

	start := time.Now()
	var err error
	for {
		err = s.db.RunValueLogGC(s.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			err = nil
			break
		}
		if err != nil {
			err = fmt.Errorf("run GC: %w", err)
			break
		}
	}
	metrics.RecordStoreOperation("gc", time.Since(start), err)
	return err
}

// observe records a store operation duration and outcome.
func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(op, time.Since(start), err)
}
