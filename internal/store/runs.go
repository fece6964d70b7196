// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// RunRecord summarizes the last completed run.
type RunRecord struct {
	RunID          string         `json:"run_id"`
	Input          string         `json:"input"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Events         int            `json:"events"`
	Users          int            `json:"users"`
	Anomalies      int            `json:"anomalies"`
	Trained        int            `json:"trained"`
	Deferred       int            `json:"deferred"`
	Reports        []string       `json:"reports"`
	DetectorErrors map[string]int `json:"detector_errors,omitempty"`
}

// PutLastRun overwrites the last-run record.
func (s *Store) PutLastRun(ctx context.Context, rec *RunRecord) (err error) {
	start := time.Now()
	defer func() { observe("put_last_run", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyLastRun), data)
	})
}

// LastRun returns the last-run record, or ErrNotFound before the first run.
func (s *Store) LastRun(ctx context.Context) (rec *RunRecord, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyLastRun))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &RunRecord{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
