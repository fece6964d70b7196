// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/authwatch/internal/logging"
)

// ModelMetadata contains information about a stored detector model.
type ModelMetadata struct {
	// Name is the storage key, "<detector>:<feature-set>".
	Name string `json:"name"`

	// Detector is the detector type (e.g., "dbscan", "isolation_forest").
	Detector string `json:"detector"`

	// FeatureSet names the feature projection the model was fit on.
	FeatureSet string `json:"feature_set"`

	// Version is the model version (monotonically increasing per name).
	Version int `json:"version"`

	// TrainedAt is when the model was fit.
	TrainedAt time.Time `json:"trained_at"`

	// SavedAt is when the model was written.
	SavedAt time.Time `json:"saved_at"`

	// Samples is the number of feature rows used for fitting.
	Samples int `json:"samples"`

	// Checksum is the SHA-256 checksum of Data.
	Checksum string `json:"checksum"`

	// SizeBytes is the size of Data in bytes.
	SizeBytes int64 `json:"size_bytes"`
}

// StoredModel wraps detector state with metadata for persistence.
type StoredModel struct {
	Metadata ModelMetadata   `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// ModelName returns the storage key for a detector fit on a feature set.
func ModelName(detector, featureSet string) string {
	return detector + ":" + featureSet
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GetModel loads a stored model and verifies its checksum.
// Returns ErrNotFound when no model exists under name.
func (s *Store) GetModel(ctx context.Context, name string) (m *StoredModel, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrNotFound) {
			observe("get_model", start, nil)
			return
		}
		observe("get_model", start, err)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixModel + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded StoredModel
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("decode model %s: %w", name, err)
			}
			m = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if got := checksum(m.Data); got != m.Metadata.Checksum {
		logging.Ctx(ctx).Warn().
			Str("model", name).
			Str("expected", m.Metadata.Checksum).
			Str("actual", got).
			Msg("Stored model failed checksum verification")
		return nil, fmt.Errorf("%s: %w", name, ErrChecksumMismatch)
	}
	return m, nil
}

// PutModel stores data under meta.Name, assigning the next version,
// SavedAt, Checksum and SizeBytes. The updated metadata is returned.
func (s *Store) PutModel(ctx context.Context, meta ModelMetadata, data []byte) (out ModelMetadata, err error) {
	start := time.Now()
	defer func() { observe("put_model", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return ModelMetadata{}, err
	}
	if meta.Name == "" {
		return ModelMetadata{}, fmt.Errorf("model name is required")
	}
	if err := ctx.Err(); err != nil {
		return ModelMetadata{}, err
	}

	key := []byte(prefixModel + meta.Name)
	err = s.db.Update(func(txn *badger.Txn) error {
		version := 1
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var prev StoredModel
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); err == nil {
				version = prev.Metadata.Version + 1
			}
		}

		meta.Version = version
		meta.SavedAt = time.Now().UTC()
		meta.Checksum = checksum(data)
		meta.SizeBytes = int64(len(data))

		encoded, err := json.Marshal(StoredModel{Metadata: meta, Data: data})
		if err != nil {
			return fmt.Errorf("marshal model: %w", err)
		}
		return txn.Set(key, encoded)
	})
	if err != nil {
		return ModelMetadata{}, fmt.Errorf("put model %s: %w", meta.Name, err)
	}

	logging.Ctx(ctx).Debug().
		Str("model", meta.Name).
		Int("version", meta.Version).
		Int64("size_bytes", meta.SizeBytes).
		Msg("Detector model saved")
	return meta, nil
}
