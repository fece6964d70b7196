// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

import (
	"context"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/features"
	"github.com/tomtom215/authwatch/internal/store"
)

// DetectorType identifies a detector and the flag column it fills.
type DetectorType string

const (
	// DetectorRules evaluates the deterministic rules (rule_violation).
	DetectorRules DetectorType = "rules"

	// DetectorDBSCAN flags density-clustering noise (clustering_outlier).
	DetectorDBSCAN DetectorType = "dbscan"

	// DetectorIsolationForest flags short isolation paths (isolation_outlier).
	DetectorIsolationForest DetectorType = "isolation_forest"
)

// Batch is the read-only input shared by all detectors.
type Batch struct {
	// Events are the normalized batch events.
	Events []event.Event

	// Rows are the engineered features, one per event.
	Rows []features.Row

	// Known holds usernames from history prior to this batch.
	Known map[string]struct{}
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int {
	return len(b.Events)
}

// Detector is the interface that all detectors implement.
type Detector interface {
	// Type returns the detector type, which selects the flag column.
	Type() DetectorType

	// Score returns one flag per batch row.
	Score(ctx context.Context, batch *Batch) ([]bool, error)

	// Enabled returns whether this detector is currently enabled.
	Enabled() bool

	// SetEnabled enables or disables the detector.
	SetEnabled(enabled bool)
}

// ModelStore persists fitted detector state.
type ModelStore interface {
	GetModel(ctx context.Context, name string) (*store.StoredModel, error)
	PutModel(ctx context.Context, meta store.ModelMetadata, data []byte) (store.ModelMetadata, error)
}

// RuleHits records which rules an event triggered.
type RuleHits struct {
	Burst        bool `json:"burst"`
	FanIn        bool `json:"fan_in"`
	NumericGuess bool `json:"numeric_guess"`
	BruteForce   bool `json:"brute_force"`
}

// Any reports whether any rule fired.
func (h RuleHits) Any() bool {
	return h.Burst || h.FanIn || h.NumericGuess || h.BruteForce
}

// Result is the verdict for one event.
type Result struct {
	Event    event.Event  `json:"event"`
	Features features.Row `json:"features"`
	Hits     RuleHits     `json:"hits"`

	RuleViolation     bool `json:"rule_violation"`
	ClusteringOutlier bool `json:"clustering_outlier"`
	IsolationOutlier  bool `json:"isolation_outlier"`

	// AccountChange is informational and does not affect Anomaly.
	AccountChange bool `json:"account_change"`

	Anomaly bool `json:"anomaly"`
}

// Combine is the verdict: any of the three detector flags.
func Combine(ruleViolation, clusteringOutlier, isolationOutlier bool) bool {
	return ruleViolation || clusteringOutlier || isolationOutlier
}
