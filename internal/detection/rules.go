// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/features"
)

// RuleConfig configures the rule detector.
type RuleConfig struct {
	// BurstThreshold is exceeded by more events than this in one second.
	BurstThreshold int `json:"burst_threshold"`

	// FanInThreshold is exceeded by more distinct users than this per IP per second.
	FanInThreshold int `json:"fan_in_threshold"`

	// BruteForceWindow flags events closer than this to the previous event.
	BruteForceWindow time.Duration `json:"brute_force_window"`

	// AccountChangeEvents are event types reported as account changes.
	AccountChangeEvents []string `json:"account_change_events"`
}

// DefaultRuleConfig returns sensible defaults.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		BurstThreshold:   3,
		FanInThreshold:   5,
		BruteForceWindow: 60 * time.Second,
		AccountChangeEvents: []string{
			"CHANGE_EMAIL_SUCCESS",
			"CHANGE_PASSWORD_SUCCESS",
			"CHANGE_USERNAME_SUCCESS",
		},
	}
}

// BurstRule fires when the user has more than threshold events in the second.
func BurstRule(row *features.Row, threshold int) bool {
	return row.Burst > threshold
}

// FanInRule fires when more than threshold users share the IP in the second.
func FanInRule(row *features.Row, threshold int) bool {
	return row.FanIn > threshold
}

// BruteForceRule fires when the previous event is less than window ago.
func BruteForceRule(row *features.Row, window time.Duration) bool {
	s := row.SecondsSincePrevious
	return s >= 0 && s < window.Seconds()
}

// IdentityIndex maps identity usernames to the digit suffixes seen with them.
type IdentityIndex struct {
	known    map[string]struct{}
	suffixes map[string]map[string]struct{}
}

// NewIdentityIndex indexes a set of known usernames.
func NewIdentityIndex(known map[string]struct{}) *IdentityIndex {
	idx := &IdentityIndex{
		known:    known,
		suffixes: make(map[string]map[string]struct{}),
	}
	for name := range known {
		identity, suffix, _ := event.SplitUsername(name)
		if idx.suffixes[identity] == nil {
			idx.suffixes[identity] = make(map[string]struct{})
		}
		idx.suffixes[identity][suffix] = struct{}{}
	}
	return idx
}

// NumericGuess fires when username is unknown but a known username shares
// its identity with a different digit suffix.
func (idx *IdentityIndex) NumericGuess(username string) bool {
	if _, ok := idx.known[username]; ok {
		return false
	}
	identity, suffix, _ := event.SplitUsername(username)
	for s := range idx.suffixes[identity] {
		if s != suffix {
			return true
		}
	}
	return false
}

// RuleDetector evaluates the deterministic rules.
type RuleDetector struct {
	config        RuleConfig
	accountChange map[string]struct{}
	enabled       bool
	mu            sync.RWMutex
}

// NewRuleDetector creates a rule detector.
func NewRuleDetector(config RuleConfig) *RuleDetector {
	ac := make(map[string]struct{}, len(config.AccountChangeEvents))
	for _, t := range config.AccountChangeEvents {
		ac[t] = struct{}{}
	}
	return &RuleDetector{config: config, accountChange: ac, enabled: true}
}

// Type returns the detector type.
func (d *RuleDetector) Type() DetectorType {
	return DetectorRules
}

// Evaluate returns the per-rule hits for every batch row.
func (d *RuleDetector) Evaluate(batch *Batch) []RuleHits {
	d.mu.RLock()
	config := d.config
	d.mu.RUnlock()

	idx := NewIdentityIndex(batch.Known)
	hits := make([]RuleHits, batch.Len())
	for i := range batch.Events {
		row := &batch.Rows[i]
		hits[i] = RuleHits{
			Burst:        BurstRule(row, config.BurstThreshold),
			FanIn:        FanInRule(row, config.FanInThreshold),
			NumericGuess: idx.NumericGuess(batch.Events[i].Username),
			BruteForce:   BruteForceRule(row, config.BruteForceWindow),
		}
	}
	return hits
}

// Score returns rule_violation for every row.
func (d *RuleDetector) Score(_ context.Context, batch *Batch) ([]bool, error) {
	hits := d.Evaluate(batch)
	flags := make([]bool, len(hits))
	for i := range hits {
		flags[i] = hits[i].Any()
	}
	return flags, nil
}

// AccountChange reports whether the event type is an account change.
func (d *RuleDetector) AccountChange(eventType string) bool {
	_, ok := d.accountChange[eventType]
	return ok
}

// Enabled returns whether the detector is enabled.
func (d *RuleDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *RuleDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
