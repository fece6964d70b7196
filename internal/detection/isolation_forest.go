// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/tomtom215/authwatch/internal/features"
)

// eulerGamma is the Euler-Mascheroni constant used by the harmonic estimate.
const eulerGamma = 0.5772156649

// IsolationForestOption configures an IsolationForestDetector.
type IsolationForestOption func(*IsolationForestDetector)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) IsolationForestOption {
	return func(d *IsolationForestDetector) { d.trees = n }
}

// WithSampleSize sets the subsample size per tree.
func WithSampleSize(n int) IsolationForestOption {
	return func(d *IsolationForestDetector) { d.sampleSize = n }
}

// WithContamination sets the expected outlier fraction.
func WithContamination(c float64) IsolationForestOption {
	return func(d *IsolationForestDetector) { d.contamination = c }
}

// WithSeed sets the random seed. Equal seeds give equal forests.
func WithSeed(seed int64) IsolationForestOption {
	return func(d *IsolationForestDetector) { d.seed = seed }
}

// IsolationForestDetector flags points that isolate in few random splits.
//
// The anomaly score is 2^(-E[h(x)]/c(psi)). Points scoring above the
// (1 - contamination) quantile of training scores are outliers.
type IsolationForestDetector struct {
	persistence

	trees         int
	sampleSize    int
	contamination float64
	seed          int64

	enabled bool
	mu      sync.RWMutex
}

// iNode is a node of an isolation tree. Leaves have nil children.
type iNode struct {
	Feature int     `json:"f"`
	Split   float64 `json:"s"`
	Size    int     `json:"n"`
	Left    *iNode  `json:"l,omitempty"`
	Right   *iNode  `json:"r,omitempty"`
}

// forestModel is the persisted form of a fitted forest.
type forestModel struct {
	Scaler     *features.Scaler `json:"scaler"`
	SampleSize int              `json:"sample_size"`
	Threshold  float64          `json:"threshold"`
	Trees      []*iNode         `json:"trees"`
}

// NewIsolationForestDetector creates an isolation forest detector.
func NewIsolationForestDetector(models ModelOptions, opts ...IsolationForestOption) *IsolationForestDetector {
	d := &IsolationForestDetector{
		persistence:   persistence{opts: models},
		trees:         100,
		sampleSize:    256,
		contamination: 0.05,
		seed:          42,
		enabled:       true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Type returns the detector type.
func (d *IsolationForestDetector) Type() DetectorType {
	return DetectorIsolationForest
}

// Score returns isolation_outlier for every row.
func (d *IsolationForestDetector) Score(ctx context.Context, batch *Batch) ([]bool, error) {
	x := features.Matrix(batch.Rows)
	flags := make([]bool, len(x))

	var m forestModel
	reused := d.load(ctx, DetectorIsolationForest, &m) && m.Scaler != nil && len(m.Trees) > 0
	if !reused {
		if len(x) < 2 {
			return flags, nil
		}
		m = d.fit(x)
	}

	z, err := m.Scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}
	scores := make([]float64, len(z))
	for i := range z {
		scores[i] = m.score(z[i])
	}

	if !reused {
		sorted := append([]float64(nil), scores...)
		m.Threshold = quantile(sorted, 1-d.contamination)
		if err := d.stage(DetectorIsolationForest, len(x), &m); err != nil {
			return nil, err
		}
	}

	for i, s := range scores {
		flags[i] = s > m.Threshold
	}
	return flags, nil
}

func (d *IsolationForestDetector) fit(x [][]float64) forestModel {
	m := forestModel{Scaler: features.FitScaler(x)}
	z, _ := m.Scaler.Transform(x)

	psi := min(d.sampleSize, len(z))
	m.SampleSize = psi
	limit := int(math.Ceil(math.Log2(float64(psi))))
	rng := rand.New(rand.NewSource(d.seed)) //nolint:gosec // reproducible sampling, not security

	m.Trees = make([]*iNode, max(d.trees, 1))
	for t := range m.Trees {
		perm := rng.Perm(len(z))[:psi]
		sample := make([][]float64, psi)
		for i, idx := range perm {
			sample[i] = z[idx]
		}
		m.Trees[t] = growTree(sample, 0, limit, rng)
	}
	return m
}

func growTree(x [][]float64, depth, limit int, rng *rand.Rand) *iNode {
	if depth >= limit || len(x) <= 1 {
		return &iNode{Size: len(x)}
	}

	// Only features with spread can split.
	var candidates []int
	lo := make([]float64, len(x[0]))
	hi := make([]float64, len(x[0]))
	for j := range lo {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, row := range x {
			lo[j] = math.Min(lo[j], row[j])
			hi[j] = math.Max(hi[j], row[j])
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &iNode{Size: len(x)}
	}

	f := candidates[rng.Intn(len(candidates))]
	split := lo[f] + rng.Float64()*(hi[f]-lo[f])

	var left, right [][]float64
	for _, row := range x {
		if row[f] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &iNode{
		Feature: f,
		Split:   split,
		Size:    len(x),
		Left:    growTree(left, depth+1, limit, rng),
		Right:   growTree(right, depth+1, limit, rng),
	}
}

func pathLength(n *iNode, x []float64, depth int) float64 {
	for n.Left != nil && n.Right != nil {
		if x[n.Feature] < n.Split {
			n = n.Left
		} else {
			n = n.Right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.Size)
}

// averagePathLength is c(n), the mean unsuccessful search length in a BST.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}

func (m *forestModel) score(x []float64) float64 {
	var sum float64
	for _, t := range m.Trees {
		sum += pathLength(t, x, 0)
	}
	mean := sum / float64(len(m.Trees))
	c := averagePathLength(m.SampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

// Enabled returns whether the detector is enabled.
func (d *IsolationForestDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *IsolationForestDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
