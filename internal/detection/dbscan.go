// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tomtom215/authwatch/internal/features"
)

// DBSCANOption configures a DBSCANDetector.
type DBSCANOption func(*DBSCANDetector)

// WithEps sets a fixed neighborhood radius. 0 selects it automatically.
func WithEps(eps float64) DBSCANOption {
	return func(d *DBSCANDetector) { d.eps = eps }
}

// WithMinPoints sets the neighborhood size of a core point.
func WithMinPoints(n int) DBSCANOption {
	return func(d *DBSCANDetector) { d.minPoints = n }
}

// WithDBSCANContamination sets the quantile used for automatic eps.
func WithDBSCANContamination(c float64) DBSCANOption {
	return func(d *DBSCANDetector) { d.contamination = c }
}

// DBSCANDetector flags points that are density-clustering noise.
//
// A point is noise when it is not a core point and no core point lies
// within eps. With a reused model the same test runs against the stored
// core points.
type DBSCANDetector struct {
	persistence

	eps           float64
	minPoints     int
	contamination float64

	enabled bool
	mu      sync.RWMutex
}

// dbscanModel is the persisted form of a fitted DBSCAN detector.
type dbscanModel struct {
	Scaler    *features.Scaler `json:"scaler"`
	Eps       float64          `json:"eps"`
	MinPoints int              `json:"min_points"`
	Cores     [][]float64      `json:"cores"`
}

// NewDBSCANDetector creates a DBSCAN detector.
func NewDBSCANDetector(models ModelOptions, opts ...DBSCANOption) *DBSCANDetector {
	d := &DBSCANDetector{
		persistence:   persistence{opts: models},
		minPoints:     5,
		contamination: 0.05,
		enabled:       true,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.minPoints < 2 {
		d.minPoints = 2
	}
	return d
}

// Type returns the detector type.
func (d *DBSCANDetector) Type() DetectorType {
	return DetectorDBSCAN
}

// Score returns clustering_outlier for every row.
func (d *DBSCANDetector) Score(ctx context.Context, batch *Batch) ([]bool, error) {
	x := features.Matrix(batch.Rows)
	flags := make([]bool, len(x))

	var m dbscanModel
	if d.load(ctx, DetectorDBSCAN, &m) && m.Scaler != nil {
		z, err := m.Scaler.Transform(x)
		if err != nil {
			return nil, fmt.Errorf("standardize: %w", err)
		}
		for i := range z {
			flags[i] = !nearAny(z[i], m.Cores, m.Eps)
		}
		return flags, nil
	}

	// Too few points for any core: nothing can be judged.
	if len(x) < d.minPoints {
		return flags, nil
	}

	m = dbscanModel{Scaler: features.FitScaler(x), MinPoints: d.minPoints}
	z, err := m.Scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("standardize: %w", err)
	}

	dist := pairwiseDistances(z)
	m.Eps = d.eps
	if m.Eps <= 0 {
		m.Eps = kDistanceEps(dist, d.minPoints, d.contamination)
	}

	core := make([]bool, len(z))
	for i := range z {
		n := 0
		for j := range z {
			if dist[i][j] <= m.Eps {
				n++
			}
		}
		if n >= d.minPoints {
			core[i] = true
			m.Cores = append(m.Cores, z[i])
		}
	}

	for i := range z {
		if core[i] {
			continue
		}
		noise := true
		for j := range z {
			if core[j] && dist[i][j] <= m.Eps {
				noise = false
				break
			}
		}
		flags[i] = noise
	}

	if err := d.stage(DetectorDBSCAN, len(x), &m); err != nil {
		return nil, err
	}
	return flags, nil
}

// kDistanceEps picks eps as the (1 - contamination) quantile of each
// point's distance to its (minPoints-1)-th nearest neighbor.
func kDistanceEps(dist [][]float64, minPoints int, contamination float64) float64 {
	k := minPoints - 1
	kd := make([]float64, len(dist))
	row := make([]float64, len(dist))
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		// row[0] is the point itself
		kd[i] = row[min(k, len(row)-1)]
	}
	return quantile(kd, 1-contamination)
}

func pairwiseDistances(z [][]float64) [][]float64 {
	dist := make([][]float64, len(z))
	for i := range z {
		dist[i] = make([]float64, len(z))
	}
	for i := range z {
		for j := i + 1; j < len(z); j++ {
			v := euclidean(z[i], z[j])
			dist[i][j], dist[j][i] = v, v
		}
	}
	return dist
}

func nearAny(p []float64, points [][]float64, eps float64) bool {
	for _, q := range points {
		if euclidean(p, q) <= eps {
			return true
		}
	}
	return false
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

// Enabled returns whether the detector is enabled.
func (d *DBSCANDetector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled enables or disables the detector.
func (d *DBSCANDetector) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
