// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package model

import (
	"errors"
	"fmt"
	"math"
)

// HMMConfig contains configuration for Baum-Welch fitting.
type HMMConfig struct {
	// MaxIterations bounds the number of EM iterations.
	// Default: 100.
	MaxIterations int

	// Tolerance stops EM once the log-likelihood gain falls below it.
	// Default: 1e-4.
	Tolerance float64

	// VarianceFloor is the minimum per-dimension emission variance.
	// Default: 1e-3.
	VarianceFloor float64
}

// DefaultHMMConfig returns default fitting configuration.
func DefaultHMMConfig() HMMConfig {
	return HMMConfig{
		MaxIterations: 100,
		Tolerance:     1e-4,
		VarianceFloor: 1e-3,
	}
}

var (
	// ErrNoObservations is returned when fitting an empty sequence.
	ErrNoObservations = errors.New("no observations")

	// ErrDimensionMismatch is returned when observation vectors differ in length.
	ErrDimensionMismatch = errors.New("observation dimension mismatch")

	// ErrNumerical is returned when the forward pass loses all probability mass.
	ErrNumerical = errors.New("numerical failure in forward pass")
)

// HMM is a hidden Markov model with diagonal-covariance Gaussian emissions.
//
// Every row of Transitions sums to 1. Rows that received no expected
// transition mass during fitting are set to uniform and FixedRows records
// their indices.
type HMM struct {
	States      int         `json:"states"`
	Start       []float64   `json:"start"`
	Transitions [][]float64 `json:"transitions"`
	Means       [][]float64 `json:"means"`
	Variances   [][]float64 `json:"variances"`

	FixedRows     []int   `json:"fixed_rows,omitempty"`
	Iterations    int     `json:"iterations"`
	LogLikelihood float64 `json:"log_likelihood"`
}

// Degenerate reports whether any transition row was replaced with uniform.
func (h *HMM) Degenerate() bool {
	return len(h.FixedRows) > 0
}

// FitHMM fits a k-state model to obs with Baum-Welch (scaled forward-backward).
// Initialization is deterministic: means are taken from evenly spaced
// observations, start and transition probabilities are uniform and variances
// equal the per-dimension sample variance.
func FitHMM(obs [][]float64, k int, cfg HMMConfig) (*HMM, error) {
	T := len(obs)
	if T == 0 {
		return nil, ErrNoObservations
	}
	if k < 1 {
		return nil, fmt.Errorf("invalid state count %d", k)
	}
	D := len(obs[0])
	for t := range obs {
		if len(obs[t]) != D {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, t, len(obs[t]), D)
		}
		for _, v := range obs[t] {
			if !finite(v) {
				return nil, fmt.Errorf("non-finite observation at row %d", t)
			}
		}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-4
	}
	if cfg.VarianceFloor <= 0 {
		cfg.VarianceFloor = 1e-3
	}

	h := initHMM(obs, k, cfg.VarianceFloor)

	prevLL := math.Inf(-1)
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		ll, err := h.emStep(obs, cfg.VarianceFloor)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		h.Iterations = iter
		h.LogLikelihood = ll
		if math.Abs(ll-prevLL) < cfg.Tolerance {
			break
		}
		prevLL = ll
	}

	return h, nil
}

func initHMM(obs [][]float64, k int, floor float64) *HMM {
	T, D := len(obs), len(obs[0])

	h := &HMM{
		States:      k,
		Start:       make([]float64, k),
		Transitions: newMatrix(k, k),
		Means:       newMatrix(k, D),
		Variances:   newMatrix(k, D),
	}

	mean := make([]float64, D)
	for t := range obs {
		for d := range mean {
			mean[d] += obs[t][d] / float64(T)
		}
	}
	variance := make([]float64, D)
	for t := range obs {
		for d := range variance {
			diff := obs[t][d] - mean[d]
			variance[d] += diff * diff / float64(T)
		}
	}

	for i := 0; i < k; i++ {
		h.Start[i] = 1 / float64(k)
		for j := 0; j < k; j++ {
			h.Transitions[i][j] = 1 / float64(k)
		}
		idx := 0
		if k > 1 {
			idx = i * (T - 1) / (k - 1)
		}
		copy(h.Means[i], obs[idx])
		for d := 0; d < D; d++ {
			h.Variances[i][d] = math.Max(variance[d], floor)
		}
	}
	return h
}

// logEmission returns log N(x; mean_i, diag(var_i)).
func (h *HMM) logEmission(i int, x []float64) float64 {
	var lp float64
	for d, v := range x {
		variance := h.Variances[i][d]
		diff := v - h.Means[i][d]
		lp -= 0.5 * (math.Log(2*math.Pi*variance) + diff*diff/variance)
	}
	return lp
}

// emissions returns per-step emission likelihoods shifted by the per-step
// maximum log value, and the sum of those shifts.
func (h *HMM) emissions(obs [][]float64) ([][]float64, float64) {
	T, K := len(obs), h.States
	b := newMatrix(T, K)
	var shift float64
	for t := 0; t < T; t++ {
		maxLP := math.Inf(-1)
		for i := 0; i < K; i++ {
			b[t][i] = h.logEmission(i, obs[t])
			if b[t][i] > maxLP {
				maxLP = b[t][i]
			}
		}
		for i := 0; i < K; i++ {
			b[t][i] = math.Exp(b[t][i] - maxLP)
		}
		shift += maxLP
	}
	return b, shift
}

// forward runs the scaled forward pass. alpha rows sum to 1 and c holds the
// scaling factors.
func (h *HMM) forward(b [][]float64) (alpha [][]float64, c []float64, err error) {
	T, K := len(b), h.States
	alpha = newMatrix(T, K)
	c = make([]float64, T)

	for t := 0; t < T; t++ {
		for j := 0; j < K; j++ {
			var p float64
			if t == 0 {
				p = h.Start[j]
			} else {
				for i := 0; i < K; i++ {
					p += alpha[t-1][i] * h.Transitions[i][j]
				}
			}
			alpha[t][j] = p * b[t][j]
			c[t] += alpha[t][j]
		}
		if c[t] <= 0 || !finite(c[t]) {
			return nil, nil, fmt.Errorf("%w at step %d", ErrNumerical, t)
		}
		for j := 0; j < K; j++ {
			alpha[t][j] /= c[t]
		}
	}
	return alpha, c, nil
}

// emStep performs one Baum-Welch re-estimation and returns the
// log-likelihood of obs under the parameters before the update.
func (h *HMM) emStep(obs [][]float64, floor float64) (float64, error) {
	T, K, D := len(obs), h.States, len(obs[0])

	b, shift := h.emissions(obs)
	alpha, c, err := h.forward(b)
	if err != nil {
		return 0, err
	}

	ll := shift
	for t := 0; t < T; t++ {
		ll += math.Log(c[t])
	}

	beta := newMatrix(T, K)
	for i := 0; i < K; i++ {
		beta[T-1][i] = 1
	}
	for t := T - 2; t >= 0; t-- {
		for i := 0; i < K; i++ {
			var s float64
			for j := 0; j < K; j++ {
				s += h.Transitions[i][j] * b[t+1][j] * beta[t+1][j]
			}
			beta[t][i] = s / c[t+1]
		}
	}

	gamma := newMatrix(T, K)
	for t := 0; t < T; t++ {
		var norm float64
		for i := 0; i < K; i++ {
			gamma[t][i] = alpha[t][i] * beta[t][i]
			norm += gamma[t][i]
		}
		if norm > 0 {
			for i := 0; i < K; i++ {
				gamma[t][i] /= norm
			}
		}
	}

	xi := newMatrix(K, K)
	for t := 0; t < T-1; t++ {
		for i := 0; i < K; i++ {
			for j := 0; j < K; j++ {
				xi[i][j] += alpha[t][i] * h.Transitions[i][j] * b[t+1][j] * beta[t+1][j] / c[t+1]
			}
		}
	}

	// Start distribution
	copy(h.Start, gamma[0])

	// Transitions; rows without usable mass become uniform
	h.FixedRows = h.FixedRows[:0]
	for i := 0; i < K; i++ {
		var rowSum float64
		for j := 0; j < K; j++ {
			rowSum += xi[i][j]
		}
		if rowSum <= 0 || !finite(rowSum) {
			for j := 0; j < K; j++ {
				h.Transitions[i][j] = 1 / float64(K)
			}
			h.FixedRows = append(h.FixedRows, i)
			continue
		}
		for j := 0; j < K; j++ {
			h.Transitions[i][j] = xi[i][j] / rowSum
		}
	}

	// Emission parameters
	for i := 0; i < K; i++ {
		var weight float64
		for t := 0; t < T; t++ {
			weight += gamma[t][i]
		}
		if weight <= 0 || !finite(weight) {
			continue
		}
		for d := 0; d < D; d++ {
			var m float64
			for t := 0; t < T; t++ {
				m += gamma[t][i] * obs[t][d]
			}
			m /= weight

			var v float64
			for t := 0; t < T; t++ {
				diff := obs[t][d] - m
				v += gamma[t][i] * diff * diff
			}
			v /= weight

			h.Means[i][d] = m
			h.Variances[i][d] = math.Max(v, floor)
		}
	}

	return ll, nil
}

// Viterbi returns the most likely hidden-state path for obs. The path has
// one entry per observation.
func (h *HMM) Viterbi(obs [][]float64) []int {
	T, K := len(obs), h.States
	if T == 0 {
		return nil
	}

	logA := newMatrix(K, K)
	for i := 0; i < K; i++ {
		for j := 0; j < K; j++ {
			logA[i][j] = safeLog(h.Transitions[i][j])
		}
	}

	delta := newMatrix(T, K)
	back := make([][]int, T)
	for t := range back {
		back[t] = make([]int, K)
	}

	for i := 0; i < K; i++ {
		delta[0][i] = safeLog(h.Start[i]) + h.logEmission(i, obs[0])
	}
	for t := 1; t < T; t++ {
		for j := 0; j < K; j++ {
			best, arg := math.Inf(-1), 0
			for i := 0; i < K; i++ {
				if v := delta[t-1][i] + logA[i][j]; v > best {
					best, arg = v, i
				}
			}
			delta[t][j] = best + h.logEmission(j, obs[t])
			back[t][j] = arg
		}
	}

	path := make([]int, T)
	best := math.Inf(-1)
	for i := 0; i < K; i++ {
		if delta[T-1][i] > best {
			best, path[T-1] = delta[T-1][i], i
		}
	}
	for t := T - 1; t > 0; t-- {
		path[t-1] = back[t][path[t]]
	}
	return path
}

// safeLog returns log(p), mapping p <= 0 to -Inf.
func safeLog(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	return math.Log(p)
}
