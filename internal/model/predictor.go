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

// ErrInsufficientPairs is returned when a sequence has no (x_t, x_t+1) pair.
var ErrInsufficientPairs = errors.New("sequence too short for next-step model")

// Predictor is a ridge regression from one observation to the next.
//
//	x_{t+1} ≈ [x_t, 1] · Weights
//
// Weights has Dimensions+1 rows (the last is the bias) and Dimensions columns.
type Predictor struct {
	Weights [][]float64 `json:"weights"`
	Lambda  float64     `json:"lambda"`
	Pairs   int         `json:"pairs"`

	// ResidualRMS is the root mean squared one-step error on the training pairs.
	ResidualRMS float64 `json:"residual_rms"`
}

// FitPredictor fits the next-step regressor on consecutive pairs of seq
// with L2 penalty lambda. The bias term is not penalized.
func FitPredictor(seq [][]float64, lambda float64) (*Predictor, error) {
	if len(seq) < 2 {
		return nil, ErrInsufficientPairs
	}
	if lambda < 0 {
		return nil, fmt.Errorf("negative ridge lambda %v", lambda)
	}

	D := len(seq[0])
	P := D + 1
	pairs := len(seq) - 1

	// Normal equations: (XᵀX + λI) W = XᵀY
	xtx := newMatrix(P, P)
	xty := newMatrix(P, D)
	row := make([]float64, P)
	for t := 0; t < pairs; t++ {
		if len(seq[t]) != D || len(seq[t+1]) != D {
			return nil, fmt.Errorf("%w at pair %d", ErrDimensionMismatch, t)
		}
		copy(row, seq[t])
		row[D] = 1
		for i := 0; i < P; i++ {
			for j := 0; j < P; j++ {
				xtx[i][j] += row[i] * row[j]
			}
			for j := 0; j < D; j++ {
				xty[i][j] += row[i] * seq[t+1][j]
			}
		}
	}
	for i := 0; i < D; i++ {
		xtx[i][i] += lambda
	}

	inv := invertMatrix(xtx)
	w := newMatrix(P, D)
	for i := 0; i < P; i++ {
		for j := 0; j < D; j++ {
			var s float64
			for k := 0; k < P; k++ {
				s += inv[i][k] * xty[k][j]
			}
			if !finite(s) {
				return nil, fmt.Errorf("non-finite weight at (%d,%d)", i, j)
			}
			w[i][j] = s
		}
	}

	p := &Predictor{Weights: w, Lambda: lambda, Pairs: pairs}

	var sse float64
	for t := 0; t < pairs; t++ {
		pred := p.Predict(seq[t])
		for j := 0; j < D; j++ {
			diff := pred[j] - seq[t+1][j]
			sse += diff * diff
		}
	}
	p.ResidualRMS = math.Sqrt(sse / float64(pairs*D))

	return p, nil
}

// Predict returns the forecast for the observation following x.
func (p *Predictor) Predict(x []float64) []float64 {
	D := len(p.Weights) - 1
	out := make([]float64, len(p.Weights[0]))
	for j := range out {
		s := p.Weights[D][j]
		for i := 0; i < D && i < len(x); i++ {
			s += x[i] * p.Weights[i][j]
		}
		out[j] = s
	}
	return out
}
