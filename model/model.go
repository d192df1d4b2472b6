// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package model implements the small family of regression models
// used by the bigactor examples: ordinary least squares, ridge, and
// lasso. Models are gob-serializable so that they can be passed to
// and returned from remote tasks and actors.
package model

import (
	"encoding/gob"
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"gonum.org/v1/gonum/mat"
)

func init() {
	gob.Register(&Linear{})
}

// Names lists the supported model families.
var Names = []string{"linear", "ridge", "lasso"}

// A Config names a model family together with its hyperparameters.
type Config struct {
	// Name is the model family: one of "linear", "ridge", or "lasso".
	Name string
	// Alpha is the regularization strength. It is ignored by "linear".
	Alpha float64
}

// String returns a short description of the configuration, suitable
// for naming tasks and trials.
func (c Config) String() string {
	if c.Name == "linear" {
		return c.Name
	}
	return fmt.Sprintf("%s(alpha=%g)", c.Name, c.Alpha)
}

// A Linear is a fitted linear model: a weight per feature plus an
// intercept. All fields are exported so that fitted models cross
// process boundaries intact.
type Linear struct {
	// Family is the configuration that produced the model.
	Family Config
	// Intercept is the model's bias term.
	Intercept float64
	// Weights are the per-feature coefficients.
	Weights []float64
}

// Predict returns the model's prediction for the provided feature
// vector. Predict returns an error if the feature dimension does not
// match the model's.
func (m *Linear) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, errors.E(errors.Invalid,
			fmt.Sprintf("predict: model has %d features, got %d", len(m.Weights), len(x)))
	}
	y := m.Intercept
	for i, w := range m.Weights {
		y += w * x[i]
	}
	return y, nil
}

// Train fits a model of the configured family to the provided data.
// Unknown family names and malformed data are reported as invalid
// errors.
func Train(c Config, xs [][]float64, ys []float64) (*Linear, error) {
	if err := validate(xs, ys); err != nil {
		return nil, err
	}
	switch c.Name {
	case "linear":
		return ols(c, xs, ys, 0)
	case "ridge":
		return ols(c, xs, ys, c.Alpha)
	case "lasso":
		return lasso(c, xs, ys)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("unsupported model name %q", c.Name))
	}
}

// MSE returns the model's mean squared error on the provided data.
func MSE(m *Linear, xs [][]float64, ys []float64) (float64, error) {
	if err := validate(xs, ys); err != nil {
		return 0, err
	}
	var sum float64
	for i, x := range xs {
		y, err := m.Predict(x)
		if err != nil {
			return 0, err
		}
		d := y - ys[i]
		sum += d * d
	}
	return sum / float64(len(ys)), nil
}

func validate(xs [][]float64, ys []float64) error {
	if len(xs) == 0 {
		return errors.E(errors.Invalid, "no training data")
	}
	if len(xs) != len(ys) {
		return errors.E(errors.Invalid,
			fmt.Sprintf("%d feature rows but %d targets", len(xs), len(ys)))
	}
	d := len(xs[0])
	if d == 0 {
		return errors.E(errors.Invalid, "zero-dimensional features")
	}
	for i, x := range xs {
		if len(x) != d {
			return errors.E(errors.Invalid,
				fmt.Sprintf("row %d has %d features, row 0 has %d", i, len(x), d))
		}
	}
	return nil
}

// Design assembles the design matrix with a leading intercept
// column.
func design(xs [][]float64) *mat.Dense {
	n, d := len(xs), len(xs[0])
	x := mat.NewDense(n, d+1, nil)
	for i, row := range xs {
		x.Set(i, 0, 1)
		for j, v := range row {
			x.Set(i, j+1, v)
		}
	}
	return x
}

// Ols fits by (regularized) least squares. With alpha == 0 the
// normal equations are skipped in favor of a direct least-squares
// solve, which is better conditioned.
func ols(c Config, xs [][]float64, ys []float64, alpha float64) (*Linear, error) {
	var (
		x    = design(xs)
		y    = mat.NewVecDense(len(ys), ys)
		beta mat.VecDense
	)
	if alpha == 0 {
		if err := beta.SolveVec(x, y); err != nil {
			return nil, errors.E(fmt.Sprintf("fit %s", c), err)
		}
	} else {
		_, cols := x.Dims()
		var ata mat.Dense
		ata.Mul(x.T(), x)
		// The intercept is not penalized.
		for i := 1; i < cols; i++ {
			ata.Set(i, i, ata.At(i, i)+alpha)
		}
		var atb mat.VecDense
		atb.MulVec(x.T(), y)
		if err := beta.SolveVec(&ata, &atb); err != nil {
			return nil, errors.E(fmt.Sprintf("fit %s", c), err)
		}
	}
	return fromVec(c, &beta), nil
}

// Lasso hyperparameters. The iteration budget is generous relative
// to the example-sized datasets this package serves.
const (
	lassoMaxIter = 2000
	lassoTol     = 1e-8
)

// Lasso fits by ISTA: gradient steps on the squared loss followed by
// soft thresholding, with the intercept left unpenalized.
func lasso(c Config, xs [][]float64, ys []float64) (*Linear, error) {
	var (
		x       = design(xs)
		y       = mat.NewVecDense(len(ys), ys)
		n, cols = x.Dims()
	)
	// A safe step size: the gradient of (1/n)||Xb - y||^2 is
	// Lipschitz with constant (2/n)*smax^2 <= (2/n)*||X||_F^2.
	fro := mat.Norm(x, 2)
	if fro == 0 {
		return nil, errors.E(errors.Invalid, "degenerate design matrix")
	}
	step := float64(n) / (2 * fro * fro)
	beta := mat.NewVecDense(cols, nil)
	var resid, grad mat.VecDense
	for iter := 0; iter < lassoMaxIter; iter++ {
		resid.MulVec(x, beta)
		resid.SubVec(&resid, y)
		grad.MulVec(x.T(), &resid)
		grad.ScaleVec(2/float64(n), &grad)
		var delta float64
		for i := 0; i < cols; i++ {
			b := beta.AtVec(i) - step*grad.AtVec(i)
			if i > 0 {
				b = soft(b, step*c.Alpha)
			}
			delta += math.Abs(b - beta.AtVec(i))
			beta.SetVec(i, b)
		}
		if delta < lassoTol {
			break
		}
	}
	return fromVec(c, beta), nil
}

func soft(b, thresh float64) float64 {
	switch {
	case b > thresh:
		return b - thresh
	case b < -thresh:
		return b + thresh
	default:
		return 0
	}
}

func fromVec(c Config, beta *mat.VecDense) *Linear {
	weights := make([]float64, beta.Len()-1)
	for i := range weights {
		weights[i] = beta.AtVec(i + 1)
	}
	return &Linear{Family: c, Intercept: beta.AtVec(0), Weights: weights}
}
