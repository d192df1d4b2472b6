// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package tune implements hyperparameter grid search over the model
// families in package model. A grid expands into concrete trial
// configurations; trials run as remote tasks through a session,
// whose parallelism setting bounds concurrent trials.
package tune

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigactor/dataset"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/model"
	"github.com/grailbio/bigactor/train"
)

// A Grid describes the hyperparameter search space: the cross
// product of model families and regularization strengths.
type Grid struct {
	// Names are the model families to try.
	Names []string
	// Alphas are the regularization strengths to try. Families that
	// ignore regularization ("linear") contribute a single trial
	// regardless of Alphas.
	Alphas []float64
}

// Expand returns the grid's concrete trial configurations. The
// number of configurations is the product of the axis cardinalities,
// less the collapsed duplicates of unregularized families.
func (g Grid) Expand() []model.Config {
	var configs []model.Config
	seen := make(map[string]bool)
	for _, name := range g.Names {
		alphas := g.Alphas
		if name == "linear" || len(alphas) == 0 {
			alphas = []float64{0}
		}
		for _, alpha := range alphas {
			c := model.Config{Name: name, Alpha: alpha}
			if name == "linear" {
				c.Alpha = 0
			}
			if seen[c.String()] {
				continue
			}
			seen[c.String()] = true
			configs = append(configs, c)
		}
	}
	return configs
}

// Run expands the grid and trains every trial through the provided
// session, returning one result per trial sorted by test error.
func Run(ctx context.Context, sess *exec.Session, g Grid, trainSet, testSet *dataset.Set) ([]train.Result, error) {
	configs := g.Expand()
	if len(configs) == 0 {
		return nil, errors.E(errors.Invalid, "empty hyperparameter grid")
	}
	return train.New(sess).Train(ctx, configs, trainSet, testSet)
}

// Best returns the successful result with the lowest test error.
func Best(results []train.Result) (train.Result, error) {
	best, ok := train.Result{}, false
	for _, r := range results {
		if r.State != train.StateOk {
			continue
		}
		if !ok || r.MSE < best.MSE {
			best, ok = r, true
		}
	}
	if !ok {
		return train.Result{}, errors.E(errors.NotExist, "no successful trials")
	}
	return best, nil
}
