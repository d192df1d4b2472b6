// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package train implements supervised training of model families as
// remote tasks. A Supervisor fans training work out through a
// session, one task per model configuration, and collects the
// results. Failures are recorded per result: one bad configuration
// does not abort the rest.
package train

import (
	"context"
	"sort"
	"time"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/dataset"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/model"
)

// States a Result can report.
const (
	StateOk    = "ok"
	StateError = "error"
)

// A Result records the outcome of training a single configuration.
type Result struct {
	// Config is the trained configuration.
	Config model.Config
	// Model is the fitted model; it is nil when State is "error".
	Model *model.Linear
	// MSE is the fitted model's error on the held-out test set.
	MSE float64
	// Elapsed is the training wall time.
	Elapsed time.Duration
	// State is "ok" or "error".
	State string
	// Err holds the error message when State is "error".
	Err string
}

// Fit is the remote training task: it fits one configuration and
// evaluates it on the test set. Training failures are folded into
// the returned result so that the supervisor can report them
// per-configuration.
var fit = bigactor.Func(func(c model.Config, trainSet, testSet *dataset.Set) Result {
	begin := time.Now()
	r := Result{Config: c, State: StateOk}
	m, err := model.Train(c, trainSet.Features, trainSet.Targets)
	if err != nil {
		return Result{Config: c, State: StateError, Err: err.Error(), Elapsed: time.Since(begin)}
	}
	mse, err := model.MSE(m, testSet.Features, testSet.Targets)
	if err != nil {
		return Result{Config: c, State: StateError, Err: err.Error(), Elapsed: time.Since(begin)}
	}
	r.Model, r.MSE, r.Elapsed = m, mse, time.Since(begin)
	return r
})

// A Supervisor trains sets of model configurations through a
// session.
type Supervisor struct {
	sess *exec.Session
}

// New returns a supervisor that trains through the provided session.
func New(sess *exec.Session) *Supervisor {
	return &Supervisor{sess: sess}
}

// Train fits every provided configuration concurrently, evaluating
// each on the test set, and returns one result per configuration
// sorted by test error (failed configurations last). Train returns
// an error only on infrastructure failure; per-configuration
// training errors are reported in the results.
func (s *Supervisor) Train(ctx context.Context, configs []model.Config, trainSet, testSet *dataset.Set) ([]Result, error) {
	futures := make([]*exec.Future, len(configs))
	for i, c := range configs {
		futures[i] = s.sess.Submit(fit, c, trainSet, testSet)
	}
	results := make([]Result, len(configs))
	err := traverse.Each(len(futures), func(i int) error {
		return futures[i].Result(ctx, &results[i])
	})
	if err != nil {
		return nil, err
	}
	Sort(results)
	return results, nil
}

// Sort orders results by ascending test error, with failed results
// after all successful ones.
func Sort(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].State != results[j].State {
			return results[i].State == StateOk
		}
		return results[i].MSE < results[j].MSE
	})
}
