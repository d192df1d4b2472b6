// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Tune runs a hyperparameter grid search over the regression model
// families, one remote task per trial, and reports the trials sorted
// by held-out error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/grailbio/bigactor/actorcmd"
	"github.com/grailbio/bigactor/dataset"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/train"
	"github.com/grailbio/bigactor/tune"
)

func main() {
	var (
		n      = flag.Int("n", 10000, "synthetic dataset size")
		noise  = flag.Float64("noise", 0.25, "synthetic noise level")
		names  = flag.String("models", "linear,ridge,lasso", "comma-separated model families")
		alphas = flag.String("alphas", "0.001,0.01,0.1,1", "comma-separated regularization strengths")
	)
	actorcmd.Main(func(sess *exec.Session, args []string) error {
		ctx := context.Background()
		set := dataset.Synthetic(0, *n, 1, []float64{3, -1, 0, 0.5}, *noise)
		trainSet, testSet := set.Split(0.8, 0)

		grid := tune.Grid{Names: strings.Split(*names, ",")}
		for _, s := range strings.Split(*alphas, ",") {
			alpha, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("bad alpha %q: %v", s, err)
			}
			grid.Alphas = append(grid.Alphas, alpha)
		}
		results, err := tune.Run(ctx, sess, grid, trainSet, testSet)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 4, 4, 1, ' ', 0)
		fmt.Fprintln(tw, "trial\tmse\ttime\tstate")
		for _, r := range results {
			if r.State != train.StateOk {
				fmt.Fprintf(tw, "%s\t-\t%s\t%s: %s\n", r.Config, r.Elapsed, r.State, r.Err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%.6f\t%s\t%s\n", r.Config, r.MSE, r.Elapsed, r.State)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		best, err := tune.Best(results)
		if err != nil {
			return err
		}
		fmt.Printf("best: %s (mse %.6f)\n", best.Config, best.MSE)
		return nil
	})
}
