// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Train fits a set of regression models concurrently under a
// supervisor and reports their held-out errors. The dataset is
// either synthetic (the default) or a CSV file readable through
// base/file, so s3:// paths work:
//
//	train -data s3://bucket/data.csv -system internal
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grailbio/bigactor/actorcmd"
	"github.com/grailbio/bigactor/dataset"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/model"
	"github.com/grailbio/bigactor/train"
)

func main() {
	var (
		data  = flag.String("data", "", "CSV dataset path; empty for synthetic data")
		n     = flag.Int("n", 10000, "synthetic dataset size")
		noise = flag.Float64("noise", 0.1, "synthetic noise level")
		alpha = flag.Float64("alpha", 0.1, "regularization strength for ridge and lasso")
	)
	actorcmd.Main(func(sess *exec.Session, args []string) error {
		ctx := context.Background()
		var (
			set *dataset.Set
			err error
		)
		if *data != "" {
			if set, err = dataset.ReadCSV(ctx, *data); err != nil {
				return err
			}
		} else {
			set = dataset.Synthetic(0, *n, 0.5, []float64{2, -3, 0.25}, *noise)
		}
		trainSet, testSet := set.Split(0.8, 0)

		configs := []model.Config{
			{Name: "linear"},
			{Name: "ridge", Alpha: *alpha},
			{Name: "lasso", Alpha: *alpha},
		}
		results, err := train.New(sess).Train(ctx, configs, trainSet, testSet)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 4, 4, 1, ' ', 0)
		fmt.Fprintln(tw, "model\tmse\ttime\tstate")
		for _, r := range results {
			if r.State != train.StateOk {
				fmt.Fprintf(tw, "%s\t-\t%s\t%s: %s\n", r.Config, r.Elapsed, r.State, r.Err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%.6f\t%s\t%s\n", r.Config, r.MSE, r.Elapsed, r.State)
		}
		return tw.Flush()
	})
}
