// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Infer demonstrates batch inference over a pool of actors: a model
// is fitted once, replicated onto a fixed-size pool of scorer
// actors, and a batch of inputs is spread across the replicas.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/grailbio/bigactor/actorcmd"
	"github.com/grailbio/bigactor/dataset"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/model"
	"github.com/grailbio/bigactor/serve"
)

func main() {
	var (
		n    = flag.Int("n", 20000, "dataset size")
		size = flag.Int("pool", 4, "number of scorer replicas")
	)
	actorcmd.Main(func(sess *exec.Session, args []string) error {
		ctx := context.Background()
		set := dataset.Synthetic(0, *n, 0.5, []float64{2, -3}, 0.1)
		trainSet, testSet := set.Split(0.8, 0)
		m, err := model.Train(model.Config{Name: "linear"}, trainSet.Features, trainSet.Targets)
		if err != nil {
			return err
		}

		pool, err := sess.NewPool(ctx, serve.ScorerActor, *size, m)
		if err != nil {
			return err
		}
		defer pool.Close(ctx)

		inputs := make([]interface{}, testSet.Len())
		for i, x := range testSet.Features {
			inputs[i] = x
		}
		begin := time.Now()
		predictions, err := pool.Map(ctx, "Predict", inputs)
		if err != nil {
			return err
		}
		var sum float64
		for i, p := range predictions {
			d := p.(float64) - testSet.Targets[i]
			sum += d * d
		}
		fmt.Printf("scored %d inputs across %d replicas in %s (rmse %.4f)\n",
			len(inputs), pool.Size(), time.Since(begin), math.Sqrt(sum/float64(len(inputs))))
		return nil
	})
}
