// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Serve fits a model and deploys it behind the online inference
// endpoint. Predictions are answered by a pool of scorer actors:
//
//	serve -addr :8080 &
//	curl -d '{"features": [1, 2]}' localhost:8080/predict
package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bigactor/actorcmd"
	"github.com/grailbio/bigactor/dataset"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/model"
	"github.com/grailbio/bigactor/serve"
)

func main() {
	var (
		addr  = flag.String("addr", ":8080", "inference endpoint address")
		size  = flag.Int("pool", 2, "number of scorer replicas")
		name  = flag.String("model", "ridge", "model family to deploy")
		alpha = flag.Float64("alpha", 0.1, "regularization strength")
	)
	actorcmd.Main(func(sess *exec.Session, args []string) error {
		ctx := context.Background()
		set := dataset.Synthetic(0, 10000, 0.5, []float64{2, -3}, 0.1)
		trainSet, _ := set.Split(0.8, 0)
		c := model.Config{Name: *name, Alpha: *alpha}
		m, err := model.Train(c, trainSet.Features, trainSet.Targets)
		if err != nil {
			return err
		}

		predictor, closer, err := serve.Pool(ctx, sess, m, *size)
		if err != nil {
			return err
		}
		defer closer(ctx)

		srv := serve.NewServer()
		srv.Deploy(predictor, c.String())
		log.Printf("serving %s on %s", c, *addr)
		return http.ListenAndServe(*addr, srv)
	})
}
