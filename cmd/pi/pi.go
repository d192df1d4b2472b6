// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Pi estimates the value of π by distributed Monte Carlo sampling:
// batches of uniform draws in the unit square are submitted as
// remote tasks, and a progress actor follows the computation as
// batches complete.
//
// Run it locally:
//
//	pi -samples 10000000
//
// or against bigmachine's local system:
//
//	pi -system internal -samples 10000000
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/actorcmd"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigactor/progress"
	"golang.org/x/sync/errgroup"
)

// SampleBatch draws n points uniformly from the unit square,
// returning the number that fall inside the unit quarter circle.
var sampleBatch = bigactor.Func(func(seed int64, n int64) int64 {
	r := rand.New(rand.NewSource(seed))
	var inside int64
	for i := int64(0); i < n; i++ {
		x, y := r.Float64(), r.Float64()
		if x*x+y*y < 1 {
			inside++
		}
	}
	return inside
})

func main() {
	var (
		samples = flag.Int64("samples", 10e6, "total number of samples to draw")
		batches = flag.Int("batches", 32, "number of sampling tasks")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "sampling seed")
	)
	actorcmd.Main(func(sess *exec.Session, args []string) error {
		ctx := context.Background()
		tracker, err := sess.NewActor(ctx, progress.ActorType, int64(*batches))
		if err != nil {
			return err
		}
		defer tracker.Close(ctx)
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			stat := sess.Status().Group("pi").Start("sampling")
			defer stat.Done()
			if err := progress.Watch(ctx, tracker, stat, time.Second); err != nil {
				log.Error.Printf("progress: %v", err)
			}
		}()

		var (
			batch   = *samples / int64(*batches)
			futures = make([]*exec.Future, *batches)
		)
		for i := range futures {
			futures[i] = sess.Submit(sampleBatch, *seed+int64(i), batch)
		}
		var (
			g      errgroup.Group
			counts = make([]int64, len(futures))
		)
		for i, fut := range futures {
			i, fut := i, fut
			g.Go(func() error {
				if err := fut.Result(ctx, &counts[i]); err != nil {
					return err
				}
				return tracker.Call(ctx, "Add", int64(1)).Wait(ctx)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		<-watchDone
		var inside, total int64
		for _, c := range counts {
			inside += c
		}
		total = batch * int64(*batches)
		fmt.Printf("π ≈ %v (%d samples)\n", 4*float64(inside)/float64(total), total)
		return nil
	})
}
