// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"math"
	"testing"

	"github.com/grailbio/bigactor/exec"
)

func TestSampleBatch(t *testing.T) {
	const n = 100000
	sess := exec.Start(exec.Local)
	defer sess.Shutdown()
	ctx := context.Background()
	var inside int64
	if err := sess.Submit(sampleBatch, int64(42), int64(n)).Result(ctx, &inside); err != nil {
		t.Fatal(err)
	}
	estimate := 4 * float64(inside) / n
	if diff := math.Abs(estimate - math.Pi); diff > 0.05 {
		t.Errorf("estimate %v is off by %v", estimate, diff)
	}
}
