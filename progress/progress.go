// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package progress provides a tracker actor used to follow the
// progress of long-running distributed computations. Remote tasks
// report completed work to a shared tracker instance; the driver
// polls the tracker to display progress to the user.
package progress

import (
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/stats"
)

// A Tracker accumulates completed work against an expected total.
// Trackers are used through actor handles, which serialize method
// execution, so a Tracker needs no locking of its own.
type Tracker struct {
	expected int64
	stats    *stats.Map
	ratio    *stats.Float
}

// ActorType is the tracker's registered actor type. The constructor
// takes the expected amount of total work.
var ActorType = bigactor.Actor("progress", New)

// New returns a fresh tracker expecting the provided amount of work.
func New(expected int64) *Tracker {
	t := &Tracker{expected: expected, stats: stats.NewMap()}
	t.ratio = t.stats.Float("ratio")
	return t
}

// Add records n units of completed work, returning the new completed
// total. Work beyond the expected total is counted, but Ratio stays
// clamped.
func (t *Tracker) Add(n int64) int64 {
	completed := t.stats.Int("completed")
	completed.Add(n)
	t.ratio.Set(clamp(completed.Get(), t.expected))
	return completed.Get()
}

// Completed returns the amount of completed work.
func (t *Tracker) Completed() int64 {
	return t.stats.Int("completed").Get()
}

// Expected returns the expected total amount of work.
func (t *Tracker) Expected() int64 {
	return t.expected
}

// Ratio returns the fraction of work completed, in [0, 1]. A tracker
// expecting no work reports 0.
func (t *Tracker) Ratio() float64 {
	return t.ratio.Get()
}

func clamp(completed, expected int64) float64 {
	if expected <= 0 {
		return 0
	}
	r := float64(completed) / float64(expected)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
