// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package progress

import (
	"context"
	"time"

	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor/exec"
)

// Watch polls the tracker behind the provided handle until it
// reports completion, the context is done, or a call fails. If task
// is non-nil, progress is reported to it after each poll.
func Watch(ctx context.Context, h *exec.ActorHandle, task *status.Task, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	// A tracker expecting no work never reaches a ratio of 1;
	// there is nothing to watch.
	var expected int64
	if err := h.Call(ctx, "Expected").Result(ctx, &expected); err != nil {
		return err
	}
	if expected <= 0 {
		if task != nil {
			task.Print("nothing to do")
		}
		return nil
	}
	for {
		var (
			ratio     float64
			completed int64
		)
		if err := h.Call(ctx, "Ratio").Result(ctx, &ratio); err != nil {
			return err
		}
		if err := h.Call(ctx, "Completed").Result(ctx, &completed); err != nil {
			return err
		}
		if task != nil {
			task.Printf("%d done (%.0f%%)", completed, 100*ratio)
		}
		if ratio >= 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
