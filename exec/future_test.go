// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
)

// A flakyExecutor loses the first failures tasks it is given, then
// runs the rest to completion, reporting the total run count as each
// task's single result.
type flakyExecutor struct {
	mu       sync.Mutex
	failures int
	runs     int
}

func (*flakyExecutor) Name() string { return "flaky" }

func (*flakyExecutor) Start(*Session) func() { return func() {} }

func (*flakyExecutor) HandleDebug(*http.ServeMux) {}

func (e *flakyExecutor) Runnable(task *Task) {
	e.mu.Lock()
	e.runs++
	runs := e.runs
	lose := e.failures > 0
	if lose {
		e.failures--
	}
	e.mu.Unlock()
	task.Set(TaskRunning)
	if lose {
		task.Set(TaskLost)
		return
	}
	task.Done([]interface{}{runs})
}

func flakySession(failures int) (*Session, *flakyExecutor) {
	ex := &flakyExecutor{failures: failures}
	sess := newSession()
	sess.executor = ex
	return sess, ex
}

func invokeTask(op string) *Task {
	return &Task{
		Name: TaskName{Op: op, Index: newTaskIndex()},
		kind: taskInvoke,
	}
}

func TestFutureResubmitsLostTask(t *testing.T) {
	ctx := context.Background()
	sess, ex := flakySession(2)
	task := invokeTask("flaky")
	sess.executor.Runnable(task)
	fut := &Future{task: task, sess: sess}
	var runs int
	if err := fut.Result(ctx, &runs); err != nil {
		t.Fatal(err)
	}
	// Two losses, then success on the third run.
	if got, want := runs, 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := ex.runs, 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFutureTooManyLosses(t *testing.T) {
	ctx := context.Background()
	sess, ex := flakySession(2 * maxConsecutiveLost)
	task := invokeTask("flaky")
	sess.executor.Runnable(task)
	err := (&Future{task: task, sess: sess}).Wait(ctx)
	if !errors.Is(errors.TooManyTries, err) {
		t.Errorf("got %v, want TooManyTries", err)
	}
	if got, want := ex.runs, maxConsecutiveLost; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFutureActorTaskLost(t *testing.T) {
	ctx := context.Background()
	sess, ex := flakySession(1)
	// Actor tasks are lost together with their instance's state, so
	// they are never resubmitted.
	task := &Task{
		Name: TaskName{Op: "counter.Get", Index: newTaskIndex()},
		kind: taskActorCall,
	}
	sess.executor.Runnable(task)
	err := (&Future{task: task, sess: sess}).Wait(ctx)
	if !errors.Is(errors.Unavailable, err) {
		t.Errorf("got %v, want Unavailable", err)
	}
	if got, want := ex.runs, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
