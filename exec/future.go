// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigactor/typecheck"
)

// A Future represents the pending result of a submitted task. It is
// returned by Session.Submit and by actor calls. Futures may be
// waited on concurrently by multiple goroutines.
type Future struct {
	task *Task
	sess *Session
}

// Wait blocks until the underlying task has completed, returning the
// task's error, if any. Tasks lost to machine failure are
// resubmitted transparently, up to a bound, after which the loss is
// reported as an error.
func (f *Future) Wait(ctx context.Context) error {
	task := f.task
	for {
		state, err := task.WaitState(ctx, TaskOk)
		if err != nil {
			return err
		}
		switch state {
		case TaskOk:
			return nil
		case TaskErr:
			return task.Err()
		case TaskLost:
			// Only func tasks can be retried: they are pure by
			// convention, while actor tasks are lost together with
			// their instance's state.
			if task.kind == taskInvoke {
				if task.reinit() {
					log.Printf("resubmitting lost task %s", task.Name)
					f.sess.executor.Runnable(task)
					continue
				}
				task.Error(errors.E(errors.TooManyTries, fmt.Sprintf("task %s", task.Name), ErrTaskLost))
			} else {
				task.Error(errors.E(errors.Unavailable, fmt.Sprintf("actor task %s lost with its instance", task.Name)))
			}
			return task.Err()
		default:
			return errors.E(errors.Invalid, "unexpected task state", task.String())
		}
	}
}

// Err waits for the task to complete and returns its error, if any.
// It is a synonym for Wait, provided for symmetry with Result.
func (f *Future) Err(ctx context.Context) error {
	return f.Wait(ctx)
}

// Result waits for the task to complete and stores its results into
// the provided pointers. The number of pointers must match the
// task's result arity; each must be a pointer whose element type
// matches the corresponding result (a *interface{} accepts any
// result). Result panics with a type error on mismatch; errors from
// the task itself are returned.
func (f *Future) Result(ctx context.Context, ptrs ...interface{}) error {
	if err := f.Wait(ctx); err != nil {
		return err
	}
	results := f.task.Results()
	if len(ptrs) != len(results) {
		typecheck.Panicf(1, "wrong number of results: task %s has %d results, got %d pointers",
			f.task.Name, len(results), len(ptrs))
	}
	for i, ptr := range ptrs {
		pv := reflect.ValueOf(ptr)
		if pv.Kind() != reflect.Ptr {
			typecheck.Panicf(1, "result %d: %T is not a pointer", i, ptr)
		}
		ev := pv.Elem()
		rv := reflect.ValueOf(results[i])
		if results[i] == nil {
			ev.Set(reflect.Zero(ev.Type()))
			continue
		}
		if ev.Kind() != reflect.Interface && rv.Type() != ev.Type() {
			typecheck.Panicf(1, "result %d: cannot assign %s to %s", i, rv.Type(), ev.Type())
		}
		ev.Set(rv)
	}
	return nil
}

// Task returns the future's underlying task. It is intended for
// status display and debugging.
func (f *Future) Task() *Task {
	return f.task
}
