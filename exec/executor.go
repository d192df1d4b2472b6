// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec implements sessions and executors for bigactor tasks
// and actors. Executors run single tasks: remote func invocations,
// actor construction, and actor method calls. The local executor
// runs tasks in-process; the bigmachine executor distributes them
// across a cluster of bigmachine-managed machines.
package exec

import (
	"net/http"
)

// Executor defines an interface used to provide implementations of
// task runners. An Executor is responsible for running single tasks
// and for hosting the actor instances that actor tasks address.
type Executor interface {
	// Name returns a human-readable name for the executor.
	Name() string

	// Start starts the executor. It is called before evaluation has
	// started and after all funcs and actors have been registered.
	// Start need not return: the bigmachine implementation of Executor
	// uses Start as an entry point for worker processes.
	Start(*Session) (shutdown func())

	// Runnable marks the task as runnable. After a call to Runnable,
	// the Task should have state >= TaskWaiting. The executor owns
	// the task after calling Runnable, and only the executor should
	// modify the task's state.
	Runnable(*Task)

	// HandleDebug adds executor-specific debug handlers to the
	// provided http.ServeMux. This is used to serve diagnostic
	// information relating to the executor.
	HandleDebug(handler *http.ServeMux)
}
