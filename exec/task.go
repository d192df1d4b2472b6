// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor"
)

// ErrTaskLost indicates that a Task was in TaskLost state.
var ErrTaskLost = errors.New("task was lost")

// MaxConsecutiveLost is the maximum number of times a task can be
// lost consecutively before we give up and consider it an
// unrecoverable error.
const maxConsecutiveLost = 5

// TaskState represents the runtime state of a Task. TaskState
// values are defined so that their magnitudes correspond with
// task progression.
type TaskState int

const (
	// TaskInit is the initial state of a task. Tasks in state TaskInit
	// have usually not yet been seen by an executor.
	TaskInit TaskState = iota

	// TaskWaiting indicates that a task has been scheduled for
	// execution (it is runnable) but has not yet been allocated
	// resources by the executor.
	TaskWaiting
	// TaskRunning is the state of a task that's currently being run.
	// After a task is in state TaskRunning, it can only enter a
	// larger-valued state.
	TaskRunning

	// TaskOk indicates that a task has successfully completed;
	// the task's results are available through its future.
	//
	// All TaskState values greater than TaskOk indicate task
	// errors.
	TaskOk

	// TaskErr indicates that the task experienced a failure while
	// running.
	TaskErr
	// TaskLost indicates that the task was lost, usually because
	// the machine to which the task was assigned failed.
	TaskLost

	maxState
)

var states = [...]string{
	TaskInit:    "INIT",
	TaskWaiting: "WAITING",
	TaskRunning: "RUNNING",
	TaskOk:      "OK",
	TaskErr:     "ERROR",
	TaskLost:    "LOST",
}

// String returns the task's state as an upper-case string.
func (s TaskState) String() string {
	return states[s]
}

// A TaskName uniquely names a task within a session by the operation
// it performs and the task's submission index.
type TaskName struct {
	// Op is a string describing the operation that is performed by the
	// task: the name of a func, or actor.Method for actor tasks.
	Op string
	// Index is the task's unique submission index.
	Index uint64
}

// String returns a canonical representation of the task name,
// formatted as:
//
//	{n.Op}[{n.Index}]
func (n TaskName) String() string {
	return fmt.Sprintf("%s[%d]", n.Op, n.Index)
}

// A taskKind discriminates the varieties of work a task can
// represent.
type taskKind int

const (
	// TaskInvoke runs a registered func invocation.
	taskInvoke taskKind = iota
	// TaskActorStart constructs an actor instance.
	taskActorStart
	// TaskActorCall executes a method on an actor instance.
	taskActorCall
	// TaskActorStop tears down an actor instance.
	taskActorStop
)

// nextTaskIndex is the source of task submission indices.
var nextTaskIndex uint64

func newTaskIndex() uint64 {
	return atomic.AddUint64(&nextTaskIndex, 1)
}

// A Task represents a single unit of remote work: a func invocation,
// the construction of an actor, or an actor method call.
//
// Tasks maintain executor state, and are used to coordinate
// execution between futures and a single executor (which may be
// evaluating many tasks concurrently). Tasks thus embed a mutex for
// coordination and provide channel-based broadcasting of runtime
// state changes.
type Task struct {
	// Name is the name of the task. Tasks are named uniquely inside
	// each bigactor session.
	Name TaskName

	// Invocation is the func invocation represented by this task. It
	// is set only for func tasks.
	Invocation bigactor.Invocation

	// The following fields are set only for actor tasks.

	// Actor is the actor type addressed by the task.
	Actor *bigactor.ActorValue
	// ActorID identifies the actor instance addressed by the task.
	ActorID uint64
	// Method is the actor method executed by the task; it is empty
	// for actor construction tasks.
	Method string
	// Args are the task's arguments: constructor arguments for actor
	// construction, method arguments for calls.
	Args []interface{}

	// Status is a status object to which task status is reported. It
	// may be nil.
	Status *status.Task

	kind taskKind

	// The following are used to coordinate runtime execution.

	sync.Mutex
	waitc chan struct{}

	// State is the task's state. It is protected by the task's lock
	// and state changes are also broadcast on the task's wait channel.
	state TaskState
	// Err is defined when state == TaskErr.
	err error
	// Results are the task's results, defined when state == TaskOk.
	results []interface{}

	// consecutiveLost is the number of times this task has been run
	// and lost consecutively. See maxConsecutiveLost.
	consecutiveLost int

	statusDone sync.Once
}

// String returns a short, human-readable string describing the
// task's state.
func (t *Task) String() string {
	// We play fast-and-loose with concurrency here (we read state and
	// err without holding the task's mutex) so that it is safe to call
	// String even when the lock is held.
	var b bytes.Buffer
	fmt.Fprintf(&b, "task %s %s", t.Name, t.state)
	if t.err != nil {
		fmt.Fprintf(&b, ": %v", t.err)
	}
	return b.String()
}

// Set sets the task's state to the provided state and notifies
// any waiters.
func (t *Task) Set(state TaskState) {
	t.Lock()
	t.state = state
	t.Broadcast()
	t.Unlock()
}

// Done marks the task TaskOk with the provided results, notifying
// any waiters.
func (t *Task) Done(results []interface{}) {
	t.Lock()
	t.results = results
	t.state = TaskOk
	t.Broadcast()
	t.Unlock()
	t.finishStatus()
}

// Error sets the task's state to TaskErr and its error to the
// provided error. Waiters are notified.
func (t *Task) Error(err error) {
	t.Lock()
	t.state = TaskErr
	t.err = err
	if t.Status != nil {
		t.Status.Print(err.Error())
	}
	t.Broadcast()
	t.Unlock()
	t.finishStatus()
}

// Errorf formats an error message using fmt.Errorf, sets the task's
// state to TaskErr and its err to the resulting error message.
func (t *Task) Errorf(format string, v ...interface{}) {
	t.Error(fmt.Errorf(format, v...))
}

// Err returns an error if the task's state is >= TaskErr. When the
// state is > TaskErr, Err returns an error describing the task's
// failed state, otherwise, t.err is returned.
func (t *Task) Err() error {
	t.Lock()
	defer t.Unlock()
	switch t.state {
	case TaskErr:
		if t.err == nil {
			panic("TaskErr without an err")
		}
		return t.err
	case TaskLost:
		return ErrTaskLost
	}
	if t.state >= TaskErr {
		panic("unhandled state")
	}
	return nil
}

// State returns the task's current state.
func (t *Task) State() TaskState {
	t.Lock()
	state := t.state
	t.Unlock()
	return state
}

// Results returns the task's results. Results must only be called
// after the task has entered state TaskOk.
func (t *Task) Results() []interface{} {
	t.Lock()
	defer t.Unlock()
	if t.state != TaskOk {
		panic(fmt.Sprintf("results of %s", t))
	}
	return t.results
}

// Broadcast notifies waiters of a state change. Broadcast must only
// be called while the task's lock is held.
func (t *Task) Broadcast() {
	if t.waitc != nil {
		close(t.waitc)
		t.waitc = nil
	}
}

// Wait returns after the next call to Broadcast, or if the context
// is complete. The task's lock must be held when calling Wait.
func (t *Task) Wait(ctx context.Context) error {
	if t.waitc == nil {
		t.waitc = make(chan struct{})
	}
	waitc := t.waitc
	t.Unlock()
	var err error
	select {
	case <-waitc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	t.Lock()
	return err
}

// WaitState returns when the task's state is at least the provided
// state, or else when the context is done.
func (t *Task) WaitState(ctx context.Context, state TaskState) (TaskState, error) {
	t.Lock()
	defer t.Unlock()
	var err error
	for t.state < state && err == nil {
		err = t.Wait(ctx)
	}
	return t.state, err
}

// reinit prepares a lost task for resubmission, accounting for the
// loss. It reports whether the task may be retried.
func (t *Task) reinit() bool {
	t.Lock()
	defer t.Unlock()
	if t.state != TaskLost {
		// Someone else has already reinitialized it.
		return true
	}
	t.consecutiveLost++
	if t.consecutiveLost >= maxConsecutiveLost {
		return false
	}
	t.state = TaskInit
	return true
}

func (t *Task) finishStatus() {
	if t.Status == nil {
		return
	}
	t.statusDone.Do(t.Status.Done)
}
