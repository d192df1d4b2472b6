// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/typecheck"
)

// HandleQueueDepth is the default number of pending calls an actor
// handle buffers before callers block. Blocking provides backpressure
// against actors that cannot keep up with their callers. See the
// ActorQueue session option.
const handleQueueDepth = 64

// nextActorID is the source of session-unique actor instance IDs.
var nextActorID uint64

// An ActorHandle addresses a single remote actor instance. Calls
// made through a handle are delivered to the instance in call order
// and executed one at a time; concurrent callers are safe. Handles
// are created by Session.NewActor.
type ActorHandle struct {
	sess   *Session
	actor  *bigactor.ActorValue
	id     uint64
	status *status.Task

	queue chan *Task

	mu      sync.Mutex
	err     error
	closed  bool
	sending sync.WaitGroup
}

func newActorHandle(sess *Session, actor *bigactor.ActorValue) *ActorHandle {
	h := &ActorHandle{
		sess:  sess,
		actor: actor,
		id:    atomic.AddUint64(&nextActorID, 1),
		queue: make(chan *Task, sess.queueDepth),
	}
	go h.pump()
	return h
}

// ID returns the instance's session-unique ID.
func (h *ActorHandle) ID() uint64 { return h.id }

// Actor returns the handle's actor type.
func (h *ActorHandle) Actor() *bigactor.ActorValue { return h.actor }

// String returns a short, human-readable description of the handle.
func (h *ActorHandle) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.err != nil:
		return fmt.Sprintf("%s[%d] failed: %v", h.actor.Name(), h.id, h.err)
	case h.closed:
		return fmt.Sprintf("%s[%d] closed", h.actor.Name(), h.id)
	default:
		return fmt.Sprintf("%s[%d] ok", h.actor.Name(), h.id)
	}
}

// Call submits an invocation of the named method applied to the
// provided arguments, returning a future for its results. Call
// panics with a type error if the method does not exist or the
// arguments mismatch; method errors are reported through the future.
// Calls are delivered in submission order and executed serially.
func (h *ActorHandle) Call(ctx context.Context, method string, args ...interface{}) *Future {
	if _, file, line, ok := runtime.Caller(1); ok {
		defer typecheck.Location(file, line)
	}
	h.actor.TypecheckCall(method, args)
	return h.enqueue(&Task{
		Name:    TaskName{Op: h.actor.Name() + "." + method, Index: newTaskIndex()},
		Actor:   h.actor,
		ActorID: h.id,
		Method:  method,
		Args:    args,
		kind:    taskActorCall,
	})
}

// Close stops the actor instance, releasing its resources on the
// hosting executor. Pending calls submitted before Close are
// delivered first. Calls made after Close fail.
func (h *ActorHandle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	// Calls that were admitted before we marked the handle closed may
	// still be sending on the queue. Wait them out so that closing the
	// queue below cannot race a send.
	h.sending.Wait()
	stop := h.enqueueLocked(&Task{
		Name:    TaskName{Op: h.actor.Name() + ".stop", Index: newTaskIndex()},
		Actor:   h.actor,
		ActorID: h.id,
		kind:    taskActorStop,
	})
	err := stop.Wait(ctx)
	close(h.queue)
	if h.status != nil {
		h.status.Done()
	}
	return err
}

// Enqueue submits the task through the handle's mailbox, returning
// a future for it. Calls made after the handle has failed or been
// closed fail immediately.
func (h *ActorHandle) enqueue(task *Task) *Future {
	h.mu.Lock()
	if err := h.err; err != nil {
		h.mu.Unlock()
		task.Error(err)
		return &Future{task: task, sess: h.sess}
	}
	if h.closed {
		h.mu.Unlock()
		task.Error(errors.E(errors.NotExist, fmt.Sprintf("actor %s[%d] is closed", h.actor.Name(), h.id)))
		return &Future{task: task, sess: h.sess}
	}
	// Registered under the lock, so that Close observes either the
	// closed flag or the in-flight send, never neither.
	h.sending.Add(1)
	h.mu.Unlock()
	h.queue <- task
	h.sending.Done()
	return &Future{task: task, sess: h.sess}
}

// EnqueueLocked is enqueue for tasks that must be admitted even
// after the handle has been marked closed (the stop task itself).
func (h *ActorHandle) enqueueLocked(task *Task) *Future {
	h.mu.Lock()
	if err := h.err; err != nil {
		h.mu.Unlock()
		task.Error(err)
		return &Future{task: task, sess: h.sess}
	}
	h.mu.Unlock()
	h.queue <- task
	return &Future{task: task, sess: h.sess}
}

// Pump is the handle's delivery loop: it dispatches queued tasks to
// the session's executor one at a time, waiting for each to complete
// before dispatching the next. This, together with worker-side
// instance locking, provides the actor's serial execution guarantee.
func (h *ActorHandle) pump() {
	ctx := backgroundcontext.Get()
	for task := range h.queue {
		h.mu.Lock()
		err := h.err
		h.mu.Unlock()
		if err != nil {
			task.Error(err)
			continue
		}
		h.sess.executor.Runnable(task)
		state, werr := task.WaitState(ctx, TaskOk)
		if werr != nil {
			task.Error(werr)
			continue
		}
		switch state {
		case TaskOk:
			// Method errors are per-call errors; they do not fail the
			// actor.
		case TaskErr:
			if task.kind == taskActorStart {
				h.fail(task.Err())
			}
		case TaskLost:
			// The hosting machine is gone, and the instance's state
			// with it. Fault recovery is the caller's concern.
			h.fail(errors.E(errors.Unavailable,
				fmt.Sprintf("actor %s[%d] lost", h.actor.Name(), h.id)))
		}
	}
}

// Fail marks the handle failed with the provided error. All
// subsequent (and queued) calls fail with it.
func (h *ActorHandle) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
	if h.status != nil {
		h.status.Printf("failed: %v", err)
		h.status.Done()
	}
}
