// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
)

// LocalExecutor is an executor that runs tasks in-process in
// separate goroutines. Actor instances are hosted in the same
// process.
type localExecutor struct {
	mu        sync.Mutex
	instances map[uint64]interface{}
	limiter   *limiter.Limiter
	sess      *Session
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{
		instances: make(map[uint64]interface{}),
		limiter:   limiter.New(),
	}
}

func (*localExecutor) Name() string { return "local" }

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	l.limiter.Release(sess.p)
	return func() {}
}

func (l *localExecutor) Runnable(task *Task) {
	task.Set(TaskWaiting)
	go l.run(task)
}

func (l *localExecutor) run(task *Task) {
	ctx := backgroundcontext.Get()
	if err := l.limiter.Acquire(ctx, 1); err != nil {
		// The only errors we should encounter here are context errors,
		// in which case there is no more work to do.
		if err != context.Canceled && err != context.DeadlineExceeded {
			log.Panicf("exec.Local: unexpected error: %v", err)
		}
		return
	}
	defer l.limiter.Release(1)
	task.Set(TaskRunning)
	results, err := l.execute(ctx, task)
	if err != nil {
		task.Error(err)
		return
	}
	task.Done(results)
}

// Execute performs the work of a single task, dispatching on the
// task's kind. Panics in user code are recovered and reported as
// fatal task errors.
func (l *localExecutor) execute(ctx context.Context, task *Task) (results []interface{}, err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("panic while running %s: %v\n%s", task.Name, e, string(stack))
			err = errors.E(err, errors.Fatal)
		}
	}()
	switch task.kind {
	case taskInvoke:
		return task.Invocation.Invoke(ctx)
	case taskActorStart:
		state, err := task.Actor.New(ctx, task.Args)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.instances[task.ActorID] = state
		l.mu.Unlock()
		return nil, nil
	case taskActorCall:
		l.mu.Lock()
		state, ok := l.instances[task.ActorID]
		l.mu.Unlock()
		if !ok {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("actor %s[%d]", task.Actor.Name(), task.ActorID))
		}
		// The handle's pump serializes calls; no instance locking is
		// needed here.
		return task.Actor.Call(ctx, state, task.Method, task.Args)
	case taskActorStop:
		l.mu.Lock()
		delete(l.instances, task.ActorID)
		l.mu.Unlock()
		return nil, nil
	default:
		panic("unhandled task kind")
	}
}

func (*localExecutor) HandleDebug(*http.ServeMux) {}
