// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/typecheck"
	"github.com/grailbio/bigmachine"
)

// DefaultMaxLoad is the default machine max load.
const DefaultMaxLoad = 0.95

// Session represents a bigactor compute session. A session shares a
// binary and executor, and is valid for the run of the binary. A
// session can submit many tasks and host many actors, allowing for
// iterative computing.
//
// A session is started by the Start method. Some executors may
// launch multiple copies of the binary: these additional binaries
// are called workers and Start in these does not return.
//
// All funcs and actors must be created before Start is called, and
// must be created in a deterministic order. This is provided by
// default when they are created as part of package initialization.
// Registering toplevel funcs this way is both safe and encouraged:
//
//	var Estimate = bigactor.Func(func(n int) int {
//		// Perform the estimate.
//		return ...
//	})
//
//	// Possibly in another package:
//	func main() {
//		sess := exec.Start()
//		fut := sess.Submit(Estimate, 1000)
//		var v int
//		if err := fut.Result(ctx, &v); err != nil {
//			log.Fatal(err)
//		}
//		// Success!
//	}
type Session struct {
	context.Context
	index      int32
	shutdown   func()
	p          int
	maxLoad    float64
	queueDepth int
	executor   Executor
	status     *status.Status

	taskGroup  *status.Group
	actorGroup *status.Group

	mu sync.Mutex
	// actors stores all actor handles created by this session; used
	// for debugging.
	actors map[*ActorHandle]struct{}
}

func newSession() *Session {
	return &Session{
		Context: backgroundcontext.Get(),
		index:   atomic.AddInt32(&nextSessionIndex, 1) - 1,
		actors:  make(map[*ActorHandle]struct{}),
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. If any params are provided,
// they are applied to each bigmachine allocated by bigactor.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Parallelism configures the session with the provided target
// parallelism.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// MaxLoad configures the session with the provided max
// machine load.
func MaxLoad(maxLoad float64) Option {
	if maxLoad <= 0 {
		panic("exec.MaxLoad: maxLoad <= 0")
	}
	return func(s *Session) {
		s.maxLoad = maxLoad
	}
}

// ActorQueue configures the depth of each actor handle's mailbox:
// the number of pending calls a handle buffers before further callers
// block. The default is 64.
func ActorQueue(depth int) Option {
	if depth <= 0 {
		panic("exec.ActorQueue: depth <= 0")
	}
	return func(s *Session) {
		s.queueDepth = depth
	}
}

// Status configures the session with a status object to which
// task and actor statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// nextSessionIndex is the index of the next session that will be
// started by Start. In general, there should be only one session per
// process, but we violate this in some tests.
var nextSessionIndex int32

// Start creates and starts a new bigactor session, configuring it
// according to the provided options. Only one session may be created
// in a single binary invocation. The returned session remains valid
// for the lifetime of the binary. If no executor is configured, the
// session is configured to use the bigmachine executor with
// bigmachine's local system.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.p == 0 {
		s.p = runtime.GOMAXPROCS(0)
	}
	if s.maxLoad == 0 {
		s.maxLoad = DefaultMaxLoad
	}
	if s.executor == nil {
		s.executor = newBigmachineExecutor(bigmachine.Local)
	}
	s.start()
	return s
}

func (s *Session) start() {
	if s.queueDepth == 0 {
		s.queueDepth = handleQueueDepth
	}
	if s.status != nil {
		s.taskGroup = s.status.Group("tasks")
		s.actorGroup = s.status.Group("actors")
	}
	s.shutdown = s.executor.Start(s)
	log.Printf("exec: started %s session with parallelism %d", s.executor.Name(), s.p)
}

// Submit submits an invocation of the provided func applied to the
// provided arguments for execution, returning a future for its
// results. Submit panics with a type error if the arguments do not
// match the func in type or arity. Submission is asynchronous: use
// the returned future to retrieve results or errors.
func (s *Session) Submit(funcv *bigactor.FuncValue, args ...interface{}) *Future {
	location := "<unknown>"
	if _, file, line, ok := runtime.Caller(1); ok {
		location = fmt.Sprintf("%s:%d", file, line)
		// Attribute type errors to the submitting call site rather
		// than to the runtime internals.
		defer typecheck.Location(file, line)
	}
	inv := funcv.Invocation(location, args...)
	task := &Task{
		Name:       TaskName{Op: inv.Name(), Index: newTaskIndex()},
		Invocation: inv,
		kind:       taskInvoke,
	}
	if s.taskGroup != nil {
		task.Status = s.taskGroup.Startf("%s %s", task.Name, location)
	}
	s.executor.Runnable(task)
	return &Future{task: task, sess: s}
}

// Must is a version of Submit-then-Result for a single result that
// panics if the computation fails.
func (s *Session) Must(ctx context.Context, funcv *bigactor.FuncValue, args ...interface{}) interface{} {
	fut := s.Submit(funcv, args...)
	var v interface{}
	if err := fut.Result(ctx, &v); err != nil {
		log.Panicf("exec.Must %s: %v", funcv.Name(), err)
	}
	return v
}

// NewActor constructs a new remote instance of the provided actor
// type, applying its constructor to the provided arguments. The
// instance is placed by the session's executor; its methods are
// invoked through the returned handle. NewActor panics with a type
// error if the arguments do not match the constructor; construction
// errors are returned.
func (s *Session) NewActor(ctx context.Context, actor *bigactor.ActorValue, args ...interface{}) (*ActorHandle, error) {
	if _, file, line, ok := runtime.Caller(1); ok {
		defer typecheck.Location(file, line)
	}
	actor.TypecheckNew(args)
	h := newActorHandle(s, actor)
	if s.actorGroup != nil {
		h.status = s.actorGroup.Startf("%s[%d]", actor.Name(), h.id)
	}
	s.mu.Lock()
	s.actors[h] = struct{}{}
	s.mu.Unlock()
	start := h.enqueue(&Task{
		Name:    TaskName{Op: actor.Name(), Index: newTaskIndex()},
		Actor:   actor,
		ActorID: h.id,
		Args:    args,
		Status:  h.status,
		kind:    taskActorStart,
	})
	if err := start.Wait(ctx); err != nil {
		h.fail(err)
		return nil, err
	}
	return h, nil
}

// Parallelism returns the desired amount of evaluation parallelism.
func (s *Session) Parallelism() int {
	return s.p
}

// MaxLoad returns the maximum load on each allocated machine.
func (s *Session) MaxLoad() float64 {
	return s.maxLoad
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// HandleDebug adds handlers for debugging information to the
// provided ServeMux.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
	handler.Handle("/debug/actors", http.HandlerFunc(s.handleActors))
}

func (s *Session) handleActors(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	handles := make([]*ActorHandle, 0, len(s.actors))
	for h := range s.actors {
		handles = append(handles, h)
	}
	s.mu.Unlock()
	for _, h := range handles {
		fmt.Fprintln(w, h)
	}
}
