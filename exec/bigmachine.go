// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/stats"
	"github.com/grailbio/bigmachine"
)

func init() {
	gob.Register(&worker{})
}

// BigmachineStatusGroup is the name of the status group reporting
// machine states.
const BigmachineStatusGroup = "bigmachine"

// RetryPolicy is the default retry policy used for machine calls.
var retryPolicy = retry.Backoff(time.Second, 5*time.Second, 1.5)

// FatalErr is used to match fatal errors.
var fatalErr = errors.E(errors.Fatal)

// BigmachineExecutor is an executor that runs individual tasks on
// bigmachine machines. Actor instances are hosted by the worker
// service of the machine on which they were constructed; they live
// and die with their machine.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess    *Session
	b       *bigmachine.B
	manager *machineManager
	worker  *worker

	status *status.Group

	mu sync.Mutex
	// actorMachines records the machine hosting each actor instance.
	actorMachines map[uint64]*machine
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (*bigmachineExecutor) Name() string { return "bigmachine" }

// Start registers the bigactor worker with bigmachine and then
// starts the bigmachine. Machines are allocated lazily, according to
// demand.
func (b *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	b.sess = sess
	b.b = bigmachine.Start(b.system)
	b.actorMachines = make(map[uint64]*machine)
	b.worker = new(worker)
	if status := sess.Status(); status != nil {
		b.status = status.Group(BigmachineStatusGroup)
	}
	b.manager = newMachineManager(b.b, b.params, b.status, sess.Parallelism(), sess.MaxLoad(), b.worker)
	go b.manager.Do(backgroundcontext.Get())
	return b.b.Shutdown
}

func (b *bigmachineExecutor) Runnable(task *Task) {
	task.Set(TaskWaiting)
	go b.run(task)
}

func (b *bigmachineExecutor) run(task *Task) {
	ctx := backgroundcontext.Get()
	switch task.kind {
	case taskInvoke:
		b.runInvoke(ctx, task)
	case taskActorStart:
		b.runActorStart(ctx, task)
	case taskActorCall:
		b.runActorCall(ctx, task)
	case taskActorStop:
		b.runActorStop(ctx, task)
	default:
		panic("unhandled task kind")
	}
}

func (b *bigmachineExecutor) runInvoke(ctx context.Context, task *Task) {
	if task.Status != nil {
		task.Status.Print("waiting for a machine")
	}
	b.manager.Need(1)
	defer b.manager.Need(-1)
	var m *machine
	select {
	case <-ctx.Done():
		task.Error(ctx.Err())
		return
	case m = <-b.manager.Offer():
	}
	numTasks := m.Stats.Int("tasks")
	numTasks.Add(1)
	defer numTasks.Add(-1)

	task.Set(TaskRunning)
	if task.Status != nil {
		task.Status.Print(m.Addr)
	}
	var reply taskRunReply
	err := m.RetryCall(ctx, "Worker.Run", taskRunRequest{Invocation: task.Invocation}, &reply)
	m.Done(err)
	switch {
	case err == nil:
		task.Done(reply.Results)
	case ctx.Err() != nil:
		task.Error(err)
	case errors.Match(fatalErr, err):
		// Fatal errors aren't retryable.
		task.Error(err)
	default:
		// Everything else we consider as the task being lost. It'll
		// get resubmitted by its future.
		if task.Status != nil {
			task.Status.Printf("lost task during evaluation: %v", err)
		}
		task.Set(TaskLost)
	}
}

func (b *bigmachineExecutor) runActorStart(ctx context.Context, task *Task) {
	if task.Status != nil {
		task.Status.Print("waiting for a machine")
	}
	b.manager.Need(1)
	defer b.manager.Need(-1)
	var m *machine
	select {
	case <-ctx.Done():
		task.Error(ctx.Err())
		return
	case m = <-b.manager.Offer():
	}
	task.Set(TaskRunning)
	req := actorStartRequest{ID: task.ActorID, Name: task.Actor.Name(), Args: task.Args}
	// StartActor is idempotent per instance ID, so retrying is safe.
	err := m.RetryCall(ctx, "Worker.StartActor", req, &actorStartReply{})
	m.Done(err)
	switch {
	case err == nil:
		b.setActorMachine(task.ActorID, m)
		m.Stats.Int("actors").Add(1)
		if task.Status != nil {
			task.Status.Print(m.Addr)
		}
		task.Done(nil)
	case ctx.Err() != nil:
		task.Error(err)
	case errors.Match(fatalErr, err):
		task.Error(err)
	default:
		task.Set(TaskLost)
	}
}

func (b *bigmachineExecutor) runActorCall(ctx context.Context, task *Task) {
	m := b.actorMachine(task.ActorID)
	if m == nil {
		task.Error(errors.E(errors.NotExist, fmt.Sprintf("actor %s[%d] has no machine", task.Actor.Name(), task.ActorID)))
		return
	}
	if m.Lost() {
		task.Set(TaskLost)
		return
	}
	task.Set(TaskRunning)
	req := actorCallRequest{ID: task.ActorID, Method: task.Method, Args: task.Args}
	var reply actorCallReply
	// Calls are not retried: actor methods may not be idempotent.
	err := m.Call(ctx, "Worker.ActorCall", req, &reply)
	switch {
	case err == nil:
		task.Done(reply.Results)
	case ctx.Err() != nil:
		task.Error(err)
	case errors.Is(errors.Net, err), errors.IsTemporary(err), m.Lost():
		// The machine, and with it the actor's state, is gone.
		task.Set(TaskLost)
	default:
		task.Error(err)
	}
}

func (b *bigmachineExecutor) runActorStop(ctx context.Context, task *Task) {
	m := b.actorMachine(task.ActorID)
	if m == nil {
		task.Done(nil)
		return
	}
	b.mu.Lock()
	delete(b.actorMachines, task.ActorID)
	b.mu.Unlock()
	task.Set(TaskRunning)
	// StopActor is idempotent, so it is retried through transient
	// failures. A lost machine has already torn the instance down.
	var err error
	for retries := 0; ; retries++ {
		err = m.Call(ctx, "Worker.StopActor", actorStopRequest{ID: task.ActorID}, &struct{}{})
		if err == nil || m.Lost() || errors.Match(fatalErr, err) {
			break
		}
		if werr := retry.Wait(ctx, retryPolicy, retries); werr != nil {
			break
		}
	}
	if err != nil && !m.Lost() {
		task.Error(err)
		return
	}
	m.Stats.Int("actors").Add(-1)
	task.Done(nil)
}

func (b *bigmachineExecutor) actorMachine(id uint64) *machine {
	b.mu.Lock()
	m := b.actorMachines[id]
	b.mu.Unlock()
	return m
}

func (b *bigmachineExecutor) setActorMachine(id uint64, m *machine) {
	b.mu.Lock()
	b.actorMachines[id] = m
	b.mu.Unlock()
}

func (b *bigmachineExecutor) HandleDebug(handler *http.ServeMux) {
	b.b.HandleDebug(handler)
}

// A worker is the bigmachine service that runs tasks and hosts actor
// instances on a single machine.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at
	// least one exported field.
	Exported struct{}

	b *bigmachine.B

	mu        sync.Mutex
	instances map[uint64]*actorInstance
	stats     *stats.Map
}

/// An actorInstance is a single hosted actor: its type, its state,
// and the mutex that guarantees serial method execution.
type actorInstance struct {
	mu    sync.Mutex
	actor *bigactor.ActorValue
	state interface{}
}

func (w *worker) Init(b *bigmachine.B) error {
	w.b = b
	w.instances = make(map[uint64]*actorInstance)
	w.stats = stats.NewMap()
	return nil
}

// FuncLocations returns the worker's registered func locations. The
// driver verifies these against its own registry on machine start.
func (w *worker) FuncLocations(ctx context.Context, _ struct{}, locs *[]string) error {
	*locs = bigactor.FuncLocations()
	return nil
}

type taskRunRequest struct {
	// Invocation is the func invocation to run.
	Invocation bigactor.Invocation
}

type taskRunReply struct {
	// Results are the invocation's results.
	Results []interface{}
}

// Run executes a func invocation, returning its results in the
// reply. Panics in user code are returned as fatal errors so that
// the driver does not retry them.
func (w *worker) Run(ctx context.Context, req taskRunRequest, reply *taskRunReply) (err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("invocation panic! %v\n%s", e, stack)
			err = errors.E(errors.Fatal, err)
		}
	}()
	running := w.stats.Int("running")
	running.Add(1)
	defer running.Add(-1)
	results, err := req.Invocation.Invoke(ctx)
	if err != nil {
		return err
	}
	w.stats.Int("tasks").Add(1)
	reply.Results = results
	return nil
}

type actorStartRequest struct {
	ID   uint64
	Name string
	Args []interface{}
}

type actorStartReply struct{}

// StartActor constructs an actor instance on this machine.
// StartActor is idempotent: a second request for an existing ID is a
// no-op, making driver-side retries safe.
func (w *worker) StartActor(ctx context.Context, req actorStartRequest, _ *actorStartReply) (err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("constructor panic! %v\n%s", e, stack)
			err = errors.E(errors.Fatal, err)
		}
	}()
	actor, ok := bigactor.LookupActor(req.Name)
	if !ok {
		return errors.E(errors.Fatal, errors.NotExist, fmt.Sprintf("actor type %s", req.Name))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.instances[req.ID]; ok {
		return nil
	}
	state, err := actor.New(ctx, req.Args)
	if err != nil {
		// Constructor errors are user errors; they are not retryable.
		return errors.E(errors.Fatal, err)
	}
	w.instances[req.ID] = &actorInstance{actor: actor, state: state}
	w.stats.Int("actors").Add(1)
	return nil
}

type actorCallRequest struct {
	ID     uint64
	Method string
	Args   []interface{}
}

type actorCallReply struct {
	Results []interface{}
}

// ActorCall executes a method on a hosted actor instance. Methods on
// a single instance execute one at a time.
func (w *worker) ActorCall(ctx context.Context, req actorCallRequest, reply *actorCallReply) (err error) {
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("method panic! %v\n%s", e, stack)
			err = errors.E(errors.Fatal, err)
		}
	}()
	w.mu.Lock()
	inst, ok := w.instances[req.ID]
	w.mu.Unlock()
	if !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("actor instance %d", req.ID))
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	results, err := inst.actor.Call(ctx, inst.state, req.Method, req.Args)
	if err != nil {
		return err
	}
	w.stats.Int("calls").Add(1)
	reply.Results = results
	return nil
}

type actorStopRequest struct {
	ID uint64
}

// StopActor releases a hosted actor instance.
func (w *worker) StopActor(ctx context.Context, req actorStopRequest, _ *struct{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.instances[req.ID]; !ok {
		return nil
	}
	delete(w.instances, req.ID)
	w.stats.Int("actors").Add(-1)
	return nil
}

// Stats returns a snapshot of the worker's counters.
func (w *worker) Stats(ctx context.Context, _ struct{}, values *stats.Values) error {
	vals := make(stats.Values)
	w.stats.AddAll(vals)
	*values = vals
	return nil
}
