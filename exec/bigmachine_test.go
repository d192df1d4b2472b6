// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/stats"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/testsystem"
)

var panicky = bigactor.Func(func(oops bool) int {
	if oops {
		panic("requested panic")
	}
	return 1
})

func newWorker(t *testing.T) *worker {
	t.Helper()
	w := new(worker)
	if err := w.Init(nil); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWorkerRun(t *testing.T) {
	w := newWorker(t)
	ctx := context.Background()
	inv := addTwo.Invocation("test", 1, 2)
	var reply taskRunReply
	if err := w.Run(ctx, taskRunRequest{Invocation: inv}, &reply); err != nil {
		t.Fatal(err)
	}
	if got, want := len(reply.Results), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := reply.Results[0].(int), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWorkerRunPanic(t *testing.T) {
	w := newWorker(t)
	ctx := context.Background()
	inv := panicky.Invocation("test", true)
	err := w.Run(ctx, taskRunRequest{Invocation: inv}, &taskRunReply{})
	if err == nil {
		t.Fatal("expected error")
	}
	// Panics are fatal: the driver must not retry them.
	if !errors.Match(fatalErr, err) {
		t.Errorf("error %v is not fatal", err)
	}
	if !strings.Contains(err.Error(), "requested panic") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestWorkerActorLifecycle(t *testing.T) {
	w := newWorker(t)
	ctx := context.Background()
	const id = 123
	start := actorStartRequest{ID: id, Name: "counter", Args: []interface{}{10}}
	if err := w.StartActor(ctx, start, &actorStartReply{}); err != nil {
		t.Fatal(err)
	}
	// StartActor is idempotent: a retried start must not reset state.
	var reply actorCallReply
	if err := w.ActorCall(ctx, actorCallRequest{ID: id, Method: "Add", Args: []interface{}{5}}, &reply); err != nil {
		t.Fatal(err)
	}
	if err := w.StartActor(ctx, start, &actorStartReply{}); err != nil {
		t.Fatal(err)
	}
	if err := w.ActorCall(ctx, actorCallRequest{ID: id, Method: "Get"}, &reply); err != nil {
		t.Fatal(err)
	}
	if got, want := reply.Results[0].(int), 15; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := w.StopActor(ctx, actorStopRequest{ID: id}, &struct{}{}); err != nil {
		t.Fatal(err)
	}
	err := w.ActorCall(ctx, actorCallRequest{ID: id, Method: "Get"}, &reply)
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want NotExist", err)
	}
	// Stopping a stopped actor is a no-op.
	if err := w.StopActor(ctx, actorStopRequest{ID: id}, &struct{}{}); err != nil {
		t.Fatal(err)
	}
}

func TestWorkerStats(t *testing.T) {
	w := newWorker(t)
	ctx := context.Background()
	inv := addTwo.Invocation("test", 1, 2)
	if err := w.Run(ctx, taskRunRequest{Invocation: inv}, &taskRunReply{}); err != nil {
		t.Fatal(err)
	}
	if err := w.StartActor(ctx, actorStartRequest{ID: 1, Name: "counter", Args: []interface{}{0}}, &actorStartReply{}); err != nil {
		t.Fatal(err)
	}
	var reply actorCallReply
	if err := w.ActorCall(ctx, actorCallRequest{ID: 1, Method: "Add", Args: []interface{}{1}}, &reply); err != nil {
		t.Fatal(err)
	}
	var vals stats.Values
	if err := w.Stats(ctx, struct{}{}, &vals); err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]int64{"tasks": 1, "actors": 1, "calls": 1} {
		if got := vals[key]; got != want {
			t.Errorf("%s: got %v, want %v", key, got, want)
		}
	}
}

func TestWorkerUnknownActor(t *testing.T) {
	w := newWorker(t)
	ctx := context.Background()
	err := w.StartActor(ctx, actorStartRequest{ID: 1, Name: "no-such-actor"}, &actorStartReply{})
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want NotExist", err)
	}
}

func TestBigmachineMachineLost(t *testing.T) {
	if testing.Short() {
		t.Skip("machine loss test disabled with -short")
	}
	system := testsystem.New()
	system.Machineprocs = 1
	system.KeepalivePeriod = time.Second
	system.KeepaliveTimeout = 5 * time.Second
	system.KeepaliveRpcTimeout = time.Second
	sess := Start(Bigmachine(system), Parallelism(1))
	defer sess.Shutdown()
	ctx := context.Background()
	h, err := sess.NewActor(ctx, counterActor, 0)
	if err != nil {
		t.Fatal(err)
	}
	var v int
	if err := h.Call(ctx, "Add", 1).Result(ctx, &v); err != nil {
		t.Fatal(err)
	}
	mach := system.Index(0)
	if !system.Kill(mach) {
		t.Fatal("could not kill machine")
	}
	<-mach.Wait(bigmachine.Stopped)
	// Func tasks are retried transparently on a fresh machine.
	var sum int
	if err := sess.Submit(addTwo, 3, 4).Result(ctx, &sum); err != nil {
		t.Fatal(err)
	}
	if got, want := sum, 7; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// The actor's state died with its machine, so its handle must
	// fail rather than resume against fresh state.
	deadline := time.Now().Add(30 * time.Second)
	for {
		err = h.Call(ctx, "Get").Wait(ctx)
		if errors.Is(errors.Unavailable, err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %v, want Unavailable", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestBigmachineMultipleMachines(t *testing.T) {
	if testing.Short() {
		t.Skip("multiple machine test disabled with -short")
	}
	system := testsystem.New()
	system.Machineprocs = 1
	sess := Start(Bigmachine(system), Parallelism(4))
	defer sess.Shutdown()
	ctx := context.Background()
	pool, err := sess.NewPool(ctx, squarerActor, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close(ctx)
	inputs := make([]interface{}, 16)
	for i := range inputs {
		inputs[i] = i
	}
	results, err := pool.Map(ctx, "Square", inputs)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if got, want := r.(int), i*i; got != want {
			t.Errorf("result %d: got %v, want %v", i, got, want)
		}
	}
}
