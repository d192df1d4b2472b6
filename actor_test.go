// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigactor

import (
	"context"
	"fmt"
	"testing"
)

type testAccum struct {
	sum int
}

func (a *testAccum) Add(x int) int {
	a.sum += x
	return a.sum
}

func (a *testAccum) Sum() int { return a.sum }

// Variadic methods are not remote-callable; registration skips them.
func (a *testAccum) AddAll(xs ...int) {}

var accumActor = Actor("testAccum", func(start int) *testAccum {
	return &testAccum{sum: start}
})

func TestActorRegistration(t *testing.T) {
	if got, want := accumActor.Name(), "testAccum"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := accumActor.Method("Add"); !ok {
		t.Error("method Add not registered")
	}
	if _, ok := accumActor.Method("Sum"); !ok {
		t.Error("method Sum not registered")
	}
	if _, ok := accumActor.Method("AddAll"); ok {
		t.Error("variadic method AddAll should not be registered")
	}
	if a, ok := LookupActor("testAccum"); !ok || a != accumActor {
		t.Error("lookup failed")
	}
	if _, ok := LookupActor("no-such-actor"); ok {
		t.Error("lookup of unregistered actor succeeded")
	}
}

func TestActorNewAndCall(t *testing.T) {
	ctx := context.Background()
	state, err := accumActor.New(ctx, []interface{}{10})
	if err != nil {
		t.Fatal(err)
	}
	results, err := accumActor.Call(ctx, state, "Add", []interface{}{5})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := results[0].(int), 15; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	results, err = accumActor.Call(ctx, state, "Sum", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := results[0].(int), 15; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := accumActor.Call(ctx, state, "Frobnicate", nil); err == nil {
		t.Error("expected error calling unknown method")
	}
}

func TestActorTypecheck(t *testing.T) {
	for _, c := range []struct {
		name string
		f    func()
	}{
		{"bad ctor arity", func() { accumActor.TypecheckNew([]interface{}{1, 2}) }},
		{"bad ctor type", func() { accumActor.TypecheckNew([]interface{}{"x"}) }},
		{"unknown method", func() { accumActor.TypecheckCall("Nope", nil) }},
		{"bad method args", func() { accumActor.TypecheckCall("Add", []interface{}{"x"}) }},
	} {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			c.f()
		})
	}
}

func TestActorBadRegistrations(t *testing.T) {
	for _, c := range []struct {
		name string
		f    func()
	}{
		{"empty name", func() { Actor("", func() *testAccum { return nil }) }},
		{"not a func", func() { Actor("x1", 123) }},
		{"non-pointer return", func() { Actor("x2", func() int { return 0 }) }},
		{"no return", func() { Actor("x3", func() {}) }},
		{"duplicate name", func() { Actor("testAccum", func() *testAccum { return nil }) }},
	} {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			c.f()
		})
	}
}

type testFailCtor struct{}

var failCtorActor = Actor("testFailCtor", func(ok bool) (*testFailCtor, error) {
	if !ok {
		return nil, fmt.Errorf("refused")
	}
	return new(testFailCtor), nil
})

func TestActorConstructorError(t *testing.T) {
	ctx := context.Background()
	if _, err := failCtorActor.New(ctx, []interface{}{false}); err == nil {
		t.Error("expected error")
	}
	if _, err := failCtorActor.New(ctx, []interface{}{true}); err != nil {
		t.Error(err)
	}
}
