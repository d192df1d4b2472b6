// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigactor

import (
	"context"
	"reflect"
	"testing"
)

func TestSigOf(t *testing.T) {
	for _, c := range []struct {
		fn      interface{}
		context bool
		args    int
		out     int
		err     bool
		ok      bool
	}{
		{fn: func() {}, ok: true},
		{fn: func(int, string) int { return 0 }, args: 2, out: 1, ok: true},
		{fn: func(context.Context, int) (int, error) { return 0, nil }, context: true, args: 1, out: 1, err: true, ok: true},
		{fn: func() error { return nil }, err: true, ok: true},
		{fn: func(...int) {}, ok: false},
		{fn: func(int, context.Context) {}, ok: false},
		{fn: func() (error, int) { return nil, 0 }, ok: false},
	} {
		sig, err := sigOf(reflect.TypeOf(c.fn), 0)
		if !c.ok {
			if err == nil {
				t.Errorf("%T: expected error", c.fn)
			}
			continue
		}
		if err != nil {
			t.Errorf("%T: %v", c.fn, err)
			continue
		}
		if got, want := sig.context, c.context; got != want {
			t.Errorf("%T context: got %v, want %v", c.fn, got, want)
		}
		if got, want := len(sig.args), c.args; got != want {
			t.Errorf("%T args: got %v, want %v", c.fn, got, want)
		}
		if got, want := len(sig.out), c.out; got != want {
			t.Errorf("%T out: got %v, want %v", c.fn, got, want)
		}
		if got, want := sig.err, c.err; got != want {
			t.Errorf("%T err: got %v, want %v", c.fn, got, want)
		}
	}
}

type sigRecv struct{}

func (sigRecv) Get(x int) int { return x }

func TestSigOfMethod(t *testing.T) {
	m, ok := reflect.TypeOf(sigRecv{}).MethodByName("Get")
	if !ok {
		t.Fatal("no method Get")
	}
	sig, err := sigOf(m.Func.Type(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(sig.args), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := len(sig.out), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSigCall(t *testing.T) {
	fn := func(ctx context.Context, x int) (int, error) { return x * 2, nil }
	sig, err := sigOf(reflect.TypeOf(fn), 0)
	if err != nil {
		t.Fatal(err)
	}
	out, err := sig.call(reflect.ValueOf(fn), context.Background(), nil, []interface{}{21})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out[0].(int), 42; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := sig.call(reflect.ValueOf(fn), context.Background(), nil, nil); err == nil {
		t.Error("expected arity error")
	}
}
