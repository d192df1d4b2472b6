// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigmachine/testsystem"
)

func init() {
	log.AddFlags()
}

var (
	addTwo = bigactor.Func(func(x, y int) int {
		return x + y
	})
	repeat = bigactor.Func(func(s string, n int) string {
		return strings.Repeat(s, n)
	})
	failing = bigactor.Func(func(msg string) (int, error) {
		return 0, fmt.Errorf("failing: %s", msg)
	})
	withContext = bigactor.Func(func(ctx context.Context, n int) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return n * 2, nil
	})
)

var executors = map[string]func() Option{
	"Local":           func() Option { return Local },
	"Bigmachine.Test": func() Option { return Bigmachine(testsystem.New()) },
}

func testSession(t *testing.T, run func(t *testing.T, sess *Session)) {
	t.Helper()
	for name, opt := range executors {
		opt := opt
		t.Run(name, func(t *testing.T) {
			sess := Start(opt())
			defer sess.Shutdown()
			run(t, sess)
		})
	}
}

func TestSessionSubmit(t *testing.T) {
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		var sum int
		if err := sess.Submit(addTwo, 2, 3).Result(ctx, &sum); err != nil {
			t.Fatal(err)
		}
		if got, want := sum, 5; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		var s string
		if err := sess.Submit(repeat, "ab", 3).Result(ctx, &s); err != nil {
			t.Fatal(err)
		}
		if got, want := s, "ababab"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestSessionIterative(t *testing.T) {
	const N = 10
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		sum := 0
		for i := 0; i < N; i++ {
			if err := sess.Submit(addTwo, sum, i).Result(ctx, &sum); err != nil {
				t.Fatal(err)
			}
		}
		if got, want := sum, N*(N-1)/2; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestSessionConcurrent(t *testing.T) {
	const N = 50
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		futures := make([]*Future, N)
		for i := range futures {
			futures[i] = sess.Submit(addTwo, i, i)
		}
		for i, fut := range futures {
			var v int
			if err := fut.Result(ctx, &v); err != nil {
				t.Fatal(err)
			}
			if got, want := v, 2*i; got != want {
				t.Errorf("got %v, want %v", got, want)
			}
		}
	})
}

func TestSessionError(t *testing.T) {
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		err := sess.Submit(failing, "boom").Wait(ctx)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("unexpected error %v", err)
		}
		// The session remains usable after a failed task.
		var sum int
		if err := sess.Submit(addTwo, 1, 1).Result(ctx, &sum); err != nil {
			t.Fatal(err)
		}
		if got, want := sum, 2; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestSessionContextFunc(t *testing.T) {
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		var v int
		if err := sess.Submit(withContext, 21).Result(ctx, &v); err != nil {
			t.Fatal(err)
		}
		if got, want := v, 42; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestSessionMust(t *testing.T) {
	ctx := context.Background()
	sess := Start(Local)
	defer sess.Shutdown()
	if got, want := sess.Must(ctx, addTwo, 40, 2).(int), 42; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResultTypecheck(t *testing.T) {
	ctx := context.Background()
	sess := Start(Local)
	defer sess.Shutdown()
	fut := sess.Submit(addTwo, 1, 2)
	expectTypeError(t, "wrong number of results", func() {
		var x, y int
		fut.Result(ctx, &x, &y)
	})
	expectTypeError(t, "cannot assign", func() {
		var s string
		fut.Result(ctx, &s)
	})
	expectTypeError(t, "not a pointer", func() {
		var x int
		fut.Result(ctx, x)
	})
}

func TestSubmitTypeErrorLocation(t *testing.T) {
	sess := Start(Local)
	defer sess.Shutdown()
	// Type errors are attributed to the submitting call site, not to
	// the runtime internals.
	expectTypeError(t, "session_test.go", func() {
		sess.Submit(addTwo, "one", "two")
	})
}

func expectTypeError(t *testing.T, contains string, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		e := recover()
		if e == nil {
			t.Fatal("expected type error")
		}
		if !strings.Contains(fmt.Sprint(e), contains) {
			t.Fatalf("error %v does not mention %q", e, contains)
		}
	}()
	f()
}
