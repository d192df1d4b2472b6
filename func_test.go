// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigactor

import (
	"context"
	"fmt"
	"reflect"
	"testing"
)

type testStruct0 struct{ field0 int }
type testStruct1 struct{ field1 int }

type testInterface interface{ FuncTestMethod() }
type testInterfaceImpl struct{}

func (s *testInterfaceImpl) FuncTestMethod() {}

var fnTestNilFuncArgs = Func(
	func(i int, s string, ss []string, m map[int]int,
		ts0 testStruct0, pts1 *testStruct1, ti testInterface) int {

		return i
	})

// TestNilFuncArgs verifies that Func invocation handles untyped nil
// arguments properly.
func TestNilFuncArgs(t *testing.T) {
	ts0 := testStruct0{field0: 0}
	pts1 := &testStruct1{field1: 0}
	ptii := &testInterfaceImpl{}
	for _, c := range []struct {
		name string
		args []interface{}
		ok   bool
	}{
		{
			name: "all non-nil",
			args: []interface{}{
				0, "", []string{}, map[int]int{0: 0},
				ts0, pts1, ptii,
			},
			ok: true,
		},
		{
			name: "nil for types that can be nil",
			args: []interface{}{
				0, "", nil, nil,
				ts0, nil, nil,
			},
			ok: true,
		},
		{
			name: "nil for int",
			args: []interface{}{
				nil, "", []string{}, map[int]int{0: 0},
				ts0, pts1, ptii,
			},
			ok: false,
		},
		{
			name: "nil for string",
			args: []interface{}{
				0, nil, []string{}, map[int]int{0: 0},
				ts0, pts1, ptii,
			},
			ok: false,
		},
		{
			name: "nil for struct",
			args: []interface{}{
				0, "", []string{}, map[int]int{0: 0},
				nil, pts1, ptii,
			},
			ok: false,
		},
		{
			name: "too few args",
			args: []interface{}{},
			ok:   false,
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if c.ok && r != nil {
					t.Errorf("expected no panic, got %v", r)
				}
				if !c.ok && r == nil {
					t.Errorf("expected panic")
				}
			}()
			fnTestNilFuncArgs.Invocation("", c.args...)
		})
	}
}

var fnTestInvoke = Func(func(ctx context.Context, x, y int) (int, error) {
	if ctx == nil {
		return 0, fmt.Errorf("no context")
	}
	return x + y, nil
})

func TestFuncInvoke(t *testing.T) {
	if got, want := fnTestInvoke.NumIn(), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := fnTestInvoke.NumOut(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	inv := fnTestInvoke.Invocation("test", 1, 2)
	results, err := inv.Invoke(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(results), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := results[0].(int), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

var (
	fnTestError = Func(func(fail bool) (int, error) {
		if fail {
			return 0, fmt.Errorf("requested failure")
		}
		return 1, nil
	})
	fnTestLocations0 = Func(func() int { return 0 })
	fnTestLocations1 = Func(func() int { return 1 })
)

func TestFuncError(t *testing.T) {
	inv := fnTestError.Invocation("", true)
	if _, err := inv.Invoke(context.Background()); err == nil {
		t.Error("expected error")
	}
	inv = fnTestError.Invocation("", false)
	if _, err := inv.Invoke(context.Background()); err != nil {
		t.Error(err)
	}
}

func TestFuncBadSignatures(t *testing.T) {
	for _, fn := range []interface{}{
		0,
		func(x int, ctx context.Context) {},
		func(xs ...int) {},
		func() (error, int) { return nil, 0 },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%T: expected panic", fn)
				}
			}()
			Func(fn)
		}()
	}
}

func TestFuncLocations(t *testing.T) {
	locs := FuncLocations()
	if len(locs) != len(funcs) {
		t.Fatalf("got %d locations, want %d", len(locs), len(funcs))
	}
	// Funcs registered on consecutive lines have distinct locations.
	loc0 := locs[fnTestLocations0.index]
	loc1 := locs[fnTestLocations1.index]
	if loc0 == loc1 {
		t.Errorf("locations %s and %s collide", loc0, loc1)
	}
}

func TestFuncLocationsDiff(t *testing.T) {
	for _, c := range []struct {
		lhs  []string
		rhs  []string
		diff []string
	}{
		{nil, nil, nil},
		{[]string{"a"}, []string{"a"}, nil},
		{
			[]string{},
			[]string{"a"},
			[]string{"+ a"},
		},
		{
			[]string{"a", "b"},
			[]string{"a"},
			[]string{"a", "- b"},
		},
		{
			[]string{"a", "b"},
			[]string{"b"},
			[]string{"- a", "b"},
		},
		{
			[]string{"a"},
			[]string{"a", "b"},
			[]string{"a", "+ b"},
		},
		{
			[]string{"a", "c"},
			[]string{"a", "b", "c", "d"},
			[]string{"a", "+ b", "c", "+ d"},
		},
		{
			[]string{"a", "b", "d"},
			[]string{"a", "c", "d"},
			[]string{"a", "- b", "+ c", "d"},
		},
		{
			[]string{"a", "b", "c"},
			[]string{"a", "c", "d", "e"},
			[]string{"a", "- b", "c", "+ d", "+ e"},
		},
	} {
		if got, want := FuncLocationsDiff(c.lhs, c.rhs), c.diff; !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
