// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package typecheck

import (
	"strings"
	"testing"
)

func TestErrorf(t *testing.T) {
	err := Errorf(0, "bad %s", "arg")
	if got, want := err.Err.Error(), "bad arg"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !strings.Contains(err.File, "typecheck_test.go") {
		t.Errorf("error attributed to %s", err.File)
	}
	if !strings.Contains(err.Error(), err.File) {
		t.Errorf("message %q omits location", err.Error())
	}
}

func TestTestCalldepth(t *testing.T) {
	TestCalldepth = 1
	defer func() { TestCalldepth = 0 }()
	// The extra calldepth attributes the error to our caller instead
	// of this file.
	err := Errorf(0, "misattributed")
	if strings.Contains(err.File, "typecheck_test.go") {
		t.Errorf("error attributed to %s", err.File)
	}
}

func TestLocation(t *testing.T) {
	defer func() {
		e := recover()
		err, ok := e.(*Error)
		if !ok {
			t.Fatalf("recovered %v, want *Error", e)
		}
		if got, want := err.File, "somefile.go"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		if got, want := err.Line, 123; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}()
	defer Location("somefile.go", 123)
	Panicf(1, "oops")
}

func TestLocationPassthrough(t *testing.T) {
	defer func() {
		if e := recover(); e != "not a type error" {
			t.Errorf("recovered %v", e)
		}
	}()
	defer Location("somefile.go", 123)
	panic("not a type error")
}
