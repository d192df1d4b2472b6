// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package actortest provides utilities for testing bigactor user
// code. The utilities here are strictly intended for unit testing:
// they favor convenience over performance.
package actortest

import (
	"context"
	"testing"

	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigmachine/testsystem"
)

// Run invokes the provided body with a local session and again with
// a bigmachine test-system session, as subtests. User code that
// passes both is exercised over process-local execution as well as
// the wire.
func Run(t *testing.T, body func(t *testing.T, sess *exec.Session)) {
	t.Helper()
	t.Run("local", func(t *testing.T) {
		sess := exec.Start(exec.Local)
		defer sess.Shutdown()
		body(t, sess)
	})
	t.Run("bigmachine", func(t *testing.T) {
		sess := exec.Start(exec.Bigmachine(testsystem.New()))
		defer sess.Shutdown()
		body(t, sess)
	})
}

// Result submits an invocation of fn and scans its single result
// into ptr. Errors are reported as fatal to the provided t instance.
func Result(t *testing.T, sess *exec.Session, fn *bigactor.FuncValue, ptr interface{}, args ...interface{}) {
	t.Helper()
	if err := sess.Submit(fn, args...).Result(context.Background(), ptr); err != nil {
		t.Fatal(err)
	}
}
