// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigactor

import (
	"context"
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/grailbio/bigactor/typecheck"
)

var (
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
)

// A signature describes the calling convention of a remote func or
// actor method: an optional leading context.Context, a list of
// argument types, a list of result types, and an optional trailing
// error. Signatures are derived from ordinary Go funcs by sigOf.
type signature struct {
	// Context tells whether the func accepts a leading
	// context.Context, which is supplied by the runtime and excluded
	// from args.
	context bool
	// Args are the func's argument types, excluding any leading
	// context.
	args []reflect.Type
	// Out are the func's result types, excluding any trailing error.
	out []reflect.Type
	// Err tells whether the func returns a trailing error.
	err bool
}

// SigOf computes the signature of the provided func type. The first
// numRecv inputs are skipped; this accommodates method types, whose
// first input is the receiver.
func sigOf(t reflect.Type, numRecv int) (signature, error) {
	var sig signature
	if t.Kind() != reflect.Func {
		return sig, fmt.Errorf("%s is not a func", t)
	}
	if t.IsVariadic() {
		return sig, fmt.Errorf("%s: variadic funcs cannot be made remote", t)
	}
	in := numRecv
	if t.NumIn() > in && t.In(in) == typeOfContext {
		sig.context = true
		in++
	}
	for ; in < t.NumIn(); in++ {
		if t.In(in) == typeOfContext {
			return sig, fmt.Errorf("%s: context.Context must be the first argument", t)
		}
		sig.args = append(sig.args, t.In(in))
	}
	nout := t.NumOut()
	if nout > 0 && t.Out(nout-1) == typeOfError {
		sig.err = true
		nout--
	}
	for i := 0; i < nout; i++ {
		if t.Out(i) == typeOfError {
			return sig, fmt.Errorf("%s: error must be the last result", t)
		}
		sig.out = append(sig.out, t.Out(i))
	}
	return sig, nil
}

// Typecheck checks that the provided argument types match the
// signature's argument types, panicking with a typecheck error
// attributed to the caller's caller on mismatch. Interface-typed
// parameters admit any implementation.
func (s signature) typecheck(args ...reflect.Type) {
	if len(args) != len(s.args) {
		typecheck.Panicf(2, "wrong number of arguments: func takes %d arguments, got %d", len(s.args), len(args))
	}
	for i := range args {
		expect, have := s.args[i], args[i]
		if have == nil {
			// Untyped nil is fine wherever nil is a value.
			switch expect.Kind() {
			case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
				continue
			}
			typecheck.Panicf(2, "wrong type for argument %d: cannot use nil as %s", i, expect)
		}
		switch expect.Kind() {
		case reflect.Interface:
			if !have.Implements(expect) {
				typecheck.Panicf(2, "wrong type for argument %d: type %s does not implement interface %s", i, have, expect)
			}
		default:
			if have != expect {
				typecheck.Panicf(2, "wrong type for argument %d: expected %s, got %s", i, expect, have)
			}
		}
	}
}

// Call invokes fn with the provided context and arguments according
// to the signature, returning the func's results. If the signature
// declares a trailing error, it is returned separately from the
// results; otherwise the returned error is nil.
func (s signature) call(fn reflect.Value, ctx context.Context, recv []reflect.Value, args []interface{}) ([]interface{}, error) {
	if len(args) != len(s.args) {
		return nil, fmt.Errorf("wrong number of arguments: func takes %d arguments, got %d", len(s.args), len(args))
	}
	argv := make([]reflect.Value, 0, len(recv)+1+len(args))
	argv = append(argv, recv...)
	if s.context {
		argv = append(argv, reflect.ValueOf(ctx))
	}
	for i, arg := range args {
		if arg == nil {
			argv = append(argv, reflect.Zero(s.args[i]))
		} else {
			argv = append(argv, reflect.ValueOf(arg))
		}
	}
	rets := fn.Call(argv)
	if s.err {
		n := len(rets) - 1
		if err, _ := rets[n].Interface().(error); err != nil {
			return nil, err
		}
		rets = rets[:n]
	}
	out := make([]interface{}, len(rets))
	for i, ret := range rets {
		out[i] = ret.Interface()
	}
	return out, nil
}

// RegisterTypes registers the signature's argument and result types
// with gob so that invocations and replies may cross process
// boundaries. Interface types are skipped: their concrete values
// must be registered by the user.
func (s signature) registerTypes() {
	for _, typ := range s.args {
		registerType(typ)
	}
	for _, typ := range s.out {
		registerType(typ)
	}
}

func registerType(typ reflect.Type) {
	if typ.Kind() == reflect.Interface {
		return
	}
	gob.Register(reflect.Zero(typ).Interface())
}
