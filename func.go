// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigactor

import (
	"context"
	"encoding/gob"
	"fmt"
	"reflect"
	"runtime"
	"sync/atomic"

	"github.com/grailbio/bigactor/typecheck"
)

func init() {
	gob.Register([]interface{}{})
}

var (
	// Funcs is the global registry of funcs. We rely on deterministic
	// registration order. (This is guaranteed by Go's variable
	// initialization for a single compiler, which is sufficient for our
	// use.) It would definitely be nice to have a nicer way of doing
	// this (without the overhead of users minting their own names).
	funcs []*FuncValue
	// FuncsBusy is used to detect data races in registration.
	funcsBusy int32
)

// A FuncValue represents a remote function, as returned by Func. A
// FuncValue can be submitted to a session for execution; because all
// workers run the same binary, the func is identified on the wire by
// its registration index alone.
type FuncValue struct {
	fn       reflect.Value
	sig      signature
	name     string
	location string
	index    int
}

// Name returns a short name for the func, derived from the name of
// the underlying Go function.
func (f *FuncValue) Name() string { return f.name }

// NumIn returns the number of input arguments to f, excluding any
// leading context.
func (f *FuncValue) NumIn() int { return len(f.sig.args) }

// In returns the i'th argument type of func f.
func (f *FuncValue) In(i int) reflect.Type { return f.sig.args[i] }

// NumOut returns the number of results of f, excluding any trailing
// error.
func (f *FuncValue) NumOut() int { return len(f.sig.out) }

// Out returns the i'th result type of func f.
func (f *FuncValue) Out(i int) reflect.Type { return f.sig.out[i] }

// Invocation creates an invocation representing the func f applied
// to the provided arguments. Invocation panics with a type error if
// the provided arguments do not match in type or arity.
func (f *FuncValue) Invocation(location string, args ...interface{}) Invocation {
	argTypes := make([]reflect.Type, len(args))
	for i, arg := range args {
		argTypes[i] = reflect.TypeOf(arg)
	}
	f.sig.typecheck(argTypes...)
	return newInvocation(uint64(f.index), location, args...)
}

// Invoke applies the func to the provided arguments, returning its
// results. If the func declares a context argument, ctx is passed;
// if it declares a trailing error, a non-nil error is returned as
// the invocation's error.
func (f *FuncValue) Invoke(ctx context.Context, args []interface{}) ([]interface{}, error) {
	return f.sig.call(f.fn, ctx, nil, args)
}

// Func creates a bigactor func from the provided function value.
// Remote funcs may take an optional leading context.Context, any
// number of gob-serializable arguments, and return any number of
// gob-serializable results with an optional trailing error. Func
// panics with a type error if fn has an unsupported signature.
//
// Funcs must be created in deterministic order, before exec.Start is
// called; creating them as global variables satisfies both rules.
func Func(fn interface{}) *FuncValue {
	fv := reflect.ValueOf(fn)
	ftype := fv.Type()
	if ftype.Kind() != reflect.Func {
		typecheck.Panicf(1, "bigactor.Func: argument is a %T, not a func", fn)
	}
	sig, err := sigOf(ftype, 0)
	if err != nil {
		typecheck.Panicf(1, "bigactor.Func: %v", err)
	}
	sig.registerTypes()
	v := &FuncValue{fn: fv, sig: sig, name: funcName(fv)}
	if _, file, line, ok := runtime.Caller(1); ok {
		v.location = fmt.Sprintf("%s:%d", file, line)
	} else {
		v.location = "<unknown>"
	}
	if atomic.AddInt32(&funcsBusy, 1) != 1 {
		panic("bigactor.Func: data race")
	}
	v.index = len(funcs)
	funcs = append(funcs, v)
	if atomic.AddInt32(&funcsBusy, -1) != 0 {
		panic("bigactor.Func: data race")
	}
	return v
}

// FuncLocations returns the locations (file:line) at which funcs
// were created, in registration order. Executors use this to verify
// that worker processes share the driver's func registry; a mismatch
// indicates local or non-deterministic Func creation.
func FuncLocations() []string {
	locs := make([]string, len(funcs))
	for i, f := range funcs {
		locs[i] = f.location
	}
	return locs
}

// FuncLocationsDiff returns a list of strings that describes the
// differences between lhs and rhs, in the form of a unified diff:
// lines common to both appear unadorned, lines only in lhs are
// prefixed with "-", and lines only in rhs are prefixed with "+". If
// there is no difference, nil is returned.
func FuncLocationsDiff(lhs, rhs []string) []string {
	// Compute the longest common subsequence, then walk it to emit
	// edits.
	lcs := make([][]int, len(lhs)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(rhs)+1)
	}
	for i := len(lhs) - 1; i >= 0; i-- {
		for j := len(rhs) - 1; j >= 0; j-- {
			if lhs[i] == rhs[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}
	var (
		diff    []string
		differs bool
		i, j    int
	)
	for i < len(lhs) && j < len(rhs) {
		switch {
		case lhs[i] == rhs[j]:
			diff = append(diff, lhs[i])
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			diff = append(diff, "- "+lhs[i])
			differs = true
			i++
		default:
			diff = append(diff, "+ "+rhs[j])
			differs = true
			j++
		}
	}
	for ; i < len(lhs); i++ {
		diff = append(diff, "- "+lhs[i])
		differs = true
	}
	for ; j < len(rhs); j++ {
		diff = append(diff, "+ "+rhs[j])
		differs = true
	}
	if !differs {
		return nil
	}
	return diff
}

// Invocation represents an invocation of a bigactor func of the same
// binary. Invocations can be transmitted across process boundaries
// and thus may be invoked by remote executors.
//
// Each invocation carries an invocation index, which is a unique index
// for invocations within a process namespace. It can thus be used to
// represent a particular function invocation from a driver process.
//
// Invocations must be created by newInvocation.
type Invocation struct {
	Index    uint64
	Func     uint64
	Location string
	Args     []interface{}
}

var invocationIndex uint64

func newInvocation(fn uint64, location string, args ...interface{}) Invocation {
	return Invocation{
		Index:    atomic.AddUint64(&invocationIndex, 1),
		Func:     fn,
		Location: location,
		Args:     args,
	}
}

// Name returns the name of the func underlying this invocation.
func (i Invocation) Name() string {
	return funcs[i.Func].name
}

// Invoke performs the func invocation represented by this Invocation
// instance, returning its results.
func (i Invocation) Invoke(ctx context.Context) ([]interface{}, error) {
	return funcs[i.Func].Invoke(ctx, i.Args)
}

// FuncName returns a short, human-readable name for the provided
// func value, suitable for naming tasks.
func funcName(fv reflect.Value) string {
	name := runtime.FuncForPC(fv.Pointer()).Name()
	// Trim the package path, keeping the package name itself:
	// "github.com/user/pkg.fn" becomes "pkg.fn".
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
