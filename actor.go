// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigactor

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/grailbio/bigactor/typecheck"
)

var (
	// Actors is the global registry of actor types. As with funcs, we
	// rely on deterministic registration order so that actor indices
	// agree across the driver and worker processes of a single binary.
	actors       []*ActorValue
	actorsByName = make(map[string]*ActorValue)
	actorsBusy   int32
)

// An ActorValue represents a registered actor type: a named
// constructor for stateful remote workers together with the set of
// methods callable on instances. Actor instances are created through
// a session; each instance executes its methods serially, in call
// order, so that actor state needs no locking of its own.
type ActorValue struct {
	name  string
	ctor  reflect.Value
	sig   signature
	recv  reflect.Type
	meths map[string]*Method
	index int
}

// A Method describes a single callable actor method.
type Method struct {
	name string
	fn   reflect.Value
	sig  signature
}

// Name returns the method's name.
func (m *Method) Name() string { return m.name }

// NumOut returns the number of results of the method, excluding any
// trailing error.
func (m *Method) NumOut() int { return len(m.sig.out) }

// Actor registers an actor type under the provided name. The
// constructor may take an optional leading context.Context and any
// number of gob-serializable arguments, and must return a single
// pointer value with an optional trailing error. All exported
// methods of the returned type with remote-callable signatures
// (optional leading context, gob-serializable arguments and results,
// optional trailing error) become callable through actor handles.
//
// Like funcs, actors must be registered in deterministic order
// before exec.Start is called. Actor panics with a type error if the
// constructor has an unsupported signature, or if the name is
// already taken.
func Actor(name string, constructor interface{}) *ActorValue {
	if name == "" {
		typecheck.Panic(1, "bigactor.Actor: empty actor name")
	}
	cv := reflect.ValueOf(constructor)
	ctype := cv.Type()
	if ctype.Kind() != reflect.Func {
		typecheck.Panicf(1, "bigactor.Actor %s: constructor is a %T, not a func", name, constructor)
	}
	sig, err := sigOf(ctype, 0)
	if err != nil {
		typecheck.Panicf(1, "bigactor.Actor %s: %v", name, err)
	}
	if len(sig.out) != 1 || sig.out[0].Kind() != reflect.Ptr {
		typecheck.Panicf(1, "bigactor.Actor %s: constructor must return a single pointer value", name)
	}
	for _, typ := range sig.args {
		registerType(typ)
	}
	a := &ActorValue{
		name:  name,
		ctor:  cv,
		sig:   sig,
		recv:  sig.out[0],
		meths: make(map[string]*Method),
	}
	for i := 0; i < a.recv.NumMethod(); i++ {
		m := a.recv.Method(i)
		msig, err := sigOf(m.Func.Type(), 1)
		if err != nil {
			// Methods with non-remotable signatures are simply not
			// callable through handles.
			continue
		}
		msig.registerTypes()
		a.meths[m.Name] = &Method{name: m.Name, fn: m.Func, sig: msig}
	}
	if atomic.AddInt32(&actorsBusy, 1) != 1 {
		panic("bigactor.Actor: data race")
	}
	if _, ok := actorsByName[name]; ok {
		atomic.AddInt32(&actorsBusy, -1)
		typecheck.Panicf(1, "bigactor.Actor: actor %s is already registered", name)
	}
	a.index = len(actors)
	actors = append(actors, a)
	actorsByName[name] = a
	if atomic.AddInt32(&actorsBusy, -1) != 0 {
		panic("bigactor.Actor: data race")
	}
	return a
}

// LookupActor returns the actor type registered under the provided
// name, if any. It is used by executors to resolve actor types named
// in wire requests.
func LookupActor(name string) (*ActorValue, bool) {
	a, ok := actorsByName[name]
	return a, ok
}

// Name returns the name under which the actor type was registered.
func (a *ActorValue) Name() string { return a.name }

// Method returns the named method and whether it exists.
func (a *ActorValue) Method(name string) (*Method, bool) {
	m, ok := a.meths[name]
	return m, ok
}

// TypecheckNew panics with a type error if the provided arguments do
// not match the constructor's signature.
func (a *ActorValue) TypecheckNew(args []interface{}) {
	argTypes := make([]reflect.Type, len(args))
	for i, arg := range args {
		argTypes[i] = reflect.TypeOf(arg)
	}
	a.sig.typecheck(argTypes...)
}

// TypecheckCall panics with a type error if the named method does
// not exist, or if the provided arguments do not match its
// signature.
func (a *ActorValue) TypecheckCall(method string, args []interface{}) {
	m, ok := a.meths[method]
	if !ok {
		typecheck.Panicf(2, "actor %s has no method %s", a.name, method)
	}
	argTypes := make([]reflect.Type, len(args))
	for i, arg := range args {
		argTypes[i] = reflect.TypeOf(arg)
	}
	m.sig.typecheck(argTypes...)
}

// New constructs a new instance of the actor type, returning its
// state. The state is passed to Call to execute methods.
func (a *ActorValue) New(ctx context.Context, args []interface{}) (interface{}, error) {
	out, err := a.sig.call(a.ctor, ctx, nil, args)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Call executes the named method against the provided actor state,
// returning the method's results. Callers must serialize calls to
// the same state; executors arrange this with per-instance
// mailboxes.
func (a *ActorValue) Call(ctx context.Context, state interface{}, method string, args []interface{}) ([]interface{}, error) {
	m, ok := a.meths[method]
	if !ok {
		return nil, typecheck.Errorf(1, "actor %s has no method %s", a.name, method)
	}
	return m.sig.call(m.fn, ctx, []reflect.Value{reflect.ValueOf(state)}, args)
}
