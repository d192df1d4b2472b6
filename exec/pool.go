// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/typecheck"
	"github.com/spaolacci/murmur3"
)

// A Pool is a fixed-size set of actor instances of a single type,
// used to process many inputs with bounded parallelism. Work is
// spread across the pool's instances; each instance still executes
// its own calls serially.
type Pool struct {
	sess    *Session
	actor   *bigactor.ActorValue
	handles []*ActorHandle
	next    uint32
}

// NewPool constructs a pool of size instances of the provided actor
// type, applying its constructor to the provided arguments for each
// instance. Instances are constructed concurrently. If any instance
// fails to construct, the successfully constructed instances are
// closed and the error is returned.
func (s *Session) NewPool(ctx context.Context, actor *bigactor.ActorValue, size int, args ...interface{}) (*Pool, error) {
	if size <= 0 {
		panic("exec.NewPool: size <= 0")
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		defer typecheck.Location(file, line)
	}
	actor.TypecheckNew(args)
	handles := make([]*ActorHandle, size)
	err := traverse.Each(size, func(i int) error {
		h, err := s.NewActor(ctx, actor, args...)
		if err != nil {
			return err
		}
		handles[i] = h
		return nil
	})
	if err != nil {
		for _, h := range handles {
			if h != nil {
				h.Close(ctx)
			}
		}
		return nil, err
	}
	return &Pool{sess: s, actor: actor, handles: handles}, nil
}

// Size returns the number of instances in the pool.
func (p *Pool) Size() int { return len(p.handles) }

// Call submits an invocation of the named method to one of the
// pool's instances, chosen round-robin, returning a future for its
// results.
func (p *Pool) Call(ctx context.Context, method string, args ...interface{}) *Future {
	n := atomic.AddUint32(&p.next, 1) - 1
	return p.handles[int(n)%len(p.handles)].Call(ctx, method, args...)
}

// CallKeyed submits an invocation of the named method to the
// instance that owns the provided key. Calls that share a key are
// always delivered to the same instance, in call order, so per-key
// state (e.g., a counter or a session) stays on one instance.
func (p *Pool) CallKeyed(ctx context.Context, key string, method string, args ...interface{}) *Future {
	h := p.handles[int(murmur3.Sum32([]byte(key)))%len(p.handles)]
	return h.Call(ctx, method, args...)
}

// Map applies the named method to each input, spreading the calls
// across the pool, and returns the results in input order. The
// method must accept a single argument and return a single result.
// Map fails if any call fails.
func (p *Pool) Map(ctx context.Context, method string, inputs []interface{}) ([]interface{}, error) {
	futures := make([]*Future, len(inputs))
	for i, input := range inputs {
		futures[i] = p.Call(ctx, method, input)
	}
	results := make([]interface{}, len(inputs))
	err := traverse.Each(len(futures), func(i int) error {
		return futures[i].Result(ctx, &results[i])
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// A PoolResult is a single result delivered by MapUnordered.
type PoolResult struct {
	// Index is the index of the input that produced this result.
	Index int
	// Value is the call's result; it is nil if Err is set.
	Value interface{}
	// Err is the call's error, if any.
	Err error
}

// MapUnordered applies the named method to each input, spreading the
// calls across the pool, and delivers results on the returned
// channel as they complete. The channel is closed once all results
// have been delivered. Unlike Map, a failed call does not prevent
// delivery of the others.
func (p *Pool) MapUnordered(ctx context.Context, method string, inputs []interface{}) <-chan PoolResult {
	resultc := make(chan PoolResult, len(inputs))
	var wg sync.WaitGroup
	for i, input := range inputs {
		i, fut := i, p.Call(ctx, method, input)
		wg.Add(1)
		go func() {
			defer wg.Done()
			var v interface{}
			err := fut.Result(ctx, &v)
			resultc <- PoolResult{Index: i, Value: v, Err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(resultc)
	}()
	return resultc
}

// Close closes all of the pool's instances, returning the first
// error encountered.
func (p *Pool) Close(ctx context.Context) error {
	var (
		mu    sync.Mutex
		first error
	)
	err := traverse.Each(len(p.handles), func(i int) error {
		if err := p.handles[i].Close(ctx); err != nil {
			mu.Lock()
			if first == nil {
				first = err
			}
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if first != nil {
		return errors.E("pool close", first)
	}
	return nil
}
