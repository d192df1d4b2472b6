// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bigactor implements a small distributed task and actor
	runtime, together with a set of worked examples of the patterns it
	supports: remote function execution, stateful actors, actor pools
	for batch inference, progress tracking, and supervised fan-out of
	model training.

	Bigactor programs can run locally, but use bigmachine for
	distribution among a cluster of compute nodes. In either case, user
	code does not change; the details of distribution are handled by
	bigmachine. Machine lifecycle, RPC, and fault detection all belong
	to bigmachine: bigactor consumes them as opaque services.

	Because Go cannot easily serialize code to be sent over the wire and
	executed remotely, bigactor programs have to be written with a few
	constraints:

	1. All remote functions must be created by bigactor.Func and all
	actor types registered by bigactor.Actor before exec.Start is
	called. This rule is easy to follow: if funcs and actors are global
	variables, and exec.Start is called from a program's main, then the
	program is compliant.

	2. The driver program must be compiled on the same GOOS and GOARCH
	as the target architecture. When running locally, this is not a
	concern, but programs that require distribution must be run from a
	linux/amd64 binary.

	A typical program submits work through a session:

		var estimate = bigactor.Func(func(n int) int {
			// ... count hits ...
			return hits
		})

		func main() {
			sess := exec.Start(exec.Local)
			defer sess.Shutdown()
			fut := sess.Submit(estimate, 1000000)
			var hits int
			if err := fut.Result(ctx, &hits); err != nil {
				log.Fatal(err)
			}
		}

	Actors are stateful counterparts to funcs. An actor type is
	registered with a constructor; handles to remote instances execute
	methods one at a time, in call order:

		var counter = bigactor.Actor("Counter", NewCounter)

		handle, err := sess.NewActor(ctx, counter, 0)
		fut := handle.Call(ctx, "Incr", 1)
*/
package bigactor
