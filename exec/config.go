// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"

	"github.com/grailbio/base/config"
	"github.com/grailbio/bigmachine"
)

func init() {
	config.Register("bigactor", func(inst *config.Constructor) {
		sess := newSession()
		inst.IntVar(&sess.p, "parallelism", 1024, "allowable parallelism for the job")
		inst.IntVar(&sess.queueDepth, "actor-queue", handleQueueDepth, "pending calls buffered per actor handle")
		inst.FloatVar(&sess.maxLoad, "max-load", DefaultMaxLoad, "per-machine maximum load")
		var system bigmachine.System
		inst.InstanceVar(&system, "system", "", "the bigmachine system used for task and actor execution; leave empty to run in-process")
		inst.Doc = "bigactor configures the bigactor runtime"
		inst.New = func() (interface{}, error) {
			if sess.p <= 0 {
				return nil, fmt.Errorf("bigactor.parallelism: %d <= 0", sess.p)
			}
			if sess.queueDepth <= 0 {
				return nil, fmt.Errorf("bigactor.actor-queue: %d <= 0", sess.queueDepth)
			}
			if sess.maxLoad <= 0 {
				return nil, fmt.Errorf("bigactor.max-load: %g <= 0", sess.maxLoad)
			}
			if system != nil {
				sess.executor = newBigmachineExecutor(system)
			} else {
				sess.executor = newLocalExecutor()
			}
			sess.start()
			return sess, nil
		}
	})
}
