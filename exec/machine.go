// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"sync"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor"
	"github.com/grailbio/bigactor/stats"
	"github.com/grailbio/bigmachine"
)

// MaxStartMachines is the maximum number of machines that
// may be started in one batch.
const maxStartMachines = 10

// StatsPollInterval is the period at which worker statistics are
// polled and merged into each machine's status display.
const statsPollInterval = 5 * time.Second

// A machine manages a single bigmachine.Machine instance on behalf
// of the bigmachine executor.
type machine struct {
	*bigmachine.Machine

	Stats  *stats.Map
	Status *status.Task

	// maxProcs is the maximum number of procs on the machine to which
	// tasks can be assigned. It is the machine's Maxprocs attenuated
	// by the session's max load.
	maxProcs int

	// procs is the current number of procs on the machine that have
	// tasks assigned. procs is managed by the machineManager.
	procs int

	donec chan machineDone

	mu sync.Mutex
	// lost tells whether the machine is considered lost as per
	// bigmachine.
	lost bool
}

// Done returns a proc to the machine, reporting any error observed
// while running the task.
func (m *machine) Done(err error) {
	m.donec <- machineDone{m, err}
}

// Lost reports whether the machine is considered lost.
func (m *machine) Lost() bool {
	m.mu.Lock()
	lost := m.lost
	m.mu.Unlock()
	return lost
}

func (m *machine) setLost() {
	m.mu.Lock()
	m.lost = true
	m.mu.Unlock()
}

// Maintain polls the machine's worker for its statistics, merging
// them with the driver-side counters and rendering the result to the
// machine's status task. It returns when the machine stops or the
// context is canceled.
func (m *machine) maintain(ctx context.Context) {
	stopped := m.Wait(bigmachine.Stopped)
	for {
		select {
		case <-time.After(statsPollInterval):
		case <-stopped:
			return
		case <-ctx.Done():
			return
		}
		vals := make(stats.Values)
		if err := m.Call(ctx, "Worker.Stats", struct{}{}, &vals); err != nil {
			if !m.Lost() {
				log.Error.Printf("machine %s stats: %v", m.Addr, err)
			}
			continue
		}
		m.Stats.AddAll(vals)
		if m.Status != nil {
			m.Status.Print(vals.String())
		}
	}
}

// MachineDone is the message used to return procs to the machine
// manager.
type machineDone struct {
	m   *machine
	err error
}

// A machineManager starts, offers, and supervises the machines used
// by the bigmachine executor. Demand is expressed in procs through
// Need; satisfied demand arrives on the Offer channel, one machine
// per proc. The manager runs as a single goroutine (Do), so machine
// bookkeeping requires no further locking.
type machineManager struct {
	b       *bigmachine.B
	params  []bigmachine.Param
	group   *status.Group
	maxp    int
	maxLoad float64
	worker  *worker

	needc  chan int
	offerc chan *machine
	donec  chan machineDone
	lostc  chan *machine
}

func newMachineManager(b *bigmachine.B, params []bigmachine.Param, group *status.Group, maxp int, maxLoad float64, worker *worker) *machineManager {
	return &machineManager{
		b:       b,
		params:  params,
		group:   group,
		maxp:    maxp,
		maxLoad: maxLoad,
		worker:  worker,
		needc:   make(chan int),
		offerc:  make(chan *machine),
		donec:   make(chan machineDone),
		lostc:   make(chan *machine),
	}
}

// Need adjusts the manager's demand by n procs. Calls with positive
// n should be paired with calls with negative n once the proc is no
// longer needed.
func (m *machineManager) Need(n int) {
	m.needc <- n
}

// Offer returns the channel on which the manager offers machines
// with available procs, one offer per needed proc.
func (m *machineManager) Offer() <-chan *machine {
	return m.offerc
}

// Do starts machine management. It returns when the provided context
// is done.
func (m *machineManager) Do(ctx context.Context) {
	procsPerMachine := int(m.maxLoad * float64(m.b.System().Maxprocs()))
	if procsPerMachine < 1 {
		procsPerMachine = 1
	}
	type startResult struct {
		machines []*machine
		procs    int
	}
	var (
		need     int
		inuse    int
		starting int
		machines []*machine
		startc   = make(chan startResult)
	)
	for {
		var (
			offer   *machine
			offerc  chan *machine
			numProc int
		)
		for _, mach := range machines {
			numProc += mach.maxProcs
			if offer == nil && mach.procs < mach.maxProcs {
				offer = mach
			}
		}
		if need > inuse && offer != nil {
			offerc = m.offerc
		}
		// Start enough machines to satisfy demand, capped by both the
		// session's parallelism and the start batch size.
		want := need
		if want > m.maxp {
			want = m.maxp
		}
		if short := want - numProc - starting; short > 0 {
			n := (short + procsPerMachine - 1) / procsPerMachine
			if n > maxStartMachines {
				n = maxStartMachines
			}
			batch := n * procsPerMachine
			starting += batch
			go func() {
				started := startMachines(ctx, m.b, m.group, procsPerMachine, n, m.worker, m.donec, m.lostc, m.params...)
				startc <- startResult{started, batch}
			}()
		}
		select {
		case n := <-m.needc:
			need += n
		case offerc <- offer:
			offer.procs++
			inuse++
		case done := <-m.donec:
			done.m.procs--
			inuse--
			if done.err != nil {
				log.Error.Printf("machine %s task error: %v", done.m.Addr, done.err)
			}
		case started := <-startc:
			starting -= started.procs
			machines = append(machines, started.machines...)
		case lost := <-m.lostc:
			lost.setLost()
			if lost.Status != nil {
				lost.Status.Print("lost")
				lost.Status.Done()
			}
			for i, mach := range machines {
				if mach == lost {
					machines = append(machines[:i], machines[i+1:]...)
					break
				}
			}
			log.Error.Printf("machine %s lost", lost.Addr)
		case <-ctx.Done():
			return
		}
	}
}

// StartMachines starts a number of machines on b, installing a
// worker service on each of them. StartMachines returns a slice of
// successfully started machines when all of them are in
// bigmachine.Running state. If a machine fails to start, it is not
// included.
func startMachines(ctx context.Context, b *bigmachine.B, group *status.Group, maxProcs, n int, worker *worker, donec chan machineDone, lostc chan *machine, params ...bigmachine.Param) []*machine {
	params = append([]bigmachine.Param{bigmachine.Services{"Worker": worker}}, params...)
	started, err := b.Start(ctx, n, params...)
	if err != nil {
		log.Error.Printf("error starting machines: %v", err)
		return nil
	}
	var wg sync.WaitGroup
	machines := make([]*machine, len(started))
	for i := range started {
		i := i
		m := started[i]
		var stat *status.Task
		if group != nil {
			stat = group.Start()
			stat.Print("waiting for machine to boot")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				log.Printf("machine %s failed to start: %v", m.Addr, err)
				if stat != nil {
					stat.Printf("failed to start: %v", err)
					stat.Done()
				}
				return
			}
			var workerFuncLocs []string
			if err := m.RetryCall(ctx, "Worker.FuncLocations", struct{}{}, &workerFuncLocs); err != nil {
				if stat != nil {
					stat.Print("failed to verify funcs")
					stat.Done()
				}
				m.Cancel()
				return
			}
			diff := bigactor.FuncLocationsDiff(bigactor.FuncLocations(), workerFuncLocs)
			if len(diff) > 0 {
				for _, edit := range diff {
					log.Printf("[funcsdiff] %s", edit)
				}
				log.Panicf("machine %s has different funcs; check for local or non-deterministic Func creation", m.Addr)
			}
			if stat != nil {
				stat.Title(m.Addr)
				stat.Print("running")
			}
			log.Printf("machine %v is ready", m.Addr)
			mach := &machine{
				Machine:  m,
				Stats:    stats.NewMap(),
				Status:   stat,
				maxProcs: maxProcs,
				donec:    donec,
			}
			machines[i] = mach
			go mach.maintain(ctx)
			go func() {
				<-m.Wait(bigmachine.Stopped)
				lostc <- mach
			}()
		}()
	}
	wg.Wait()
	n = 0
	for _, m := range machines {
		if m != nil {
			machines[n] = m
			n++
		}
	}
	return machines[:n]
}
