// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package actorcmd provides utilities for implementing
// bigactor-based command line tools. The main entry point,
// actorcmd.Main, configures bigactor according to a common set of
// flags, and then invokes the user's driver code.
//
// An actorcmd tool follows this form:
//
//	func main() {
//		var (
//			applicationFlag1 = flag.Int(...)
//			applicationFlag2 = ...
//		)
//		actorcmd.Main(func(sess *exec.Session, args []string) error {
//			ctx := context.Background()
//			fut := sess.Submit(MyFunc, ...)
//			var v int
//			if err := fut.Result(ctx, &v); err != nil {
//				return err
//			}
//			// Do something else...
//			return nil
//		})
//	}
package actorcmd

import (
	"flag"
	"fmt"
	"net/http"
	// Pprof is included to be exposed on the local diagnostic web server.
	_ "net/http/pprof"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigactor/exec"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/bigmachine/testsystem"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

var (
	mu      sync.Mutex
	systems = map[string]bigmachine.System{}
)

// RegisterSystem registers a bigmachine system for use in this
// actorcmd. The named registration is recalled via the -system
// flag.
func RegisterSystem(name string, system bigmachine.System) {
	mu.Lock()
	defer mu.Unlock()
	if systems[name] != nil {
		log.Panicf("system %s is already registered", name)
	}
	systems[name] = system
}

// Flags holds the common bigactor command line flags.
type Flags struct {
	// System selects the executor: "local", "internal", "test", or a
	// name registered with RegisterSystem.
	System string
	// Parallelism is the target parallelism; 0 selects a default
	// appropriate for the system.
	Parallelism int
	// LoadFactor is the maximum per-machine load.
	LoadFactor float64
	// ConsoleStatus arranges for the execution status to be rendered
	// to standard output.
	ConsoleStatus bool
	// HTTPAddress is the address of the diagnostic web server; empty
	// disables it.
	HTTPAddress string
}

// RegisterFlags registers the bigactor command line flags with the
// supplied flag set. The flag names are prefixed with the supplied
// prefix.
func RegisterFlags(fs *flag.FlagSet, fl *Flags, prefix string) {
	fs.StringVar(&fl.System, prefix+"system", "local", "the system used for task and actor execution")
	fs.IntVar(&fl.Parallelism, prefix+"parallelism", 0, "maximum degree of parallelism in terms of CPU cores, 0 for a system default")
	fs.Float64Var(&fl.LoadFactor, prefix+"load-factor", exec.DefaultMaxLoad, "maximum machine load")
	fs.BoolVar(&fl.ConsoleStatus, prefix+"console-status", false, "print status to stdout")
	fs.StringVar(&fl.HTTPAddress, prefix+"http", ":3333", "address of the diagnostic http server")
}

// ExecOptions parses the flag values and returns the exec options
// they specify.
func (fl Flags) ExecOptions() ([]exec.Option, error) {
	var stat status.Status
	// Ensure bigmachine's group is displayed first.
	_ = stat.Group(exec.BigmachineStatusGroup)
	options := []exec.Option{exec.Status(&stat)}
	switch fl.System {
	case "local":
		options = append(options, exec.Local)
	case "internal":
		options = append(options, exec.Bigmachine(bigmachine.Local))
	case "test":
		options = append(options, exec.Bigmachine(testsystem.New()))
	default:
		mu.Lock()
		system := systems[fl.System]
		mu.Unlock()
		if system == nil {
			return nil, fmt.Errorf("unknown system %s", fl.System)
		}
		options = append(options, exec.Bigmachine(system))
	}
	if fl.Parallelism > 0 {
		options = append(options, exec.Parallelism(fl.Parallelism))
	}
	if fl.LoadFactor > 0 {
		options = append(options, exec.MaxLoad(fl.LoadFactor))
	}
	return options, nil
}

// Main is a convenient entry point for an actorcmd. Main does not
// return; it should be called after other initialization is
// performed. Main parses (global) flags and configures bigactor
// accordingly, then invokes the provided func with a session through
// which tasks and actors may be run, along with the unparsed
// arguments.
//
// Main starts a diagnostic web server (default address :3333), using
// http.DefaultServeMux, which includes pprof handlers as well as
// bigactor's debug handlers.
//
// Main terminates the program after the user func returns. If it
// returns with an error, it is reported and the process exits with
// code 1, otherwise it exits successfully.
func Main(main func(sess *exec.Session, args []string) error) {
	var fl Flags
	RegisterFlags(flag.CommandLine, &fl, "")
	log.AddFlags()
	flag.Parse()
	sess, err := Init(fl)
	if err != nil {
		log.Fatal(err)
	}
	defer sess.Shutdown()
	if err := main(sess, flag.Args()); err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

// Init starts a session according to the supplied flags.
func Init(fl Flags) (*exec.Session, error) {
	options, err := fl.ExecOptions()
	if err != nil {
		return nil, err
	}
	sess := exec.Start(options...)
	DisplayStatus(fl, sess)
	return sess, nil
}

// DisplayStatus arranges for the bigactor execution status to be
// displayed on the console and/or a web page depending on the flags
// specified on the command line. The web page is hosted at
// /debug/status on http.DefaultServeMux.
func DisplayStatus(fl Flags, sess *exec.Session) {
	if fl.ConsoleStatus {
		var console status.Reporter
		go console.Go(os.Stdout, sess.Status())
	}
	if fl.HTTPAddress != "" {
		sess.HandleDebug(http.DefaultServeMux)
		http.Handle("/debug/status", status.Handler(sess.Status()))
		go func() {
			log.Printf("http status at: %v", fl.HTTPAddress)
			if err := http.ListenAndServe(fl.HTTPAddress, nil); err != nil {
				log.Error.Printf("failed to start http server at %v: %v", fl.HTTPAddress, err)
			}
		}()
	}
}
