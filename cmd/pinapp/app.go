// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog"
	"github.com/thediveo/pincpus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
)

// Exit codes in addition to the negated pincpus result codes 1-3.
const (
	exitUsage      = 64  // sysexits.h EX_USAGE
	exitCannotExec = 126 // as used by shells
	exitNotFound   = 127
)

// pinapp keeps the operations the commands use, so that tests can swap out
// those which would change or replace the test process.
type pinapp struct {
	log      zerolog.Logger
	pin      func(numCores uint) error
	online   func() (pincpus.List, error)
	lookPath func(file string) (string, error)
	exec     func(argv0 string, argv []string, envv []string) error
}

func newPinapp() *pinapp {
	return &pinapp{
		log: zerolog.Nop(),
		pin: func(numCores uint) error {
			return pincpus.PinApp(numCores)
		},
		online:   pincpus.OnlineCPUs,
		lookPath: exec.LookPath,
		exec:     unix.Exec,
	}
}

// newApp returns the command line application, writing output to stdout and
// logs to stderr.
func (p *pinapp) newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "pinapp",
		Usage:     "restrict all threads to the first CPUs",
		Writer:    stdout,
		ErrWriter: stderr,
		// main decides about the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (trace, debug, info, warn, error, disabled)",
				Value:   "info",
				EnvVars: []string{"PINAPP_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "pretty",
				Usage:   "log in console format instead of JSON",
				EnvVars: []string{"PINAPP_PRETTY"},
			},
		},
		Before: func(c *cli.Context) error {
			log, err := newLogger(c.App.ErrWriter, c.String("log-level"), c.Bool("pretty"))
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid log level: %s", err), exitUsage)
			}
			p.log = log
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "pin",
				Usage:     "pin this process to the first CPUs, then run command",
				ArgsUsage: "[--] command [args...]",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:     "cores",
						Aliases:  []string{"n"},
						Usage:    "number of CPUs, starting from CPU 0",
						Required: true,
						EnvVars:  []string{"PINAPP_CORES"},
					},
				},
				Action: p.pinAction,
			},
			{
				Name:  "show",
				Usage: "show the CPU affinities of all tasks of a process",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "pid",
						Usage: "process ID, defaults to pinapp itself",
					},
				},
				Action: p.showAction,
			},
		},
	}
}

func (p *pinapp) pinAction(c *cli.Context) error {
	args := c.Args().Slice()
	if len(args) == 0 {
		return cli.Exit("missing command to run", exitUsage)
	}
	numCores := c.Uint("cores")
	p.warnOffline(numCores)
	if err := p.pin(numCores); err != nil {
		code := pincpus.Code(err)
		p.log.Error().Err(err).Int("code", code).Msg("cannot pin threads")
		return cli.Exit(err.Error(), -code)
	}
	path, err := p.lookPath(args[0])
	if err != nil {
		return cli.Exit(err.Error(), exitNotFound)
	}
	p.log.Info().
		Str("command", path).
		Str("cpus", pincpus.FirstCPUs(numCores).String()).
		Msg("running command")
	if err := p.exec(path, args, os.Environ()); err != nil {
		return cli.Exit(fmt.Sprintf("cannot run %s: %s", path, err), exitCannotExec)
	}
	return nil
}

// warnOffline logs a warning if some of the first numCores CPUs are offline.
// Not knowing which CPUs are online never stops pinning.
func (p *pinapp) warnOffline(numCores uint) {
	online, err := p.online()
	if err != nil {
		p.log.Debug().Err(err).Msg("cannot determine online CPUs")
		return
	}
	requested := pincpus.FirstCPUs(numCores).List()
	if requested.Overlap(online).Count() >= numCores {
		return
	}
	p.log.Warn().
		Uint("cores", numCores).
		Str("online", online.String()).
		Str("offline", offlineCPUs(numCores, online).String()).
		Msg("some requested CPUs are offline")
}

// offlineCPUs returns those of the first numCores CPUs not in online.
func offlineCPUs(numCores uint, online pincpus.List) pincpus.List {
	onlineSet := online.Set()
	offline := pincpus.Set{}
	for cpu := uint(0); cpu < numCores; cpu++ {
		if !onlineSet.IsSet(cpu) {
			offline = offline.AddRange(cpu, cpu)
		}
	}
	return offline.List()
}

func (p *pinapp) showAction(c *cli.Context) error {
	pid := c.Int("pid")
	tids, err := pincpus.TaskIDs(pid)
	if err != nil {
		return cli.Exit(err.Error(), -pincpus.InvalidThreadEnumeration.Code())
	}
	p.log.Debug().Int("pid", pid).Int("tasks", len(tids)).Msg("listed tasks")
	for _, tid := range tids {
		affs, err := pincpus.Affinity(tid)
		if err != nil {
			if errors.Is(err, unix.ESRCH) {
				continue
			}
			return cli.Exit(fmt.Sprintf("cannot get affinity of task %d: %s", tid, err),
				-pincpus.InvalidThreadEnumeration.Code())
		}
		fmt.Fprintf(c.App.Writer, "%d\t%s\n", tid, affs)
	}
	return nil
}
