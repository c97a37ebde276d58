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

// Command pinapp restricts all of its threads to the first N CPUs and then
// replaces itself with the command to run, which inherits the affinity. It
// also shows the CPU affinities of the tasks of a process.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	os.Exit(run(os.Args))
}

// run runs pinapp with the specified arguments, returning the exit code. On
// success, run doesn't return as the process gets replaced by the command to
// run.
func run(args []string) int {
	err := newPinapp().newApp(os.Stdout, os.Stderr).Run(args)
	return exitCode(err)
}

// exitCode returns the process exit code for err, printing err to stderr.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "pinapp:", err)
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return exitUsage
}
