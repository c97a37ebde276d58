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

package pincpus

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

// Option configures [PinApp].
type Option func(*pinOptions)

type pinOptions struct {
	fsys        fs.FS
	dir         string
	setAffinity func(tid int, cpus Set) error
}

// WithTaskFS makes [PinApp] read the task listing from the directory dir in
// fsys instead of “/proc/self/task”.
func WithTaskFS(fsys fs.FS, dir string) Option {
	return func(o *pinOptions) {
		o.fsys = fsys
		o.dir = dir
	}
}

// WithAffinitySetter makes [PinApp] apply CPU masks to tasks using fn instead
// of [SetAffinity].
func WithAffinitySetter(fn func(tid int, cpus Set) error) Option {
	return func(o *pinOptions) {
		o.setAffinity = fn
	}
}

// PinApp restricts all tasks (threads) of the calling process to the first
// numCores CPUs, that is, CPUs 0 to numCores-1. It returns nil on success,
// otherwise a [*PinError] carrying one of the following [Result]s:
//
//   - [InvalidCoreCount] if numCores is zero or larger than [MaxCPUs], in which
//     case no task has been touched, or if the kernel rejected the CPU mask.
//   - [InvalidThreadEnumeration] if the task listing cannot be read, or if
//     applying the CPU mask to some task failed for reasons other than the
//     ones below. In the latter case, the remaining tasks still got pinned.
//   - [PermissionDenied] if the caller isn't allowed to change affinities; the
//     tasks not yet processed at this point keep their affinities.
//
// Tasks that terminated after being listed are skipped. Tasks created while
// PinApp runs might not get pinned. Task listing entries whose names aren't
// decimal task IDs are ignored, instead of being taken as task ID 0 (which
// would mean the calling thread).
func PinApp(numCores uint, opts ...Option) error {
	if numCores < 1 || numCores > MaxCPUs {
		return &PinError{Result: InvalidCoreCount}
	}
	o := pinOptions{
		fsys:        procfs,
		dir:         selfTasks,
		setAffinity: SetAffinity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	cpus := FirstCPUs(numCores)

	var taskErr error
	err := walkTasks(o.fsys, o.dir, func(tid int) error {
		err := o.setAffinity(tid, cpus)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EINVAL):
			return &PinError{Result: InvalidCoreCount, TID: tid, Err: err}
		case errors.Is(err, unix.EPERM):
			return &PinError{Result: PermissionDenied, TID: tid, Err: err}
		case errors.Is(err, unix.ESRCH):
			// the task is already gone.
			return nil
		}
		if taskErr == nil {
			taskErr = &PinError{Result: InvalidThreadEnumeration, TID: tid, Err: err}
		}
		return nil
	})
	if err != nil {
		var perr *PinError
		if errors.As(err, &perr) {
			return perr
		}
		return &PinError{Result: InvalidThreadEnumeration, Err: err}
	}
	return taskErr
}
