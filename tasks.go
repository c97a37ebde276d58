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
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/thediveo/faf"
)

// procfs is where [TaskIDs] and [PinApp] look for task listings by default,
// relative to the root of the proc filesystem.
var procfs fs.FS = os.DirFS("/proc")

const selfTasks = "self/task"

// number of directory entries to read in one go.
const readDirBatch = 64

// walkTasks calls fn for each task ID listed in the directory dir of fsys.
// Entry names starting with “.” as well as names that aren't decimal task IDs
// get skipped. A walk ends early when fn returns an error, which walkTasks then
// passes on. The directory is closed before returning.
func walkTasks(fsys fs.FS, dir string, fn func(tid int) error) (err error) {
	f, err := fsys.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	d, ok := f.(fs.ReadDirFile)
	if !ok {
		return &fs.PathError{Op: "readdir", Path: dir, Err: errors.New("not a directory")}
	}
	for {
		// ReadDir might return entries together with an error, so process
		// the entries first and only then look at the error.
		entries, err := d.ReadDir(readDirBatch)
		for _, entry := range entries {
			name := entry.Name()
			// “.” and “..”, in case the file system lists them.
			if strings.HasPrefix(name, ".") {
				continue
			}
			tid, ok := parseTID(name)
			if !ok {
				continue
			}
			if err := fn(tid); err != nil {
				return err
			}
		}
		// io.EOF marks the end of the listing and is no error.
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		// Not all fs.ReadDirFile implementations report io.EOF; an empty
		// batch without error also means that the listing is exhausted, and
		// looping on would never end.
		if len(entries) == 0 {
			return nil
		}
	}
}

// parseTID returns the task ID for a task directory entry name, and false if
// the name isn't a plain decimal number fitting a task ID.
func parseTID(name string) (int, bool) {
	bs := faf.NewBytestring([]byte(name))
	tid, ok := bs.Uint64()
	if !ok || !bs.EOL() || tid > math.MaxInt32 {
		return 0, false
	}
	return int(tid), true
}

// TaskIDs returns the IDs of the tasks (threads) of the process with the
// specified PID, or of the calling process if pid is zero. The task list is a
// snapshot: tasks might have come and gone by the time TaskIDs returns.
func TaskIDs(pid int) ([]int, error) {
	dir := selfTasks
	if pid != 0 {
		dir = strconv.Itoa(pid) + "/task"
	}
	var tids []int
	if err := walkTasks(procfs, dir, func(tid int) error {
		tids = append(tids, tid)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("cannot list tasks of process %d: %w", pid, err)
	}
	return tids, nil
}
