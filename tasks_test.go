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
	"os"
	"runtime"
	"testing/fstest"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2/dsl/core"
	. "github.com/onsi/ginkgo/v2/dsl/table"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

// taskFS returns a fake proc filesystem with a “self/task” directory
// containing the named entries.
func taskFS(names ...string) fstest.MapFS {
	fsys := fstest.MapFS{
		selfTasks: &fstest.MapFile{Mode: fs.ModeDir | 0o555},
	}
	for _, name := range names {
		fsys[selfTasks+"/"+name] = &fstest.MapFile{Mode: fs.ModeDir | 0o555}
	}
	return fsys
}

// brokenDir hands out its entries in a single batch together with err, and
// notes when it gets closed.
type brokenDir struct {
	entries []fs.DirEntry
	err     error
	closed  bool
}

func (d *brokenDir) Stat() (fs.FileInfo, error) { return nil, fs.ErrInvalid }
func (d *brokenDir) Read([]byte) (int, error)    { return 0, fs.ErrInvalid }
func (d *brokenDir) Close() error                { d.closed = true; return nil }

func (d *brokenDir) ReadDir(int) ([]fs.DirEntry, error) {
	entries := d.entries
	d.entries = nil
	return entries, d.err
}

type brokenFS struct{ dir *brokenDir }

func (f brokenFS) Open(string) (fs.File, error) { return f.dir, nil }

func newBrokenDir(err error, names ...string) *brokenDir {
	return &brokenDir{
		entries: Successful(fs.ReadDir(taskFS(names...), selfTasks)),
		err:     err,
	}
}

var _ = Describe("tasks", func() {

	DescribeTable("parsing task IDs",
		func(name string, tid int, ok bool) {
			acttid, actok := parseTID(name)
			Expect(actok).To(Equal(ok))
			Expect(acttid).To(Equal(tid))
		},
		Entry(nil, "1", 1, true),
		Entry(nil, "4242", 4242, true),
		Entry(nil, "2147483647", 2147483647, true),
		Entry(nil, "2147483648", 0, false),
		Entry(nil, "", 0, false),
		Entry(nil, "abc", 0, false),
		Entry(nil, "12x", 0, false),
		Entry(nil, "-1", 0, false),
	)

	It("walks only task ID entries", func() {
		var tids []int
		Expect(walkTasks(taskFS("1", "2", ".hidden", "foo", "3"), selfTasks,
			func(tid int) error {
				tids = append(tids, tid)
				return nil
			})).To(Succeed())
		Expect(tids).To(ConsistOf(1, 2, 3))
	})

	It("stops walking on error", func() {
		boom := errors.New("boom")
		calls := 0
		Expect(walkTasks(taskFS("1", "2", "3"), selfTasks, func(tid int) error {
			calls++
			return boom
		})).To(MatchError(boom))
		Expect(calls).To(Equal(1))
	})

	It("reports unavailable task listings", func() {
		Expect(walkTasks(fstest.MapFS{}, selfTasks, func(int) error { return nil })).
			To(MatchError(fs.ErrNotExist))
		Expect(walkTasks(fstest.MapFS{selfTasks: &fstest.MapFile{}}, selfTasks, func(int) error { return nil })).
			To(MatchError(ContainSubstring("not a directory")))
	})

	It("reports task listing read errors and closes the listing", func() {
		dir := newBrokenDir(unix.EIO, "1", "2")
		var tids []int
		Expect(walkTasks(brokenFS{dir}, selfTasks, func(tid int) error {
			tids = append(tids, tid)
			return nil
		})).To(MatchError(unix.EIO))
		Expect(tids).To(ConsistOf(1, 2))
		Expect(dir.closed).To(BeTrue())
	})

	It("lists this process's tasks", func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		Expect(TaskIDs(0)).To(ContainElements(os.Getpid(), unix.Gettid()))
		Expect(TaskIDs(os.Getpid())).To(ContainElement(os.Getpid()))
	})

	It("reports listing tasks of non-existing processes", func() {
		Expect(TaskIDs(-1)).Error().To(MatchError(fs.ErrNotExist))
	})

})
