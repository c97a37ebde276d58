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
	"fmt"
	"math/bits"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxCPUs is the number of CPUs the native fixed-size affinity mask type
// [unix.CPUSet] is able to represent; this is the largest CPU count [PinApp]
// accepts.
const MaxCPUs = uint(unsafe.Sizeof(unix.CPUSet{}) * 8)

// Set is a CPU bit string, such as used for CPU affinity masks. See also
// [sched_getaffinity(2)].
//
// [sched_getaffinity(2)]: https://man7.org/linux/man-pages/man2/sched_getaffinity.2.html
type Set []uint64

// setsize caches the CPU set size (in uint64 words) the kernel last accepted
// when reading affinities.
var setsize atomic.Uint64
var wordbytesize = uint64(unsafe.Sizeof(Set{0}[0]))
var bitsperword = uint(wordbytesize * 8)

func init() {
	setsize.Store(1)
}

func setBitIndex(cpu uint) int {
	return int(cpu / bitsperword)
}

func setBitMask(cpu uint) uint64 {
	return uint64(1) << (cpu % bitsperword)
}

// FirstCPUs returns a new Set containing exactly the CPUs 0 to n-1. For n of
// zero, an empty Set is returned.
func FirstCPUs(n uint) Set {
	if n == 0 {
		return Set{}
	}
	return Set{}.AddRange(0, n-1)
}

// IsSet reports whether cpu is in this CPU set.
func (s Set) IsSet(cpu uint) bool {
	if cpu >= uint(len(s))*bitsperword {
		return false
	}
	return s[setBitIndex(cpu)]&setBitMask(cpu) != 0
}

// AddRange adds the CPUs from the specified range, returning an updated Set.
// This updated Set may or may not be the original Set. AddRange panics if from
// is larger than to.
func (s Set) AddRange(from, to uint) Set {
	if from > to {
		panic(fmt.Sprintf("invalid range %d-%d", from, to))
	}
	if need := setBitIndex(to) + 1; need > len(s) {
		s = append(s, make(Set, need-len(s))...)
	}
	for cpu := from; cpu <= to; cpu++ {
		s[setBitIndex(cpu)] |= setBitMask(cpu)
	}
	return s
}

// Count returns the number of CPUs in this Set.
func (s Set) Count() uint {
	n := 0
	for _, word := range s {
		n += bits.OnesCount64(word)
	}
	return uint(n)
}

// Affinity returns the affinity CPU Set of the task with the passed TID.
// Otherwise, it returns an error. If tid is zero, then the affinity of the
// calling thread is returned (make sure to have the OS-level thread locked to
// the calling go routine in this case).
//
// Affinity doesn't use [unix.SchedGetaffinity] as that is tied to the fixed
// size [unix.CPUSet] type; instead, the set size the kernel wants is
// determined dynamically and then cached.
func Affinity(tid int) (Set, error) {
	known := setsize.Load()
	setlen := known
	for {
		set := make(Set, setlen)
		// RawSyscall instead of Syscall, as SYS_SCHED_GETAFFINITY doesn't
		// block, following Go's stdlib.
		_, _, e := unix.RawSyscall(unix.SYS_SCHED_GETAFFINITY,
			uintptr(tid), uintptr(setlen*wordbytesize), uintptr(unsafe.Pointer(&set[0])))
		switch e {
		case 0:
		case unix.EINVAL:
			setlen *= 2
			continue
		default:
			return nil, e
		}
		// Only ever grow the cached size; another go routine might have
		// raced us to it.
		for known < setlen && !setsize.CompareAndSwap(known, setlen) {
			known = setsize.Load()
		}
		return set, nil
	}
}

// SetAffinity sets the CPU affinity of the task with the specified TID. If tid
// is zero, the affinity of the calling thread is set. It is an error trying to
// set an empty Set, reported as EINVAL just as the kernel does for a mask
// without any usable CPUs.
func SetAffinity(tid int, cpus Set) error {
	if len(cpus) == 0 {
		return syscall.EINVAL
	}
	_, _, e := unix.RawSyscall(unix.SYS_SCHED_SETAFFINITY,
		uintptr(tid), uintptr(uint64(len(cpus))*wordbytesize), uintptr(unsafe.Pointer(&cpus[0])))
	if e != 0 {
		return e
	}
	return nil
}

// String returns the CPUs in this set in textual list format. In list format,
// individual CPU ranges “x-y” are separated by “,”, and single CPU ranges
// collapsed into “x”.
func (s Set) String() string {
	return s.List().String()
}

// List returns the list of CPU ranges corresponding with this CPU Set.
//
// Instead of testing bit by bit, List skips over runs of zeros and ones in
// each set word by counting trailing zeros.
func (s Set) List() List {
	cpulist := List{}
	inRange := false
	var from uint
	for idx, word := range s {
		base := uint(idx) * bitsperword
		bit := uint(0)
		for bit < bitsperword {
			rest := word >> bit
			if !inRange {
				// No more set CPUs in this word; move on to the next word
				// without an open range.
				if rest == 0 {
					break
				}
				// Skip the run of unset CPUs and open a new range at the
				// first set CPU.
				bit += uint(bits.TrailingZeros64(rest))
				from = base + bit
				inRange = true
				continue
			}
			// Shifting fills in zeros from the top, which the complement turns
			// into ones; so the trailing zeros of the complement count the run
			// of set CPUs, and this count reaches the word's end when the run
			// does.
			ones := uint(bits.TrailingZeros64(^rest))
			if bit+ones >= bitsperword {
				// The run reaches the MSB, so the range might well continue
				// in the next word: leave it open.
				break
			}
			bit += ones
			cpulist = append(cpulist, [2]uint{from, base + bit - 1})
			inRange = false
		}
	}
	// A range still open after the last word ends with the last CPU.
	if inRange {
		cpulist = append(cpulist, [2]uint{from, uint(len(s))*bitsperword - 1})
	}
	return cpulist
}
