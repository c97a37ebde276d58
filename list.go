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
	"strconv"
	"strings"

	"github.com/thediveo/faf"
)

// List is a list of CPU [from...to] ranges. CPU numbers are starting from zero.
type List [][2]uint

// String returns the CPU list in textual format, with the individual ranges
// “x-y” separated by “,” and single CPU ranges collapsed into “x” (instead of
// “x-x”).
func (l List) String() string {
	var b strings.Builder
	for idx, cpurange := range l {
		if idx > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(cpurange[0]), 10))
		if cpurange[0] != cpurange[1] {
			b.WriteByte('-')
			b.WriteString(strconv.FormatUint(uint64(cpurange[1]), 10))
		}
	}
	return b.String()
}

// NewList returns a new CPU List for the given textual list format, such as
// “0-3,8”. If the text is malformed then an error is returned instead.
func NewList(b []byte) (List, error) {
	bs := faf.NewBytestring(b)
	l := List{}
	for !bs.EOL() {
		from, ok := bs.Uint64()
		if !ok {
			return nil, errors.New("expected unsigned integer number")
		}
		to := from
		if bs.EOL() {
			return append(l, [2]uint{uint(from), uint(to)}), nil
		}
		ch, _ := bs.Next()
		if ch == '-' {
			if to, ok = bs.Uint64(); !ok {
				return nil, errors.New("expected unsigned integer number")
			}
			if to < from {
				return nil, errors.New("invalid descending range")
			}
			l = append(l, [2]uint{uint(from), uint(to)})
			if bs.EOL() {
				return l, nil
			}
			if ch, _ = bs.Next(); ch != ',' {
				return nil, errors.New("expected ','")
			}
			continue
		}
		if ch != ',' {
			return nil, errors.New("expected '-' or ','")
		}
		l = append(l, [2]uint{uint(from), uint(to)})
	}
	return l, nil
}

// Set returns the CPU Set corresponding with this list.
func (l List) Set() Set {
	if len(l) == 0 {
		return Set{}
	}
	// Add the highest range first so that the set gets allocated only once.
	s := Set{}.AddRange(l[len(l)-1][0], l[len(l)-1][1])
	for _, r := range l[:len(l)-1] {
		s = s.AddRange(r[0], r[1])
	}
	return s
}

// Overlap returns the CPUs this List has in common with another List as a new
// List. If the lists don't overlap, an empty List is returned.
//
// Both lists must be in canonical form where all ranges are ordered from lowest
// to highest and never overlap within the same list.
func (l List) Overlap(another List) List {
	overlaps := List{}
	r2idx := 0
	for _, r1 := range l {
		for r2idx < len(another) {
			r2 := another[r2idx]
			if r1[1] >= r2[0] && r1[0] <= r2[1] {
				overlaps = append(overlaps, [2]uint{max(r1[0], r2[0]), min(r1[1], r2[1])})
			}
			// A second range reaching beyond the current first range might
			// still overlap the next first range, so keep it and move on to
			// the next first range instead.
			if r2[1] > r1[1] {
				break
			}
			r2idx++
		}
	}
	return overlaps
}

// Count returns the number of CPUs in this List.
func (l List) Count() uint {
	n := uint(0)
	for _, r := range l {
		n += r[1] - r[0] + 1
	}
	return n
}
