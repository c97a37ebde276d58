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
)

// Result classifies the outcome of [PinApp]. The numeric values are the
// result codes callers of the classic C-level interface expect.
//
// Except for Success, Results are errors in their own right, so they can be
// used as sentinels with [errors.Is].
type Result int

const (
	Success                  Result = 0
	InvalidThreadEnumeration Result = -1 // task listing missing, unreadable, or failing tasks
	InvalidCoreCount         Result = -2 // core count out of range, or CPU mask rejected
	PermissionDenied         Result = -3 // not allowed to change task affinities
)

// Code returns the numeric result code.
func (r Result) Code() int { return int(r) }

// String returns a short description of the result.
func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case InvalidThreadEnumeration:
		return "cannot enumerate threads"
	case InvalidCoreCount:
		return "invalid number of cores"
	case PermissionDenied:
		return "permission denied setting thread affinity"
	}
	return fmt.Sprintf("unknown result %d", int(r))
}

func (r Result) Error() string { return r.String() }

// PinError describes why [PinApp] failed. TID is zero if the failure isn't
// tied to a particular task.
type PinError struct {
	Result Result
	TID    int
	Err    error
}

func (e *PinError) Error() string {
	msg := e.Result.String()
	if e.TID != 0 {
		msg += fmt.Sprintf(", task %d", e.TID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns both the Result and the underlying cause, if any, so that
// errors.Is matches either.
func (e *PinError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Result}
	}
	return []error{e.Result, e.Err}
}

// ResultOf returns the Result classifying err: Success for a nil error, and
// InvalidThreadEnumeration for errors that don't carry a Result.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return InvalidThreadEnumeration
}

// Code returns the numeric result code for err, see [ResultOf].
func Code(err error) int {
	return ResultOf(err).Code()
}
