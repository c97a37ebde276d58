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
	"bytes"
	"fmt"
	"os"
)

var onlineCPUsPath = "/sys/devices/system/cpu/online"

// OnlineCPUs returns the List of CPUs currently online in this system.
func OnlineCPUs() (List, error) {
	b, err := os.ReadFile(onlineCPUsPath)
	if err != nil {
		return nil, err
	}
	l, err := NewList(bytes.TrimSpace(b))
	if err != nil {
		return nil, fmt.Errorf("malformed %s: %w", onlineCPUsPath, err)
	}
	return l, nil
}
