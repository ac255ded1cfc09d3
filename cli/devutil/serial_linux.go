//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package devutil

import (
	"path/filepath"
	"sort"
)

func EnumerateSerialPorts() []string {
	// Stable names of probe interfaces first.
	byID, _ := filepath.Glob("/dev/serial/by-id/*")
	sort.Strings(byID)
	var res []string
	seen := map[string]bool{}
	for _, p := range byID {
		if isProbePort(p) {
			res = append(res, p)
			if dev, err := filepath.EvalSymlinks(p); err == nil {
				seen[dev] = true
			}
		}
	}
	// Note: Prefer ttyACM* to ttyUSB*, probes are CDC ACM devices.
	list1, _ := filepath.Glob("/dev/ttyACM*")
	sort.Strings(list1)
	list2, _ := filepath.Glob("/dev/ttyUSB*")
	sort.Strings(list2)
	for _, p := range append(list1, list2...) {
		if !seen[p] {
			res = append(res, p)
		}
	}
	return res
}
