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
package jtag

import (
	"testing"
)

func TestIDCode(t *testing.T) {
	// Cortex-M3 SW-DP / JTAG-DP.
	v := IDCode(0x4ba00477)
	if !v.Present() {
		t.Fatalf("%s: not present", v)
	}
	if got, want := v.Manufacturer(), Designer(0x23b); got != want {
		t.Errorf("got: %s, want: %s", got, want)
	}
	if got, want := v.PartNumber(), uint16(0xba00); got != want {
		t.Errorf("got: 0x%x, want: 0x%x", got, want)
	}
	if got, want := v.Version(), uint8(4); got != want {
		t.Errorf("got: %d, want: %d", got, want)
	}
	if got, want := v.String(), "0x4ba00477 (ARM part 0xba00 rev 4)"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if IDCode(0).Present() {
		t.Errorf("zero IDCODE must be bypass")
	}
}

func TestPositions(t *testing.T) {
	devs := []Device{{Index: 0}, {Index: 1}, {Index: 2}}
	Positions(devs)
	for i, d := range devs {
		if d.DRPrescan != i || d.DRPostscan != 2-i {
			t.Errorf("%d: got pre %d post %d", i, d.DRPrescan, d.DRPostscan)
		}
	}
}
