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
	"fmt"
)

// MaxDevices is the longest chain a scan will walk.
const MaxDevices = 32

// IDCode is an IEEE 1149.1 IDCODE register value.
type IDCode uint32

// Present is false for devices that only have a BYPASS register.
func (v IDCode) Present() bool {
	return v&1 != 0
}

func (v IDCode) Version() uint8 {
	return uint8(v >> 28)
}

func (v IDCode) PartNumber() uint16 {
	return uint16(v >> 12)
}

// Manufacturer is the JEP106 code: continuation count in bits [10:7],
// identity in bits [6:0].
func (v IDCode) Manufacturer() Designer {
	return Designer((v >> 1) & 0x7ff)
}

func (v IDCode) String() string {
	if !v.Present() {
		return "bypass"
	}
	return fmt.Sprintf("0x%08x (%s part 0x%04x rev %d)", uint32(v), v.Manufacturer(), v.PartNumber(), v.Version())
}

type Designer uint16

func (d Designer) String() string {
	switch d {
	case 0x23b:
		return "ARM"
	case 0x020:
		return "STMicro"
	case 0x015:
		return "NXP"
	case 0x049:
		return "Xilinx"
	case 0x06e:
		return "Altera"
	}
	return fmt.Sprintf("0x%03x", uint16(d))
}

// Device describes one TAP found by a scan. Index 0 is nearest to TDO.
type Device struct {
	Index      int
	IDCode     IDCode
	DRPrescan  int
	DRPostscan int
}

func (d Device) String() string {
	return fmt.Sprintf("#%d %s", d.Index, d.IDCode)
}

// DeviceConfig is what the probe needs to address one device of a chain.
type DeviceConfig struct {
	Index      uint8
	DRPrescan  uint8
	DRPostscan uint8
	IRLen      uint8
	IRPrescan  uint8
	IRPostscan uint8
	CurrentIR  uint32
}

// Positions fills in the DR pre/postscan counts of a scanned chain.
func Positions(devs []Device) {
	for i := range devs {
		devs[i].DRPrescan = i
		devs[i].DRPostscan = len(devs) - 1 - i
	}
}
