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
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Version is a wire format generation. A session negotiates one and keeps it.
type Version int

const (
	V0 Version = iota
	V1
	V2
	V3
)

const LatestVersion = V3

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// ParseVersion accepts "v2", "V2" or "2".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v")
	n, err := strconv.Atoi(s)
	if err != nil || n < int(V0) || n > int(LatestVersion) {
		return 0, errors.Errorf("invalid protocol version %q", s)
	}
	return Version(n), nil
}

type Capability uint32

const (
	CapGeneral Capability = 1 << iota
	CapSWD
	CapJTAG
	CapADIv5
	// Bulk memory access through a MEM-AP.
	CapADIv5Mem
	// ADIv5 commands address a device other than 0.
	CapMultiDrop
	// Retry-safe NACK responses, distinct from faults.
	CapNACK
	// 64-bit register and address access.
	CapWide
	// Devices in a JTAG chain can be registered with the probe.
	CapJTAGChain
)

var capNames = []struct {
	c    Capability
	name string
}{
	{CapGeneral, "general"},
	{CapSWD, "swd"},
	{CapJTAG, "jtag"},
	{CapADIv5, "adiv5"},
	{CapADIv5Mem, "adiv5-mem"},
	{CapMultiDrop, "multidrop"},
	{CapNACK, "nack"},
	{CapWide, "wide"},
	{CapJTAGChain, "jtag-chain"},
}

func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var names []string
	for _, cn := range capNames {
		if c&cn.c != 0 {
			names = append(names, cn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
