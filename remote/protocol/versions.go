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
	"github.com/juju/errors"
)

const (
	capsV0 = CapGeneral | CapSWD | CapJTAG | CapADIv5
	capsV1 = capsV0 | CapADIv5Mem | CapMultiDrop
	capsV2 = capsV1 | CapNACK
	capsV3 = capsV2 | CapWide | CapJTAGChain
)

// Commands shared by all versions.
var baseIDs = map[Op]string{
	OpStart:           "GA",
	OpVoltage:         "GV",
	OpSetPower:        "GP",
	OpGetPower:        "Gp",
	OpSetReset:        "GZ",
	OpGetReset:        "Gz",
	OpSetFrequency:    "GF",
	OpGetFrequency:    "Gf",
	OpClockOutput:     "GE",
	OpProtocolCheck:   "HC",
	OpSWDInit:         "SS",
	OpSWDSeqIn:        "Si",
	OpSWDSeqInParity:  "SI",
	OpSWDSeqOut:       "So",
	OpSWDSeqOutParity: "SO",
	OpJTAGInit:        "JS",
	OpJTAGReset:       "JR",
	OpJTAGTMS:         "JT",
	OpJTAGTDITDO:      "JD",
	OpJTAGNext:        "JN",
}

var legacyADIv5IDs = map[Op]string{
	OpDPRead:  "Hd",
	OpDPWrite: "HL",
	OpAPRead:  "Ha",
	OpAPWrite: "HA",
}

var hlIDs = map[Op]string{
	OpMemRead:  "HM",
	OpMemWrite: "Hm",
}

var v3IDs = map[Op]string{
	OpDPRead:        "Ad",
	OpDPWrite:       "AL",
	OpAPRead:        "Aa",
	OpAPWrite:       "AA",
	OpAPRead64:      "Ar",
	OpAPWrite64:     "AR",
	OpMemRead:       "AM",
	OpMemWrite:      "Am",
	OpJTAGAddDevice: "JJ",
}

func mergeIDs(tables ...map[Op]string) map[Op]string {
	res := map[Op]string{}
	for _, t := range tables {
		for op, id := range t {
			res[op] = id
		}
	}
	return res
}

// NewV0 returns the dispatcher for firmware predating the protocol check
// command: single target, every numeric field 32 bits wide.
func NewV0() Dispatcher {
	return &dispatcher{
		version:      V0,
		caps:         capsV0,
		ids:          mergeIDs(baseIDs, legacyADIv5IDs),
		fixedWidth:   4,
		memAddrWidth: 4,
		matches:      matchLegacy,
	}
}

func NewV1() Dispatcher {
	return &dispatcher{
		version:      V1,
		caps:         capsV1,
		ids:          mergeIDs(baseIDs, legacyADIv5IDs, hlIDs),
		devField:     true,
		memAddrWidth: 4,
		matches:      matchVersion(V1),
	}
}

// NewV2 is V1 with NACK responses and error diagnostics.
func NewV2() Dispatcher {
	return &dispatcher{
		version:      V2,
		caps:         capsV2,
		ids:          mergeIDs(baseIDs, legacyADIv5IDs, hlIDs),
		devField:     true,
		memAddrWidth: 4,
		errorText:    true,
		matches:      matchVersion(V2),
	}
}

func NewV3() Dispatcher {
	return &dispatcher{
		version:      V3,
		caps:         capsV3,
		ids:          mergeIDs(baseIDs, v3IDs),
		devField:     true,
		memAddrWidth: 8,
		errorText:    true,
		matches:      matchVersion(V3),
	}
}

// All returns one dispatcher per version, newest first.
func All() []Dispatcher {
	return []Dispatcher{NewV3(), NewV2(), NewV1(), NewV0()}
}

func ForVersion(v Version) (Dispatcher, error) {
	for _, d := range All() {
		if d.Version() == v {
			return d, nil
		}
	}
	return nil, errors.NotFoundf("protocol %s", v)
}
