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

	"github.com/mongoose-os/bmprobe/remote/jtag"
)

// Op is a logical operation, independent of the wire format.
type Op int

const (
	OpStart Op = iota
	OpVoltage
	OpSetPower
	OpGetPower
	OpSetReset
	OpGetReset
	OpSetFrequency
	OpGetFrequency
	OpClockOutput
	OpProtocolCheck

	OpSWDInit
	OpSWDSeqIn
	OpSWDSeqInParity
	OpSWDSeqOut
	OpSWDSeqOutParity

	OpJTAGInit
	OpJTAGReset
	OpJTAGTMS
	OpJTAGTDITDO
	OpJTAGNext
	OpJTAGAddDevice

	OpDPRead
	OpDPWrite
	OpAPRead
	OpAPWrite
	OpAPRead64
	OpAPWrite64
	OpMemRead
	OpMemWrite

	numOps
)

// Command is one logical request. Only the fields used by Op are encoded.
type Command struct {
	Op Op

	// ADIv5 device index (multi-drop SWD or JTAG chain position).
	Dev   uint8
	AP    uint8
	Addr  uint64
	Value uint64
	// Number of bits for sequence operations.
	Bits int
	// Power/reset/clock state, JTAGNext TMS or JTAGTDITDO final TMS.
	Flag bool
	CSW  uint32
	// Access size of a memory write, log2 of bytes.
	Align uint8
	Count int
	Data  []byte
	Chain jtag.DeviceConfig
}

func (c *Command) String() string {
	switch c.Op.kind() {
	case kindADIv5:
		return fmt.Sprintf("%s(dev %d ap %d addr 0x%x)", c.Op, c.Dev, c.AP, c.Addr)
	}
	return c.Op.String()
}

// Response is the decoded result of a successful exchange. NACK responses
// carry no value and must be retried by the caller.
type Response struct {
	Value uint64
	Data  []byte
	Text  string
	NACK  bool
}

type resultKind int

const (
	resNone resultKind = iota
	resNum
	resText
	resData
)

type opKind int

const (
	kindGeneral opKind = iota
	kindSWD
	kindJTAG
	kindADIv5
)

// field is one big-endian numeric request field. Width 0 stands for the
// dispatcher's memory address width.
type field struct {
	width int
	dev   bool
	get   func(c *Command) uint64
}

type opDesc struct {
	name   string
	kind   opKind
	caps   Capability
	fields []field
	result resultKind
	// Result width in bytes for resNum.
	width int
	// Raw data follows the numeric fields.
	data bool
}

func flag(c *Command) uint64 {
	if c.Flag {
		return 1
	}
	return 0
}

var (
	fDev   = field{width: 1, dev: true, get: func(c *Command) uint64 { return uint64(c.Dev) }}
	fAP    = field{width: 1, get: func(c *Command) uint64 { return uint64(c.AP) }}
	fBits  = field{width: 1, get: func(c *Command) uint64 { return uint64(c.Bits) }}
	fFlag  = field{width: 1, get: flag}
	fAddr8 = field{width: 1, get: func(c *Command) uint64 { return c.Addr }}
	fDPReg = field{width: 2, get: func(c *Command) uint64 { return c.Addr }}
	fVal8  = field{width: 1, get: func(c *Command) uint64 { return c.Value }}
	fVal32 = field{width: 4, get: func(c *Command) uint64 { return c.Value }}
	fVal64 = field{width: 8, get: func(c *Command) uint64 { return c.Value }}
	fCSW   = field{width: 4, get: func(c *Command) uint64 { return uint64(c.CSW) }}
	fAlign = field{width: 1, get: func(c *Command) uint64 { return uint64(c.Align) }}
	fMem   = field{width: 0, get: func(c *Command) uint64 { return c.Addr }}
	fCount = field{width: 4, get: func(c *Command) uint64 { return uint64(c.Count) }}
)

func chainField(width int, get func(dc *jtag.DeviceConfig) uint64) field {
	return field{width: width, get: func(c *Command) uint64 { return get(&c.Chain) }}
}

var ops = [numOps]opDesc{
	OpStart:         {name: "start", caps: CapGeneral, result: resText},
	OpVoltage:       {name: "voltage", caps: CapGeneral, result: resText},
	OpSetPower:      {name: "set-power", caps: CapGeneral, fields: []field{fFlag}},
	OpGetPower:      {name: "get-power", caps: CapGeneral, result: resNum, width: 1},
	OpSetReset:      {name: "set-reset", caps: CapGeneral, fields: []field{fFlag}},
	OpGetReset:      {name: "get-reset", caps: CapGeneral, result: resNum, width: 1},
	OpSetFrequency:  {name: "set-frequency", caps: CapGeneral, fields: []field{fVal32}},
	OpGetFrequency:  {name: "get-frequency", caps: CapGeneral, result: resNum, width: 4},
	OpClockOutput:   {name: "clock-output", caps: CapGeneral, fields: []field{fFlag}},
	OpProtocolCheck: {name: "protocol-check", caps: CapGeneral, result: resNum, width: 1},

	OpSWDInit:         {name: "swd-init", kind: kindSWD, caps: CapSWD},
	OpSWDSeqIn:        {name: "swd-seq-in", kind: kindSWD, caps: CapSWD, fields: []field{fBits}, result: resNum, width: 4},
	OpSWDSeqInParity:  {name: "swd-seq-in-parity", kind: kindSWD, caps: CapSWD, fields: []field{fBits}, result: resNum, width: 4},
	OpSWDSeqOut:       {name: "swd-seq-out", kind: kindSWD, caps: CapSWD, fields: []field{fBits, fVal32}},
	OpSWDSeqOutParity: {name: "swd-seq-out-parity", kind: kindSWD, caps: CapSWD, fields: []field{fBits, fVal32}},

	OpJTAGInit:   {name: "jtag-init", kind: kindJTAG, caps: CapJTAG},
	OpJTAGReset:  {name: "jtag-reset", kind: kindJTAG, caps: CapJTAG},
	OpJTAGTMS:    {name: "jtag-tms", kind: kindJTAG, caps: CapJTAG, fields: []field{fBits, fVal32}},
	OpJTAGTDITDO: {name: "jtag-tdi-tdo", kind: kindJTAG, caps: CapJTAG, fields: []field{fFlag, fBits, fVal32}, result: resNum, width: 4},
	OpJTAGNext:   {name: "jtag-next", kind: kindJTAG, caps: CapJTAG, fields: []field{fFlag, fVal8}, result: resNum, width: 1},
	OpJTAGAddDevice: {name: "jtag-add-device", kind: kindJTAG, caps: CapJTAG | CapJTAGChain, fields: []field{
		chainField(1, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.Index) }),
		chainField(1, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.DRPrescan) }),
		chainField(1, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.DRPostscan) }),
		chainField(1, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.IRLen) }),
		chainField(1, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.IRPrescan) }),
		chainField(1, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.IRPostscan) }),
		chainField(4, func(dc *jtag.DeviceConfig) uint64 { return uint64(dc.CurrentIR) }),
	}},

	OpDPRead:    {name: "dp-read", kind: kindADIv5, caps: CapADIv5, fields: []field{fDev, fDPReg}, result: resNum, width: 4},
	OpDPWrite:   {name: "dp-write", kind: kindADIv5, caps: CapADIv5, fields: []field{fDev, fDPReg, fVal32}},
	OpAPRead:    {name: "ap-read", kind: kindADIv5, caps: CapADIv5, fields: []field{fDev, fAP, fAddr8}, result: resNum, width: 4},
	OpAPWrite:   {name: "ap-write", kind: kindADIv5, caps: CapADIv5, fields: []field{fDev, fAP, fAddr8, fVal32}},
	OpAPRead64:  {name: "ap-read64", kind: kindADIv5, caps: CapADIv5 | CapWide, fields: []field{fDev, fAP, fAddr8}, result: resNum, width: 8},
	OpAPWrite64: {name: "ap-write64", kind: kindADIv5, caps: CapADIv5 | CapWide, fields: []field{fDev, fAP, fAddr8, fVal64}},
	OpMemRead:   {name: "mem-read", kind: kindADIv5, caps: CapADIv5 | CapADIv5Mem, fields: []field{fDev, fAP, fCSW, fMem, fCount}, result: resData},
	OpMemWrite:  {name: "mem-write", kind: kindADIv5, caps: CapADIv5 | CapADIv5Mem, fields: []field{fDev, fAP, fCSW, fAlign, fMem, fCount}, data: true},
}

func (op Op) desc() *opDesc {
	if op < 0 || op >= numOps {
		return nil
	}
	return &ops[op]
}

func (op Op) kind() opKind {
	if s := op.desc(); s != nil {
		return s.kind
	}
	return kindGeneral
}

func (op Op) String() string {
	if s := op.desc(); s != nil {
		return s.name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Requires returns the capabilities the command needs, including those
// implied by its parameters.
func (c *Command) Requires() Capability {
	s := c.Op.desc()
	if s == nil {
		return 0
	}
	caps := s.caps
	if s.kind == kindADIv5 && c.Dev != 0 {
		caps |= CapMultiDrop
	}
	if (c.Op == OpMemRead || c.Op == OpMemWrite) && c.Addr > 0xffffffff {
		caps |= CapWide
	}
	return caps
}
