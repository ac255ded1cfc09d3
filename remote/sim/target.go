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
package sim

import (
	"github.com/mongoose-os/bmprobe/remote/jtag"
)

// DP and MEM-AP register layout, ADIv5.
const (
	dpRegIDR      = 0x0
	dpRegCtrlStat = 0x4
	dpRegSelect   = 0x8
	dpRegRdBuff   = 0xc

	ctrlStatStickyErr = 1 << 5
	ctrlStatRstReq    = 1 << 26
	ctrlStatRstAck    = 1 << 27
	ctrlStatDbgReq    = 1 << 28
	ctrlStatDbgAck    = 1 << 29
	ctrlStatSysReq    = 1 << 30
	ctrlStatSysAck    = 1 << 31

	apRegCSW  = 0x00
	apRegTAR  = 0x04
	apRegDRW  = 0x0c
	apRegBD0  = 0x10
	apRegBD3  = 0x1c
	apRegBase = 0xf8
	apRegIDR  = 0xfc

	cswDeviceEn = 1 << 6

	// AHB-AP, ARM.
	memAPIDR  = 0x24770011
	memAPBase = 0xe00ff003
)

type target struct {
	power     bool
	reset     bool
	frequency uint32
	clockOut  bool

	swdLine uint32

	ctrlStat uint32
	sel      uint32
	rdBuff   uint32
	csw      uint32
	tar      uint32
	dpidr    uint32
	mem      map[uint64]byte
	ap64     map[uint16]uint64

	tap             *tap
	chainConfigured map[uint8]bool
}

func newTarget(cfg *Config) *target {
	return &target{
		dpidr:           cfg.DPIDR,
		csw:             0x03000042,
		mem:             map[uint64]byte{},
		ap64:            map[uint16]uint64{},
		tap:             newTAP(cfg.Chain),
		chainConfigured: map[uint8]bool{},
	}
}

func (t *target) swdInit() {
	t.swdLine = 0
}

// SWD sequences loop back: a read returns the bits last written.
func (t *target) swdOut(bits uint8, v uint32) {
	t.swdLine = v & mask(bits)
}

func (t *target) swdIn(bits uint8) uint64 {
	return uint64(t.swdLine & mask(bits))
}

func mask(bits uint8) uint32 {
	if bits >= 32 {
		return 0xffffffff
	}
	return 1<<bits - 1
}

func (t *target) dpRead(addr uint16) uint32 {
	switch addr {
	case dpRegIDR:
		return t.dpidr
	case dpRegCtrlStat:
		return t.ctrlStat
	case dpRegSelect:
		return t.sel
	case dpRegRdBuff:
		return t.rdBuff
	}
	return 0
}

func (t *target) dpWrite(addr uint16, v uint32) {
	switch addr {
	case dpRegIDR:
		// ABORT clears sticky flags.
		t.ctrlStat &^= ctrlStatStickyErr
	case dpRegCtrlStat:
		v &^= ctrlStatSysAck | ctrlStatDbgAck | ctrlStatRstAck
		if v&ctrlStatSysReq != 0 {
			v |= ctrlStatSysAck
		}
		if v&ctrlStatDbgReq != 0 {
			v |= ctrlStatDbgAck
		}
		if v&ctrlStatRstReq != 0 {
			v |= ctrlStatRstAck
		}
		t.ctrlStat = v
	case dpRegSelect:
		t.sel = v
	}
}

// Only AP 0, a MEM-AP, exists.
func (t *target) apRead(ap, addr uint8) (uint32, bool) {
	if ap != 0 {
		return 0, false
	}
	var v uint32
	switch {
	case addr == apRegCSW:
		v = t.csw | cswDeviceEn
	case addr == apRegTAR:
		v = t.tar
	case addr == apRegDRW:
		v = t.readWord(uint64(t.tar))
		t.autoIncrement()
	case addr >= apRegBD0 && addr <= apRegBD3:
		v = t.readWord(uint64(t.tar&^0xf) + uint64(addr-apRegBD0))
	case addr == apRegBase:
		v = memAPBase
	case addr == apRegIDR:
		v = memAPIDR
	}
	t.rdBuff = v
	return v, true
}

func (t *target) apWrite(ap, addr uint8, v uint32) bool {
	if ap != 0 {
		return false
	}
	switch {
	case addr == apRegCSW:
		t.csw = v
	case addr == apRegTAR:
		t.tar = v
	case addr == apRegDRW:
		t.writeWord(uint64(t.tar), v)
		t.autoIncrement()
	case addr >= apRegBD0 && addr <= apRegBD3:
		t.writeWord(uint64(t.tar&^0xf)+uint64(addr-apRegBD0), v)
	}
	return true
}

// Single auto-increment wraps within a 1 KiB block.
func (t *target) autoIncrement() {
	if (t.csw>>4)&3 == 1 {
		t.tar = t.tar&^0x3ff | (t.tar+4)&0x3ff
	}
}

func (t *target) readWord(addr uint64) uint32 {
	b := t.readMem(addr, 4)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (t *target) writeWord(addr uint64, v uint32) {
	t.writeMem(addr, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (t *target) readMem(addr uint64, n int) []byte {
	res := make([]byte, n)
	for i := range res {
		res[i] = t.mem[addr+uint64(i)]
	}
	return res
}

func (t *target) writeMem(addr uint64, data []byte) {
	for i, b := range data {
		t.mem[addr+uint64(i)] = b
	}
}

type tapState int

const (
	tlr tapState = iota
	rti
	selectDR
	captureDR
	shiftDR
	exit1DR
	pauseDR
	exit2DR
	updateDR
	selectIR
	captureIR
	shiftIR
	exit1IR
	pauseIR
	exit2IR
	updateIR
)

// next[state][tms]
var tapNext = [16][2]tapState{
	tlr:       {rti, tlr},
	rti:       {rti, selectDR},
	selectDR:  {captureDR, selectIR},
	captureDR: {shiftDR, exit1DR},
	shiftDR:   {shiftDR, exit1DR},
	exit1DR:   {pauseDR, updateDR},
	pauseDR:   {pauseDR, exit2DR},
	exit2DR:   {shiftDR, updateDR},
	updateDR:  {rti, selectDR},
	selectIR:  {captureIR, tlr},
	captureIR: {shiftIR, exit1IR},
	shiftIR:   {shiftIR, exit1IR},
	exit1IR:   {pauseIR, updateIR},
	pauseIR:   {pauseIR, exit2IR},
	exit2IR:   {shiftIR, updateIR},
	updateIR:  {rti, selectIR},
}

// tap is a chain of devices sharing TMS. In Test-Logic-Reset every device
// selects IDCODE; any IR update selects BYPASS on all of them.
type tap struct {
	chain  []jtag.IDCode
	state  tapState
	bypass bool
	// Bits in shift order, the one nearest TDO first.
	shift []bool
}

func newTAP(chain []jtag.IDCode) *tap {
	return &tap{chain: chain}
}

func (t *tap) reset() {
	t.state = tlr
	t.bypass = false
	t.shift = nil
}

func (t *tap) capture() {
	t.shift = t.shift[:0]
	for _, id := range t.chain {
		if t.bypass || !id.Present() {
			t.shift = append(t.shift, false)
			continue
		}
		for i := uint(0); i < 32; i++ {
			t.shift = append(t.shift, uint32(id)>>i&1 != 0)
		}
	}
}

// clock performs one TCK cycle and returns TDO.
func (t *tap) clock(tms, tdi bool) bool {
	tdo := false
	switch t.state {
	case shiftDR:
		if len(t.shift) > 0 {
			tdo = t.shift[0]
			t.shift = append(t.shift[1:], tdi)
		} else {
			tdo = tdi
		}
	case shiftIR:
		tdo = true
	}
	next := 0
	if tms {
		next = 1
	}
	t.state = tapNext[t.state][next]
	switch t.state {
	case tlr:
		t.bypass = false
	case captureDR:
		t.capture()
	case updateIR:
		t.bypass = true
	}
	return tdo
}
