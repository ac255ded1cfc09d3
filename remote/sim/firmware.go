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
	"fmt"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/frame"
	"github.com/mongoose-os/bmprobe/remote/protocol"
)

// Fault codes reported by the simulated firmware.
const (
	FaultNoDevice = 0x02
	FaultBadAP    = 0x03
	FaultBadArgs  = 0x04
)

// reader decodes request fields the way firmware of a given version
// lays them out.
type reader struct {
	b []byte
	// All numeric fields are 4 bytes, no device index.
	legacy  bool
	memAddr int
	err     error
}

func (r *reader) num(width int) uint64 {
	if r.legacy {
		width = 4
	}
	if r.err != nil {
		return 0
	}
	if len(r.b) < width {
		r.err = fmt.Errorf("short request")
		return 0
	}
	var v uint64
	for _, c := range r.b[:width] {
		v = v<<8 | uint64(c)
	}
	r.b = r.b[width:]
	return v
}

func (r *reader) u8() uint8   { return uint8(r.num(1)) }
func (r *reader) u16() uint16 { return uint16(r.num(2)) }
func (r *reader) u32() uint32 { return uint32(r.num(4)) }
func (r *reader) u64() uint64 { return r.num(8) }

func (r *reader) dev() uint8 {
	if r.legacy {
		return 0
	}
	return r.u8()
}

func (r *reader) addr() uint64 {
	return r.num(r.memAddr)
}

func (r *reader) rest() []byte {
	b := r.b
	r.b = nil
	return b
}

func (r *reader) done() error {
	if r.err == nil && len(r.b) > 0 {
		r.err = fmt.Errorf("%d trailing bytes", len(r.b))
	}
	return r.err
}

type handler func(p *Probe, r *reader) (string, []byte)

var commonHandlers = map[string]handler{
	"GA": func(p *Probe, r *reader) (string, []byte) { return p.text(p.cfg.Firmware) },
	"GV": func(p *Probe, r *reader) (string, []byte) { return p.text(p.cfg.Voltage) },
	"GP": func(p *Probe, r *reader) (string, []byte) {
		on := r.u8() != 0
		return p.exec(r, func() { p.target.power = on })
	},
	"Gp": func(p *Probe, r *reader) (string, []byte) { return p.num(r, b2u(p.target.power), 1) },
	"GZ": func(p *Probe, r *reader) (string, []byte) {
		on := r.u8() != 0
		return p.exec(r, func() { p.target.reset = on })
	},
	"Gz": func(p *Probe, r *reader) (string, []byte) { return p.num(r, b2u(p.target.reset), 1) },
	"GF": func(p *Probe, r *reader) (string, []byte) {
		f := r.u32()
		return p.exec(r, func() { p.target.frequency = f })
	},
	"Gf": func(p *Probe, r *reader) (string, []byte) { return p.num(r, uint64(p.target.frequency), 4) },
	"GE": func(p *Probe, r *reader) (string, []byte) {
		on := r.u8() != 0
		return p.exec(r, func() { p.target.clockOut = on })
	},

	"SS": func(p *Probe, r *reader) (string, []byte) { return p.exec(r, p.target.swdInit) },
	"Si": func(p *Probe, r *reader) (string, []byte) {
		bits := r.u8()
		return p.num(r, p.target.swdIn(bits), 4)
	},
	"SI": func(p *Probe, r *reader) (string, []byte) {
		bits := r.u8()
		return p.num(r, p.target.swdIn(bits), 4)
	},
	"So": func(p *Probe, r *reader) (string, []byte) {
		bits, v := r.u8(), r.u32()
		return p.exec(r, func() { p.target.swdOut(bits, v) })
	},
	"SO": func(p *Probe, r *reader) (string, []byte) {
		bits, v := r.u8(), r.u32()
		return p.exec(r, func() { p.target.swdOut(bits, v) })
	},

	"JS": func(p *Probe, r *reader) (string, []byte) { return p.exec(r, p.target.tap.reset) },
	"JR": func(p *Probe, r *reader) (string, []byte) { return p.exec(r, p.target.tap.reset) },
	"JT": func(p *Probe, r *reader) (string, []byte) {
		bits, tms := r.u8(), r.u32()
		return p.exec(r, func() {
			for i := uint8(0); i < bits; i++ {
				p.target.tap.clock(tms>>i&1 != 0, true)
			}
		})
	},
	"JD": func(p *Probe, r *reader) (string, []byte) {
		final, bits, tdi := r.u8() != 0, r.u8(), r.u32()
		if bits == 0 || bits > 32 {
			return p.fault(FaultBadArgs, "bad bit count")
		}
		var tdo uint32
		for i := uint8(0); i < bits; i++ {
			tms := final && i == bits-1
			if p.target.tap.clock(tms, tdi>>i&1 != 0) {
				tdo |= 1 << i
			}
		}
		return p.num(r, uint64(tdo), 4)
	},
	"JN": func(p *Probe, r *reader) (string, []byte) {
		tms, tdi := r.u8() != 0, r.u8() != 0
		return p.num(r, b2u(p.target.tap.clock(tms, tdi)), 1)
	},
}

var legacyADIv5Handlers = map[string]handler{
	"Hd": dpRead,
	"HL": dpWrite,
	"Ha": apRead,
	"HA": apWrite,
}

var hlHandlers = map[string]handler{
	"HM": memRead,
	"Hm": memWrite,
}

var v3Handlers = map[string]handler{
	"Ad": dpRead,
	"AL": dpWrite,
	"Aa": apRead,
	"AA": apWrite,
	"Ar": func(p *Probe, r *reader) (string, []byte) {
		dev, ap, addr := r.dev(), r.u8(), r.u8()
		if id, pl := p.checkDev(dev); id != "" {
			return id, pl
		}
		return p.num(r, p.target.ap64[ap64Key(ap, addr)], 8)
	},
	"AR": func(p *Probe, r *reader) (string, []byte) {
		dev, ap, addr, v := r.dev(), r.u8(), r.u8(), r.u64()
		if id, pl := p.checkDev(dev); id != "" {
			return id, pl
		}
		return p.exec(r, func() { p.target.ap64[ap64Key(ap, addr)] = v })
	},
	"AM": memRead,
	"Am": memWrite,
	"JJ": func(p *Probe, r *reader) (string, []byte) {
		idx := r.u8()
		r.u8()
		r.u8()
		r.u8()
		r.u8()
		r.u8()
		r.u32()
		return p.exec(r, func() { p.target.chainConfigured[idx] = true })
	},
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func ap64Key(ap, addr uint8) uint16 {
	return uint16(ap)<<8 | uint16(addr)
}

func (p *Probe) handler(id string) handler {
	v := p.cfg.Version
	if h := commonHandlers[id]; h != nil {
		return h
	}
	if v < protocol.V3 {
		if h := legacyADIv5Handlers[id]; h != nil {
			return h
		}
	}
	if v == protocol.V1 || v == protocol.V2 {
		if h := hlHandlers[id]; h != nil {
			return h
		}
	}
	if v >= protocol.V3 {
		return v3Handlers[id]
	}
	return nil
}

func (p *Probe) handle(f *frame.Frame) (string, []byte) {
	v := p.cfg.Version
	if f.ID == "HC" {
		if v == protocol.V0 {
			return protocol.RespNotSupp, nil
		}
		return protocol.RespOK, []byte{byte(v)}
	}
	h := p.handler(f.ID)
	if h == nil {
		return protocol.RespNotSupp, nil
	}
	b, err := f.Bytes()
	if err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	r := &reader{b: b, legacy: v == protocol.V0, memAddr: 4}
	if v >= protocol.V3 {
		r.memAddr = 8
	}
	return h(p, r)
}

func (p *Probe) fault(code int, msg string) (string, []byte) {
	switch code {
	case errs.FaultParity:
		return protocol.RespParityError, nil
	case errs.FaultNotSupported:
		return protocol.RespNotSupp, nil
	}
	res := []byte{byte(code)}
	if p.cfg.Version >= protocol.V2 {
		res = append(res, msg...)
	}
	return protocol.RespError, res
}

func (p *Probe) exec(r *reader, f func()) (string, []byte) {
	if err := r.done(); err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	f()
	return protocol.RespOK, nil
}

func (p *Probe) num(r *reader, v uint64, width int) (string, []byte) {
	if err := r.done(); err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	if p.cfg.Version == protocol.V0 {
		width = 4
	}
	res := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		res[i] = byte(v)
		v >>= 8
	}
	return protocol.RespOK, res
}

func (p *Probe) text(s string) (string, []byte) {
	return protocol.RespOK, []byte(s)
}

func (p *Probe) checkDev(dev uint8) (string, []byte) {
	if int(dev) >= p.cfg.DebugPorts {
		return p.fault(FaultNoDevice, fmt.Sprintf("no debug port %d", dev))
	}
	return "", nil
}

func dpRead(p *Probe, r *reader) (string, []byte) {
	dev, addr := r.dev(), r.u16()
	if id, pl := p.checkDev(dev); id != "" {
		return id, pl
	}
	if err := r.done(); err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	return p.num(r, uint64(p.target.dpRead(addr)), 4)
}

func dpWrite(p *Probe, r *reader) (string, []byte) {
	dev, addr, v := r.dev(), r.u16(), r.u32()
	if id, pl := p.checkDev(dev); id != "" {
		return id, pl
	}
	return p.exec(r, func() { p.target.dpWrite(addr, v) })
}

func apRead(p *Probe, r *reader) (string, []byte) {
	dev, ap, addr := r.dev(), r.u8(), r.u8()
	if id, pl := p.checkDev(dev); id != "" {
		return id, pl
	}
	if err := r.done(); err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	v, ok := p.target.apRead(ap, addr)
	if !ok {
		return p.fault(FaultBadAP, fmt.Sprintf("no AP %d", ap))
	}
	return p.num(r, uint64(v), 4)
}

func apWrite(p *Probe, r *reader) (string, []byte) {
	dev, ap, addr, v := r.dev(), r.u8(), r.u8(), r.u32()
	if id, pl := p.checkDev(dev); id != "" {
		return id, pl
	}
	if err := r.done(); err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	if !p.target.apWrite(ap, addr, v) {
		return p.fault(FaultBadAP, fmt.Sprintf("no AP %d", ap))
	}
	return protocol.RespOK, nil
}

func memRead(p *Probe, r *reader) (string, []byte) {
	dev, ap, _, addr, count := r.dev(), r.u8(), r.u32(), r.addr(), r.u32()
	if id, pl := p.checkDev(dev); id != "" {
		return id, pl
	}
	if err := r.done(); err != nil {
		return p.fault(FaultBadArgs, err.Error())
	}
	if ap != 0 {
		return p.fault(FaultBadAP, fmt.Sprintf("AP %d is not a MEM-AP", ap))
	}
	if 2*int(count)+3 > frame.MaxSize {
		return p.fault(FaultBadArgs, "read too long")
	}
	return protocol.RespOK, p.target.readMem(addr, int(count))
}

func memWrite(p *Probe, r *reader) (string, []byte) {
	dev, ap, _, _, addr, count := r.dev(), r.u8(), r.u32(), r.u8(), r.addr(), r.u32()
	data := r.rest()
	if id, pl := p.checkDev(dev); id != "" {
		return id, pl
	}
	if r.err != nil || len(data) != int(count) {
		return p.fault(FaultBadArgs, "bad memory write")
	}
	if ap != 0 {
		return p.fault(FaultBadAP, fmt.Sprintf("AP %d is not a MEM-AP", ap))
	}
	p.target.writeMem(addr, data)
	return protocol.RespOK, nil
}

// String is a one-line summary used in logs.
func (p *Probe) String() string {
	return fmt.Sprintf("sim %s %q (DPIDR 0x%08x)", p.cfg.Version, p.cfg.Firmware, p.cfg.DPIDR)
}
