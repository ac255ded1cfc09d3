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
package remote

import (
	"context"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/jtag"
	"github.com/mongoose-os/bmprobe/remote/protocol"
)

// TMS sequences, LSB first.
const (
	tmsResetToShiftDR     = 0x2 // 0, 1, 0, 0
	tmsResetToShiftDRBits = 4
	tmsShiftToIdle        = 0x3 // 1, 1, 0
	tmsShiftToIdleBits    = 3
)

func (s *Session) JTAGInit(ctx context.Context) error {
	_, err := s.Do(ctx, &protocol.Command{Op: protocol.OpJTAGInit})
	return errors.Trace(err)
}

// JTAGReset moves all TAPs to Test-Logic-Reset.
func (s *Session) JTAGReset(ctx context.Context) error {
	_, err := s.Do(ctx, &protocol.Command{Op: protocol.OpJTAGReset})
	return errors.Trace(err)
}

// JTAGTMSSeq clocks out bits of tms, LSB first, with TDI high.
func (s *Session) JTAGTMSSeq(ctx context.Context, tms uint32, bits int) error {
	if err := checkBits(bits); err != nil {
		return err
	}
	_, err := s.Do(ctx, &protocol.Command{Op: protocol.OpJTAGTMS, Bits: bits, Value: uint64(tms)})
	return errors.Trace(err)
}

// JTAGTDITDOSeq shifts bits of tdi (LSB of byte 0 first) and returns the
// bits seen on TDO in the same layout. If final is set TMS is raised on the
// last bit, leaving the shift state.
func (s *Session) JTAGTDITDOSeq(ctx context.Context, tdi []byte, bits int, final bool) ([]byte, error) {
	if bits < 1 || bits > 8*len(tdi) {
		return nil, errs.InvalidArgumentf("cannot shift %d bits from %d bytes", bits, len(tdi))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tdo := make([]byte, (bits+7)/8)
	for pos := 0; pos < bits; pos += 32 {
		n := bits - pos
		if n > 32 {
			n = 32
		}
		r, err := s.doLocked(ctx, &protocol.Command{
			Op:    protocol.OpJTAGTDITDO,
			Flag:  final && pos+n == bits,
			Bits:  n,
			Value: uint64(getBits(tdi, pos, n)),
		})
		if err != nil {
			return nil, errors.Annotatef(err, "bits %d..%d", pos, pos+n-1)
		}
		putBits(tdo, pos, n, uint32(r.Value))
	}
	return tdo, nil
}

func getBits(b []byte, pos, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		bit := pos + i
		if b[bit/8]>>(uint(bit)%8)&1 != 0 {
			v |= 1 << uint(i)
		}
	}
	return v
}

func putBits(b []byte, pos, n int, v uint32) {
	for i := 0; i < n; i++ {
		if v>>uint(i)&1 != 0 {
			bit := pos + i
			b[bit/8] |= 1 << (uint(bit) % 8)
		}
	}
}

// JTAGNext performs one TCK cycle and returns TDO.
func (s *Session) JTAGNext(ctx context.Context, tms, tdi bool) (bool, error) {
	var v uint64
	if tdi {
		v = 1
	}
	r, err := s.Do(ctx, &protocol.Command{Op: protocol.OpJTAGNext, Flag: tms, Value: v})
	if err != nil {
		return false, errors.Trace(err)
	}
	return r.Value != 0, nil
}

// JTAGAddDevice registers a chain position with the probe so that ADIv5
// accesses with device index dc.Index reach it.
func (s *Session) JTAGAddDevice(ctx context.Context, dc jtag.DeviceConfig) error {
	_, err := s.Do(ctx, &protocol.Command{Op: protocol.OpJTAGAddDevice, Chain: dc})
	return errors.Trace(err)
}

// JTAGScan resets the chain and reads the IDCODE (or BYPASS) register of
// every device on it. The TAPs are left in Run-Test/Idle.
func (s *Session) JTAGScan(ctx context.Context) ([]jtag.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shift := func(bits int, tdi uint32) (uint32, error) {
		r, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpJTAGTDITDO, Bits: bits, Value: uint64(tdi)})
		if err != nil {
			return 0, errors.Trace(err)
		}
		return uint32(r.Value), nil
	}
	if _, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpJTAGReset}); err != nil {
		return nil, errors.Annotatef(err, "TAP reset")
	}
	if _, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpJTAGTMS, Bits: tmsResetToShiftDRBits, Value: tmsResetToShiftDR}); err != nil {
		return nil, errors.Annotatef(err, "enter Shift-DR")
	}
	var devs []jtag.Device
	for {
		first, err := shift(1, 1)
		if err != nil {
			return nil, errors.Trace(err)
		}
		var id jtag.IDCode
		if first&1 != 0 {
			rest, err := shift(31, 0x7fffffff)
			if err != nil {
				return nil, errors.Trace(err)
			}
			id = jtag.IDCode(1 | rest<<1)
			if id == 0xffffffff {
				break
			}
		}
		if len(devs) == jtag.MaxDevices {
			return nil, errors.Errorf("no end of JTAG chain after %d devices", jtag.MaxDevices)
		}
		devs = append(devs, jtag.Device{Index: len(devs), IDCode: id})
		glog.V(1).Infof("JTAG device %d: %s", len(devs)-1, id)
	}
	if _, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpJTAGTMS, Bits: tmsShiftToIdleBits, Value: tmsShiftToIdle}); err != nil {
		return nil, errors.Annotatef(err, "leave Shift-DR")
	}
	jtag.Positions(devs)
	return devs, nil
}
