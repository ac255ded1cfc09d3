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

	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/protocol"
)

// MemChunkSize is the largest memory transfer done in one request.
const MemChunkSize = 256

// DebugPort addresses one ADIv5 debug port. Device 0 is the only one
// reachable without multi-drop support.
type DebugPort struct {
	s   *Session
	dev uint8
}

func (s *Session) ADIv5(dev uint8) *DebugPort {
	return &DebugPort{s: s, dev: dev}
}

func (dp *DebugPort) Device() uint8 {
	return dp.dev
}

func (dp *DebugPort) Session() *Session {
	return dp.s
}

// SupportsMem reports whether the probe can do bulk memory transfers.
func (dp *DebugPort) SupportsMem() bool {
	return dp.s.Supports(protocol.CapADIv5Mem)
}

func checkDPAddr(addr uint32) error {
	if addr&3 != 0 || addr > 0xffff {
		return errs.InvalidArgumentf("invalid DP register address 0x%x", addr)
	}
	return nil
}

func checkAPAddr(addr uint8) error {
	if addr&3 != 0 {
		return errs.InvalidArgumentf("invalid AP register address 0x%x", addr)
	}
	return nil
}

func (dp *DebugPort) DPRead(ctx context.Context, addr uint32) (uint32, error) {
	if err := checkDPAddr(addr); err != nil {
		return 0, err
	}
	r, err := dp.s.Do(ctx, &protocol.Command{Op: protocol.OpDPRead, Dev: dp.dev, Addr: uint64(addr)})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return uint32(r.Value), nil
}

func (dp *DebugPort) DPWrite(ctx context.Context, addr, v uint32) error {
	if err := checkDPAddr(addr); err != nil {
		return err
	}
	_, err := dp.s.Do(ctx, &protocol.Command{Op: protocol.OpDPWrite, Dev: dp.dev, Addr: uint64(addr), Value: uint64(v)})
	return errors.Trace(err)
}

func (dp *DebugPort) APRead(ctx context.Context, ap, addr uint8) (uint32, error) {
	if err := checkAPAddr(addr); err != nil {
		return 0, err
	}
	r, err := dp.s.Do(ctx, &protocol.Command{Op: protocol.OpAPRead, Dev: dp.dev, AP: ap, Addr: uint64(addr)})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return uint32(r.Value), nil
}

func (dp *DebugPort) APWrite(ctx context.Context, ap, addr uint8, v uint32) error {
	if err := checkAPAddr(addr); err != nil {
		return err
	}
	_, err := dp.s.Do(ctx, &protocol.Command{Op: protocol.OpAPWrite, Dev: dp.dev, AP: ap, Addr: uint64(addr), Value: uint64(v)})
	return errors.Trace(err)
}

func (dp *DebugPort) APRead64(ctx context.Context, ap, addr uint8) (uint64, error) {
	if err := checkAPAddr(addr); err != nil {
		return 0, err
	}
	r, err := dp.s.Do(ctx, &protocol.Command{Op: protocol.OpAPRead64, Dev: dp.dev, AP: ap, Addr: uint64(addr)})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return r.Value, nil
}

func (dp *DebugPort) APWrite64(ctx context.Context, ap, addr uint8, v uint64) error {
	if err := checkAPAddr(addr); err != nil {
		return err
	}
	_, err := dp.s.Do(ctx, &protocol.Command{Op: protocol.OpAPWrite64, Dev: dp.dev, AP: ap, Addr: uint64(addr), Value: v})
	return errors.Trace(err)
}

// MemRead reads n bytes of target memory through a MEM-AP using the
// probe's bulk transfer.
func (dp *DebugPort) MemRead(ctx context.Context, ap uint8, csw uint32, addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, errs.InvalidArgumentf("negative length %d", n)
	}
	dp.s.mu.Lock()
	defer dp.s.mu.Unlock()
	res := make([]byte, 0, n)
	for len(res) < n {
		cn := n - len(res)
		if cn > MemChunkSize {
			cn = MemChunkSize
		}
		ca := addr + uint64(len(res))
		r, err := dp.s.doLocked(ctx, &protocol.Command{
			Op: protocol.OpMemRead, Dev: dp.dev, AP: ap, CSW: csw, Addr: ca, Count: cn,
		})
		if err != nil {
			return nil, errors.Annotatef(err, "read 0x%x @ 0x%x", cn, ca)
		}
		res = append(res, r.Data...)
	}
	return res, nil
}

// memAlign returns log2 of the widest access that both addr and n are
// aligned to, up to a word.
func memAlign(addr uint64, n int) uint8 {
	switch {
	case addr%4 == 0 && n%4 == 0:
		return 2
	case addr%2 == 0 && n%2 == 0:
		return 1
	}
	return 0
}

func (dp *DebugPort) MemWrite(ctx context.Context, ap uint8, csw uint32, addr uint64, data []byte) error {
	dp.s.mu.Lock()
	defer dp.s.mu.Unlock()
	for off := 0; off < len(data); off += MemChunkSize {
		end := off + MemChunkSize
		if end > len(data) {
			end = len(data)
		}
		ca := addr + uint64(off)
		chunk := data[off:end]
		_, err := dp.s.doLocked(ctx, &protocol.Command{
			Op: protocol.OpMemWrite, Dev: dp.dev, AP: ap, CSW: csw,
			Align: memAlign(ca, len(chunk)), Addr: ca, Count: len(chunk), Data: chunk,
		})
		if err != nil {
			return errors.Annotatef(err, "write 0x%x @ 0x%x", len(chunk), ca)
		}
	}
	return nil
}

// Device 0 shortcuts.

func (s *Session) DPRead(ctx context.Context, addr uint32) (uint32, error) {
	return s.ADIv5(0).DPRead(ctx, addr)
}

func (s *Session) DPWrite(ctx context.Context, addr, v uint32) error {
	return s.ADIv5(0).DPWrite(ctx, addr, v)
}

func (s *Session) APRead(ctx context.Context, ap, addr uint8) (uint32, error) {
	return s.ADIv5(0).APRead(ctx, ap, addr)
}

func (s *Session) APWrite(ctx context.Context, ap, addr uint8, v uint32) error {
	return s.ADIv5(0).APWrite(ctx, ap, addr, v)
}

func (s *Session) APRead64(ctx context.Context, ap, addr uint8) (uint64, error) {
	return s.ADIv5(0).APRead64(ctx, ap, addr)
}

func (s *Session) APWrite64(ctx context.Context, ap, addr uint8, v uint64) error {
	return s.ADIv5(0).APWrite64(ctx, ap, addr, v)
}

func (s *Session) MemRead(ctx context.Context, ap uint8, csw uint32, addr uint64, n int) ([]byte, error) {
	return s.ADIv5(0).MemRead(ctx, ap, csw, addr, n)
}

func (s *Session) MemWrite(ctx context.Context, ap uint8, csw uint32, addr uint64, data []byte) error {
	return s.ADIv5(0).MemWrite(ctx, ap, csw, addr, data)
}
