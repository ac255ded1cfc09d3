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
package adiv5

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

type MemAPReg uint8

const (
	CSW  MemAPReg = 0x00
	TAR           = 0x04
	DRW           = 0x0c
	BD0           = 0x10
	BD1           = 0x14
	BD2           = 0x18
	BD3           = 0x1c
	BASE          = 0xf8
	IDR           = 0xfc
)

const (
	CSW_DeviceEn = 0x40

	// Basic mode, word access, increment by 1.
	CSWWord = 0x23000052
)

// TargetMemReaderWriter accesses target memory in 32-bit words.
type TargetMemReaderWriter interface {
	ReadTargetReg(ctx context.Context, addr uint32) (uint32, error)
	ReadTargetMem(ctx context.Context, addr uint32, length int) ([]uint32, error)
	WriteTargetReg(ctx context.Context, addr uint32, value uint32) error
	WriteTargetMem(ctx context.Context, addr uint32, data []uint32) error
}

// BulkPort is a Port whose probe may move blocks of memory in one request.
type BulkPort interface {
	Port
	SupportsMem() bool
	MemRead(ctx context.Context, ap uint8, csw uint32, addr uint64, n int) ([]byte, error)
	MemWrite(ctx context.Context, ap uint8, csw uint32, addr uint64, data []byte) error
}

type MemAPClient interface {
	TargetMemReaderWriter

	Init(ctx context.Context) error
	ReadReg(ctx context.Context, reg MemAPReg) (uint32, error)
	WriteReg(ctx context.Context, reg MemAPReg, value uint32) error
	Bulk() bool
}

type memAPClient struct {
	dpc   DPClient
	apSel uint8
	bulk  BulkPort
}

// NewMemAPClient returns a client for MEM-AP apSel. Block transfers use the
// probe's memory commands when available and TAR/DRW otherwise.
func NewMemAPClient(dpc DPClient, apSel uint8) MemAPClient {
	mapc := &memAPClient{dpc: dpc, apSel: apSel}
	if bp, ok := dpc.Port().(BulkPort); ok && bp.SupportsMem() {
		mapc.bulk = bp
	}
	return mapc
}

func (mapc *memAPClient) Bulk() bool {
	return mapc.bulk != nil
}

func (mapc *memAPClient) ReadReg(ctx context.Context, reg MemAPReg) (uint32, error) {
	value, err := mapc.dpc.ReadAPReg(ctx, mapc.apSel, uint8(reg))
	glog.V(4).Infof("%s == 0x%08x", reg, value)
	return value, err
}

func (mapc *memAPClient) WriteReg(ctx context.Context, reg MemAPReg, value uint32) error {
	glog.V(4).Infof("%s = 0x%08x", reg, value)
	return mapc.dpc.WriteAPReg(ctx, mapc.apSel, uint8(reg), value)
}

func (mapc *memAPClient) Init(ctx context.Context) error {
	csw, err := mapc.ReadReg(ctx, CSW)
	if err != nil {
		return errors.Trace(err)
	}
	if csw&CSW_DeviceEn == 0 {
		return errors.Errorf("MEM-AP %d is disabled", mapc.apSel)
	}
	return mapc.WriteReg(ctx, CSW, CSWWord)
}

func (mapc *memAPClient) ReadTargetReg(ctx context.Context, addr uint32) (uint32, error) {
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return 0, errors.Trace(err)
	}
	value, err := mapc.ReadReg(ctx, DRW)
	glog.V(4).Infof("ReadTargetReg(0x%08x) == 0x%08x", addr, value)
	return value, errors.Trace(err)
}

// wrapChunk returns how many words fit before addr's autoincrement wraps.
func wrapChunk(addr uint32, left int) int {
	// Autoincrement only works on lower 10 bits.
	cl := int((0x400 - addr&0x3ff) / 4)
	if cl > left {
		cl = left
	}
	return cl
}

func (mapc *memAPClient) ReadTargetMem(ctx context.Context, addr uint32, length int) ([]uint32, error) {
	glog.V(4).Infof("ReadTargetMem(0x%08x, %d)", addr, length)
	if addr%4 != 0 {
		return nil, errors.Errorf("addr must be word-aligned, got 0x%x", addr)
	}
	if mapc.bulk != nil {
		data, err := mapc.bulk.MemRead(ctx, mapc.apSel, CSWWord, uint64(addr), length*4)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res := make([]uint32, length)
		for i := range res {
			res[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		return res, nil
	}
	var res []uint32
	for i := 0; i < length; {
		if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
			return nil, errors.Trace(err)
		}
		cl := wrapChunk(addr, length-i)
		for j := 0; j < cl; j++ {
			v, err := mapc.ReadReg(ctx, DRW)
			if err != nil {
				return nil, errors.Annotatef(err, "read @ 0x%08x", addr+uint32(j*4))
			}
			res = append(res, v)
		}
		addr += uint32(cl * 4)
		i += cl
	}
	return res, nil
}

func (mapc *memAPClient) WriteTargetReg(ctx context.Context, addr uint32, value uint32) error {
	if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
		return errors.Trace(err)
	}
	glog.V(4).Infof("WriteTargetReg(0x%08x, 0x%08x)", addr, value)
	return mapc.WriteReg(ctx, DRW, value)
}

func (mapc *memAPClient) WriteTargetMem(ctx context.Context, addr uint32, data []uint32) error {
	glog.V(4).Infof("WriteTargetMem(0x%08x, %d)", addr, len(data))
	if addr%4 != 0 {
		return errors.Errorf("addr must be word-aligned, got 0x%x", addr)
	}
	if mapc.bulk != nil {
		buf := make([]byte, len(data)*4)
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], v)
		}
		return errors.Trace(mapc.bulk.MemWrite(ctx, mapc.apSel, CSWWord, uint64(addr), buf))
	}
	for i := 0; i < len(data); {
		if err := mapc.WriteReg(ctx, TAR, addr); err != nil {
			return errors.Trace(err)
		}
		cl := wrapChunk(addr, len(data)-i)
		for _, v := range data[i : i+cl] {
			if err := mapc.WriteReg(ctx, DRW, v); err != nil {
				return errors.Trace(err)
			}
		}
		addr += uint32(cl * 4)
		i += cl
	}
	return nil
}

func (r MemAPReg) String() string {
	switch r {
	case CSW:
		return "CSW"
	case TAR:
		return "TAR"
	case DRW:
		return "DRW"
	case BD0:
		return "BD0"
	case BD1:
		return "BD1"
	case BD2:
		return "BD2"
	case BD3:
		return "BD3"
	case BASE:
		return "BASE"
	case IDR:
		return "IDR"
	}
	return fmt.Sprintf("0x%x", uint8(r))
}
