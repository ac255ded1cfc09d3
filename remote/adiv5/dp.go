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

// Package adiv5 drives an ARM ADIv5 debug port and its MEM-APs through
// the register access a probe session provides.
package adiv5

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

type DPReg uint32

const (
	DPIDR      DPReg = 0x00
	DPABORT          = 0x00
	DPCTRLSTAT       = 0x04
	DPSELECT         = 0x08
	DPRDBUFF         = 0x0c
)

const (
	ctrlStatCDbgRstReq = 0x04000000
	ctrlStatCDbgRstAck = 0x08000000
	ctrlStatDbgPwrReq  = 0x10000000
	ctrlStatDbgPwrAck  = 0x20000000
	ctrlStatSysPwrReq  = 0x40000000
	ctrlStatSysPwrAck  = 0x80000000

	// STKCMPCLR | STKERRCLR | WDERRCLR | ORUNERRCLR
	abortClearErrors = 0x1e

	maxPolls = 100
)

// Port is the raw register access to one debug port. The probe selects
// AP banks itself, so AP addresses are the full 8-bit register offsets.
type Port interface {
	DPRead(ctx context.Context, addr uint32) (uint32, error)
	DPWrite(ctx context.Context, addr, v uint32) error
	APRead(ctx context.Context, ap, addr uint8) (uint32, error)
	APWrite(ctx context.Context, ap, addr uint8, v uint32) error
}

type DPClient interface {
	Init(ctx context.Context) error
	GetIDR(ctx context.Context) (DPIDRValue, error)
	DbgReset(ctx context.Context) error
	SetDbgPower(ctx context.Context, dbg, sys bool) error
	ClearErrors(ctx context.Context) error
	ReadDPReg(ctx context.Context, reg DPReg) (uint32, error)
	WriteDPReg(ctx context.Context, reg DPReg, value uint32) error
	ReadAPReg(ctx context.Context, apSel, apReg uint8) (uint32, error)
	WriteAPReg(ctx context.Context, apSel, apReg uint8, value uint32) error
	Port() Port
}

func NewDPClient(port Port) DPClient {
	return &dpClient{port: port}
}

type dpClient struct {
	port Port
}

func (dpc *dpClient) Port() Port {
	return dpc.port
}

func (dpc *dpClient) ReadDPReg(ctx context.Context, reg DPReg) (uint32, error) {
	value, err := dpc.port.DPRead(ctx, uint32(reg))
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read %s", reg)
	}
	glog.V(4).Infof("%s == 0x%08x", reg, value)
	return value, nil
}

func (dpc *dpClient) WriteDPReg(ctx context.Context, reg DPReg, value uint32) error {
	glog.V(4).Infof("%s = 0x%08x", reg, value)
	return errors.Annotatef(dpc.port.DPWrite(ctx, uint32(reg), value), "failed to write %s", reg)
}

func (dpc *dpClient) ReadAPReg(ctx context.Context, apSel, apReg uint8) (uint32, error) {
	value, err := dpc.port.APRead(ctx, apSel, apReg)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to read AP %d reg 0x%02x", apSel, apReg)
	}
	return value, nil
}

func (dpc *dpClient) WriteAPReg(ctx context.Context, apSel, apReg uint8, value uint32) error {
	return errors.Annotatef(dpc.port.APWrite(ctx, apSel, apReg, value), "failed to write AP %d reg 0x%02x", apSel, apReg)
}

func (dpc *dpClient) Init(ctx context.Context) error {
	idr, err := dpc.GetIDR(ctx)
	if err != nil {
		return errors.Annotatef(err, "failed to read DP ID")
	}
	glog.V(1).Infof("DPIDR 0x%08x (%s v%d rev %d)", uint32(idr), idr.Designer(), idr.Version(), idr.Revision())
	if err := dpc.WriteDPReg(ctx, DPSELECT, 0); err != nil {
		return errors.Trace(err)
	}
	if err := dpc.ClearErrors(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(dpc.SetDbgPower(ctx, true, true))
}

func (dpc *dpClient) ClearErrors(ctx context.Context) error {
	return errors.Trace(dpc.WriteDPReg(ctx, DPABORT, abortClearErrors))
}

func (dpc *dpClient) GetIDR(ctx context.Context) (DPIDRValue, error) {
	v, err := dpc.ReadDPReg(ctx, DPIDR)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return DPIDRValue(v), nil
}

// SetDbgPower requests the debug and system power domains and waits for
// the acknowledgements.
func (dpc *dpClient) SetDbgPower(ctx context.Context, dbg, sys bool) error {
	var reqMask, ackMask uint32
	if dbg {
		reqMask |= ctrlStatDbgPwrReq
		ackMask |= ctrlStatDbgPwrAck
	}
	if sys {
		reqMask |= ctrlStatSysPwrReq
		ackMask |= ctrlStatSysPwrAck
	}
	for i := 0; i < maxPolls; i++ {
		statValue, err := dpc.ReadDPReg(ctx, DPCTRLSTAT)
		if err != nil {
			return errors.Trace(err)
		}
		if statValue&0xf0000000 == (reqMask | ackMask) {
			return nil
		}
		ctrlValue := (statValue & 0x07ffffff) | reqMask
		if err := dpc.WriteDPReg(ctx, DPCTRLSTAT, ctrlValue); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Errorf("no power up acknowledgement after %d polls", maxPolls)
}

func (dpc *dpClient) waitCtrlStat(ctx context.Context, mask, value uint32) (uint32, error) {
	for i := 0; i < maxPolls; i++ {
		statValue, err := dpc.ReadDPReg(ctx, DPCTRLSTAT)
		if err != nil {
			return 0, errors.Trace(err)
		}
		if statValue&mask == value {
			return statValue, nil
		}
	}
	return 0, errors.Errorf("DPCTRLSTAT & 0x%08x != 0x%08x after %d polls", mask, value, maxPolls)
}

// DbgReset pulses the debug reset request.
func (dpc *dpClient) DbgReset(ctx context.Context) error {
	statValue, err := dpc.ReadDPReg(ctx, DPCTRLSTAT)
	if err != nil {
		return errors.Trace(err)
	}
	ctrlValue := (statValue & 0xf3ffffff) | ctrlStatCDbgRstReq
	if err := dpc.WriteDPReg(ctx, DPCTRLSTAT, ctrlValue); err != nil {
		return errors.Trace(err)
	}
	if statValue, err = dpc.waitCtrlStat(ctx, ctrlStatCDbgRstAck, ctrlStatCDbgRstAck); err != nil {
		return errors.Annotatef(err, "reset request not acknowledged")
	}
	if err := dpc.WriteDPReg(ctx, DPCTRLSTAT, statValue&0xf3ffffff); err != nil {
		return errors.Trace(err)
	}
	_, err = dpc.waitCtrlStat(ctx, ctrlStatCDbgRstAck, 0)
	return errors.Annotatef(err, "reset acknowledgement not cleared")
}

type DPIDRValue uint32

type DPDesigner uint16

func (v DPIDRValue) Designer() DPDesigner {
	return DPDesigner((v >> 1) & 0x7ff)
}

func (v DPIDRValue) Version() uint8 {
	return uint8((v >> 12) & 0xf)
}

func (v DPIDRValue) Minimal() bool {
	return (v>>16)&1 != 0
}

func (v DPIDRValue) PartNumber() uint8 {
	return uint8(v >> 20)
}

func (v DPIDRValue) Revision() uint8 {
	return uint8((v >> 28) & 0xf)
}

func (v DPDesigner) String() string {
	if v == 0x23b {
		return "ARM"
	}
	return fmt.Sprintf("0x%03x", uint16(v))
}

func (r DPReg) String() string {
	switch r {
	case DPIDR:
		return "DPIDR"
	case DPCTRLSTAT:
		return "DPCTRLSTAT"
	case DPSELECT:
		return "DPSELECT"
	case DPRDBUFF:
		return "DPRDBUFF"
	}
	return fmt.Sprintf("0x%x", uint32(r))
}
