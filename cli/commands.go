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
package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/fatih/color"
	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/cli/flags"
	"github.com/mongoose-os/bmprobe/cli/ourutil"
	"github.com/mongoose-os/bmprobe/remote"
	"github.com/mongoose-os/bmprobe/remote/adiv5"
	"github.com/mongoose-os/bmprobe/remote/protocol"
)

func checkArgs(args []string, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return errors.Errorf("expected %d arguments, got %d", min, len(args))
		}
		return errors.Errorf("expected %d to %d arguments, got %d", min, max, len(args))
	}
	return nil
}

func parseArgs(args []string, bits int) ([]uint64, error) {
	res := make([]uint64, len(args))
	for i, a := range args {
		v, err := ourutil.ParseUint(a, bits)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res[i] = v
	}
	return res, nil
}

func printState(s *remote.Session) {
	st := s.State()
	show := func(name string, known bool, v interface{}) {
		if known {
			fmt.Fprintf(out, "%-12s %v\n", name+":", v)
		} else {
			fmt.Fprintf(out, "%-12s unknown\n", name+":")
		}
	}
	show("Power", st.PowerKnown, st.Power)
	show("Reset", st.ResetKnown, st.Reset)
	show("Frequency", st.FrequencyKnown, st.Frequency)
}

func info(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 0, 0); err != nil {
		return err
	}
	fmt.Fprintf(out, "%-12s %s\n", "Firmware:", s.FirmwareVersion())
	if !s.FirmwareAtLeast(*flags.MinFirmware) {
		color.New(color.FgRed).Fprintf(out, "%-12s older than %s\n", "", *flags.MinFirmware)
	}
	fmt.Fprintf(out, "%-12s %s\n", "Protocol:", s.Version())
	fmt.Fprintf(out, "%-12s %s\n", "Features:", s.Capabilities())
	voltage, err := s.ReadVoltage(ctx)
	if err != nil {
		return errors.Annotatef(err, "failed to read voltage")
	}
	fmt.Fprintf(out, "%-12s %s\n", "Voltage:", voltage)
	if _, err := s.Power(ctx); err != nil {
		return errors.Annotatef(err, "failed to read power state")
	}
	if _, err := s.Reset(ctx); err != nil {
		return errors.Annotatef(err, "failed to read reset state")
	}
	if _, err := s.Frequency(ctx); err != nil {
		return errors.Annotatef(err, "failed to read frequency")
	}
	printState(s)
	return nil
}

// onOff implements the show-or-set commands taking an optional boolean.
func onOff(ctx context.Context, args []string, name string, get func(context.Context) (bool, error), set func(context.Context, bool) error) error {
	if err := checkArgs(args, 0, 1); err != nil {
		return err
	}
	if len(args) == 1 {
		v, err := ourutil.ParseBool(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Annotatef(set(ctx, v), "failed to set %s", name)
	}
	v, err := get(ctx)
	if err != nil {
		return errors.Annotatef(err, "failed to read %s", name)
	}
	if v {
		color.New(color.FgGreen).Fprintf(out, "%s: on\n", name)
	} else {
		fmt.Fprintf(out, "%s: off\n", name)
	}
	return nil
}

func power(ctx context.Context, s *remote.Session, args []string) error {
	return onOff(ctx, args, "power", s.Power, s.SetPower)
}

func reset(ctx context.Context, s *remote.Session, args []string) error {
	return onOff(ctx, args, "reset", s.Reset, s.SetReset)
}

func clockOut(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 1, 1); err != nil {
		return err
	}
	v, err := ourutil.ParseBool(args[0])
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.SetClockOutput(ctx, v))
}

func freq(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 0, 1); err != nil {
		return err
	}
	if len(args) == 1 {
		hz, err := ourutil.ParseUint(args[0], 32)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(s.SetFrequency(ctx, uint32(hz)))
	}
	hz, err := s.Frequency(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "frequency: %d Hz\n", hz)
	return nil
}

func swdInit(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 0, 0); err != nil {
		return err
	}
	return errors.Trace(s.SWDInit(ctx))
}

func swdSeq(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 1, 2); err != nil {
		return err
	}
	vs, err := parseArgs(args, 32)
	if err != nil {
		return errors.Trace(err)
	}
	if len(vs) == 2 {
		return errors.Trace(s.SWDSeqOut(ctx, int(vs[0]), uint32(vs[1])))
	}
	v, err := s.SWDSeqIn(ctx, int(vs[0]))
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "0x%08x\n", v)
	return nil
}

func jtagTMS(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 2, 2); err != nil {
		return err
	}
	vs, err := parseArgs(args, 32)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.JTAGTMSSeq(ctx, uint32(vs[1]), int(vs[0])))
}

func jtagScan(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 0, 0); err != nil {
		return err
	}
	if err := s.JTAGInit(ctx); err != nil {
		return errors.Annotatef(err, "failed to switch to JTAG")
	}
	devs, err := s.JTAGScan(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if len(devs) == 0 {
		color.New(color.FgYellow).Fprintf(out, "No devices found\n")
		return nil
	}
	for _, d := range devs {
		fmt.Fprintf(out, "%2d: %s\n", d.Index, d.IDCode)
	}
	return nil
}

func dpClient(s *remote.Session) adiv5.DPClient {
	return adiv5.NewDPClient(s.ADIv5(*flags.Dev))
}

func targetInit(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 0, 0); err != nil {
		return err
	}
	dpc := dpClient(s)
	if err := dpc.Init(ctx); err != nil {
		return errors.Trace(err)
	}
	idr, err := dpc.GetIDR(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "DPIDR: 0x%08x (%s, DPv%d, rev %d)\n", uint32(idr), idr.Designer(), idr.Version(), idr.Revision())
	return nil
}

func dpRead(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 1, 1); err != nil {
		return err
	}
	vs, err := parseArgs(args, 16)
	if err != nil {
		return errors.Trace(err)
	}
	v, err := dpClient(s).ReadDPReg(ctx, adiv5.DPReg(vs[0]))
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "0x%08x\n", v)
	return nil
}

func dpWrite(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 2, 2); err != nil {
		return err
	}
	vs, err := parseArgs(args, 32)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(dpClient(s).WriteDPReg(ctx, adiv5.DPReg(vs[0]), uint32(vs[1])))
}

func apRead(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 1, 1); err != nil {
		return err
	}
	vs, err := parseArgs(args, 8)
	if err != nil {
		return errors.Trace(err)
	}
	v, err := dpClient(s).ReadAPReg(ctx, *flags.AP, uint8(vs[0]))
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(out, "0x%08x\n", v)
	return nil
}

func apWrite(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 2, 2); err != nil {
		return err
	}
	vs, err := parseArgs(args, 32)
	if err != nil {
		return errors.Trace(err)
	}
	if vs[0] > 0xff {
		return errors.Errorf("invalid AP register address 0x%x", vs[0])
	}
	return errors.Trace(dpClient(s).WriteAPReg(ctx, *flags.AP, uint8(vs[0]), uint32(vs[1])))
}

func memAPClient(ctx context.Context, s *remote.Session) (adiv5.MemAPClient, error) {
	mapc := adiv5.NewMemAPClient(dpClient(s), *flags.AP)
	if err := mapc.Init(ctx); err != nil {
		return nil, errors.Annotatef(err, "failed to init MEM-AP %d", *flags.AP)
	}
	return mapc, nil
}

func memRead(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 2, 2); err != nil {
		return err
	}
	addrLen, err := parseArgs(args, 32)
	if err != nil {
		return errors.Trace(err)
	}
	addr, n := addrLen[0], int(addrLen[1])
	var data []byte
	if s.Supports(protocol.CapADIv5Mem) {
		// The probe handles unaligned transfers itself.
		if data, err = s.ADIv5(*flags.Dev).MemRead(ctx, *flags.AP, adiv5.CSWWord, addr, n); err != nil {
			return errors.Trace(err)
		}
	} else {
		if addr%4 != 0 || n%4 != 0 {
			return errors.Errorf("address and length must be word-aligned with protocol %s", s.Version())
		}
		mapc, err := memAPClient(ctx, s)
		if err != nil {
			return errors.Trace(err)
		}
		words, err := mapc.ReadTargetMem(ctx, uint32(addr), n/4)
		if err != nil {
			return errors.Trace(err)
		}
		data = make([]byte, n)
		for i, w := range words {
			binary.LittleEndian.PutUint32(data[i*4:], w)
		}
	}
	ourutil.HexDump(out, addr, data)
	return nil
}

func memWrite(ctx context.Context, s *remote.Session, args []string) error {
	if len(args) < 2 {
		return errors.Errorf("expected an address and at least one word")
	}
	vs, err := parseArgs(args, 32)
	if err != nil {
		return errors.Trace(err)
	}
	mapc, err := memAPClient(ctx, s)
	if err != nil {
		return errors.Trace(err)
	}
	words := make([]uint32, len(vs)-1)
	for i, v := range vs[1:] {
		words[i] = uint32(v)
	}
	return errors.Trace(mapc.WriteTargetMem(ctx, uint32(vs[0]), words))
}
