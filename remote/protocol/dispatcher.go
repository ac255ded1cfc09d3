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
	"github.com/mongoose-os/bmprobe/common/hexutil"
	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/frame"
)

// Response codes.
const (
	RespOK          = "K"
	RespError       = "E"
	RespParityError = "P"
	RespNotSupp     = "N"
	RespNACK        = "W"
)

// Dispatcher encodes commands for and decodes responses from one wire format
// generation.
type Dispatcher interface {
	Version() Version
	Capabilities() Capability
	// Check returns an UnsupportedOperation error if the command cannot be
	// expressed in this format.
	Check(cmd *Command) error
	Encode(cmd *Command) (id string, payload []byte, err error)
	Decode(cmd *Command, f *frame.Frame) (*Response, error)
	// Handshake is the command sent to detect this version.
	Handshake() *Command
	// Matches reports whether f is the reply of firmware speaking this
	// version to Handshake. f is nil if the firmware did not reply.
	Matches(f *frame.Frame) bool
}

type dispatcher struct {
	version Version
	caps    Capability
	ids     map[Op]string
	// Non-zero: every numeric field and result has this width.
	fixedWidth int
	// ADIv5 requests carry a device index.
	devField bool
	memAddrWidth int
	// Error responses carry diagnostic text after the code.
	errorText bool
	matches   func(f *frame.Frame) bool
}

func (d *dispatcher) Version() Version {
	return d.version
}

func (d *dispatcher) Capabilities() Capability {
	return d.caps
}

func (d *dispatcher) Handshake() *Command {
	return &Command{Op: OpProtocolCheck}
}

func (d *dispatcher) Matches(f *frame.Frame) bool {
	return d.matches(f)
}

func (d *dispatcher) Check(cmd *Command) error {
	s := cmd.Op.desc()
	if s == nil {
		return errs.InvalidArgumentf("unknown operation %d", int(cmd.Op))
	}
	if missing := cmd.Requires() &^ d.caps; missing != 0 {
		return errs.Unsupportedf("%s needs %s, not available in protocol %s", cmd, missing, d.version)
	}
	if _, ok := d.ids[cmd.Op]; !ok {
		return errs.Unsupportedf("%s is not available in protocol %s", cmd.Op, d.version)
	}
	return nil
}

func (d *dispatcher) Encode(cmd *Command) (string, []byte, error) {
	if err := d.Check(cmd); err != nil {
		return "", nil, err
	}
	s := cmd.Op.desc()
	var payload []byte
	for _, f := range s.fields {
		if f.dev && !d.devField {
			continue
		}
		w := f.width
		if w == 0 {
			w = d.memAddrWidth
		}
		v := f.get(cmd)
		if w < 8 && v>>(8*uint(w)) != 0 {
			return "", nil, errs.InvalidArgumentf("%s: value 0x%x does not fit %d bytes", cmd.Op, v, w)
		}
		if d.fixedWidth > 0 {
			w = d.fixedWidth
		}
		payload = putUint(payload, v, w)
	}
	if s.data {
		if len(cmd.Data) != cmd.Count {
			return "", nil, errs.InvalidArgumentf("%s: count %d, data %d bytes", cmd.Op, cmd.Count, len(cmd.Data))
		}
		payload = append(payload, cmd.Data...)
	}
	return d.ids[cmd.Op], payload, nil
}

func putUint(b []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		b = append(b, byte(v>>(8*uint(i))))
	}
	return b
}

func (d *dispatcher) Decode(cmd *Command, f *frame.Frame) (*Response, error) {
	switch f.ID {
	case RespOK:
		return d.decodeResult(cmd, f)
	case RespError:
		return nil, d.decodeFault(f)
	case RespParityError:
		return nil, errs.Fault(errs.FaultParity, "SWD parity error")
	case RespNotSupp:
		return nil, errs.Fault(errs.FaultNotSupported, cmd.Op.String()+" not supported by probe firmware")
	case RespNACK:
		if d.caps.Has(CapNACK) {
			return &Response{NACK: true}, nil
		}
	}
	return nil, errs.Malformedf("unexpected response %s to %s in protocol %s", f, cmd.Op, d.version)
}

func (d *dispatcher) decodeResult(cmd *Command, f *frame.Frame) (*Response, error) {
	s := cmd.Op.desc()
	res := &Response{}
	switch s.result {
	case resNum:
		w := s.width
		if d.fixedWidth > 0 {
			w = d.fixedWidth
		}
		v, err := f.Num(2 * w)
		if err != nil {
			return nil, err
		}
		res.Value = v
	case resText:
		t, err := f.Text()
		if err != nil {
			return nil, err
		}
		res.Text = t
	case resData:
		b, err := f.Bytes()
		if err != nil {
			return nil, err
		}
		if len(b) != cmd.Count {
			return nil, errs.Malformedf("%s: expected %d bytes, got %d", cmd.Op, cmd.Count, len(b))
		}
		res.Data = b
	}
	return res, nil
}

func (d *dispatcher) decodeFault(f *frame.Frame) error {
	p := f.Payload
	switch {
	case p == "":
		return errs.Fault(0, "")
	case len(p) < 2:
		return errs.Malformedf("truncated error code in %s", f)
	}
	code := int(hexutil.DecodeNum(p, 2))
	if !d.errorText || len(p) == 2 {
		return errs.Fault(code, "")
	}
	diag, err := hexutil.DecodeBytes(p[2:])
	if err != nil {
		return errs.Malformedf("bad diagnostic in %s: %s", f, err)
	}
	return errs.Fault(code, string(diag))
}

// matchVersion matches a numeric reply to the protocol check command.
func matchVersion(v Version) func(f *frame.Frame) bool {
	return func(f *frame.Frame) bool {
		if f == nil || f.ID != RespOK || len(f.Payload) != 2 {
			return false
		}
		return hexutil.DecodeNum(f.Payload, 2) == uint64(v)
	}
}

// Legacy firmware has no protocol check command. A nil f means there was
// no reply at all.
func matchLegacy(f *frame.Frame) bool {
	return f == nil || f.ID == RespNotSupp || f.ID == RespError
}
