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

func checkBits(bits int) error {
	if bits < 1 || bits > 32 {
		return errs.InvalidArgumentf("bit count %d is not in 1..32", bits)
	}
	return nil
}

func (s *Session) SWDInit(ctx context.Context) error {
	_, err := s.Do(ctx, &protocol.Command{Op: protocol.OpSWDInit})
	return errors.Trace(err)
}

func (s *Session) swdIn(ctx context.Context, op protocol.Op, bits int) (uint32, error) {
	if err := checkBits(bits); err != nil {
		return 0, err
	}
	r, err := s.Do(ctx, &protocol.Command{Op: op, Bits: bits})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return uint32(r.Value), nil
}

func (s *Session) swdOut(ctx context.Context, op protocol.Op, bits int, v uint32) error {
	if err := checkBits(bits); err != nil {
		return err
	}
	_, err := s.Do(ctx, &protocol.Command{Op: op, Bits: bits, Value: uint64(v)})
	return errors.Trace(err)
}

// SWDSeqIn clocks in bits, LSB first.
func (s *Session) SWDSeqIn(ctx context.Context, bits int) (uint32, error) {
	return s.swdIn(ctx, protocol.OpSWDSeqIn, bits)
}

// SWDSeqInParity is SWDSeqIn followed by a parity bit checked by the probe.
// A mismatch is a RemoteFault with code errs.FaultParity.
func (s *Session) SWDSeqInParity(ctx context.Context, bits int) (uint32, error) {
	return s.swdIn(ctx, protocol.OpSWDSeqInParity, bits)
}

func (s *Session) SWDSeqOut(ctx context.Context, bits int, v uint32) error {
	return s.swdOut(ctx, protocol.OpSWDSeqOut, bits, v)
}

func (s *Session) SWDSeqOutParity(ctx context.Context, bits int, v uint32) error {
	return s.swdOut(ctx, protocol.OpSWDSeqOutParity, bits, v)
}
