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
	"github.com/mongoose-os/bmprobe/remote/protocol"
)

// SetPower switches target power supplied by the probe.
func (s *Session) SetPower(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpSetPower, Flag: on}); err != nil {
		return errors.Trace(err)
	}
	s.state.Power, s.state.PowerKnown = on, true
	glog.V(1).Infof("Target power %t", on)
	return nil
}

func (s *Session) Power(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpGetPower})
	if err != nil {
		return false, errors.Trace(err)
	}
	on := r.Value != 0
	s.state.Power, s.state.PowerKnown = on, true
	return on, nil
}

// SetReset asserts (true) or releases the target nRST line.
func (s *Session) SetReset(ctx context.Context, assert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpSetReset, Flag: assert}); err != nil {
		return errors.Trace(err)
	}
	s.state.Reset, s.state.ResetKnown = assert, true
	glog.V(1).Infof("Target reset %t", assert)
	return nil
}

func (s *Session) Reset(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpGetReset})
	if err != nil {
		return false, errors.Trace(err)
	}
	asserted := r.Value != 0
	s.state.Reset, s.state.ResetKnown = asserted, true
	return asserted, nil
}

// SetFrequency sets the SWD/JTAG clock in Hz.
func (s *Session) SetFrequency(ctx context.Context, hz uint32) error {
	if hz < s.opts.MinFrequency || hz > s.opts.MaxFrequency {
		return errs.InvalidArgumentf("frequency %d Hz out of range %d..%d", hz, s.opts.MinFrequency, s.opts.MaxFrequency)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpSetFrequency, Value: uint64(hz)}); err != nil {
		return errors.Trace(err)
	}
	s.state.Frequency, s.state.FrequencyKnown = hz, true
	glog.V(1).Infof("Frequency %d Hz", hz)
	return nil
}

// Frequency returns the clock frequency the probe actually uses, which may
// differ from the last requested one.
func (s *Session) Frequency(ctx context.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.doLocked(ctx, &protocol.Command{Op: protocol.OpGetFrequency})
	if err != nil {
		return 0, errors.Trace(err)
	}
	s.state.Frequency, s.state.FrequencyKnown = uint32(r.Value), true
	return uint32(r.Value), nil
}

// ReadVoltage returns the target voltage as reported by the probe, e.g. "3.3V".
func (s *Session) ReadVoltage(ctx context.Context) (string, error) {
	r, err := s.Do(ctx, &protocol.Command{Op: protocol.OpVoltage})
	if err != nil {
		return "", errors.Trace(err)
	}
	return r.Text, nil
}

func (s *Session) SetClockOutput(ctx context.Context, enable bool) error {
	_, err := s.Do(ctx, &protocol.Command{Op: protocol.OpClockOutput, Flag: enable})
	return errors.Trace(err)
}
