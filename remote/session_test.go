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
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/jtag"
	"github.com/mongoose-os/bmprobe/remote/protocol"
	"github.com/mongoose-os/bmprobe/remote/sim"
)

var testOpts = &Options{
	Timeout:          200 * time.Millisecond,
	HandshakeTimeout: 200 * time.Millisecond,
	ResyncQuiet:      5 * time.Millisecond,
}

func openSim(t *testing.T, cfg sim.Config, opts *Options) (*Session, *sim.Probe) {
	t.Helper()
	p := sim.New(cfg)
	if opts == nil {
		opts = testOpts
	}
	s, err := OpenPort(context.Background(), p, opts)
	require.NoError(t, err)
	return s, p
}

func requireFrames(t *testing.T, p *sim.Probe, from int, want ...string) {
	t.Helper()
	got := strings.Join(p.Frames()[from:], "\n")
	exp := strings.Join(want, "\n")
	if got != exp {
		dmp := diffmatchpatch.New()
		t.Fatalf("unexpected requests:\n%s", dmp.DiffPrettyText(dmp.DiffMain(exp, got, false)))
	}
}

func TestEndToEndV3(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V3}, nil)
	assert.Equal(t, protocol.V3, s.Version())
	assert.True(t, s.Supports(protocol.CapWide|protocol.CapJTAGChain))
	assert.Equal(t, sim.DefaultFirmware, s.FirmwareVersion())

	require.NoError(t, s.SetFrequency(ctx, 1000000))
	st := s.State()
	assert.True(t, st.FrequencyKnown)
	assert.Equal(t, uint32(1000000), st.Frequency)
	_, _, freq := p.Target()
	assert.Equal(t, uint32(1000000), freq)

	v, err := s.DPRead(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(sim.DefaultDPIDR), v)

	requireFrames(t, p, 0, "!GA#", "!HC#", "!GF000f4240#", "!Ad000000#")

	require.NoError(t, s.Close())
	assert.True(t, p.Closed())
	assert.Equal(t, 0, p.Pending())
	// Closing twice is fine, using a closed session is not.
	require.NoError(t, s.Close())
	_, err = s.DPRead(ctx, 0)
	assert.True(t, errs.IsTransport(err), "got %v", err)
}

func TestOpenByIdentifier(t *testing.T) {
	s, err := Open(context.Background(), "sim://v2", testOpts)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, protocol.V2, s.Version())

	_, err = Open(context.Background(), "nosuch://x", testOpts)
	assert.True(t, errs.Is(err, errs.KindOpen), "got %v", err)
}

func TestNegotiationSettlesOnV1(t *testing.T) {
	for i := 0; i < 3; i++ {
		s, p := openSim(t, sim.Config{Version: protocol.V1}, nil)
		assert.Equal(t, protocol.V1, s.Version())
		requireFrames(t, p, 0, "!GA#", "!HC#")
		s.Close()
	}
}

func TestNegotiationRestricted(t *testing.T) {
	p := sim.New(sim.Config{Version: protocol.V3})
	_, err := OpenPort(context.Background(), p, &Options{MaxProtocol: "v2", HandshakeTimeout: 100 * time.Millisecond})
	assert.True(t, errs.Is(err, errs.KindNoCompatibleProtocol), "got %v", err)

	_, err = OpenPort(context.Background(), p, &Options{MaxProtocol: "v7"})
	assert.True(t, errs.Is(err, errs.KindInvalidArgument), "got %v", err)
}

func TestUnsupportedWideOpOnV0(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V0}, nil)
	defer s.Close()
	require.Equal(t, protocol.V0, s.Version())
	before := p.BytesReceived()

	_, err := s.APRead64(ctx, 0, 0)
	assert.True(t, errs.IsUnsupported(err), "got %v", err)
	err = s.APWrite64(ctx, 0, 0, 1)
	assert.True(t, errs.IsUnsupported(err), "got %v", err)
	_, err = s.MemRead(ctx, 0, 0, 0, 4)
	assert.True(t, errs.IsUnsupported(err), "got %v", err)
	_, err = s.ADIv5(1).DPRead(ctx, 0)
	assert.True(t, errs.IsUnsupported(err), "got %v", err)
	assert.Equal(t, before, p.BytesReceived(), "nothing may be written")

	// The narrow variants still work.
	v, err := s.DPRead(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(sim.DefaultDPIDR), v)
	requireFrames(t, p, 2, "!Hd00000000#")
}

func TestTimeoutIsolation(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V2}, &Options{
		Timeout:          20 * time.Millisecond,
		HandshakeTimeout: 200 * time.Millisecond,
		ResyncQuiet:      5 * time.Millisecond,
	})
	defer s.Close()

	p.Stall()
	_, err := s.Power(ctx)
	require.True(t, errs.IsTimeout(err), "got %v", err)
	// The late response arrives before the next request.
	p.Release()
	require.True(t, p.Pending() > 0)

	v, err := s.DPRead(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(sim.DefaultDPIDR), v)
	assert.Equal(t, protocol.V2, s.Version())
}

func TestNACKRetryBound(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V2}, nil)
	defer s.Close()
	limit := s.Options().NACKRetryLimit
	require.Equal(t, DefaultNACKRetryLimit, limit)

	for n := 0; n <= limit+1; n++ {
		p.NACK(n)
		start := len(p.Frames())
		v, err := s.DPRead(ctx, 0)
		if n < limit {
			require.NoError(t, err, "%d NACKs", n)
			assert.Equal(t, uint32(sim.DefaultDPIDR), v)
			assert.Equal(t, n+1, len(p.Frames())-start)
		} else {
			assert.Equal(t, errs.FaultNACK, errs.FaultCode(err), "%d NACKs: got %v", n, err)
			assert.Equal(t, limit, len(p.Frames())-start, "retries must be bounded")
			p.NACK(0)
		}
	}
}

// slowPort answers every read only after delay.
type slowPort struct {
	*sim.Probe
	delay time.Duration
}

func (sp *slowPort) Read(buf []byte, timeout time.Duration) (int, error) {
	if timeout < sp.delay {
		time.Sleep(timeout)
		return 0, errs.Timeoutf("slow port: read timeout")
	}
	time.Sleep(sp.delay)
	return sp.Probe.Read(buf, timeout-sp.delay)
}

func TestNACKRetriesStopAtDeadline(t *testing.T) {
	p := sim.New(sim.Config{Version: protocol.V2})
	port := &slowPort{Probe: p, delay: 20 * time.Millisecond}
	s, err := OpenPort(context.Background(), port, &Options{
		Timeout:          200 * time.Millisecond,
		HandshakeTimeout: 200 * time.Millisecond,
		ResyncQuiet:      5 * time.Millisecond,
		NACKRetryLimit:   50,
	})
	require.NoError(t, err)
	defer s.Close()

	p.NACK(1000)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	startFrames := len(p.Frames())
	_, err = s.DPRead(ctx, 0)
	elapsed := time.Since(start)
	require.True(t, errs.IsTimeout(err), "got %v", err)
	assert.True(t, elapsed < 200*time.Millisecond, "took %s", elapsed)
	assert.True(t, len(p.Frames())-startFrames < 50, "retried past the deadline")
}

func TestNACKBeforeV2IsMalformed(t *testing.T) {
	s, p := openSim(t, sim.Config{Version: protocol.V1}, nil)
	defer s.Close()
	p.NACK(1)
	_, err := s.DPRead(context.Background(), 0)
	assert.True(t, errs.Is(err, errs.KindMalformedFrame), "got %v", err)
	_, err = s.DPRead(context.Background(), 0)
	assert.NoError(t, err)
}

func TestRemoteFaults(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V3}, nil)
	defer s.Close()

	p.Fail("Aa", 0x05, "AP fault")
	_, err := s.APRead(ctx, 0, 0)
	require.True(t, errs.IsRemoteFault(err), "got %v", err)
	assert.Equal(t, 0x05, errs.FaultCode(err))
	assert.Contains(t, err.Error(), "AP fault")

	_, err = s.APRead(ctx, 3, 0)
	assert.Equal(t, sim.FaultBadAP, errs.FaultCode(err), "got %v", err)

	p.Fail("", errs.FaultParity, "")
	_, err = s.SWDSeqInParity(ctx, 32)
	assert.Equal(t, errs.FaultParity, errs.FaultCode(err), "got %v", err)

	// Faults leave the session usable.
	_, err = s.APRead(ctx, 0, 0xfc)
	assert.NoError(t, err)
}

func TestParameterValidation(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V3}, nil)
	defer s.Close()
	before := p.BytesReceived()

	for _, err := range []error{
		s.SetFrequency(ctx, 10),
		s.SetFrequency(ctx, 200000000),
		s.DPWrite(ctx, 0x2, 0),
		s.DPWrite(ctx, 0x10000, 0),
		s.APWrite(ctx, 0, 0x5, 0),
		s.SWDSeqOut(ctx, 0, 0),
		s.JTAGTMSSeq(ctx, 0, 33),
	} {
		assert.True(t, errs.Is(err, errs.KindInvalidArgument), "got %v", err)
	}
	_, err := s.JTAGTDITDOSeq(ctx, []byte{0}, 9, false)
	assert.True(t, errs.Is(err, errs.KindInvalidArgument), "got %v", err)
	assert.Equal(t, before, p.BytesReceived())
	assert.False(t, s.State().FrequencyKnown)
}

func TestCancelledContext(t *testing.T) {
	s, p := openSim(t, sim.Config{Version: protocol.V3}, nil)
	defer s.Close()
	before := p.BytesReceived()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SetPower(ctx, true)
	assert.Error(t, err)
	assert.Equal(t, before, p.BytesReceived())
	assert.False(t, s.State().PowerKnown)
}

func TestTransportFailure(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V3}, nil)
	require.NoError(t, p.Close())
	_, err := s.DPRead(ctx, 0)
	assert.True(t, errs.IsTransport(err), "got %v", err)
	_, err = s.DPRead(ctx, 0)
	assert.True(t, errs.IsTransport(err), "got %v", err)
	assert.NoError(t, s.Close())
}

func TestGeneralState(t *testing.T) {
	ctx := context.Background()
	s, _ := openSim(t, sim.Config{Version: protocol.V1, Voltage: "1.8V"}, nil)
	defer s.Close()

	require.NoError(t, s.SetPower(ctx, true))
	require.NoError(t, s.SetReset(ctx, true))
	on, err := s.Power(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	require.NoError(t, s.SetReset(ctx, false))
	asserted, err := s.Reset(ctx)
	require.NoError(t, err)
	assert.False(t, asserted)
	assert.Equal(t, State{Power: true, PowerKnown: true, ResetKnown: true}, s.State())

	volts, err := s.ReadVoltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.8V", volts)
	require.NoError(t, s.SetClockOutput(ctx, true))

	require.NoError(t, s.SetFrequency(ctx, 4000000))
	f, err := s.Frequency(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4000000), f)
}

func TestSWD(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V0}, nil)
	defer s.Close()
	require.NoError(t, s.SWDInit(ctx))
	require.NoError(t, s.SWDSeqOut(ctx, 8, 0x1a5))
	v, err := s.SWDSeqIn(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xa5), v)
	require.NoError(t, s.SWDSeqOutParity(ctx, 32, 0xdeadbeef))
	requireFrames(t, p, 2, "!SS#", "!So00000008000001a5#", "!Si00000008#", "!SO00000020deadbeef#")
}

func TestJTAG(t *testing.T) {
	ctx := context.Background()
	chain := []jtag.IDCode{0x4ba00477, 0, 0x06413041}
	s, p := openSim(t, sim.Config{Version: protocol.V3, Chain: chain}, nil)
	defer s.Close()

	require.NoError(t, s.JTAGInit(ctx))
	devs, err := s.JTAGScan(ctx)
	require.NoError(t, err)
	require.Len(t, devs, 3)
	for i, d := range devs {
		assert.Equal(t, i, d.Index)
		assert.Equal(t, chain[i], d.IDCode)
		assert.Equal(t, i, d.DRPrescan)
		assert.Equal(t, 2-i, d.DRPostscan)
	}

	// Shift 40 bits: the first IDCODE and the bypass bit, then the low
	// bits of the last IDCODE.
	require.NoError(t, s.JTAGReset(ctx))
	require.NoError(t, s.JTAGTMSSeq(ctx, tmsResetToShiftDR, tmsResetToShiftDRBits))
	start := len(p.Frames())
	tdo, err := s.JTAGTDITDOSeq(ctx, bytes.Repeat([]byte{0xff}, 5), 40, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x77, 0x04, 0xa0, 0x4b, 0x82}, tdo)
	requireFrames(t, p, start, "!JD0020ffffffff#", "!JD0108000000ff#")

	next, err := s.JTAGNext(ctx, false, true)
	require.NoError(t, err)
	assert.False(t, next)

	require.NoError(t, s.JTAGAddDevice(ctx, jtag.DeviceConfig{Index: 1, IRLen: 4}))
}

func TestMemoryTransfers(t *testing.T) {
	ctx := context.Background()
	s, p := openSim(t, sim.Config{Version: protocol.V3}, nil)
	defer s.Close()

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	start := len(p.Frames())
	require.NoError(t, s.MemWrite(ctx, 0, 0x23000002, 0x20000000, data))
	assert.Equal(t, 2, len(p.Frames())-start)
	assert.Equal(t, data, p.ReadMem(0x20000000, len(data)))

	got, err := s.MemRead(ctx, 0, 0x23000002, 0x20000000, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Unaligned writes use byte access.
	start = len(p.Frames())
	require.NoError(t, s.MemWrite(ctx, 0, 0x23000000, 0x20000001, []byte{1, 2, 3}))
	requireFrames(t, p, start, "!Am00002300000000000000002000000100000003010203#")

	assert.Equal(t, uint8(2), memAlign(0x1000, 8))
	assert.Equal(t, uint8(1), memAlign(0x1002, 6))
	assert.Equal(t, uint8(0), memAlign(0x1000, 3))
}

func TestADIv5MultiDrop(t *testing.T) {
	ctx := context.Background()
	s, _ := openSim(t, sim.Config{Version: protocol.V1, DebugPorts: 2}, nil)
	defer s.Close()
	dp := s.ADIv5(1)
	assert.Equal(t, uint8(1), dp.Device())
	require.NoError(t, dp.DPWrite(ctx, 0x8, 0))
	_, err := s.ADIv5(2).DPRead(ctx, 0)
	assert.Equal(t, sim.FaultNoDevice, errs.FaultCode(err), "got %v", err)
}

func TestFirmwareAtLeast(t *testing.T) {
	assert.True(t, firmwareAtLeast("Black Magic Probe v1.8.2", "1.8"))
	assert.True(t, firmwareAtLeast("Black Magic Probe v1.10.0", "1.9"))
	assert.False(t, firmwareAtLeast("Black Magic Probe v1.8.2", "1.10"))
	assert.False(t, firmwareAtLeast("Black Magic Probe", "0.1"))
}
