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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/jtag"
	"github.com/mongoose-os/bmprobe/remote/protocol"
	"github.com/mongoose-os/bmprobe/remote/transport"
)

func exchange(t *testing.T, p *Probe, req string) string {
	t.Helper()
	_, err := p.Write([]byte(req))
	require.NoError(t, err)
	buf := make([]byte, 1024)
	n, err := p.Read(buf, 100*time.Millisecond)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestGeneralCommands(t *testing.T) {
	p := New(Config{Version: protocol.V1, Firmware: "fw"})
	assert.Equal(t, "&K6677#", exchange(t, p, "!GA#"))
	assert.Equal(t, "&K01#", exchange(t, p, "!HC#"))
	assert.Equal(t, "&K#", exchange(t, p, "!GF000f4240#"))
	assert.Equal(t, "&K000f4240#", exchange(t, p, "!Gf#"))
	assert.Equal(t, "&K#", exchange(t, p, "!GP01#"))
	assert.Equal(t, "&K01#", exchange(t, p, "!Gp#"))
	power, _, freq := p.Target()
	assert.True(t, power)
	assert.Equal(t, uint32(1000000), freq)

	// Unknown and wrong-version commands.
	assert.Equal(t, "&N#", exchange(t, p, "!Ad000000#"))
	// Extra payload.
	assert.Equal(t, "&E04#", exchange(t, p, "!Gp00#"))
	assert.Equal(t, []string{"!GA#", "!HC#", "!GF000f4240#", "!Gf#", "!GP01#", "!Gp#", "!Ad000000#", "!Gp00#"}, p.Frames())
}

func TestLegacyFirmware(t *testing.T) {
	p := New(Config{Version: protocol.V0})
	assert.Equal(t, "&N#", exchange(t, p, "!HC#"))
	assert.Equal(t, "&K#", exchange(t, p, "!GP00000001#"))
	assert.Equal(t, "&K00000001#", exchange(t, p, "!Gp#"))
	assert.Equal(t, "&K2ba01477#", exchange(t, p, "!Hd00000000#"))
	assert.Equal(t, "&N#", exchange(t, p, "!HM#"))
}

func TestDebugPortPowerUp(t *testing.T) {
	p := New(Config{Version: protocol.V3})
	assert.Equal(t, "&K#", exchange(t, p, "!AL00000450000000#"))
	assert.Equal(t, "&Kf0000000#", exchange(t, p, "!Ad000004#"))
	assert.Equal(t, "&E02", exchange(t, p, "!Ad010004#")[:4])
}

func TestMemAP(t *testing.T) {
	p := New(Config{Version: protocol.V2})
	p.WriteMem(0x20000000, []byte{0x78, 0x56, 0x34, 0x12, 0xef, 0xbe, 0xad, 0xde})
	// Word size, single auto-increment.
	assert.Equal(t, "&K#", exchange(t, p, "!HA00000023000012#"))
	assert.Equal(t, "&K#", exchange(t, p, "!HA00000420000000#"))
	assert.Equal(t, "&K12345678#", exchange(t, p, "!Ha00000c#"))
	assert.Equal(t, "&Kdeadbeef#", exchange(t, p, "!Ha00000c#"))
	assert.Equal(t, "&K20000008#", exchange(t, p, "!Ha000004#"))
	assert.Equal(t, "&K785634#", exchange(t, p, "!HM00002300001220000000"+"00000003#"))
	assert.Equal(t, "&K#", exchange(t, p, "!Hm000023000012022000001000000002aabb#"))
	assert.Equal(t, []byte{0xaa, 0xbb}, p.ReadMem(0x20000010, 2))
}

func TestAutoIncrementWraps(t *testing.T) {
	tg := newTarget(&Config{})
	tg.apWrite(0, apRegCSW, 0x23000012)
	tg.apWrite(0, apRegTAR, 0x200003fc)
	tg.apWrite(0, apRegDRW, 1)
	v, _ := tg.apRead(0, apRegTAR)
	assert.Equal(t, uint32(0x20000000), v)
}

func TestJTAGChain(t *testing.T) {
	tp := newTAP([]jtag.IDCode{0x4ba00477, 0})
	tp.reset()
	for _, tms := range []bool{false, true, false, false} {
		tp.clock(tms, true)
	}
	var id uint32
	for i := uint(0); i < 32; i++ {
		if tp.clock(false, true) {
			id |= 1 << i
		}
	}
	assert.Equal(t, uint32(0x4ba00477), id)
	// Bypass device, then the TDI ones.
	assert.False(t, tp.clock(false, true))
	assert.True(t, tp.clock(false, true))
}

func TestKnobs(t *testing.T) {
	p := New(Config{Version: protocol.V2})
	p.NACK(2)
	assert.Equal(t, "&W#", exchange(t, p, "!Gp#"))
	assert.Equal(t, "&W#", exchange(t, p, "!Gp#"))
	assert.Equal(t, "&K00#", exchange(t, p, "!Gp#"))

	p.Fail("Hd", 0x05, "bad")
	assert.Equal(t, "&K00#", exchange(t, p, "!Gp#"))
	assert.Equal(t, "&E05626164#", exchange(t, p, "!Hd000000#"))
	p.Fail("", errs.FaultParity, "")
	assert.Equal(t, "&P#", exchange(t, p, "!Si20#"))

	p.Stall()
	_, err := p.Write([]byte("!Gp#"))
	require.NoError(t, err)
	_, err = p.Read(make([]byte, 16), 5*time.Millisecond)
	assert.True(t, errs.IsTimeout(err), "got %v", err)
	assert.Equal(t, 5, p.Pending())
	p.Release()
	p.Noise([]byte("xx"))
	buf := make([]byte, 16)
	n, err := p.Read(buf, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "&K00#xx", string(buf[:n]))

	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
	_, err = p.Write([]byte("!Gp#"))
	assert.True(t, errs.IsTransport(err))
}

func TestSimScheme(t *testing.T) {
	port, err := transport.Open(context.Background(), "sim://v1", nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.V1, port.(*Probe).Config().Version)

	_, err = transport.Open(context.Background(), "sim://v9", nil)
	assert.True(t, errs.Is(err, errs.KindOpen), "got %v", err)
}
