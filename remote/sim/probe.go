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

// Package sim is a simulated probe: firmware speaking one protocol version,
// an ADIv5 target behind it and a JTAG chain. A Probe is a transport.Port
// and is registered under the "sim" scheme, e.g. "sim://v2".
package sim

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/frame"
	"github.com/mongoose-os/bmprobe/remote/jtag"
	"github.com/mongoose-os/bmprobe/remote/protocol"
	"github.com/mongoose-os/bmprobe/remote/transport"
)

const (
	DefaultFirmware = "Black Magic Probe (sim) v1.10.0"
	DefaultVoltage  = "3.3V"
	DefaultDPIDR    = 0x2ba01477
)

type Config struct {
	Version  protocol.Version
	Firmware string
	Voltage  string
	DPIDR    uint32
	// Number of debug ports reachable by multi-drop addressing.
	DebugPorts int
	// IDCODEs of the JTAG chain, nearest to TDO first. Zero is a device
	// with only a BYPASS register.
	Chain []jtag.IDCode
}

func (c *Config) setDefaults() {
	if c.Firmware == "" {
		c.Firmware = DefaultFirmware
	}
	if c.Voltage == "" {
		c.Voltage = DefaultVoltage
	}
	if c.DPIDR == 0 {
		c.DPIDR = DefaultDPIDR
	}
	if c.DebugPorts == 0 {
		c.DebugPorts = 1
	}
}

type pendingFault struct {
	id   string
	code int
	msg  string
}

// Probe implements transport.Port. Requests are answered synchronously
// within Write.
type Probe struct {
	cfg Config

	mu       sync.Mutex
	ready    chan struct{}
	out      bytes.Buffer
	held     [][]byte
	closed   bool
	stalled  bool
	nacks    int
	faults   []pendingFault
	received int
	frames   []string

	body    []byte
	inFrame bool

	target *target
}

func New(cfg Config) *Probe {
	cfg.setDefaults()
	return &Probe{
		cfg:    cfg,
		ready:  make(chan struct{}, 1),
		target: newTarget(&cfg),
	}
}

func (p *Probe) Config() Config {
	return p.cfg
}

func (p *Probe) notify() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *Probe) Read(buf []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, errs.Transportf("sim: port closed")
		}
		if p.out.Len() > 0 {
			n, _ := p.out.Read(buf)
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()
		select {
		case <-p.ready:
		case <-timer.C:
			return 0, errs.Timeoutf("sim: read timeout")
		}
	}
}

func (p *Probe) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errs.Transportf("sim: port closed")
	}
	p.received += len(data)
	for _, c := range data {
		switch {
		case c == frame.RequestStart:
			p.inFrame = true
			p.body = p.body[:0]
		case !p.inFrame:
		case c == frame.End:
			p.inFrame = false
			p.request(p.body)
		case len(p.body)+3 >= frame.MaxSize:
			glog.V(2).Infof("sim: oversize request dropped")
			p.inFrame = false
		default:
			p.body = append(p.body, c)
		}
	}
	return len(data), nil
}

func (p *Probe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.notify()
	return nil
}

func (p *Probe) request(body []byte) {
	f, err := frame.RequestLayout.Parse(body)
	if err != nil {
		glog.V(2).Infof("sim: %s", err)
		return
	}
	p.frames = append(p.frames, string(frame.RequestStart)+string(body)+string(frame.End))
	var id string
	var payload []byte
	if p.nacks > 0 {
		p.nacks--
		id = protocol.RespNACK
	} else if pf := p.takeFault(f.ID); pf != nil {
		id, payload = p.fault(pf.code, pf.msg)
	} else {
		id, payload = p.handle(f)
	}
	resp, err := frame.ResponseLayout.Build(id, payload)
	if err != nil {
		glog.Errorf("sim: %s", err)
		return
	}
	if p.stalled {
		p.held = append(p.held, resp)
		return
	}
	p.out.Write(resp)
	p.notify()
}

func (p *Probe) takeFault(id string) *pendingFault {
	for i, pf := range p.faults {
		if pf.id == "" || pf.id == id {
			p.faults = append(p.faults[:i], p.faults[i+1:]...)
			return &pf
		}
	}
	return nil
}

// NACK makes the next n requests answer with a NACK.
func (p *Probe) NACK(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nacks = n
}

// Fail makes the next request with the given id (any id if empty) fail
// with the given code. Code FaultParity produces a parity error response.
func (p *Probe) Fail(id string, code int, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = append(p.faults, pendingFault{id: id, code: code, msg: msg})
}

// Stall holds back responses until Release.
func (p *Probe) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = true
}

// Release sends the responses held back since Stall.
func (p *Probe) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = false
	for _, r := range p.held {
		p.out.Write(r)
	}
	p.held = nil
	p.notify()
}

// Noise queues raw bytes for the host, as if the probe printed them.
func (p *Probe) Noise(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out.Write(b)
	p.notify()
}

// BytesReceived is the number of bytes the host has written.
func (p *Probe) BytesReceived() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received
}

// Frames returns the request frames received so far.
func (p *Probe) Frames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.frames...)
}

// Pending is the number of response bytes the host has not read.
func (p *Probe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.out.Len()
	for _, r := range p.held {
		n += len(r)
	}
	return n
}

func (p *Probe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Probe) WriteMem(addr uint64, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target.writeMem(addr, data)
}

func (p *Probe) ReadMem(addr uint64, n int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target.readMem(addr, n)
}

// Target returns a snapshot of the probe's target control state.
func (p *Probe) Target() (power, reset bool, frequency uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target.power, p.target.reset, p.target.frequency
}

func open(ctx context.Context, addr string, opts *transport.Options) (transport.Port, error) {
	v := protocol.LatestVersion
	if addr != "" {
		var err error
		if v, err = protocol.ParseVersion(addr); err != nil {
			return nil, errs.Openf("sim: %s", err)
		}
	}
	return New(Config{
		Version: v,
		Chain:   []jtag.IDCode{0x4ba00477, 0x06413041},
	}), nil
}

func init() {
	transport.Register("sim", open)
}
