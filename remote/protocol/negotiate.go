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
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/common/hexutil"
	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/frame"
)

// Link is the part of frame.Link negotiation uses.
type Link interface {
	Send(id string, payload []byte) error
	Receive(timeout time.Duration) (*frame.Frame, error)
	Discard(quiet time.Duration) (int, error)
}

type State int

const (
	StateUnconnected State = iota
	StateProbing
	StateNegotiated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateProbing:
		return "probing"
	case StateNegotiated:
		return "negotiated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Negotiator selects the newest protocol version the firmware speaks.
// It is single use.
type Negotiator struct {
	Link    Link
	Timeout time.Duration
	// Quiet period used to drain stale input before probing.
	Quiet time.Duration

	state      State
	roundTrips int
	firmware   string
	selected   Dispatcher
}

func NewNegotiator(link Link, timeout, quiet time.Duration) *Negotiator {
	return &Negotiator{Link: link, Timeout: timeout, Quiet: quiet}
}

func (n *Negotiator) State() State {
	return n.state
}

// RoundTrips is the number of request/response exchanges performed.
func (n *Negotiator) RoundTrips() int {
	return n.roundTrips
}

// Firmware is the identity string reported by the probe.
func (n *Negotiator) Firmware() string {
	return n.firmware
}

func (n *Negotiator) Selected() Dispatcher {
	return n.selected
}

func (n *Negotiator) exchange(id string, payload []byte) (*frame.Frame, error) {
	if err := n.Link.Send(id, payload); err != nil {
		return nil, errors.Trace(err)
	}
	n.roundTrips++
	f, err := n.Link.Receive(n.Timeout)
	return f, errors.Trace(err)
}

func (n *Negotiator) fail(err error) (Dispatcher, error) {
	n.state = StateFailed
	return nil, err
}

// Run probes the candidates in order and returns the first that matches.
func (n *Negotiator) Run(candidates []Dispatcher) (Dispatcher, error) {
	if n.state != StateUnconnected {
		return nil, errors.Errorf("negotiation already %s", n.state)
	}
	if len(candidates) == 0 {
		return n.fail(errs.NoCompatibleProtocolf("no protocol versions to try"))
	}
	n.state = StateProbing
	if _, err := n.Link.Discard(n.Quiet); err != nil {
		return n.fail(errors.Annotatef(err, "failed to drain port"))
	}

	id, payload, err := candidates[0].Encode(&Command{Op: OpStart})
	if err != nil {
		return n.fail(errors.Trace(err))
	}
	f, err := n.exchange(id, payload)
	if err != nil {
		return n.fail(errors.Annotatef(err, "no response to start command"))
	}
	if f.ID != RespOK {
		return n.fail(errs.NoCompatibleProtocolf("unexpected response %s to start command", f))
	}
	if n.firmware, err = f.Text(); err != nil {
		return n.fail(errors.Annotatef(err, "bad firmware identity"))
	}
	glog.V(1).Infof("probe firmware: %q", n.firmware)

	replies := map[string]*frame.Frame{}
	for _, d := range candidates {
		id, payload, err := d.Encode(d.Handshake())
		if err != nil {
			return n.fail(errors.Trace(err))
		}
		key := id + hexutil.Encode(payload)
		reply, ok := replies[key]
		if !ok {
			reply, err = n.exchange(id, payload)
			if errs.IsTimeout(err) {
				// Old firmware ignores commands it does not know.
				glog.V(1).Infof("no reply to protocol check, assuming legacy firmware")
				if _, err := n.Link.Discard(n.Quiet); err != nil {
					return n.fail(errors.Annotatef(err, "failed to drain port"))
				}
				reply = nil
			} else if err != nil {
				return n.fail(errors.Annotatef(err, "protocol check"))
			}
			replies[key] = reply
		}
		if d.Matches(reply) {
			glog.Infof("negotiated protocol %s (%s)", d.Version(), d.Capabilities())
			n.state = StateNegotiated
			n.selected = d
			return d, nil
		}
		glog.V(2).Infof("protocol %s: no match for %s", d.Version(), reply)
	}
	return n.fail(errs.NoCompatibleProtocolf("firmware %q matched none of %d protocol versions", n.firmware, len(candidates)))
}

// Negotiate runs a fresh Negotiator against all known versions.
func Negotiate(link Link, timeout, quiet time.Duration) (Dispatcher, string, error) {
	n := NewNegotiator(link, timeout, quiet)
	d, err := n.Run(All())
	return d, n.Firmware(), err
}
