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

// Package remote is the host side of the debug probe remote protocol.
//
// A Session owns one port, negotiates the protocol version on open and then
// exposes probe operations as synchronous calls. Requests are never
// pipelined: the wire protocol has no request tags.
package remote

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
	goversion "github.com/mcuadros/go-version"

	"github.com/mongoose-os/bmprobe/common/multierror"
	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/frame"
	"github.com/mongoose-os/bmprobe/remote/protocol"
	"github.com/mongoose-os/bmprobe/remote/transport"
)

// State is the last known target control state. Values are only
// meaningful when the corresponding Known flag is set.
type State struct {
	Power          bool
	PowerKnown     bool
	Reset          bool
	ResetKnown     bool
	Frequency      uint32
	FrequencyKnown bool
}

type Session struct {
	// Held for a whole request/response exchange.
	mu sync.Mutex

	port transport.Port
	link *frame.Link
	d    protocol.Dispatcher
	opts Options

	firmware string
	state    State

	needResync bool
	broken     error
	closed     bool
}

// Open opens the port named by identifier and negotiates the protocol.
// The port is closed if negotiation fails.
func Open(ctx context.Context, identifier string, opts *Options) (*Session, error) {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	port, err := transport.Open(ctx, identifier, &transport.Options{
		BaudRate: o.BaudRate,
		LockDir:  o.LockDir,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	s, err := OpenPort(ctx, port, &o)
	if err != nil {
		port.Close()
		return nil, errors.Annotatef(err, "%s", identifier)
	}
	return s, nil
}

// OpenPort negotiates over an already open port. On success the session
// owns the port; on failure the caller still does.
func OpenPort(ctx context.Context, port transport.Port, opts *Options) (*Session, error) {
	o := opts.withDefaults()
	if err := o.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	link := frame.NewLink(port)
	n := protocol.NewNegotiator(link, o.HandshakeTimeout, o.ResyncQuiet)
	d, err := n.Run(o.candidates())
	if err != nil {
		return nil, errors.Annotatef(err, "protocol negotiation failed after %d round trips", n.RoundTrips())
	}
	glog.Infof("Connected to %q, protocol %s", n.Firmware(), d.Version())
	return &Session{
		port:     port,
		link:     link,
		d:        d,
		opts:     o,
		firmware: n.Firmware(),
	}, nil
}

// Close releases the port. Unread input is drained first unless the
// session is broken.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.broken == nil {
		if n, derr := s.link.Discard(s.opts.ResyncQuiet); derr != nil {
			err = multierror.Append(err, errors.Annotatef(derr, "drain"))
		} else if n > 0 {
			glog.Warningf("%d unread bytes at close", n)
		}
	}
	if cerr := s.port.Close(); cerr != nil {
		err = multierror.Append(err, errors.Annotatef(cerr, "close"))
	}
	glog.V(1).Infof("Session closed")
	return err
}

func (s *Session) Version() protocol.Version {
	return s.d.Version()
}

func (s *Session) Capabilities() protocol.Capability {
	return s.d.Capabilities()
}

func (s *Session) Supports(c protocol.Capability) bool {
	return s.d.Capabilities().Has(c)
}

// FirmwareVersion is the identity string reported by the probe.
func (s *Session) FirmwareVersion() string {
	return s.firmware
}

var firmwareVersionRE = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// FirmwareAtLeast reports whether the firmware identity carries a version
// number not older than min. Identities without a version never match.
func (s *Session) FirmwareAtLeast(min string) bool {
	return firmwareAtLeast(s.firmware, min)
}

func firmwareAtLeast(firmware, min string) bool {
	m := firmwareVersionRE.FindStringSubmatch(firmware)
	if m == nil {
		return false
	}
	return goversion.Compare(goversion.Normalize(m[1]), goversion.Normalize(min), ">=")
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Options() Options {
	return s.opts
}

// Do performs one command. It is exported for layers built on top of the
// session; the typed methods are preferred.
func (s *Session) Do(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doLocked(ctx, cmd)
}

func (s *Session) doLocked(ctx context.Context, cmd *protocol.Command) (*protocol.Response, error) {
	if s.closed {
		return nil, errs.Transportf("session is closed")
	}
	if s.broken != nil {
		return nil, errs.Transportf("session is unusable after: %s", s.broken)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Annotatef(err, "%s", cmd)
	}
	id, payload, err := s.d.Encode(cmd)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if s.timeout(ctx) <= 0 {
		return nil, errs.Timeoutf("%s: deadline exceeded", cmd)
	}
	if s.needResync {
		n, err := s.link.Discard(s.opts.ResyncQuiet)
		if err != nil {
			return nil, s.fail(err)
		}
		if n > 0 {
			glog.Warningf("Resync: dropped %d stale bytes", n)
		}
		s.needResync = false
	}
	glog.V(3).Infof("%s", cmd)
	for nacks := 0; ; {
		timeout := s.timeout(ctx)
		if timeout <= 0 {
			return nil, errs.Timeoutf("%s: deadline exceeded after %d NACKs", cmd, nacks)
		}
		if err := s.link.Send(id, payload); err != nil {
			return nil, s.fail(err)
		}
		f, err := s.link.Receive(timeout)
		if err != nil {
			return nil, s.fail(errors.Annotatef(err, "%s", cmd))
		}
		resp, err := s.d.Decode(cmd, f)
		if err != nil {
			return nil, s.fail(errors.Annotatef(err, "%s", cmd))
		}
		if !resp.NACK {
			return resp, nil
		}
		nacks++
		if nacks >= s.opts.NACKRetryLimit {
			return nil, errs.Fault(errs.FaultNACK, fmt.Sprintf("%s: giving up after %d NACKs", cmd.Op, nacks))
		}
		glog.Warningf("%s: NACK, retrying (%d/%d)", cmd.Op, nacks, s.opts.NACKRetryLimit-1)
	}
}

// timeout is the receive timeout of the next exchange: the configured one,
// cut short by the ctx deadline.
func (s *Session) timeout(ctx context.Context) time.Duration {
	timeout := s.opts.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	return timeout
}

// fail records the consequences of an exchange error and returns it.
func (s *Session) fail(err error) error {
	switch errs.KindOf(err) {
	case errs.KindTimeout, errs.KindMalformedFrame:
		s.needResync = true
	case errs.KindTransport:
		glog.Errorf("Transport failure, session is unusable: %s", err)
		s.broken = err
	}
	return err
}
