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
package frame

import (
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/remote/errs"
)

// Port is the part of transport.Port the link needs.
type Port interface {
	Read(buf []byte, timeout time.Duration) (int, error)
	Write(data []byte) (int, error)
}

const maxDiscard = 64 * 1024

// Link sends frames in one layout and receives frames in another.
// It is not safe for concurrent use.
type Link struct {
	port Port
	tx   Layout
	rx   Layout

	rbuf    [256]byte
	buf     []byte
	body    []byte
	inFrame bool
}

// NewLink returns the host side of a link: requests out, responses in.
func NewLink(port Port) *Link {
	return NewLinkWithLayouts(port, RequestLayout, ResponseLayout)
}

func NewLinkWithLayouts(port Port, tx, rx Layout) *Link {
	return &Link{port: port, tx: tx, rx: rx}
}

func asTransportError(err error) error {
	switch errs.KindOf(err) {
	case errs.KindTransport, errs.KindTimeout:
		return errors.Trace(err)
	}
	return errs.Transportf("%s", err)
}

// Send writes one frame with a single Write call. Nothing is written if the
// frame cannot be built.
func (l *Link) Send(id string, payload []byte) error {
	data, err := l.tx.Build(id, payload)
	if err != nil {
		return errors.Trace(err)
	}
	glog.V(4).Infof("=> %s", data)
	n, err := l.port.Write(data)
	if err != nil {
		return asTransportError(err)
	}
	if n != len(data) {
		return errs.Transportf("short write (%d of %d)", n, len(data))
	}
	return nil
}

func (l *Link) resetFrame() {
	l.inFrame = false
	l.body = l.body[:0]
}

// Receive returns the next complete frame. Bytes before a start marker are
// discarded. On timeout the partially received frame, if any, is dropped.
func (l *Link) Receive(timeout time.Duration) (*Frame, error) {
	deadline := time.Now().Add(timeout)
	junk := 0
	for {
		for len(l.buf) > 0 {
			c := l.buf[0]
			l.buf = l.buf[1:]
			switch {
			case c == l.rx.Start:
				if l.inFrame {
					glog.V(2).Infof("frame restarted, dropped %q", l.body)
				}
				l.inFrame = true
				l.body = l.body[:0]
			case !l.inFrame:
				junk++
			case c == End:
				body := l.body
				l.resetFrame()
				if junk > 0 {
					glog.V(2).Infof("skipped %d junk bytes", junk)
				}
				glog.V(4).Infof("<= %c%s%c", l.rx.Start, body, End)
				f, err := l.rx.Parse(body)
				return f, errors.Trace(err)
			default:
				if len(l.body)+3 > MaxSize {
					l.resetFrame()
					return nil, errs.Malformedf("no end of frame within %d bytes", MaxSize)
				}
				l.body = append(l.body, c)
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.resetFrame()
			return nil, errs.Timeoutf("no response in %s", timeout)
		}
		n, err := l.port.Read(l.rbuf[:], remaining)
		if err != nil {
			l.resetFrame()
			if errs.IsTimeout(err) {
				return nil, errs.Timeoutf("no response in %s", timeout)
			}
			return nil, asTransportError(err)
		}
		l.buf = append(l.buf, l.rbuf[:n]...)
	}
}

// Discard drops buffered input and then reads and drops bytes until the port
// has been quiet for the given period. Returns the number of bytes dropped.
func (l *Link) Discard(quiet time.Duration) (int, error) {
	n := len(l.buf) + len(l.body)
	l.buf = l.buf[:0]
	l.resetFrame()
	for {
		rn, err := l.port.Read(l.rbuf[:], quiet)
		if err != nil {
			if errs.IsTimeout(err) {
				if n > 0 {
					glog.V(1).Infof("discarded %d stale bytes", n)
				}
				return n, nil
			}
			return n, asTransportError(err)
		}
		n += rn
		if n > maxDiscard {
			return n, errs.Transportf("port did not go quiet after %d bytes", n)
		}
	}
}

// Buffered returns the number of received bytes not yet consumed.
func (l *Link) Buffered() int {
	return len(l.buf)
}
