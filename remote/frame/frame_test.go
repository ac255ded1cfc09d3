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
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/bmprobe/remote/errs"
)

// scriptPort returns queued chunks one per Read; an empty queue times out.
type scriptPort struct {
	chunks   [][]byte
	written  bytes.Buffer
	writeErr error
	shortBy  int
}

func (p *scriptPort) feed(s string) {
	p.chunks = append(p.chunks, []byte(s))
}

func (p *scriptPort) Read(buf []byte, timeout time.Duration) (int, error) {
	if len(p.chunks) == 0 {
		return 0, errs.Timeoutf("script exhausted")
	}
	n := copy(buf, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *scriptPort) Write(data []byte) (int, error) {
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	n := len(data) - p.shortBy
	p.written.Write(data[:n])
	return n, nil
}

func TestSend(t *testing.T) {
	p := &scriptPort{}
	l := NewLink(p)
	require.NoError(t, l.Send("GF", []byte{0x00, 0x0f, 0x42, 0x40}))
	assert.Equal(t, "!GF000f4240#", p.written.String())
}

func TestSendOversize(t *testing.T) {
	p := &scriptPort{}
	l := NewLink(p)
	err := l.Send("Hm", make([]byte, MaxSize/2))
	assert.True(t, errs.Is(err, errs.KindMalformedFrame), "got %v", err)
	assert.Equal(t, 0, p.written.Len(), "nothing may be written")

	// The largest frame that fits is accepted.
	require.NoError(t, l.Send("Hm", make([]byte, (MaxSize-4)/2)))
	assert.Equal(t, MaxSize, p.written.Len())
}

func TestSendBadID(t *testing.T) {
	l := NewLink(&scriptPort{})
	for _, id := range []string{"G", "GAA", "G1", "#A"} {
		if err := l.Send(id, nil); !errs.Is(err, errs.KindMalformedFrame) {
			t.Errorf("%q: expected malformed frame error, got %v", id, err)
		}
	}
}

func TestSendTransportErrors(t *testing.T) {
	p := &scriptPort{shortBy: 1}
	err := NewLink(p).Send("GA", nil)
	assert.True(t, errs.IsTransport(err), "short write: got %v", err)

	p = &scriptPort{writeErr: errors.New("device gone")}
	err = NewLink(p).Send("GA", nil)
	assert.True(t, errs.IsTransport(err), "write error: got %v", err)
}

func TestReceive(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		id     string
		pl     string
	}{
		{"simple", []string{"&K0a#"}, "K", "0a"},
		{"split", []string{"&K", "12", "34#"}, "K", "1234"},
		{"leading noise", []string{"\r\nboot junk 123", "&E01#"}, "E", "01"},
		{"restart", []string{"&K12&N#"}, "N", ""},
		{"uppercase hex", []string{"&KDEADBEEF#"}, "K", "DEADBEEF"},
	}
	for _, c := range cases {
		p := &scriptPort{}
		for _, s := range c.chunks {
			p.feed(s)
		}
		f, err := NewLink(p).Receive(10 * time.Millisecond)
		if err != nil {
			t.Errorf("%s: %s", c.name, err)
			continue
		}
		if f.ID != c.id || f.Payload != c.pl {
			t.Errorf("%s: got %s", c.name, f)
		}
	}
}

func TestReceiveMalformed(t *testing.T) {
	for _, s := range []string{"&#", "&Kxy#", "&1#", "&K 1#"} {
		p := &scriptPort{}
		p.feed(s)
		_, err := NewLink(p).Receive(10 * time.Millisecond)
		if !errs.Is(err, errs.KindMalformedFrame) {
			t.Errorf("%q: expected malformed frame, got %v", s, err)
		}
	}
}

func TestReceiveOversize(t *testing.T) {
	p := &scriptPort{}
	p.feed("&K" + strings.Repeat("0", MaxSize))
	p.feed("&K01#")
	l := NewLink(p)
	_, err := l.Receive(10 * time.Millisecond)
	require.True(t, errs.Is(err, errs.KindMalformedFrame), "got %v", err)

	// The link resynchronises on the next start marker.
	f, err := l.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "01", f.Payload)
}

func TestReceiveTimeoutDropsPartialFrame(t *testing.T) {
	p := &scriptPort{}
	p.feed("&K12")
	l := NewLink(p)
	_, err := l.Receive(5 * time.Millisecond)
	require.True(t, errs.IsTimeout(err), "got %v", err)

	// Tail of the late frame followed by a good one.
	p.feed("34#&K99#")
	f, err := l.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "99", f.Payload)
}

func TestReceiveKeepsTrailingBytes(t *testing.T) {
	p := &scriptPort{}
	p.feed("&K01#&K02#")
	l := NewLink(p)
	f, err := l.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "01", f.Payload)
	assert.Equal(t, 5, l.Buffered())
	f, err = l.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "02", f.Payload)
}

func TestDiscard(t *testing.T) {
	p := &scriptPort{}
	p.feed("&K01#")
	p.feed("&K02")
	l := NewLink(p)
	n, err := l.Discard(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	p.feed("&K03#")
	f, err := l.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "03", f.Payload)
}

func TestFrameDecoders(t *testing.T) {
	f := &Frame{ID: "K", Payload: "0000002a"}
	v, err := f.Num(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
	_, err = f.Num(2)
	assert.True(t, errs.Is(err, errs.KindMalformedFrame))

	f = &Frame{ID: "K", Payload: "332e3356"}
	s, err := f.Text()
	require.NoError(t, err)
	assert.Equal(t, "3.3V", s)

	f = &Frame{ID: "K", Payload: "123"}
	_, err = f.Bytes()
	assert.True(t, errs.Is(err, errs.KindMalformedFrame))
}
