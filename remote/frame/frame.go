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

// Package frame implements the delimited ASCII framing of the remote
// protocol: <START><id><hex payload><END>.
package frame

import (
	"fmt"

	"github.com/mongoose-os/bmprobe/common/hexutil"
	"github.com/mongoose-os/bmprobe/remote/errs"
)

const (
	RequestStart  = '!'
	ResponseStart = '&'
	End           = '#'

	// MaxSize is the largest frame, delimiters included, either side accepts.
	MaxSize = 1024
)

// Layout describes one direction of the link.
type Layout struct {
	Start byte
	IDLen int
}

var (
	RequestLayout  = Layout{Start: RequestStart, IDLen: 2}
	ResponseLayout = Layout{Start: ResponseStart, IDLen: 1}
)

// Frame is one parsed frame. Payload holds the hex text as received.
type Frame struct {
	ID      string
	Payload string
}

func isIDChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Build returns the wire form of a frame. The payload is hex-encoded.
func (l Layout) Build(id string, payload []byte) ([]byte, error) {
	if len(id) != l.IDLen {
		return nil, errs.Malformedf("command id %q must be %d chars", id, l.IDLen)
	}
	for i := 0; i < len(id); i++ {
		if !isIDChar(id[i]) {
			return nil, errs.Malformedf("invalid command id %q", id)
		}
	}
	size := 1 + len(id) + 2*len(payload) + 1
	if size > MaxSize {
		return nil, errs.Malformedf("frame %s too long (%d > %d)", id, size, MaxSize)
	}
	res := make([]byte, 0, size)
	res = append(res, l.Start)
	res = append(res, id...)
	res = append(res, hexutil.Encode(payload)...)
	res = append(res, End)
	return res, nil
}

// Parse parses the bytes between (not including) the delimiters.
func (l Layout) Parse(body []byte) (*Frame, error) {
	if len(body) < l.IDLen {
		return nil, errs.Malformedf("frame %q is too short", body)
	}
	for i := 0; i < l.IDLen; i++ {
		if !isIDChar(body[i]) {
			return nil, errs.Malformedf("invalid id byte 0x%02x in frame %q", body[i], body)
		}
	}
	for _, c := range body[l.IDLen:] {
		if !hexutil.IsHex(c) {
			return nil, errs.Malformedf("invalid payload byte 0x%02x in frame %q", c, body)
		}
	}
	return &Frame{ID: string(body[:l.IDLen]), Payload: string(body[l.IDLen:])}, nil
}

// Num decodes a numeric payload of exactly digits hex characters.
func (f *Frame) Num(digits int) (uint64, error) {
	if len(f.Payload) != digits {
		return 0, errs.Malformedf("expected %d hex digits in %s, got %q", digits, f, f.Payload)
	}
	return hexutil.DecodeNum(f.Payload, digits), nil
}

func (f *Frame) Bytes() ([]byte, error) {
	if len(f.Payload)%2 != 0 {
		return nil, errs.Malformedf("odd payload length in %s", f)
	}
	b, err := hexutil.DecodeBytes(f.Payload)
	if err != nil {
		return nil, errs.Malformedf("%s", err)
	}
	return b, nil
}

func (f *Frame) Text() (string, error) {
	b, err := f.Bytes()
	return string(b), err
}

func (f *Frame) String() string {
	if len(f.Payload) > 32 {
		return fmt.Sprintf("%s[%s...]", f.ID, f.Payload[:32])
	}
	return fmt.Sprintf("%s[%s]", f.ID, f.Payload)
}
