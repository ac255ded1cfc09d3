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
package hexutil

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

func TestDecodeNum(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want uint64
	}{
		{"", 0, 0},
		{"", 8, 0},
		{"", 16, 0},
		{"1", 1, 1},
		{"123456789ABCDEF", 15, 0x123456789ABCDEF},
		{"123456789abcdef", 15, 0x123456789abcdef},
		{"ffffffffffffffff", 16, 0xffffffffffffffff},
		{"1234", 2, 0x12},
		{"12#34", 8, 0x12},
		{"xyz", 3, 0},
		{"0A0b", 4, 0x0a0b},
	}
	for _, c := range cases {
		if got := DecodeNum(c.in, c.max); got != c.want {
			t.Errorf("DecodeNum(%q, %d): got 0x%x, want 0x%x", c.in, c.max, got, c.want)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 0; n <= 8; n++ {
		for i := 0; i < 50; i++ {
			b := make([]byte, n)
			r.Read(b)
			s := Encode(b)
			if len(s) != 2*n {
				t.Fatalf("Encode(%v) = %q: wrong length", b, s)
			}
			var want uint64
			for _, v := range b {
				want = want<<8 | uint64(v)
			}
			if got := DecodeNum(s, 2*n); got != want {
				t.Errorf("DecodeNum(%q): got 0x%x, want 0x%x", s, got, want)
			}
			back, err := DecodeBytes(s)
			if err != nil || string(back) != string(b) {
				t.Errorf("DecodeBytes(%q): got %v %v", s, back, err)
			}
		}
	}
}

func TestEncodeLowercase(t *testing.T) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, 0xdeadBEEF)
	if got, want := Encode(b), "deadbeef"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestDecodeBytesInvalid(t *testing.T) {
	for _, s := range []string{"0", "zz", "12 4"} {
		if _, err := DecodeBytes(s); err == nil {
			t.Errorf("DecodeBytes(%q): expected error", s)
		}
	}
}
