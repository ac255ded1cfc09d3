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
	"encoding/hex"

	"github.com/juju/errors"
)

const digits = "0123456789abcdef"

// Encode returns two lowercase hex characters per input byte.
func Encode(data []byte) string {
	res := make([]byte, 2*len(data))
	for i, b := range data {
		res[2*i] = digits[b>>4]
		res[2*i+1] = digits[b&0xf]
	}
	return string(res)
}

// IsHex reports whether c belongs to the hex alphabet (either case).
func IsHex(c byte) bool {
	return nibble(c) >= 0
}

func nibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// DecodeNum parses up to maxDigits hex characters of s, left to right, into
// an unsigned value. Parsing stops at the first non-hex character.
// Empty or invalid input yields 0; callers validate digit counts themselves.
func DecodeNum(s string, maxDigits int) uint64 {
	var res uint64
	for i := 0; i < len(s) && i < maxDigits; i++ {
		n := nibble(s[i])
		if n < 0 {
			break
		}
		res = res<<4 | uint64(n)
	}
	return res
}

// DecodeBytes is the strict counterpart of Encode.
func DecodeBytes(s string) ([]byte, error) {
	res, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Annotatef(err, "invalid hex data %q", limit(s, 32))
	}
	return res, nil
}

func limit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
