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
package ourutil

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUint(t *testing.T) {
	v, err := ParseUint("0x2000_0000", 32)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20000000), v)
	v, err = ParseUint("100", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v)
	_, err = ParseUint("0x100", 8)
	assert.Error(t, err)
	_, err = ParseUint("foo", 32)
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for s, want := range map[string]bool{"on": true, "OFF": false, "1": true, "false": false} {
		v, err := ParseBool(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, v, s)
	}
	_, err := ParseBool("maybe")
	assert.Error(t, err)
}

func TestHexDump(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	HexDump(buf, 0x20000000, []byte("0123456789abcdef\x00\x01AB"))
	assert.Equal(t,
		"20000000: 30 31 32 33 34 35 36 37 38 39 61 62 63 64 65 66  0123456789abcdef\n"+
			"20000010: 00 01 41 42                                      ..AB\n",
		buf.String())
}

func TestFindNamedSubmatches(t *testing.T) {
	r := regexp.MustCompile(`^(?P<major>\d+)\.(?P<minor>\d+)$`)
	assert.Equal(t, map[string]string{"major": "1", "minor": "10"}, FindNamedSubmatches(r, "1.10"))
	assert.Nil(t, FindNamedSubmatches(r, "v1"))
}
