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
package remote

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/bmprobe/remote/errs"
)

func TestOptionsDefaults(t *testing.T) {
	var o *Options
	d := o.withDefaults()
	assert.Equal(t, DefaultTimeout, d.Timeout)
	assert.Equal(t, DefaultHandshakeTimeout, d.HandshakeTimeout)
	assert.Equal(t, DefaultResyncQuiet, d.ResyncQuiet)
	assert.Equal(t, DefaultNACKRetryLimit, d.NACKRetryLimit)
	assert.Equal(t, uint32(DefaultMinFrequency), d.MinFrequency)
	assert.Equal(t, uint32(DefaultMaxFrequency), d.MaxFrequency)
	assert.Len(t, d.candidates(), 4)
}

func TestReadOptionsFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "bmprobe-options")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	fname := filepath.Join(dir, "probe.yml")
	require.NoError(t, ioutil.WriteFile(fname, []byte(`
timeout: 750ms
nack_retry_limit: 5
max_frequency: 4000000
max_protocol: v2
`), 0644))

	o, err := ReadOptionsFile(fname, &Options{BaudRate: 921600, NACKRetryLimit: 1})
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, o.Timeout)
	assert.Equal(t, 5, o.NACKRetryLimit)
	assert.Equal(t, uint32(4000000), o.MaxFrequency)
	assert.Equal(t, uint(921600), o.BaudRate)
	assert.Len(t, o.candidates(), 3)

	_, err = ReadOptions([]byte("timeuot: 1s\n"), nil)
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ReadOptions([]byte("min_frequency: 5000\nmax_frequency: 1000\n"), nil)
	assert.True(t, errs.Is(err, errs.KindInvalidArgument), "got %v", err)

	_, err = ReadOptionsFile(filepath.Join(dir, "missing.yml"), nil)
	assert.Error(t, err)
}
