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
package pflagenv

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagSet(t *testing.T) {
	fs := pflag.NewFlagSet("pflagenv-test", pflag.ContinueOnError)

	port := fs.String("port", "auto", "")
	baud := fs.Int("baud-rate", 115200, "")
	timeout := fs.Duration("timeout", time.Second, "")
	proto := fs.String("max-protocol", "", "")
	require.NoError(t, fs.Parse([]string{"--port=/dev/ttyACM1", "--max-protocol="}))

	os.Setenv("BMPTEST_PORT", "sim://v3")
	os.Setenv("BMPTEST_BAUD_RATE", "921600")
	os.Setenv("BMPTEST_MAX_PROTOCOL", "v1")
	defer func() {
		os.Unsetenv("BMPTEST_PORT")
		os.Unsetenv("BMPTEST_BAUD_RATE")
		os.Unsetenv("BMPTEST_MAX_PROTOCOL")
	}()
	require.NoError(t, ParseFlagSet(fs, "BMPTEST_"))

	assert.Equal(t, "/dev/ttyACM1", *port, "command line wins")
	assert.Equal(t, "", *proto, "explicitly empty stays empty")
	assert.Equal(t, 921600, *baud)
	assert.True(t, fs.Lookup("baud-rate").Changed)
	assert.Equal(t, time.Second, *timeout)
	assert.False(t, fs.Lookup("timeout").Changed)
}

func TestParseFlagSetBadValues(t *testing.T) {
	fs := pflag.NewFlagSet("pflagenv-test", pflag.ContinueOnError)
	baud := fs.Int("baud-rate", 115200, "")
	timeout := fs.Duration("timeout", time.Second, "")
	verbose := fs.Bool("verbose", false, "")
	require.NoError(t, fs.Parse(nil))

	os.Setenv("BMPTEST_BAUD_RATE", "fast")
	os.Setenv("BMPTEST_TIMEOUT", "soon")
	os.Setenv("BMPTEST_VERBOSE", "true")
	defer func() {
		os.Unsetenv("BMPTEST_BAUD_RATE")
		os.Unsetenv("BMPTEST_TIMEOUT")
		os.Unsetenv("BMPTEST_VERBOSE")
	}()
	err := ParseFlagSet(fs, "BMPTEST_")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "BMPTEST_BAUD_RATE")
	assert.Contains(t, err.Error(), "BMPTEST_TIMEOUT")
	assert.Equal(t, 115200, *baud)
	assert.Equal(t, time.Second, *timeout)
	assert.False(t, fs.Lookup("baud-rate").Changed)
	assert.False(t, fs.Lookup("timeout").Changed)
	assert.True(t, *verbose)
	assert.True(t, fs.Lookup("verbose").Changed)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "BMP_BAUD_RATE", EnvName("baud-rate", "BMP_"))
	assert.Equal(t, "BMP_PORT", EnvName("port", "BMP_"))
}
