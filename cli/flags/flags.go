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
package flags

import (
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/bmprobe/remote"
)

var (
	Port = flag.String("port", "auto", "Probe to talk to: a serial port, serial:///dev/ttyACM0 or sim://v3. "+
		"If set to 'auto', ports on the system will be enumerated and the first probe found will be used.")
	BaudRate    = flag.Int("baud-rate", 115200, "Serial port speed")
	Config      = flag.String("config", "", "YAML file with session options; flags given explicitly take precedence")
	Timeout     = flag.Duration("timeout", remote.DefaultTimeout, "Timeout for a single probe request")
	Handshake   = flag.Duration("handshake-timeout", remote.DefaultHandshakeTimeout, "Timeout for each protocol probe during negotiation")
	NACKRetries = flag.Int("nack-retries", remote.DefaultNACKRetryLimit, "Number of NACK responses after which a request fails")
	MaxProtocol = flag.String("max-protocol", "", "Newest remote protocol version to use, v0 to v3")
	Frequency   = flag.Uint32("frequency", 0, "If set, SWD/JTAG clock frequency to configure after connecting, Hz")
	LockDir     = flag.String("lock-dir", "", "Directory for port lock files")

	MinFirmware = flag.String("min-firmware", "1.8.0", "Warn if the probe firmware is older than this")
	Script      = flag.StringP("script", "s", "", "Script file for the exec command, - for stdin")
	AP          = flag.Uint8("ap", 0, "Access port to use")
	Dev         = flag.Uint8("dev", 0, "Debug port (device) index to use")
	Verbose     = flag.Bool("verbose", false, "Verbose output")
)

// Options returns the session options: the --config file if given, then
// every flag that was set explicitly or from the environment.
func Options() (*remote.Options, error) {
	o := &remote.Options{}
	if *Config != "" {
		var err error
		if o, err = remote.ReadOptionsFile(*Config, nil); err != nil {
			return nil, errors.Trace(err)
		}
	}
	changed := func(name string) bool {
		f := flag.Lookup(name)
		return (f != nil && f.Changed) || *Config == ""
	}
	if changed("baud-rate") {
		o.BaudRate = uint(*BaudRate)
	}
	if changed("timeout") {
		o.Timeout = *Timeout
	}
	if changed("handshake-timeout") {
		o.HandshakeTimeout = *Handshake
	}
	if changed("nack-retries") {
		o.NACKRetryLimit = *NACKRetries
	}
	if changed("max-protocol") {
		o.MaxProtocol = *MaxProtocol
	}
	if changed("lock-dir") {
		o.LockDir = *LockDir
	}
	if o.Timeout < 0 || o.HandshakeTimeout < 0 {
		return nil, errors.Errorf("timeouts must not be negative")
	}
	return o, nil
}

