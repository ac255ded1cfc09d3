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
package devutil

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/cli/flags"
	"github.com/mongoose-os/bmprobe/cli/ourutil"
)

var defaultPort string

// GetPort returns --port, or the first probe found if it is "auto".
func GetPort() (string, error) {
	if *flags.Port != "auto" {
		return *flags.Port, nil
	}
	if defaultPort == "" {
		defaultPort = getDefaultPort()
		if defaultPort == "" {
			return "", errors.Errorf("--port not specified and none were found")
		}
		ourutil.Reportf("Using port %s", defaultPort)
	}
	return defaultPort, nil
}

// probeMarkers identify Black Magic Probe GDB server ports in device paths.
var probeMarkers = []string{"Black_Magic_Probe", "Black_Magic_Debug"}

func isProbePort(p string) bool {
	for _, m := range probeMarkers {
		if strings.Contains(p, m) {
			// The second interface is the target UART.
			return !strings.HasSuffix(p, "-if02")
		}
	}
	return false
}

// preferProbes moves probe ports to the front, keeping the order otherwise.
func preferProbes(ports []string) []string {
	res := append([]string(nil), ports...)
	sort.SliceStable(res, func(i, j int) bool {
		return isProbePort(res[i]) && !isProbePort(res[j])
	})
	return res
}

// modemPorts orders macOS /dev/cu.* nodes. A debugger enumerates as a pair,
// cu.usbmodem<serial>1 for the GDB server and cu.usbmodem<serial>3 for the
// target UART: GDB nodes go first and their UART siblings are dropped.
func modemPorts(list []string) []string {
	present := make(map[string]bool, len(list))
	for _, p := range list {
		present[p] = true
	}
	var gdb, rest []string
	for _, p := range list {
		if p == "" ||
			strings.Contains(p, "Bluetooth-") ||
			strings.Contains(p, "-SPPDev") ||
			strings.Contains(p, "-WirelessiAP") {
			continue
		}
		stem := p[:len(p)-1]
		modem := strings.HasPrefix(filepath.Base(p), "cu.usbmodem")
		switch {
		case modem && strings.HasSuffix(p, "1") && present[stem+"3"]:
			gdb = append(gdb, p)
		case modem && strings.HasSuffix(p, "3") && present[stem+"1"]:
		default:
			rest = append(rest, p)
		}
	}
	sort.Strings(gdb)
	sort.Strings(rest)
	return append(gdb, rest...)
}

func getDefaultPort() string {
	ports := preferProbes(EnumerateSerialPorts())
	if len(ports) == 0 {
		return ""
	}
	return ports[0]
}
