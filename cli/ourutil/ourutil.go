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
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

func Reportf(f string, args ...interface{}) {
	Freportf(os.Stderr, f, args...)
}

func Freportf(logFile io.Writer, f string, args ...interface{}) {
	fmt.Fprintf(logFile, f+"\n", args...)
	glog.Infof(f, args...)
}

// Returns a map from regexp capture group name to the corresponding matched
// string.
// A return value of nil indicates no match.
func FindNamedSubmatches(r *regexp.Regexp, s string) map[string]string {
	matches := r.FindStringSubmatch(s)
	if matches == nil {
		return nil
	}
	result := make(map[string]string)
	for i, name := range r.SubexpNames()[1:] {
		result[name] = matches[i+1]
	}
	return result
}

// ParseUint parses a decimal, 0x-hex or 0-octal number that fits bits.
func ParseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(strings.Replace(s, "_", "", -1), 0, bits)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", s)
	}
	return v, nil
}

// ParseBool accepts on/off in addition to what strconv.ParseBool does.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.Errorf("invalid boolean %q", s)
	}
	return v, nil
}

// HexDump writes data 16 bytes per line, each line prefixed with its
// address.
func HexDump(w io.Writer, addr uint64, data []byte) {
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]
		fmt.Fprintf(w, "%08x:", addr+uint64(off))
		for i := 0; i < 16; i++ {
			if i < len(line) {
				fmt.Fprintf(w, " %02x", line[i])
			} else {
				fmt.Fprint(w, "   ")
			}
		}
		fmt.Fprint(w, "  ")
		for _, b := range line {
			if b < 0x20 || b > 0x7e {
				b = '.'
			}
			fmt.Fprintf(w, "%c", b)
		}
		fmt.Fprintln(w)
	}
}
