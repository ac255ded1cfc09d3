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
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"

	"github.com/mongoose-os/bmprobe/common/multierror"
)

// ParseFlagSet sets every flag not given on the command line from the
// environment variable EnvName(flag, envPrefix), if that is non-empty.
// Flags set this way are marked as changed. Values that fail to parse are
// reported together and leave their flags at the previous value; the
// remaining flags are still applied.
//
// It should be called after Parse is called for the given FlagSet.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) error {
	// pflag cannot tell a flag set to its default from an unset one, so
	// collect everything and drop the ones Visit reports as set.
	nonset := make(map[string]*pflag.Flag)
	fs.VisitAll(func(f *pflag.Flag) {
		nonset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(nonset, f.Name)
	})

	names := make([]string, 0, len(nonset))
	for name := range nonset {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs error
	for _, name := range names {
		envName := EnvName(name, envPrefix)
		v := os.Getenv(envName)
		if v == "" {
			continue
		}
		f := nonset[name]
		old := f.Value.String()
		if err := fs.Set(name, v); err != nil {
			// A failed Set may have stored a zero value already.
			f.Value.Set(old)
			f.Changed = false
			errs = multierror.Append(errs, errors.Annotatef(err, "%s", envName))
		}
	}
	return errs
}

// Parse is ParseFlagSet on pflag.CommandLine.
func Parse(envPrefix string) error {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

// EnvName returns the variable consulted for flagName: "baud-rate" with
// prefix "BMP_" is BMP_BAUD_RATE.
func EnvName(flagName, envPrefix string) string {
	return envPrefix + strings.Replace(strings.ToUpper(flagName), "-", "_", -1)
}
