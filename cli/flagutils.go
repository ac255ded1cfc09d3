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
package main

import (
	goflag "flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/bmprobe/common/multierror"
	"github.com/mongoose-os/bmprobe/common/pflagenv"
	"github.com/mongoose-os/bmprobe/version"
)

var (
	hiddenFlags = []string{
		"alsologtostderr",
		"log_backtrace_at",
		"log_dir",
		"logbufsecs",
		"logtostderr",
		"stderrthreshold",
		"v",
		"vmodule",
		"lock-dir",
		"handshake-timeout",
		"nack-retries",
	}
)

func initFlags() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	hideFlags()
	flag.Usage = usage
}

func hideFlags() {
	for _, f := range hiddenFlags {
		flag.CommandLine.MarkHidden(f)
	}
}

func unhideFlags() {
	for _, f := range hiddenFlags {
		f := flag.Lookup(f)
		if f != nil {
			f.Hidden = false
		}
	}
}

func checkFlags(fs []string) error {
	var errs error
	for _, req := range fs {
		f := flag.Lookup(req)
		if f == nil {
			errs = multierror.Append(errs, errors.Errorf("--%s is required", req))
		} else if !f.Changed {
			errs = multierror.Append(errs, errors.Errorf("--%s is required\t\t%s", f.Name, f.Usage))
		}
	}
	return errors.Trace(errs)
}

func printFlag(w io.Writer, opt string, name string) {
	f := flag.Lookup(name)
	arg := "<" + f.Value.Type() + ">"
	if f.Value.Type() == "bool" {
		arg = ""
	}
	fmt.Fprintf(w, "  --%s %s\t%s. %s, default value: %q, env: %s\n",
		name, arg, f.Usage, opt, f.DefValue, pflagenv.EnvName(name, envPrefix))
}

func commandUsage(w io.Writer, c *command) {
	fmt.Fprintf(w, "%s %s %s\n", os.Args[0], c.name, c.args)
	fmt.Fprintf(w, "\n%s.\n", c.short)
	if len(c.required)+len(c.optional) > 0 {
		fmt.Fprintf(w, "\nFlags:\n")
	}
	for _, name := range c.required {
		printFlag(w, "Required", name)
	}
	for _, name := range c.optional {
		printFlag(w, "Optional", name)
	}
}

func usage() {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 1, ' ', 0)
	defer w.Flush()

	if len(os.Args) == 3 && os.Args[1] == "help" {
		if c := findCommand(os.Args[2]); c != nil {
			commandUsage(w, c)
			return
		}
	}

	fmt.Fprintf(w, "The Black Magic Probe remote protocol tool %s.\n", version.GetVersion())
	if version.LooksLikeDistrBuildId(version.BuildId) {
		color.New(color.FgGreen).Fprintf(w, "Packaged for %s.\n", version.Distr(version.BuildId))
	}

	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  %s <command> [args]\n", os.Args[0])
	fmt.Fprintf(w, "  %s help <command>\n", os.Args[0])
	fmt.Fprintf(w, "\nCommands:\n")

	for _, c := range commands {
		if c.extended && !*helpFull {
			continue
		}
		fmt.Fprintf(w, "  %s %s\t\t%s\n", c.name, c.args, c.short)
	}

	fmt.Fprintf(w, "\nGlobal Flags:\n")
	if *helpFull {
		fmt.Fprintf(w, "%s", flag.CommandLine.FlagUsages())
	} else {
		printFlag(w, "Optional", "port")
		printFlag(w, "Optional", "config")
		printFlag(w, "Optional", "timeout")
		printFlag(w, "Optional", "frequency")
		printFlag(w, "Optional", "verbose")
	}
}
