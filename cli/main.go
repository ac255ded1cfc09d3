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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/juju/errors"
	flag "github.com/spf13/pflag"

	"github.com/mongoose-os/bmprobe/cli/devutil"
	"github.com/mongoose-os/bmprobe/cli/flags"
	"github.com/mongoose-os/bmprobe/cli/ourutil"
	"github.com/mongoose-os/bmprobe/common/pflagenv"
	"github.com/mongoose-os/bmprobe/remote"
	_ "github.com/mongoose-os/bmprobe/remote/sim"
	"github.com/mongoose-os/bmprobe/version"
)

const (
	envPrefix = "BMP_"
)

var (
	versionFlag = flag.Bool("version", false, "Print version and exit")
	helpFull    = flag.Bool("helpfull", false, "Show full help, including advanced flags")

	out io.Writer = os.Stdout
)

type command struct {
	name     string
	handler  handler
	args     string
	short    string
	required []string
	optional []string
	extended bool
}

type handler func(ctx context.Context, s *remote.Session, args []string) error

// commands is filled in init: exec looks commands up by name.
var commands []command

func init() {
	commands = []command{
		{"info", info, "", `Show probe firmware, protocol and target state`, nil, []string{"min-firmware"}, false},
		{"power", power, "[on|off]", `Show or set target power`, nil, nil, false},
		{"reset", reset, "[on|off]", `Show or set the target reset line`, nil, nil, false},
		{"freq", freq, "[HZ]", `Show or set the SWD/JTAG clock frequency`, nil, nil, false},
		{"jtag-scan", jtagScan, "", `List the devices on the JTAG chain`, nil, nil, false},
		{"swd-init", swdInit, "", `Switch the probe to SWD`, nil, nil, false},
		{"target-init", targetInit, "", `Power up the debug port and show its ID`, nil, []string{"dev"}, false},
		{"dp-read", dpRead, "ADDR", `Read a debug port register`, nil, []string{"dev"}, false},
		{"dp-write", dpWrite, "ADDR VALUE", `Write a debug port register`, nil, []string{"dev"}, false},
		{"ap-read", apRead, "ADDR", `Read an access port register`, nil, []string{"dev", "ap"}, false},
		{"ap-write", apWrite, "ADDR VALUE", `Write an access port register`, nil, []string{"dev", "ap"}, false},
		{"mem-read", memRead, "ADDR LEN", `Dump target memory`, nil, []string{"dev", "ap"}, false},
		{"mem-write", memWrite, "ADDR WORD...", `Write 32-bit words to target memory`, nil, []string{"dev", "ap"}, false},
		{"exec", execScript, "[FILE]", `Run commands from a script, one per line`, nil, []string{"script"}, false},
		{"swd-seq", swdSeq, "BITS [VALUE]", `Clock a raw SWD sequence in or out`, nil, nil, true},
		{"jtag-tms", jtagTMS, "BITS VALUE", `Clock a raw TMS sequence`, nil, nil, true},
		{"clock-out", clockOut, "on|off", `Enable or disable the clock output`, nil, nil, true},
	}
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func run(ctx context.Context) error {
	c := findCommand(flag.Arg(0))
	if c == nil {
		usage()
		if flag.Arg(0) != "" {
			return errors.Errorf("unknown command %q", flag.Arg(0))
		}
		return nil
	}
	if err := checkFlags(c.required); err != nil {
		return errors.Trace(err)
	}
	s, err := devutil.OpenSessionFromFlags(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer s.Close()
	if !s.FirmwareAtLeast(*flags.MinFirmware) {
		color.New(color.FgYellow).Fprintf(os.Stderr,
			"Warning: probe firmware %q is older than %s, please update it\n", s.FirmwareVersion(), *flags.MinFirmware)
	}
	return errors.Trace(c.handler(ctx, s, flag.Args()[1:]))
}

func main() {
	initFlags()
	flag.Parse()
	if err := pflagenv.Parse(envPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if *flags.Verbose {
		flag.Set("logtostderr", "true")
		if !flag.Lookup("v").Changed {
			flag.Set("v", "1")
		}
	}

	if *helpFull {
		unhideFlags()
		usage()
		return
	} else if *versionFlag {
		fmt.Printf(
			"%s\nVersion: %s\nBuild ID: %s\n",
			"The Black Magic Probe remote protocol tool", version.Version, version.BuildId,
		)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		ourutil.Reportf("Interrupted, stopping after the current request")
		cancel()
	}()

	if err := run(ctx); err != nil {
		glog.Infof("Error: %s", errors.ErrorStack(err))
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
