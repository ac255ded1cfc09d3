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
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/juju/errors"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/mongoose-os/bmprobe/cli/flags"
	"github.com/mongoose-os/bmprobe/remote"
)

func execScript(ctx context.Context, s *remote.Session, args []string) error {
	if err := checkArgs(args, 0, 1); err != nil {
		return err
	}
	fname := *flags.Script
	if len(args) == 1 {
		fname = args[0]
	}
	var r io.Reader
	switch fname {
	case "":
		return errors.Errorf("--script or a file name is required")
	case "-":
		r = os.Stdin
	default:
		f, err := os.Open(fname)
		if err != nil {
			return errors.Trace(err)
		}
		defer f.Close()
		r = f
	}
	return errors.Annotatef(runScript(ctx, s, r), "%s", fname)
}

// runScript runs one command per line against s. Empty lines and lines
// starting with # are skipped. The first failing command stops the script.
func runScript(ctx context.Context, s *remote.Session, r io.Reader) error {
	echo := color.New(color.FgCyan)
	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words, err := shellwords.Parse(line)
		if err != nil {
			return errors.Annotatef(err, "line %d", ln)
		}
		if len(words) == 0 {
			continue
		}
		c := findCommand(words[0])
		if c == nil || c.name == "exec" {
			return errors.Errorf("line %d: unknown command %q", ln, words[0])
		}
		echo.Fprintf(out, "> %s\n", line)
		if err := c.handler(ctx, s, words[1:]); err != nil {
			return errors.Annotatef(err, "line %d: %s", ln, c.name)
		}
	}
	return errors.Trace(sc.Err())
}
