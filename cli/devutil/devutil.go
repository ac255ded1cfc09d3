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
	"context"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/cli/flags"
	"github.com/mongoose-os/bmprobe/remote"
)

// OpenSessionFromFlags connects to the probe selected by --port with the
// options given by --config and the session flags.
func OpenSessionFromFlags(ctx context.Context) (*remote.Session, error) {
	port, err := GetPort()
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts, err := flags.Options()
	if err != nil {
		return nil, errors.Trace(err)
	}
	prefix := "serial://"
	if strings.Index(port, "://") > 0 {
		prefix = ""
	}
	s, err := remote.Open(ctx, prefix+port, opts)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", port)
	}
	glog.Infof("%s: %s, protocol %s", port, s.FirmwareVersion(), s.Version())
	if *flags.Frequency != 0 {
		if err := s.SetFrequency(ctx, *flags.Frequency); err != nil {
			s.Close()
			return nil, errors.Annotatef(err, "failed to set frequency")
		}
	}
	return s, nil
}
