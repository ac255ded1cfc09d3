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
	"time"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/mongoose-os/bmprobe/remote/errs"
	"github.com/mongoose-os/bmprobe/remote/protocol"
)

const (
	DefaultTimeout          = 2 * time.Second
	DefaultHandshakeTimeout = 500 * time.Millisecond
	DefaultResyncQuiet      = 20 * time.Millisecond
	DefaultNACKRetryLimit   = 3
	DefaultMinFrequency     = 1000
	DefaultMaxFrequency     = 100000000
)

// Options control a session. Zero values select the defaults.
type Options struct {
	// Response timeout of a single request.
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Response timeout during version negotiation.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout,omitempty"`
	// How long the port must stay quiet to be considered drained.
	ResyncQuiet time.Duration `yaml:"resync_quiet,omitempty"`
	// A request succeeds after N NACKs only if N is less than this.
	NACKRetryLimit int    `yaml:"nack_retry_limit,omitempty"`
	MinFrequency   uint32 `yaml:"min_frequency,omitempty"`
	MaxFrequency   uint32 `yaml:"max_frequency,omitempty"`
	// Newest protocol version to negotiate, e.g. "v2". Empty means any.
	MaxProtocol string `yaml:"max_protocol,omitempty"`

	BaudRate uint   `yaml:"baud_rate,omitempty"`
	LockDir  string `yaml:"lock_dir,omitempty"`
}

func (o *Options) withDefaults() Options {
	var res Options
	if o != nil {
		res = *o
	}
	if res.Timeout <= 0 {
		res.Timeout = DefaultTimeout
	}
	if res.HandshakeTimeout <= 0 {
		res.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if res.ResyncQuiet <= 0 {
		res.ResyncQuiet = DefaultResyncQuiet
	}
	if res.NACKRetryLimit <= 0 {
		res.NACKRetryLimit = DefaultNACKRetryLimit
	}
	if res.MinFrequency == 0 {
		res.MinFrequency = DefaultMinFrequency
	}
	if res.MaxFrequency == 0 {
		res.MaxFrequency = DefaultMaxFrequency
	}
	return res
}

func (o *Options) validate() error {
	if o.MinFrequency > o.MaxFrequency {
		return errs.InvalidArgumentf("min frequency %d is above max frequency %d", o.MinFrequency, o.MaxFrequency)
	}
	if o.MaxProtocol != "" {
		if _, err := protocol.ParseVersion(o.MaxProtocol); err != nil {
			return errs.InvalidArgumentf("%s", err)
		}
	}
	return nil
}

// candidates returns the dispatchers negotiation may select.
func (o *Options) candidates() []protocol.Dispatcher {
	all := protocol.All()
	if o.MaxProtocol == "" {
		return all
	}
	max, _ := protocol.ParseVersion(o.MaxProtocol)
	var res []protocol.Dispatcher
	for _, d := range all {
		if d.Version() <= max {
			res = append(res, d)
		}
	}
	return res
}

// ReadOptions parses YAML options. Fields absent from data keep the
// values in base.
func ReadOptions(data []byte, base *Options) (*Options, error) {
	res := &Options{}
	if base != nil {
		*res = *base
	}
	if err := yaml.UnmarshalStrict(data, res); err != nil {
		return nil, errors.Annotatef(err, "invalid options")
	}
	if err := res.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return res, nil
}

func ReadOptionsFile(fname string, base *Options) (*Options, error) {
	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res, err := ReadOptions(data, base)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	return res, nil
}
