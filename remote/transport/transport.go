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
package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/bmprobe/remote/errs"
)

// Port is a byte stream to the probe. Delivery is assumed to be byte-exact
// and ordered, with no framing of its own.
type Port interface {
	// Read blocks until at least one byte is available or timeout expires.
	// Expiry is reported as an errs.KindTimeout error.
	Read(buf []byte, timeout time.Duration) (int, error)
	Write(data []byte) (int, error)
	Close() error
}

type Options struct {
	BaudRate uint
	// LockDir is where port lock files are created. Empty means os.TempDir().
	LockDir string
	// Set DTR and RTS on open.
	SetControlLines bool
}

type OpenFunc func(ctx context.Context, addr string, opts *Options) (Port, error)

const DefaultScheme = "serial"

var (
	openersLock sync.Mutex
	openers     = map[string]OpenFunc{
		DefaultScheme: openSerial,
	}
)

// Register makes a port implementation available under scheme://.
func Register(scheme string, f OpenFunc) {
	openersLock.Lock()
	defer openersLock.Unlock()
	openers[scheme] = f
}

// SplitIdentifier splits "scheme://addr". Identifiers without a scheme are
// serial port names.
func SplitIdentifier(identifier string) (string, string) {
	if i := strings.Index(identifier, "://"); i > 0 {
		return identifier[:i], identifier[i+3:]
	}
	return DefaultScheme, identifier
}

// Open opens the port named by identifier. All failures are reported as
// errs.KindOpen.
func Open(ctx context.Context, identifier string, opts *Options) (Port, error) {
	if opts == nil {
		opts = &Options{}
	}
	scheme, addr := SplitIdentifier(identifier)
	openersLock.Lock()
	f := openers[scheme]
	openersLock.Unlock()
	if f == nil {
		return nil, errs.Openf("unknown port scheme %q", scheme)
	}
	if addr == "" {
		return nil, errs.Openf("empty port address in %q", identifier)
	}
	glog.Infof("Opening %s...", identifier)
	p, err := f(ctx, addr, opts)
	if err != nil {
		if errs.KindOf(err) != errs.KindOpen {
			err = errors.Annotatef(errs.Openf("%s", err), "%s", identifier)
		}
		return nil, err
	}
	return p, nil
}
