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
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cesanta/go-serial/serial"
	"github.com/golang/glog"
	"github.com/juju/errors"
	flock "github.com/theckman/go-flock"

	"github.com/mongoose-os/bmprobe/remote/errs"
)

const (
	defaultBaudRate = 115200

	interCharacterTimeout time.Duration = 100 * time.Millisecond

	readChunkSize = 512
)

type serialPort struct {
	name string
	conn serial.Serial
	lock *flock.Flock

	// readLoop delivers chunks here and closes it on a read error.
	// readErr is set before the close.
	readCh  chan []byte
	readErr error
	pending []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func lockFileName(dir, portName string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, portName)
	return filepath.Join(dir, "bmprobe-"+name+".lock")
}

func openSerial(ctx context.Context, portName string, opts *Options) (Port, error) {
	lock := flock.NewFlock(lockFileName(opts.LockDir, portName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errs.Openf("failed to lock %s: %s", lock.Path(), err)
	}
	if !locked {
		return nil, errs.Openf("%s is in use by another session", portName)
	}
	oo := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              defaultBaudRate,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		InterCharacterTimeout: uint(interCharacterTimeout / time.Millisecond),
		MinimumReadSize:       0,
	}
	if opts.BaudRate != 0 {
		oo.BaudRate = opts.BaudRate
	}
	s, err := serial.Open(oo)
	if err != nil {
		lock.Unlock()
		return nil, errs.Openf("%s: %s", portName, err)
	}
	glog.Infof("%s opened @ %d", portName, oo.BaudRate)
	if opts.SetControlLines {
		s.SetDTR(true)
		s.SetRTS(true)
	}
	// Drop whatever the probe may have left from a previous session.
	s.Flush()
	sp := &serialPort{
		name:   portName,
		conn:   s,
		lock:   lock,
		readCh: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	go sp.readLoop()
	return sp, nil
}

func (sp *serialPort) readLoop() {
	defer close(sp.readCh)
	var lastEOFTime time.Time
	for {
		buf := make([]byte, readChunkSize)
		n, err := sp.conn.Read(buf)
		if n > 0 {
			select {
			case sp.readCh <- buf[:n]:
			case <-sp.closed:
				return
			}
		}
		if err == nil {
			continue
		}
		// The port returns io.EOF every interCharacterTimeout when idle.
		// Two EOFs in quick succession mean the device is really gone.
		if errors.Cause(err) == io.EOF {
			now := time.Now()
			if !lastEOFTime.Add(interCharacterTimeout / 2).After(now) {
				lastEOFTime = now
				continue
			}
		}
		select {
		case <-sp.closed:
			sp.readErr = io.EOF
		default:
			glog.Errorf("%s: read error: %s", sp.name, err)
			sp.readErr = err
		}
		return
	}
}

func (sp *serialPort) Read(buf []byte, timeout time.Duration) (int, error) {
	if len(sp.pending) == 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case data, ok := <-sp.readCh:
			if !ok {
				return 0, errs.Transportf("%s: read failed: %s", sp.name, sp.readErr)
			}
			sp.pending = data
		case <-timer.C:
			return 0, errs.Timeoutf("no data from %s in %s", sp.name, timeout)
		}
	}
	n := copy(buf, sp.pending)
	sp.pending = sp.pending[n:]
	return n, nil
}

func (sp *serialPort) Write(data []byte) (int, error) {
	select {
	case <-sp.closed:
		return 0, errs.Transportf("%s is closed", sp.name)
	default:
	}
	n, err := sp.conn.Write(data)
	if err != nil {
		return n, errs.Transportf("%s: write failed: %s", sp.name, err)
	}
	return n, nil
}

func (sp *serialPort) Close() error {
	var err error
	sp.closeOnce.Do(func() {
		glog.Infof("closing serial %s", sp.name)
		close(sp.closed)
		err = sp.conn.Close()
		if uerr := sp.lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	})
	return errors.Trace(err)
}
