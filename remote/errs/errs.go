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

// Package errs holds the error kinds returned by the remote protocol engine.
// Errors are wrapped with github.com/juju/errors on the way up; the kind is
// recovered with errors.Cause, so callers never need to parse strings.
package errs

import (
	"fmt"

	"github.com/juju/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindOpen
	KindNoCompatibleProtocol
	KindTimeout
	KindMalformedFrame
	KindTransport
	KindUnsupportedOperation
	KindRemoteFault
	KindInvalidArgument
)

// Fault codes synthesised by the engine. Codes reported by the probe in an
// error response are 0x00-0xff.
const (
	FaultParity       = 0x100
	FaultNotSupported = 0x101
	FaultNACK         = 0x102
)

type Error struct {
	Kind Kind
	// Code is only meaningful for KindRemoteFault.
	Code int
	Msg  string
}

func (e *Error) Error() string {
	if e.Kind == KindRemoteFault {
		if e.Msg == "" {
			return fmt.Sprintf("remote fault 0x%02x", e.Code)
		}
		return fmt.Sprintf("remote fault 0x%02x: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Openf(format string, args ...interface{}) error {
	return New(KindOpen, format, args...)
}

func NoCompatibleProtocolf(format string, args ...interface{}) error {
	return New(KindNoCompatibleProtocol, format, args...)
}

func Timeoutf(format string, args ...interface{}) error {
	return New(KindTimeout, format, args...)
}

func Malformedf(format string, args ...interface{}) error {
	return New(KindMalformedFrame, format, args...)
}

func Transportf(format string, args ...interface{}) error {
	return New(KindTransport, format, args...)
}

func Unsupportedf(format string, args ...interface{}) error {
	return New(KindUnsupportedOperation, format, args...)
}

func InvalidArgumentf(format string, args ...interface{}) error {
	return New(KindInvalidArgument, format, args...)
}

// Fault returns a RemoteFault with the given code and diagnostic text.
func Fault(code int, diag string) error {
	return &Error{Kind: KindRemoteFault, Code: code, Msg: diag}
}

// KindOf returns the kind of the innermost *Error in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsTimeout(err error) bool {
	return Is(err, KindTimeout)
}

func IsTransport(err error) bool {
	return Is(err, KindTransport)
}

func IsUnsupported(err error) bool {
	return Is(err, KindUnsupportedOperation)
}

func IsRemoteFault(err error) bool {
	return Is(err, KindRemoteFault)
}

// FaultCode returns the fault code of a RemoteFault, or -1.
func FaultCode(err error) int {
	if e, ok := errors.Cause(err).(*Error); ok && e.Kind == KindRemoteFault {
		return e.Code
	}
	return -1
}

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "open error"
	case KindNoCompatibleProtocol:
		return "no compatible protocol"
	case KindTimeout:
		return "timeout"
	case KindMalformedFrame:
		return "malformed frame"
	case KindTransport:
		return "transport error"
	case KindUnsupportedOperation:
		return "unsupported operation"
	case KindRemoteFault:
		return "remote fault"
	case KindInvalidArgument:
		return "invalid argument"
	}
	return fmt.Sprintf("unknown error kind %d", int(k))
}
