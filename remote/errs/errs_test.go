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
package errs

import (
	"testing"

	"github.com/juju/errors"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := Timeoutf("no response in %s", "100ms")
	err = errors.Annotatef(err, "DP read")
	err = errors.Trace(err)

	if got, want := KindOf(err), KindTimeout; got != want {
		t.Errorf("got: %s, want: %s", got, want)
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false", err)
	}
	if IsRemoteFault(err) {
		t.Errorf("IsRemoteFault(%v) = true", err)
	}
}

func TestFault(t *testing.T) {
	err := errors.Annotatef(Fault(0x02, "target not halted"), "AP write")
	if got, want := FaultCode(err), 0x02; got != want {
		t.Errorf("got: %d, want: %d", got, want)
	}
	if got, want := err.Error(), "AP write: remote fault 0x02: target not halted"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	if got := FaultCode(Malformedf("x")); got != -1 {
		t.Errorf("got: %d, want: -1", got)
	}
}

func TestUnknown(t *testing.T) {
	if got := KindOf(errors.Errorf("plain")); got != KindUnknown {
		t.Errorf("got: %s", got)
	}
	if Is(nil, KindUnknown) {
		t.Errorf("nil error must not match any kind")
	}
}
