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
package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/mongoose-os/bmprobe/cli/ourutil"
)

const (
	LatestVersionName = "latest"
)

var (
	regexpVersionNumber = regexp.MustCompile(`^\d+\.[0-9.]*$`)
	regexpBuildIdDistr  = regexp.MustCompile(`^(?P<version>[^+]+)\+(?P<hash>[^~]+)\~(?P<distr>[^\d]+)\d+$`)
)

// GetVersion returns this binary's version, or "latest" if it's not a release build.
func GetVersion() string {
	if LooksLikeVersionNumber(Version) {
		return Version
	}
	return LatestVersionName
}

// GetVersionSuffix returns an empty string for "latest" and the version
// prepended with a dash, like "-1.6", otherwise.
func GetVersionSuffix() string {
	v := GetVersion()
	if v == LatestVersionName {
		return ""
	}
	return "-" + v
}

func LooksLikeVersionNumber(s string) bool {
	return regexpVersionNumber.MatchString(s)
}

// LooksLikeDistrBuildId returns whether the build id was produced by a
// distro package build, like "1.2+abc123~bionic0".
func LooksLikeDistrBuildId(s string) bool {
	return ourutil.FindNamedSubmatches(regexpBuildIdDistr, s) != nil
}

// Distr returns the distro name of a distro build id, or "".
func Distr(buildId string) string {
	parts := ourutil.FindNamedSubmatches(regexpBuildIdDistr, buildId)
	if parts == nil {
		return ""
	}
	return strings.TrimSpace(parts["distr"])
}

func GetUserAgent() string {
	return fmt.Sprintf("bmprobe/%s %s (%s; %s)", Version, BuildId, runtime.GOOS, runtime.GOARCH)
}
