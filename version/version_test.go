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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionNames(t *testing.T) {
	saved := Version
	defer func() { Version = saved }()

	Version = "20200101-120000"
	assert.Equal(t, LatestVersionName, GetVersion())
	assert.Equal(t, "", GetVersionSuffix())

	Version = "1.10.0"
	assert.Equal(t, "1.10.0", GetVersion())
	assert.Equal(t, "-1.10.0", GetVersionSuffix())
	assert.True(t, strings.HasPrefix(GetUserAgent(), "bmprobe/1.10.0 "))
}

func TestDistrBuildId(t *testing.T) {
	assert.True(t, LooksLikeDistrBuildId("1.10.0+abc1234~bionic0"))
	assert.Equal(t, "bionic", Distr("1.10.0+abc1234~bionic0"))
	assert.False(t, LooksLikeDistrBuildId("20200101-120000/master@abc1234"))
	assert.Equal(t, "", Distr("dev"))
}
