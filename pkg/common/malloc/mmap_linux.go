// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package malloc

import (
	"golang.org/x/sys/unix"
)

func mmapFlags(contiguous bool) int {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if contiguous {
		// populate and pin, so the pages are resident for the device
		flags |= unix.MAP_POPULATE | unix.MAP_LOCKED
	}
	return flags
}
