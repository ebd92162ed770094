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
	"sync/atomic"
	"time"
)

// PeakInuseTracker records the high water mark of block bytes and of pds
// handed out by a pd cache.
type PeakInuseTracker struct {
	ptr atomic.Pointer[peakInuseInfo]
}

type peakInuseInfo struct {
	Data      peakInuseData
	Snapshots struct {
		Blocks peakInuseData
		PDs    peakInuseData
	}
}

type peakInuseData struct {
	Blocks peakInuseValue
	PDs    peakInuseValue
}

type peakInuseValue struct {
	Value uint64
	Time  time.Time
}

func NewPeakInuseTracker() *PeakInuseTracker {
	ret := new(PeakInuseTracker)
	ret.ptr.Store(&peakInuseInfo{})
	return ret
}

func (p *PeakInuseTracker) UpdateBlocks(n uint64) {
	for {
		// read
		ptr := p.ptr.Load()
		if n <= ptr.Data.Blocks.Value {
			return
		}
		// copy
		newData := *ptr
		newData.Data.Blocks.Value = n
		newData.Data.Blocks.Time = time.Now()
		newData.Snapshots.Blocks = newData.Data
		// update
		if p.ptr.CompareAndSwap(ptr, &newData) {
			return
		}
	}
}

func (p *PeakInuseTracker) UpdatePDs(n uint64) {
	for {
		// read
		ptr := p.ptr.Load()
		if n <= ptr.Data.PDs.Value {
			return
		}
		// copy
		newData := *ptr
		newData.Data.PDs.Value = n
		newData.Data.PDs.Time = time.Now()
		newData.Snapshots.PDs = newData.Data
		// update
		if p.ptr.CompareAndSwap(ptr, &newData) {
			return
		}
	}
}

// PeakBlockBytes returns the highest block byte count seen.
func (p *PeakInuseTracker) PeakBlockBytes() uint64 {
	return p.ptr.Load().Data.Blocks.Value
}

// PeakPDs returns the highest number of live pds seen.
func (p *PeakInuseTracker) PeakPDs() uint64 {
	return p.ptr.Load().Data.PDs.Value
}

// PeakBlocksAt returns both peaks as they stood when the block peak was
// reached.
func (p *PeakInuseTracker) PeakBlocksAt() (blockBytes, pds uint64, at time.Time) {
	snap := p.ptr.Load().Snapshots.Blocks
	return snap.Blocks.Value, snap.PDs.Value, snap.Blocks.Time
}
