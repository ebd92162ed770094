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

package pdcache

import (
	"github.com/matrixorigin/pdcache/pkg/common/bitmap"
	"github.com/matrixorigin/pdcache/pkg/common/malloc"
)

type slabEntry struct {
	id    SlabID
	block malloc.Block
	// bucketSize is 0 for direct entries
	bucketSize uint64
	// pdSize is the size handed out by a direct entry
	pdSize   uint64
	capacity uint64
	bitmap   bitmap.Bitmap
	inUse    uint64
	state    slabState
	// pds holds the handle issued for each used slot
	pds []*PD
}

func newBucketEntry(block malloc.Block, bucketSize, slabSize uint64) *slabEntry {
	capacity := slabSize / bucketSize
	return &slabEntry{
		block:      block,
		bucketSize: bucketSize,
		capacity:   capacity,
		bitmap:     bitmap.New(int64(capacity)),
		state:      statePartial,
		pds:        make([]*PD, capacity),
	}
}

func newDirectEntry(block malloc.Block, size uint64) *slabEntry {
	return &slabEntry{
		block:    block,
		pdSize:   size,
		capacity: 1,
		bitmap:   bitmap.New(1),
		state:    stateDirect,
		pds:      make([]*PD, 1),
	}
}

func (e *slabEntry) isDirect() bool {
	return e.bucketSize == 0
}

func (e *slabEntry) isFull() bool {
	return e.inUse == e.capacity
}

// slotSize is the size of each pd carved from the entry.
func (e *slabEntry) slotSize() uint64 {
	if e.isDirect() {
		return e.pdSize
	}
	return e.bucketSize
}

// take marks the lowest free slot used and returns its offset.
func (e *slabEntry) take() (uint64, bool) {
	bit, ok := e.bitmap.FirstClear()
	if !ok {
		return 0, false
	}
	e.bitmap.Add(bit)
	e.inUse++
	return bit * e.slotSize(), true
}

func (e *slabEntry) release(bit uint64) {
	e.pds[bit] = nil
	e.bitmap.Remove(bit)
	e.inUse--
}

// slabArena owns every live entry of a cache, addressed by SlabID.
type slabArena struct {
	entries []*slabEntry
	free    []SlabID
	live    int
}

func (a *slabArena) add(e *slabEntry) SlabID {
	var id SlabID
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
		a.entries[id] = e
	} else {
		id = SlabID(len(a.entries))
		a.entries = append(a.entries, e)
	}
	e.id = id
	a.live++
	return id
}

func (a *slabArena) get(id SlabID) *slabEntry {
	if int(id) >= len(a.entries) {
		return nil
	}
	return a.entries[id]
}

func (a *slabArena) remove(id SlabID) {
	a.entries[id] = nil
	a.free = append(a.free, id)
	a.live--
}

func (a *slabArena) each(fn func(*slabEntry)) {
	for _, e := range a.entries {
		if e != nil {
			fn(e)
		}
	}
}
