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
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/util/invariants"
)

type BucketStats struct {
	Size    uint64
	Partial int
	Full    int
	InUse   int
}

// Stats is a point in time snapshot of a Cache.
type Stats struct {
	Buckets    []BucketStats
	Direct     int
	Slabs      int
	BlockBytes uint64
	InUse      int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	if !c.mu.inited {
		return s
	}
	s.Buckets = make([]BucketStats, c.opts.BucketCount())
	for i := range s.Buckets {
		s.Buckets[i].Size = c.opts.MinSize << i
	}
	c.mu.arena.each(func(e *slabEntry) {
		s.Slabs++
		s.BlockBytes += e.block.Size()
		s.InUse += int(e.inUse)
		if e.isDirect() {
			s.Direct++
			return
		}
		b := &s.Buckets[c.bucketOf(e)]
		b.InUse += int(e.inUse)
		if e.state == stateFull {
			b.Full++
		} else {
			b.Partial++
		}
	})
	return s
}

// CheckInvariants walks the whole cache and returns the first
// inconsistency found.
func (c *Cache) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mu.inited {
		return nil
	}
	return c.check()
}

func (c *Cache) mustCheck() {
	if !invariants.Enabled {
		return
	}
	if err := c.check(); err != nil {
		panic(err)
	}
}

func (c *Cache) check() error {
	var err error
	inUse := 0
	c.mu.arena.each(func(e *slabEntry) {
		if err != nil {
			return
		}
		err = c.checkEntry(e)
		inUse += int(e.inUse)
	})
	if err != nil {
		return err
	}

	live := c.mu.arena.live
	if n := c.mu.lists.count(); n != live {
		return moerr.NewInternalErrorNoCtx("pd cache lists hold %d slabs, arena holds %d", n, live)
	}
	if n := c.mu.index.len(); n != live {
		return moerr.NewInternalErrorNoCtx("pd cache index holds %d slabs, arena holds %d", n, live)
	}
	if inUse != c.mu.inusePD {
		return moerr.NewInternalErrorNoCtx("pd cache counts %d pds, slabs hold %d", c.mu.inusePD, inUse)
	}

	// blocks must not overlap
	var end uint64
	c.mu.index.scan(func(addr uint64, id SlabID) bool {
		e := c.mu.arena.get(id)
		if e == nil {
			err = moerr.NewInternalErrorNoCtx("pd cache index points block %#x at dead slab %d", addr, id)
			return false
		}
		if addr < end {
			err = moerr.NewInternalErrorNoCtx("pd cache block %#x overlaps the previous block ending at %#x", addr, end)
			return false
		}
		end = addr + e.block.Size()
		return true
	})
	return err
}

func (c *Cache) checkEntry(e *slabEntry) error {
	if n := uint64(e.bitmap.Count()); n != e.inUse {
		return moerr.NewInternalErrorNoCtx("slab %d counts %d pds, bitmap holds %d", e.id, e.inUse, n)
	}
	for bit, pd := range e.pds {
		if (pd != nil) != e.bitmap.Contains(uint64(bit)) {
			return moerr.NewInternalErrorNoCtx("slab %d slot %d handle does not match the bitmap", e.id, bit)
		}
	}
	if e.inUse == 0 || e.inUse > e.capacity {
		return moerr.NewInternalErrorNoCtx("slab %d holds %d pds, capacity %d", e.id, e.inUse, e.capacity)
	}
	if e.isDirect() {
		if e.state != stateDirect || e.capacity != 1 {
			return moerr.NewInternalErrorNoCtx("direct slab %d is %s with capacity %d", e.id, e.state, e.capacity)
		}
	} else {
		if e.capacity != c.opts.SlabSize/e.bucketSize {
			return moerr.NewInternalErrorNoCtx("slab %d capacity %d does not match bucket size %d", e.id, e.capacity, e.bucketSize)
		}
		if (e.state == stateFull) != e.isFull() {
			return moerr.NewInternalErrorNoCtx("slab %d is %s with %d of %d pds", e.id, e.state, e.inUse, e.capacity)
		}
	}
	if !c.mu.lists.contains(c.bucketOf(e), e) {
		return moerr.NewInternalErrorNoCtx("slab %d is missing from its %s list", e.id, e.state)
	}
	if id, ok := c.mu.index.lookup(e.block.Addr()); !ok || id != e.id {
		return moerr.NewInternalErrorNoCtx("slab %d is missing from the index", e.id)
	}
	return nil
}
