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
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matrixorigin/pdcache/pkg/common/malloc"
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/logutil"
	"github.com/matrixorigin/pdcache/pkg/util/invariants"
	v2 "github.com/matrixorigin/pdcache/pkg/util/metric/v2"
)

// Cache hands out page directories smaller than a slab by carving slabs
// into equal slots, one set of slabs per power of two size. Larger pds get
// a block of their own.
//
// A single mutex serializes every operation, including the calls into the
// block allocator, so Alloc and Free may block.
type Cache struct {
	opts      Options
	allocator malloc.BlockAllocator
	peak      *malloc.PeakInuseTracker

	mu struct {
		sync.Mutex
		inited  bool
		lists   *bucketLists
		index   *reverseIndex
		arena   slabArena
		inusePD int
	}
}

type CacheOption func(*Cache)

// WithPeakTracker records the peak number of live pds into p.
func WithPeakTracker(p *malloc.PeakInuseTracker) CacheOption {
	return func(c *Cache) {
		c.peak = p
	}
}

func NewCache(opts Options, allocator malloc.BlockAllocator, options ...CacheOption) *Cache {
	c := &Cache{
		opts:      opts,
		allocator: allocator,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Init prepares the cache for use. Calling it on an initialized cache does
// nothing.
func (c *Cache) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mu.inited {
		return nil
	}
	if err := c.opts.Validate(ctx); err != nil {
		return err
	}
	c.mu.lists = newBucketLists(c.opts.BucketCount())
	c.mu.index = newReverseIndex()
	c.mu.arena = slabArena{}
	c.mu.inusePD = 0
	c.mu.inited = true
	logutil.Info("pd cache initialized",
		zap.Uint64("min-size", c.opts.MinSize),
		zap.Uint64("slab-size", c.opts.SlabSize),
		zap.Int("buckets", c.opts.BucketCount()),
		zap.Bool("remapping", c.allocator.IsRemappingAvailable()),
	)
	return nil
}

// Fini tears the cache down. Every pd must have been freed.
func (c *Cache) Fini(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mu.inited {
		return nil
	}
	if n := c.mu.arena.live; n > 0 {
		err := moerr.NewInvalidState(ctx, "pd cache still holds %d slabs and %d pds", n, c.mu.inusePD)
		logutil.Error("pd cache finalized while in use", zap.Error(err))
		if invariants.Enabled {
			panic(err)
		}
		return err
	}
	c.mu.lists = nil
	c.mu.index = nil
	c.mu.arena = slabArena{}
	c.mu.inited = false
	logutil.Info("pd cache finalized")
	return nil
}

// Alloc returns a pd of size bytes and its device address. size must be a
// power of two no smaller than MinSize.
func (c *Cache) Alloc(ctx context.Context, size uint64) (*PD, uint64, error) {
	if !isPowerOfTwo(size) || size < c.opts.MinSize {
		return nil, 0, moerr.NewInvalidArg(ctx, "pd size", size)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mu.inited {
		return nil, 0, moerr.NewInvalidState(ctx, "pd cache is not initialized")
	}

	var pd *PD
	var err error
	if size >= c.opts.SlabSize {
		pd, err = c.allocDirect(ctx, size)
	} else {
		pd, err = c.allocBucket(ctx, size)
	}
	if err != nil {
		return nil, 0, err
	}

	c.mu.inusePD++
	v2.PDCacheInusePDGauge.Inc()
	if c.peak != nil {
		c.peak.UpdatePDs(uint64(c.mu.inusePD))
	}
	c.mustCheck()
	return pd, pd.Addr(), nil
}

func (c *Cache) allocBucket(ctx context.Context, size uint64) (*PD, error) {
	bucket := BucketIndex(c.opts.MinSize, size)
	if id, ok := c.mu.lists.firstPartial(bucket); ok {
		v2.PDCacheAllocPartialCounter.Inc()
		return c.allocFromPartial(bucket, c.mu.arena.get(id)), nil
	}
	return c.newSlab(ctx, bucket, size)
}

func (c *Cache) allocFromPartial(bucket int, e *slabEntry) *PD {
	offset, _ := e.take()
	if e.isFull() {
		c.mu.lists.move(bucket, e, stateFull)
	}
	return c.newPD(e, offset)
}

// newSlab carves a fresh slab for a bucket. When no contiguous slab is left
// the pd falls back to a direct block of its own size, for any bucket size.
func (c *Cache) newSlab(ctx context.Context, bucket int, size uint64) (*PD, error) {
	block, err := c.allocateBlock(ctx, c.opts.SlabSize, c.needContiguous(c.opts.SlabSize))
	if err != nil {
		if moerr.IsMoErrCode(err, moerr.ErrOOContiguousMem) {
			logutil.Warn("pd cache has no contiguous slab, using a direct block",
				zap.Uint64("pd-size", size),
				zap.Error(err),
			)
			v2.PDCacheSlabFallbackCounter.Inc()
			return c.allocDirect(ctx, size)
		}
		return nil, toOOM(ctx, err)
	}

	e := newBucketEntry(block, size, c.opts.SlabSize)
	offset, _ := e.take()
	if e.isFull() {
		e.state = stateFull
	}
	if err := c.register(ctx, bucket, e); err != nil {
		return nil, err
	}
	v2.PDCacheAllocNewSlabCounter.Inc()
	v2.PDCacheBucketSlabGauge.Inc()
	logutil.Debug("pd cache created slab",
		zap.Uint32("slab", uint32(e.id)),
		zap.Uint64("block", block.Addr()),
		zap.Uint64("bucket-size", size),
	)
	return c.newPD(e, offset), nil
}

// allocDirect gives size bytes a block of their own. A request of a slab
// or more that cannot get contiguous memory is retried once without it.
func (c *Cache) allocDirect(ctx context.Context, size uint64) (*PD, error) {
	contiguous := c.needContiguous(size)
	block, err := c.allocateBlock(ctx, size, contiguous)
	if err != nil && contiguous && size >= c.opts.SlabSize &&
		moerr.IsMoErrCode(err, moerr.ErrOOContiguousMem) {
		logutil.Warn("pd cache has no contiguous block, retrying without contiguity",
			zap.Uint64("pd-size", size),
			zap.Error(err),
		)
		v2.PDCacheDirectFallbackCounter.Inc()
		block, err = c.allocateBlock(ctx, size, false)
	}
	if err != nil {
		return nil, toOOM(ctx, err)
	}

	e := newDirectEntry(block, size)
	offset, _ := e.take()
	if err := c.register(ctx, 0, e); err != nil {
		return nil, err
	}
	v2.PDCacheAllocDirectCounter.Inc()
	v2.PDCacheDirectSlabGauge.Inc()
	logutil.Debug("pd cache created direct entry",
		zap.Uint32("slab", uint32(e.id)),
		zap.Uint64("block", block.Addr()),
		zap.Uint64("size", size),
	)
	return c.newPD(e, offset), nil
}

func (c *Cache) allocateBlock(ctx context.Context, size uint64, contiguous bool) (malloc.Block, error) {
	start := time.Now()
	block, err := c.allocator.AllocateBlock(ctx, size, contiguous, c.opts.Node)
	v2.PDCacheBlockAllocDurationHistogram.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if block.Size() < size {
		c.allocator.FreeBlock(ctx, block)
		return nil, moerr.NewInternalError(ctx, "block allocator returned %d bytes for %d", block.Size(), size)
	}
	return block, nil
}

// register links a new entry into the arena, its list and the index. On
// failure the block is handed back and nothing stays registered.
func (c *Cache) register(ctx context.Context, bucket int, e *slabEntry) error {
	id := c.mu.arena.add(e)
	if !c.mu.index.insert(e.block.Addr(), id) {
		c.mu.arena.remove(id)
		c.allocator.FreeBlock(ctx, e.block)
		err := moerr.NewInternalError(ctx, "block %#x is already owned by the pd cache", e.block.Addr())
		logutil.Error("pd cache got a live block twice", zap.Error(err))
		return err
	}
	c.mu.lists.insert(bucket, e)
	return nil
}

func (c *Cache) newPD(e *slabEntry, offset uint64) *PD {
	size := e.slotSize()
	pd := &PD{
		cache:  c,
		slab:   e.id,
		block:  e.block.Addr(),
		offset: offset,
		size:   size,
		direct: e.isDirect(),
		live:   true,
	}
	if bs := e.block.Bytes(); bs != nil {
		pd.mem = bs[offset : offset+size : offset+size]
	}
	e.pds[offset/size] = pd
	return pd
}

func (c *Cache) needContiguous(size uint64) bool {
	return !c.allocator.IsRemappingAvailable() && size > c.opts.PageSize
}

func (c *Cache) bucketOf(e *slabEntry) int {
	if e.isDirect() {
		return 0
	}
	return BucketIndex(c.opts.MinSize, e.bucketSize)
}

// Free returns pd to the cache. A pd the cache does not own is refused
// with moerr.ErrUnknownHandle and leaves the cache untouched.
func (c *Cache) Free(ctx context.Context, pd *PD) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mu.inited {
		return moerr.NewInvalidState(ctx, "pd cache is not initialized")
	}

	e, bit, err := c.resolve(ctx, pd)
	if err != nil {
		return err
	}

	e.release(bit)
	pd.live = false
	c.mu.inusePD--
	v2.PDCacheInusePDGauge.Dec()
	v2.PDCacheFreeCounter.Inc()

	if e.inUse > 0 {
		c.sanitize(ctx, e, pd.offset, pd.size)
		c.mu.lists.move(c.bucketOf(e), e, statePartial)
	} else {
		c.destroy(ctx, e)
	}
	c.mustCheck()
	return nil
}

// resolve finds the entry owning pd and the slot it occupies.
func (c *Cache) resolve(ctx context.Context, pd *PD) (*slabEntry, uint64, error) {
	if pd == nil {
		return nil, 0, c.unknownHandle(ctx, "nil pd")
	}
	if pd.cache != c {
		return nil, 0, c.unknownHandle(ctx, "%s was issued by another pd cache", pd)
	}
	if !pd.live {
		return nil, 0, c.unknownHandle(ctx, "%s was already freed", pd)
	}
	id, ok := c.mu.index.lookup(pd.block)
	if !ok || id != pd.slab {
		return nil, 0, c.unknownHandle(ctx, "%s is not owned by a live slab", pd)
	}
	e := c.mu.arena.get(id)
	slot := e.slotSize()
	if pd.size != slot || pd.offset%slot != 0 || pd.offset/slot >= e.capacity {
		return nil, 0, c.unknownHandle(ctx, "%s does not match slab slot size %d", pd, slot)
	}
	bit := pd.offset / slot
	if !e.bitmap.Contains(bit) {
		return nil, 0, c.unknownHandle(ctx, "%s slot %d is not in use", pd, bit)
	}
	if e.pds[bit] != pd {
		return nil, 0, c.unknownHandle(ctx, "%s is not the handle issued for slot %d", pd, bit)
	}
	return e, bit, nil
}

func (c *Cache) unknownHandle(ctx context.Context, msg string, args ...any) error {
	err := moerr.NewUnknownHandle(ctx, msg, args...)
	logutil.Error("pd cache refused free", zap.Error(err))
	v2.PDCacheUnknownHandleCounter.Inc()
	if invariants.Enabled {
		panic(err)
	}
	return err
}

func (c *Cache) sanitize(ctx context.Context, e *slabEntry, offset, size uint64) {
	if !c.opts.SanitizeOnFree {
		return
	}
	if bs := e.block.Bytes(); bs != nil {
		clear(bs[offset : offset+size])
		return
	}
	if clearer, ok := c.allocator.(malloc.Clearer); ok {
		clearer.Clear(ctx, e.block, offset, size)
	}
}

// destroy unlinks an empty entry and returns its block.
func (c *Cache) destroy(ctx context.Context, e *slabEntry) {
	c.mu.lists.remove(c.bucketOf(e), e)
	c.mu.index.remove(e.block.Addr())
	c.mu.arena.remove(e.id)
	c.allocator.FreeBlock(ctx, e.block)
	if e.isDirect() {
		v2.PDCacheDirectSlabGauge.Dec()
	} else {
		v2.PDCacheBucketSlabGauge.Dec()
	}
	logutil.Debug("pd cache destroyed slab",
		zap.Uint32("slab", uint32(e.id)),
		zap.Uint64("block", e.block.Addr()),
		zap.Stringer("state", e.state),
	)
}

// toOOM reports a failed block allocation as out of memory.
func toOOM(ctx context.Context, err error) error {
	if moerr.IsMoErrCode(err, moerr.ErrOOM) {
		return err
	}
	return moerr.AttachCause(moerr.NewOOM(ctx), err)
}
