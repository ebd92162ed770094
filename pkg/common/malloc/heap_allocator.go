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
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/matrixorigin/pdcache/pkg/common/moerr"
)

const (
	defaultHeapBaseAddr = 1 << 32
	// maxHeapBlockSize is the largest block the Go heap is asked for.
	maxHeapBlockSize = 1 << 40
)

type HeapAllocatorConfig struct {
	// Remapping is returned by IsRemappingAvailable.
	Remapping bool `toml:"remapping"`
	// Budget caps the bytes held at once, 0 means unlimited.
	Budget uint64 `toml:"budget"`
	// ContiguousBudget is the largest contiguous request that can succeed,
	// 0 means unlimited.
	ContiguousBudget uint64 `toml:"contiguous-budget"`
	// BaseAddr is the first device address handed out.
	BaseAddr uint64 `toml:"base-addr"`
	// Unmapped makes blocks CPU invisible, like video memory.
	Unmapped bool `toml:"unmapped"`
}

// HeapAllocator backs blocks with Go heap memory and hands out synthetic
// device addresses. Addresses grow monotonically and are never reused, so a
// freed block's address never shows up again.
type HeapAllocator struct {
	cfg HeapAllocatorConfig

	mu     sync.Mutex
	next   uint64
	inuse  uint64
	blocks *btree.BTree
}

type heapBlock struct {
	addr   uint64
	size   uint64
	data   []byte
	mapped bool
}

func (h *heapBlock) Addr() uint64 {
	return h.addr
}

func (h *heapBlock) Size() uint64 {
	return h.size
}

func (h *heapBlock) Bytes() []byte {
	if !h.mapped {
		return nil
	}
	return h.data
}

func (h *heapBlock) Less(item btree.Item) bool {
	return h.addr < item.(*heapBlock).addr
}

func (h *heapBlock) String() string {
	return fmt.Sprintf("heap block %#x+%d", h.addr, h.size)
}

func NewHeapAllocator(cfg HeapAllocatorConfig) *HeapAllocator {
	if cfg.BaseAddr == 0 {
		cfg.BaseAddr = defaultHeapBaseAddr
	}
	return &HeapAllocator{
		cfg:    cfg,
		next:   cfg.BaseAddr,
		blocks: btree.New(8),
	}
}

var _ BlockAllocator = new(HeapAllocator)
var _ Clearer = new(HeapAllocator)

func (h *HeapAllocator) AllocateBlock(ctx context.Context, size uint64, contiguous bool, _ *int) (Block, error) {
	if size == 0 {
		return nil, moerr.NewInvalidArg(ctx, "block size", size)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if size > maxHeapBlockSize || size > math.MaxInt {
		return nil, moerr.NewOOM(ctx)
	}
	if h.cfg.Budget > 0 && h.inuse+size > h.cfg.Budget {
		return nil, moerr.NewOOM(ctx)
	}
	if contiguous && h.cfg.ContiguousBudget > 0 && size > h.cfg.ContiguousBudget {
		return nil, moerr.NewOOContiguousMem(ctx, size)
	}

	// out of address space
	align := blockAlign(size)
	if h.next > math.MaxUint64-(align-1) {
		return nil, moerr.NewOOM(ctx)
	}
	addr := alignUp(h.next, align)
	if addr > math.MaxUint64-size {
		return nil, moerr.NewOOM(ctx)
	}
	h.next = addr + size

	block := &heapBlock{
		addr:   addr,
		size:   size,
		data:   make([]byte, size),
		mapped: !h.cfg.Unmapped,
	}
	h.blocks.ReplaceOrInsert(block)
	h.inuse += size
	return block, nil
}

func (h *HeapAllocator) FreeBlock(ctx context.Context, block Block) {
	h.mu.Lock()
	defer h.mu.Unlock()

	item := h.blocks.Get(&heapBlock{addr: block.Addr()})
	if item == nil || item.(*heapBlock) != block {
		panic(moerr.NewInternalError(ctx, "free of unknown block %#x", block.Addr()))
	}
	b := h.blocks.Delete(item).(*heapBlock)
	h.inuse -= b.size
}

func (h *HeapAllocator) IsRemappingAvailable() bool {
	return h.cfg.Remapping
}

// Clear zeroes a range of a block, mapped or not.
func (h *HeapAllocator) Clear(_ context.Context, block Block, offset, size uint64) {
	if b, ok := block.(*heapBlock); ok {
		clear(b.data[offset : offset+size])
	}
}

// InuseBytes returns the bytes held by live blocks.
func (h *HeapAllocator) InuseBytes() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inuse
}

// InuseBlocks returns the number of live blocks.
func (h *HeapAllocator) InuseBlocks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blocks.Len()
}

// Blocks visits live blocks in address order until fn returns false.
func (h *HeapAllocator) Blocks(fn func(Block) bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocks.Ascend(func(item btree.Item) bool {
		return fn(item.(*heapBlock))
	})
}

// blockAlign aligns power of two blocks to their size, everything else to
// a 4K page.
func blockAlign(size uint64) uint64 {
	if size&(size-1) == 0 && size >= 4*KB {
		return size
	}
	return 4 * KB
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
