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
	"fmt"
	"math/bits"

	"github.com/matrixorigin/pdcache/pkg/common/malloc"
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
)

const (
	DefaultMinSize  = 256
	DefaultSlabSize = 64 * malloc.KB
	DefaultPageSize = 4 * malloc.KB
)

// Options configures one Cache.
type Options struct {
	// MinSize is the smallest pd size, served by bucket 0.
	MinSize uint64 `toml:"min-size"`
	// SlabSize is the size of every block carved into slots. Requests of
	// SlabSize or more get a block of their own.
	SlabSize uint64 `toml:"slab-size"`
	// PageSize decides when contiguous memory is required.
	PageSize uint64 `toml:"page-size"`
	// SanitizeOnFree zeroes a slot when it is freed from a live slab.
	SanitizeOnFree bool `toml:"sanitize-on-free"`
	// Node is handed to the block allocator as the affinity hint.
	Node *int `toml:"node"`
}

func DefaultOptions() Options {
	return Options{
		MinSize:        DefaultMinSize,
		SlabSize:       DefaultSlabSize,
		PageSize:       DefaultPageSize,
		SanitizeOnFree: true,
	}
}

func (o Options) Validate(ctx context.Context) error {
	if !isPowerOfTwo(o.MinSize) {
		return moerr.NewBadConfig(ctx, "pd min size %d is not a power of two", o.MinSize)
	}
	if !isPowerOfTwo(o.SlabSize) {
		return moerr.NewBadConfig(ctx, "pd slab size %d is not a power of two", o.SlabSize)
	}
	if o.MinSize >= o.SlabSize {
		return moerr.NewBadConfig(ctx, "pd min size %d must be less than slab size %d", o.MinSize, o.SlabSize)
	}
	if o.PageSize == 0 {
		return moerr.NewBadConfig(ctx, "pd page size must be positive")
	}
	return nil
}

// BucketCount is the number of size classes, log2(SlabSize/MinSize).
func (o Options) BucketCount() int {
	return BucketIndex(o.MinSize, o.SlabSize)
}

// SlabID addresses a slab entry inside one Cache. IDs of destroyed entries
// are recycled.
type SlabID uint32

type slabState uint8

const (
	statePartial slabState = iota
	stateFull
	stateDirect
)

func (s slabState) String() string {
	switch s {
	case statePartial:
		return "partial"
	case stateFull:
		return "full"
	case stateDirect:
		return "direct"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// PD is one page directory handed out by Cache.Alloc. It stays valid until
// passed to Cache.Free.
type PD struct {
	cache  *Cache
	slab   SlabID
	block  uint64
	offset uint64
	size   uint64
	mem    []byte
	direct bool
	live   bool
}

// Addr returns the device address of the pd.
func (pd *PD) Addr() uint64 {
	return pd.block + pd.offset
}

func (pd *PD) Size() uint64 {
	return pd.size
}

// Offset returns the offset of the pd inside its block.
func (pd *PD) Offset() uint64 {
	return pd.offset
}

// Bytes returns the CPU view of the pd, nil if the block is not mapped.
func (pd *PD) Bytes() []byte {
	return pd.mem
}

func (pd *PD) IsDirect() bool {
	return pd.direct
}

func (pd *PD) String() string {
	return fmt.Sprintf("pd{slab: %d, block: %#x, offset: %d, size: %d}",
		pd.slab, pd.block, pd.offset, pd.size)
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// BucketIndex maps a power of two size in [minSize, slabSize) to its size
// class. The result is meaningless for other sizes.
func BucketIndex(minSize, size uint64) int {
	return bits.TrailingZeros64(size) - bits.TrailingZeros64(minSize)
}
