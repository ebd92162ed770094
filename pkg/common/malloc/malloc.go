// Copyright 2022 Matrix Origin
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

//go:generate mockgen -source=malloc.go -destination=test/malloc_mock.go -package=mock_malloc

import (
	"context"
)

const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
)

// Block is one raw allocation handed out by a BlockAllocator.
type Block interface {
	// Addr is the device visible base address. It also identifies the
	// block: no two live blocks of one allocator share an Addr.
	Addr() uint64
	Size() uint64
	// Bytes is the CPU view of the block, nil if the block is not mapped.
	Bytes() []byte
}

// BlockAllocator is the raw allocator sitting under the pd cache.
//
// AllocateBlock fails with moerr.ErrOOM when memory is exhausted and with
// moerr.ErrOOContiguousMem when contiguous is true and no physically
// contiguous run of size bytes exists. Fresh blocks are zero filled.
// AllocateBlock may block.
type BlockAllocator interface {
	AllocateBlock(ctx context.Context, size uint64, contiguous bool, node *int) (Block, error)
	FreeBlock(ctx context.Context, block Block)
	// IsRemappingAvailable reports whether an IOMMU style remapping unit
	// sits between the device and memory.
	IsRemappingAvailable() bool
}

// Clearer is implemented by allocators that can zero a range of a block
// which has no CPU view.
type Clearer interface {
	Clear(ctx context.Context, block Block, offset, size uint64)
}
