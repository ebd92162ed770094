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

//go:build linux || darwin

package malloc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/logutil"
)

// swapped by tests
var (
	mmap   = unix.Mmap
	munmap = unix.Munmap
)

// MmapAllocator maps every block with an anonymous private mapping. The
// mapping address doubles as the device address, which is what a system
// with shared memory and a remapping unit would see.
type MmapAllocator struct {
	remapping bool

	mu     sync.Mutex
	blocks map[uint64]*mmapBlock
}

type mmapBlock struct {
	addr uint64
	data []byte
}

func (m *mmapBlock) Addr() uint64 {
	return m.addr
}

func (m *mmapBlock) Size() uint64 {
	return uint64(len(m.data))
}

func (m *mmapBlock) Bytes() []byte {
	return m.data
}

func (m *mmapBlock) String() string {
	return fmt.Sprintf("mmap block %#x+%d", m.addr, len(m.data))
}

func NewMmapAllocator(remapping bool) *MmapAllocator {
	return &MmapAllocator{
		remapping: remapping,
		blocks:    make(map[uint64]*mmapBlock),
	}
}

var _ BlockAllocator = new(MmapAllocator)

func (m *MmapAllocator) AllocateBlock(ctx context.Context, size uint64, contiguous bool, node *int) (Block, error) {
	if size == 0 {
		return nil, moerr.NewInvalidArg(ctx, "block size", size)
	}
	if node != nil {
		logutil.Debug("mmap allocator ignores node affinity", zap.Int("node", *node))
	}

	slice, err := mmap(
		-1, 0,
		int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		mmapFlags(contiguous),
	)
	if err != nil {
		return nil, convertMmapError(ctx, err, size, contiguous)
	}

	block := &mmapBlock{
		addr: uint64(uintptr(unsafe.Pointer(unsafe.SliceData(slice)))),
		data: slice,
	}
	m.mu.Lock()
	m.blocks[block.addr] = block
	m.mu.Unlock()
	return block, nil
}

func (m *MmapAllocator) FreeBlock(ctx context.Context, block Block) {
	m.mu.Lock()
	b, ok := m.blocks[block.Addr()]
	if ok {
		delete(m.blocks, b.addr)
	}
	m.mu.Unlock()

	if !ok {
		panic(moerr.NewInternalError(ctx, "free of unknown block %#x", block.Addr()))
	}
	if err := munmap(b.data); err != nil {
		panic(err)
	}
}

func (m *MmapAllocator) IsRemappingAvailable() bool {
	return m.remapping
}

// InuseBlocks returns the number of live mappings.
func (m *MmapAllocator) InuseBlocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

func convertMmapError(ctx context.Context, err error, size uint64, contiguous bool) error {
	switch {
	case contiguous && (errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EAGAIN)):
		// pinned, pre-faulted mappings fail first when memory is fragmented
		// or the lock limit is reached
		return moerr.AttachCause(moerr.NewOOContiguousMem(ctx, size), err)
	case errors.Is(err, unix.ENOMEM):
		return moerr.AttachCause(moerr.NewOOM(ctx), err)
	default:
		return moerr.ConvertGoError(ctx, err)
	}
}
