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
	"sync"

	"github.com/matrixorigin/pdcache/pkg/common/moerr"
)

// BlockRequest is one AllocateBlock call seen by a FaultAllocator.
type BlockRequest struct {
	Size       uint64
	Contiguous bool
	Failed     bool
}

// FaultAllocator wraps an upstream allocator and fails chosen requests. It
// is used to drive the fallback paths of the pd cache.
type FaultAllocator struct {
	upstream BlockAllocator

	mu             sync.Mutex
	failures       int
	code           uint16
	contiguousOnly bool
	history        []BlockRequest
}

func NewFaultAllocator(upstream BlockAllocator) *FaultAllocator {
	return &FaultAllocator{
		upstream: upstream,
	}
}

var _ BlockAllocator = new(FaultAllocator)
var _ Clearer = new(FaultAllocator)

// FailNext makes the next n matching requests fail with code, which must be
// moerr.ErrOOM or moerr.ErrOOContiguousMem. If contiguousOnly is set only
// contiguous requests match. n < 0 fails every matching request.
func (f *FaultAllocator) FailNext(n int, code uint16, contiguousOnly bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.code = code
	f.contiguousOnly = contiguousOnly
}

func (f *FaultAllocator) AllocateBlock(ctx context.Context, size uint64, contiguous bool, node *int) (Block, error) {
	f.mu.Lock()
	fail := f.failures != 0 && (contiguous || !f.contiguousOnly)
	if fail && f.failures > 0 {
		f.failures--
	}
	code := f.code
	f.history = append(f.history, BlockRequest{
		Size:       size,
		Contiguous: contiguous,
		Failed:     fail,
	})
	f.mu.Unlock()

	if fail {
		if code == moerr.ErrOOContiguousMem {
			return nil, moerr.NewOOContiguousMem(ctx, size)
		}
		return nil, moerr.NewOOM(ctx)
	}
	return f.upstream.AllocateBlock(ctx, size, contiguous, node)
}

func (f *FaultAllocator) FreeBlock(ctx context.Context, block Block) {
	f.upstream.FreeBlock(ctx, block)
}

func (f *FaultAllocator) IsRemappingAvailable() bool {
	return f.upstream.IsRemappingAvailable()
}

func (f *FaultAllocator) Clear(ctx context.Context, block Block, offset, size uint64) {
	if c, ok := f.upstream.(Clearer); ok {
		c.Clear(ctx, block, offset, size)
	}
}

// History returns a copy of every request seen so far.
func (f *FaultAllocator) History() []BlockRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := make([]BlockRequest, len(f.history))
	copy(ret, f.history)
	return ret
}
