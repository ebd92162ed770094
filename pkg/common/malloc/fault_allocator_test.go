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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/pdcache/pkg/common/moerr"
)

func TestFaultAllocator(t *testing.T) {
	ctx := context.Background()
	f := NewFaultAllocator(NewHeapAllocator(HeapAllocatorConfig{Remapping: true}))
	assert.True(t, f.IsRemappingAvailable())

	f.FailNext(1, moerr.ErrOOContiguousMem, true)

	// non contiguous requests pass through
	b1, err := f.AllocateBlock(ctx, 4*KB, false, nil)
	require.NoError(t, err)

	_, err = f.AllocateBlock(ctx, 4*KB, true, nil)
	assert.True(t, moerr.IsMoErrCode(err, moerr.ErrOOContiguousMem))

	b2, err := f.AllocateBlock(ctx, 4*KB, true, nil)
	require.NoError(t, err)

	f.FailNext(-1, moerr.ErrOOM, false)
	for i := 0; i < 3; i++ {
		_, err = f.AllocateBlock(ctx, 4*KB, i%2 == 0, nil)
		assert.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	}
	f.FailNext(0, 0, false)

	f.FreeBlock(ctx, b1)
	f.FreeBlock(ctx, b2)

	history := f.History()
	require.Len(t, history, 6)
	assert.Equal(t, BlockRequest{Size: 4 * KB, Contiguous: false}, history[0])
	assert.Equal(t, BlockRequest{Size: 4 * KB, Contiguous: true, Failed: true}, history[1])
	assert.Equal(t, BlockRequest{Size: 4 * KB, Contiguous: true}, history[2])
	for _, r := range history[3:] {
		assert.True(t, r.Failed)
	}
}

func TestFaultAllocatorClear(t *testing.T) {
	ctx := context.Background()
	f := NewFaultAllocator(NewHeapAllocator(HeapAllocatorConfig{}))
	b, err := f.AllocateBlock(ctx, 4*KB, false, nil)
	require.NoError(t, err)
	b.Bytes()[10] = 1
	f.Clear(ctx, b, 0, 64)
	assert.Equal(t, byte(0), b.Bytes()[10])
	f.FreeBlock(ctx, b)
}
