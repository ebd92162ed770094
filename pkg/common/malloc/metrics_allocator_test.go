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

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v2 "github.com/matrixorigin/pdcache/pkg/util/metric/v2"
)

func TestMetricsAllocator(t *testing.T) {
	ctx := context.Background()
	peak := NewPeakInuseTracker()
	m := NewMetricsAllocator(NewHeapAllocator(HeapAllocatorConfig{}), "test-metrics", peak)

	inuseBytes, inuseObjects, allocate := v2.BlockAllocatorMetrics("test-metrics")
	allocated := testutil.ToFloat64(allocate)

	b1, err := m.AllocateBlock(ctx, 8*KB, false, nil)
	require.NoError(t, err)
	b2, err := m.AllocateBlock(ctx, 4*KB, false, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(12*KB), m.InuseBytes())
	assert.Equal(t, int64(2), m.InuseObjects())
	assert.Equal(t, float64(12*KB), testutil.ToFloat64(inuseBytes))
	assert.Equal(t, float64(2), testutil.ToFloat64(inuseObjects))
	assert.Equal(t, allocated+2, testutil.ToFloat64(allocate))

	m.FreeBlock(ctx, b1)
	m.FreeBlock(ctx, b2)
	assert.Equal(t, uint64(0), m.InuseBytes())
	assert.Equal(t, float64(0), testutil.ToFloat64(inuseBytes))
	assert.Equal(t, uint64(12*KB), peak.PeakBlockBytes())
}

func TestMetricsAllocatorClear(t *testing.T) {
	ctx := context.Background()
	// upstream without Clear support
	m := NewMetricsAllocator[BlockAllocator](noClearAllocator{NewHeapAllocator(HeapAllocatorConfig{})}, "test-noclear", nil)
	b, err := m.AllocateBlock(ctx, 4*KB, false, nil)
	require.NoError(t, err)
	b.Bytes()[0] = 1
	m.Clear(ctx, b, 0, 4*KB)
	assert.Equal(t, byte(1), b.Bytes()[0])
	m.FreeBlock(ctx, b)
}

type noClearAllocator struct {
	upstream *HeapAllocator
}

func (n noClearAllocator) AllocateBlock(ctx context.Context, size uint64, contiguous bool, node *int) (Block, error) {
	return n.upstream.AllocateBlock(ctx, size, contiguous, node)
}

func (n noClearAllocator) FreeBlock(ctx context.Context, block Block) {
	n.upstream.FreeBlock(ctx, block)
}

func (n noClearAllocator) IsRemappingAvailable() bool {
	return n.upstream.IsRemappingAvailable()
}

func TestPeakInuseTracker(t *testing.T) {
	p := NewPeakInuseTracker()
	p.UpdateBlocks(10)
	p.UpdatePDs(3)
	p.UpdateBlocks(5)
	p.UpdatePDs(7)
	p.UpdateBlocks(20)
	p.UpdatePDs(1)

	assert.Equal(t, uint64(20), p.PeakBlockBytes())
	assert.Equal(t, uint64(7), p.PeakPDs())

	blocks, pds, at := p.PeakBlocksAt()
	assert.Equal(t, uint64(20), blocks)
	assert.Equal(t, uint64(7), pds)
	assert.False(t, at.IsZero())
}
