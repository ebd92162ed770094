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
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	v2 "github.com/matrixorigin/pdcache/pkg/util/metric/v2"
)

// MetricsAllocator counts blocks passing through upstream and feeds the
// peak tracker.
type MetricsAllocator[U BlockAllocator] struct {
	upstream U
	peak     *PeakInuseTracker

	inuseBytesGauge   prometheus.Gauge
	inuseObjectsGauge prometheus.Gauge
	allocateCounter   prometheus.Counter

	inuseBytes   atomic.Int64
	inuseObjects atomic.Int64
}

func NewMetricsAllocator[U BlockAllocator](
	upstream U,
	kind string,
	peak *PeakInuseTracker,
) *MetricsAllocator[U] {
	inuseBytes, inuseObjects, allocate := v2.BlockAllocatorMetrics(kind)
	return &MetricsAllocator[U]{
		upstream:          upstream,
		peak:              peak,
		inuseBytesGauge:   inuseBytes,
		inuseObjectsGauge: inuseObjects,
		allocateCounter:   allocate,
	}
}

var _ BlockAllocator = new(MetricsAllocator[BlockAllocator])
var _ Clearer = new(MetricsAllocator[BlockAllocator])

func (m *MetricsAllocator[U]) AllocateBlock(ctx context.Context, size uint64, contiguous bool, node *int) (Block, error) {
	block, err := m.upstream.AllocateBlock(ctx, size, contiguous, node)
	if err != nil {
		return nil, err
	}
	n := m.inuseBytes.Add(int64(block.Size()))
	m.inuseObjects.Add(1)
	m.allocateCounter.Inc()
	m.inuseBytesGauge.Add(float64(block.Size()))
	m.inuseObjectsGauge.Inc()
	if m.peak != nil {
		m.peak.UpdateBlocks(uint64(n))
	}
	return block, nil
}

func (m *MetricsAllocator[U]) FreeBlock(ctx context.Context, block Block) {
	size := block.Size()
	m.upstream.FreeBlock(ctx, block)
	m.inuseBytes.Add(-int64(size))
	m.inuseObjects.Add(-1)
	m.inuseBytesGauge.Sub(float64(size))
	m.inuseObjectsGauge.Dec()
}

func (m *MetricsAllocator[U]) IsRemappingAvailable() bool {
	return m.upstream.IsRemappingAvailable()
}

// Clear forwards to upstream if it can clear unmapped blocks.
func (m *MetricsAllocator[U]) Clear(ctx context.Context, block Block, offset, size uint64) {
	if c, ok := any(m.upstream).(Clearer); ok {
		c.Clear(ctx, block, offset, size)
	}
}

func (m *MetricsAllocator[U]) InuseBytes() uint64 {
	return uint64(m.inuseBytes.Load())
}

func (m *MetricsAllocator[U]) InuseObjects() int64 {
	return m.inuseObjects.Load()
}
