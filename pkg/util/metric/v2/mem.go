// Copyright 2023 Matrix Origin
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

package v2

import "github.com/prometheus/client_golang/prometheus"

var (
	pdcacheSlabGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "slab_total",
			Help:      "Number of live slab entries held by pd caches.",
		}, []string{"type"})
	PDCacheBucketSlabGauge = pdcacheSlabGauge.WithLabelValues("bucket")
	PDCacheDirectSlabGauge = pdcacheSlabGauge.WithLabelValues("direct")

	PDCacheInusePDGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "inuse_pd_total",
			Help:      "Number of live page directory sub-allocations.",
		})
)

var (
	pdcacheAllocCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "alloc_total",
			Help:      "Total number of pd allocations by path.",
		}, []string{"type"})
	PDCacheAllocPartialCounter = pdcacheAllocCounter.WithLabelValues("partial")
	PDCacheAllocNewSlabCounter = pdcacheAllocCounter.WithLabelValues("new-slab")
	PDCacheAllocDirectCounter  = pdcacheAllocCounter.WithLabelValues("direct")

	PDCacheFreeCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "free_total",
			Help:      "Total number of pd frees.",
		})

	pdcacheFallbackCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "fallback_total",
			Help:      "Total number of out-of-contiguous-memory fallbacks.",
		}, []string{"type"})
	PDCacheSlabFallbackCounter   = pdcacheFallbackCounter.WithLabelValues("slab-to-direct")
	PDCacheDirectFallbackCounter = pdcacheFallbackCounter.WithLabelValues("direct-noncontiguous")

	PDCacheUnknownHandleCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "unknown_handle_total",
			Help:      "Total number of frees refused because the handle is unknown.",
		})

	PDCacheBlockAllocDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mo",
			Subsystem: "pdcache",
			Name:      "block_alloc_duration_seconds",
			Help:      "Bucketed histogram of time spent in the block allocator.",
			Buckets:   getDurationBuckets(),
		})
)

var (
	memBlockAllocatorBytesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "block_allocator_inuse_bytes",
			Help:      "Bytes held by block allocators.",
		}, []string{"type"})
	memBlockAllocatorObjectsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "block_allocator_inuse_objects",
			Help:      "Blocks held by block allocators.",
		}, []string{"type"})
	memBlockAllocatorAllocateCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "mem",
			Name:      "block_allocator_allocate_total",
			Help:      "Total number of blocks allocated by block allocators.",
		}, []string{"type"})
)

// BlockAllocatorMetrics returns the collectors of one block allocator kind.
func BlockAllocatorMetrics(kind string) (inuseBytes, inuseObjects prometheus.Gauge, allocate prometheus.Counter) {
	return memBlockAllocatorBytesGauge.WithLabelValues(kind),
		memBlockAllocatorObjectsGauge.WithLabelValues(kind),
		memBlockAllocatorAllocateCounter.WithLabelValues(kind)
}
