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

package config

import (
	"context"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/pdcache/pkg/common/malloc"
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/logutil"
	"github.com/matrixorigin/pdcache/pkg/mmu/pdcache"
)

const (
	HeapAllocator = "heap"
	MmapAllocator = "mmap"

	defaultLogLevel  = "info"
	defaultLogFormat = "console"
)

// Config is the toml configuration of a pd cache process.
type Config struct {
	Log       logutil.LogConfig `toml:"log"`
	PDCache   pdcache.Options   `toml:"pdcache"`
	Allocator AllocatorConfig   `toml:"allocator"`
	Metrics   MetricsConfig     `toml:"metrics"`
}

// AllocatorConfig selects the block allocator under the cache.
type AllocatorConfig struct {
	// Kind is heap or mmap.
	Kind string `toml:"kind"`
	// Remapping tells the cache whether an IOMMU sits in front of memory.
	Remapping bool `toml:"remapping"`
	// Budget and ContiguousBudget only apply to the heap allocator.
	Budget           uint64 `toml:"budget"`
	ContiguousBudget uint64 `toml:"contiguous-budget"`
	// Unmapped hides heap blocks from the CPU.
	Unmapped bool `toml:"unmapped"`
}

type MetricsConfig struct {
	// Enable counts blocks passing through the allocator.
	Enable bool `toml:"enable"`
	// Addr serves /metrics when set, e.g. "127.0.0.1:7001".
	Addr string `toml:"addr"`
}

// NewConfig returns a config holding every default.
func NewConfig() *Config {
	cfg := &Config{
		PDCache: pdcache.DefaultOptions(),
	}
	cfg.SetDefaultValues()
	return cfg
}

// ParseConfigFromFile loads file over the defaults and validates the result.
func ParseConfigFromFile(file string) (*Config, error) {
	cfg := NewConfig()
	if _, err := toml.DecodeFile(file, cfg); err != nil {
		return nil, moerr.AttachCause(moerr.NewBadConfig(context.TODO(), "failed to parse %s", file), err)
	}
	cfg.SetDefaultValues()
	if err := cfg.Validate(context.TODO()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaultValues fills every unset field.
func (c *Config) SetDefaultValues() {
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
	if c.PDCache.MinSize == 0 {
		c.PDCache.MinSize = pdcache.DefaultMinSize
	}
	if c.PDCache.SlabSize == 0 {
		c.PDCache.SlabSize = pdcache.DefaultSlabSize
	}
	if c.PDCache.PageSize == 0 {
		c.PDCache.PageSize = pdcache.DefaultPageSize
	}
	if c.Allocator.Kind == "" {
		c.Allocator.Kind = HeapAllocator
	}
	c.Allocator.Kind = strings.ToLower(c.Allocator.Kind)
}

func (c *Config) Validate(ctx context.Context) error {
	if err := c.PDCache.Validate(ctx); err != nil {
		return err
	}
	switch c.Allocator.Kind {
	case HeapAllocator:
	case MmapAllocator:
		if c.Allocator.Budget > 0 || c.Allocator.ContiguousBudget > 0 || c.Allocator.Unmapped {
			return moerr.NewBadConfig(ctx, "budget and unmapped only apply to the heap allocator")
		}
	default:
		return moerr.NewBadConfig(ctx, "unknown allocator kind %q", c.Allocator.Kind)
	}
	if c.Allocator.ContiguousBudget > 0 && c.Allocator.Budget > 0 &&
		c.Allocator.ContiguousBudget > c.Allocator.Budget {
		return moerr.NewBadConfig(ctx, "contiguous budget %d exceeds budget %d",
			c.Allocator.ContiguousBudget, c.Allocator.Budget)
	}
	return nil
}

// BuildAllocator creates the configured block allocator, wrapped for
// metrics when enabled.
func (c *Config) BuildAllocator(peak *malloc.PeakInuseTracker) (malloc.BlockAllocator, error) {
	var allocator malloc.BlockAllocator
	switch c.Allocator.Kind {
	case HeapAllocator:
		allocator = malloc.NewHeapAllocator(malloc.HeapAllocatorConfig{
			Remapping:        c.Allocator.Remapping,
			Budget:           c.Allocator.Budget,
			ContiguousBudget: c.Allocator.ContiguousBudget,
			Unmapped:         c.Allocator.Unmapped,
		})
	case MmapAllocator:
		a, err := newMmapAllocator(c.Allocator.Remapping)
		if err != nil {
			return nil, err
		}
		allocator = a
	default:
		return nil, moerr.NewBadConfig(context.TODO(), "unknown allocator kind %q", c.Allocator.Kind)
	}
	if c.Metrics.Enable {
		allocator = malloc.NewMetricsAllocator(allocator, c.Allocator.Kind, peak)
	}
	return allocator, nil
}

// Encode writes c as toml.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
