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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/pdcache/pkg/common/malloc"
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/mmu/pdcache"
)

func writeConfig(t *testing.T, content string) string {
	file := filepath.Join(t.TempDir(), "pdcache.toml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestDefaultConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, pdcache.DefaultOptions(), cfg.PDCache)
	assert.Equal(t, HeapAllocator, cfg.Allocator.Kind)
	assert.False(t, cfg.Metrics.Enable)
	require.NoError(t, cfg.Validate(context.Background()))
}

func TestParseConfigFromFile(t *testing.T) {
	file := writeConfig(t, `
[log]
level = "debug"
format = "json"

[pdcache]
slab-size = 4096
sanitize-on-free = false
node = 1

[allocator]
kind = "HEAP"
remapping = true
budget = 1048576
contiguous-budget = 65536

[metrics]
enable = true
`)
	cfg, err := ParseConfigFromFile(file)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, uint64(pdcache.DefaultMinSize), cfg.PDCache.MinSize)
	assert.Equal(t, uint64(4096), cfg.PDCache.SlabSize)
	assert.Equal(t, uint64(pdcache.DefaultPageSize), cfg.PDCache.PageSize)
	assert.False(t, cfg.PDCache.SanitizeOnFree)
	require.NotNil(t, cfg.PDCache.Node)
	assert.Equal(t, 1, *cfg.PDCache.Node)
	assert.Equal(t, HeapAllocator, cfg.Allocator.Kind)
	assert.True(t, cfg.Allocator.Remapping)
	assert.Equal(t, uint64(1<<20), cfg.Allocator.Budget)
	assert.True(t, cfg.Metrics.Enable)

	allocator, err := cfg.BuildAllocator(malloc.NewPeakInuseTracker())
	require.NoError(t, err)
	_, ok := allocator.(*malloc.MetricsAllocator[malloc.BlockAllocator])
	assert.True(t, ok)
	assert.True(t, allocator.IsRemappingAvailable())
}

func TestParseBadConfig(t *testing.T) {
	cases := []string{
		"[pdcache\nmin-size = 1",
		"[pdcache]\nmin-size = 100",
		"[pdcache]\nmin-size = 8192\nslab-size = 4096",
		"[allocator]\nkind = \"gpu\"",
		"[allocator]\nkind = \"mmap\"\nbudget = 10",
		"[allocator]\nbudget = 10\ncontiguous-budget = 20",
	}
	for _, c := range cases {
		_, err := ParseConfigFromFile(writeConfig(t, c))
		assert.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig), c)
	}

	_, err := ParseConfigFromFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, moerr.IsMoErrCode(err, moerr.ErrBadConfig))
}

func TestBuildAllocator(t *testing.T) {
	cfg := NewConfig()
	allocator, err := cfg.BuildAllocator(nil)
	require.NoError(t, err)
	_, ok := allocator.(*malloc.HeapAllocator)
	assert.True(t, ok)

	c := pdcache.NewCache(cfg.PDCache, allocator)
	ctx := context.Background()
	require.NoError(t, c.Init(ctx))
	pd, _, err := c.Alloc(ctx, 256)
	require.NoError(t, err)
	require.NoError(t, c.Free(ctx, pd))
	require.NoError(t, c.Fini(ctx))
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewConfig().Encode(&buf))

	var decoded Config
	_, err := toml.Decode(buf.String(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, *NewConfig(), decoded)
}
