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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/pdcache/pkg/common/malloc"
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/config"
	"github.com/matrixorigin/pdcache/pkg/mmu/pdcache"
	"github.com/matrixorigin/pdcache/pkg/util/invariants"
)

func TestConfigCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"config"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "[pdcache]")
	require.Contains(t, buf.String(), "slab-size = 65536")

	// the printed config loads back
	file := filepath.Join(t.TempDir(), "pdcache.toml")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0644))
	cfg, err := config.ParseConfigFromFile(file)
	require.NoError(t, err)
	require.Equal(t, config.NewConfig(), cfg)
}

func TestRunCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"run", "--workers", "4", "--ops", "500", "--seed", "1", "--fail-contiguous", "3"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "failed: 3")
	require.Contains(t, buf.String(), "pds: 0")
}

func TestRunCommandBadInput(t *testing.T) {
	cmd := rootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--max-size", "16"})
	err := cmd.Execute()
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidInput))
}

func TestRunCommandWithConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pdcache.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[log]
level = "warn"

[pdcache]
slab-size = 16384

[allocator]
kind = "heap"
remapping = true
contiguous-budget = 8192

[metrics]
enable = true
addr = "127.0.0.1:0"
`), 0644))

	var buf bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"run", "--cfg", file, "--workers", "2", "--ops", "300", "--seed", "3"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, buf.String(), "contiguous: 0")
	require.Contains(t, buf.String(), "pds: 0")
}

func TestFreeAllReportsFailure(t *testing.T) {
	if invariants.Enabled {
		t.Skip("unknown handles panic with invariants")
	}
	ctx := context.Background()
	heap := malloc.NewHeapAllocator(malloc.HeapAllocatorConfig{})
	cache := pdcache.NewCache(pdcache.DefaultOptions(), heap)
	require.NoError(t, cache.Init(ctx))

	freed, _, err := cache.Alloc(ctx, 256)
	require.NoError(t, err)
	require.NoError(t, cache.Free(ctx, freed))
	held, _, err := cache.Alloc(ctx, 512)
	require.NoError(t, err)

	err = freeAll(ctx, cache, []*pdcache.PD{freed, held})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrUnknownHandle))
	// the rest is still freed
	require.Equal(t, 0, cache.Stats().InUse)
	require.Equal(t, 0, heap.InuseBlocks())
	require.NoError(t, cache.Fini(ctx))

	require.NoError(t, freeAll(ctx, cache, nil))
}
