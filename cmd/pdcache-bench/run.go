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
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matrixorigin/pdcache/pkg/common/malloc"
	"github.com/matrixorigin/pdcache/pkg/common/moerr"
	"github.com/matrixorigin/pdcache/pkg/config"
	"github.com/matrixorigin/pdcache/pkg/logutil"
	"github.com/matrixorigin/pdcache/pkg/mmu/pdcache"
)

type runOptions struct {
	configFile     string
	workers        int
	ops            int
	maxSize        uint64
	seed           int64
	failContiguous int
}

func runCommand() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a random alloc/free workload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configFile, "cfg", "", "toml configuration, defaults are used if empty")
	cmd.Flags().IntVar(&opts.workers, "workers", 8, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 10000, "operations per worker")
	cmd.Flags().Uint64Var(&opts.maxSize, "max-size", 256*malloc.KB, "largest pd size requested")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed, 0 uses the current time")
	cmd.Flags().IntVar(&opts.failContiguous, "fail-contiguous", 0, "fail the first N contiguous block requests")
	return cmd
}

func loadConfig(file string) (*config.Config, error) {
	if file == "" {
		return config.NewConfig(), nil
	}
	return config.ParseConfigFromFile(file)
}

func runBench(ctx context.Context, out io.Writer, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}
	logutil.SetupMOLogger(&cfg.Log)

	if opts.workers <= 0 || opts.ops < 0 {
		return moerr.NewInvalidInput(ctx, "workers must be positive and ops non negative")
	}
	if opts.maxSize < cfg.PDCache.MinSize {
		return moerr.NewInvalidInput(ctx, "max size %d is below the min pd size %d", opts.maxSize, cfg.PDCache.MinSize)
	}
	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}

	runID := uuid.New()
	logger := logutil.GetGlobalLogger().With(zap.String("run", runID.String()))

	peak := malloc.NewPeakInuseTracker()
	allocator, err := cfg.BuildAllocator(peak)
	if err != nil {
		return err
	}
	fault := malloc.NewFaultAllocator(allocator)
	if opts.failContiguous > 0 {
		fault.FailNext(opts.failContiguous, moerr.ErrOOContiguousMem, true)
	}

	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	cache := pdcache.NewCache(cfg.PDCache, fault, pdcache.WithPeakTracker(peak))
	if err := cache.Init(ctx); err != nil {
		return err
	}

	pool, err := ants.NewPool(opts.workers, ants.WithPanicHandler(func(v any) {
		logger.Error("bench worker panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	defer pool.Release()

	logger.Info("bench started",
		zap.Int("workers", opts.workers),
		zap.Int("ops", opts.ops),
		zap.Int64("seed", opts.seed),
		zap.String("allocator", cfg.Allocator.Kind),
	)
	start := time.Now()

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	record := func(err error) {
		errMu.Lock()
		defer errMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	sizes := sizeClasses(cfg.PDCache.MinSize, opts.maxSize)
	for w := 0; w < opts.workers; w++ {
		seed := opts.seed + int64(w)
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := runWorker(ctx, cache, sizes, opts.ops, seed); err != nil {
				record(err)
			}
		}); err != nil {
			wg.Done()
			record(moerr.ConvertGoError(ctx, err))
		}
	}
	wg.Wait()
	elapsed := time.Since(start)

	if err := cache.CheckInvariants(); err != nil {
		record(err)
	}
	stats := cache.Stats()
	printStats(out, runID, stats, peak, fault, elapsed)
	if err := cache.Fini(ctx); err != nil {
		record(err)
	}
	logger.Info("bench finished", zap.Duration("elapsed", elapsed), zap.Error(firstErr))
	return firstErr
}

func sizeClasses(minSize, maxSize uint64) []uint64 {
	var sizes []uint64
	for size := minSize; size <= maxSize; size <<= 1 {
		sizes = append(sizes, size)
	}
	return sizes
}

// runWorker allocates and frees randomly, then frees whatever it still
// holds.
func runWorker(ctx context.Context, cache *pdcache.Cache, sizes []uint64, ops int, seed int64) (err error) {
	rnd := rand.New(rand.NewSource(seed))
	var live []*pdcache.PD
	defer func() {
		if ferr := freeAll(ctx, cache, live); err == nil {
			err = ferr
		}
	}()
	for i := 0; i < ops; i++ {
		if len(live) > 0 && rnd.Intn(2) == 0 {
			j := rnd.Intn(len(live))
			if err := cache.Free(ctx, live[j]); err != nil {
				return err
			}
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		pd, _, err := cache.Alloc(ctx, sizes[rnd.Intn(len(sizes))])
		if err != nil {
			if moerr.IsMoErrCode(err, moerr.ErrOOM) {
				continue
			}
			return err
		}
		live = append(live, pd)
	}
	return nil
}

// freeAll frees every pd and returns the first failure.
func freeAll(ctx context.Context, cache *pdcache.Cache, pds []*pdcache.PD) error {
	var first error
	for _, pd := range pds {
		if err := cache.Free(ctx, pd); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func printStats(
	out io.Writer,
	runID uuid.UUID,
	stats pdcache.Stats,
	peak *malloc.PeakInuseTracker,
	fault *malloc.FaultAllocator,
	elapsed time.Duration,
) {
	requests, contiguous, failed := 0, 0, 0
	for _, r := range fault.History() {
		requests++
		if r.Contiguous {
			contiguous++
		}
		if r.Failed {
			failed++
		}
	}
	fmt.Fprintf(out, "run %s finished in %s\n", runID, elapsed)
	fmt.Fprintf(out, "block requests: %d, contiguous: %d, failed: %d\n", requests, contiguous, failed)
	fmt.Fprintf(out, "peak pds: %d, peak block bytes: %d\n", peak.PeakPDs(), peak.PeakBlockBytes())
	fmt.Fprintf(out, "live slabs: %d, direct: %d, block bytes: %d, pds: %d\n",
		stats.Slabs, stats.Direct, stats.BlockBytes, stats.InUse)
	for _, b := range stats.Buckets {
		if b.Partial+b.Full == 0 {
			continue
		}
		fmt.Fprintf(out, "  bucket %6d: partial %d, full %d, pds %d\n", b.Size, b.Partial, b.Full, b.InUse)
	}
}
