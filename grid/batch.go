package grid

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of consecutive groups merged by one task.
const DefaultChunkSize = 256

// BatchOption configures MergeAll and MergeEach.
type BatchOption func(*batchConfig)

type batchConfig struct {
	workers   int
	chunkSize int
}

func defaultBatchConfig() batchConfig {
	return batchConfig{
		workers:   runtime.GOMAXPROCS(0),
		chunkSize: DefaultChunkSize,
	}
}

// WithWorkers bounds the number of concurrently running merge tasks.
// Values below 1 keep the default of GOMAXPROCS.
func WithWorkers(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithChunkSize sets how many consecutive groups one task merges.
// Values below 1 keep DefaultChunkSize.
func WithChunkSize(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// GroupResult is the outcome of merging a single group in MergeEach.
// Point is only meaningful when Err is nil.
type GroupResult struct {
	Point MergedGridPoint
	Err   error
}

// mergeAt merges ranges[i] out of store, tagging failures with the output index.
func mergeAt(store *SampleStore, ranges []Range, i int) (MergedGridPoint, error) {
	samples, err := store.Group(ranges[i])
	if err == nil {
		var p MergedGridPoint
		if p, err = MergeGroup(samples); err == nil {
			return p, nil
		}
	}
	return MergedGridPoint{}, &GroupError{Index: i, Range: ranges[i], cause: err}
}

// forEachChunk runs fn over [0, n) split into chunks on a bounded errgroup.
// Chunks cover disjoint index spans, so fn may write its own output slots
// without synchronisation.
func forEachChunk(ctx context.Context, n int, cfg batchConfig, fn func(ctx context.Context, start, end int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)

	for start := 0; start < n; start += cfg.chunkSize {
		if gctx.Err() != nil {
			break
		}
		end := min(start+cfg.chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, start, end)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// MergeAll merges every group in ranges, in parallel, and returns one point
// per range in the same order. An invalid group aborts the batch with a
// *GroupError for the lowest failing index and no points are returned.
func MergeAll(ctx context.Context, store *SampleStore, ranges []Range, opts ...BatchOption) ([]MergedGridPoint, error) {
	cfg := defaultBatchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if store == nil {
		store = &SampleStore{}
	}

	out := make([]MergedGridPoint, len(ranges))
	// One slot per chunk. A chunk stops at its first failure and skips work
	// above the lowest failure seen so far, so the chunk holding the lowest
	// failing index always runs up to it.
	errs := make([]error, (len(ranges)+cfg.chunkSize-1)/cfg.chunkSize)
	var firstBad atomic.Int64
	firstBad.Store(math.MaxInt64)

	err := forEachChunk(ctx, len(ranges), cfg, func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			if int64(i) > firstBad.Load() {
				return nil
			}
			p, err := mergeAt(store, ranges, i)
			if err != nil {
				errs[start/cfg.chunkSize] = err
				for {
					cur := firstBad.Load()
					if int64(i) >= cur || firstBad.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
				return nil
			}
			out[i] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MergeEach merges every group in ranges without aborting on invalid groups.
// Each failed group carries its *GroupError so the caller can decide how to
// fill its slot. A cancelled ctx marks the groups it prevented with ctx.Err().
func MergeEach(ctx context.Context, store *SampleStore, ranges []Range, opts ...BatchOption) []GroupResult {
	cfg := defaultBatchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if store == nil {
		store = &SampleStore{}
	}

	results := make([]GroupResult, len(ranges))
	done := make([]bool, len(ranges))
	_ = forEachChunk(ctx, len(ranges), cfg, func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			p, err := mergeAt(store, ranges, i)
			results[i] = GroupResult{Point: p, Err: err}
			done[i] = true
		}
		return nil
	})

	if err := ctx.Err(); err != nil {
		for i := range results {
			if !done[i] {
				results[i].Err = err
			}
		}
	}
	return results
}
