// Package parallel runs grid-shaped work on a bounded pool of goroutines.
//
// It backs the host accelerator: a kernel launch of grid x block logical
// threads is split into block ranges that run concurrently, the first
// failure cancels the rest and is returned to the caller.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrPanic wraps a panic raised by a work item.
var ErrPanic = errors.New("parallel: work item panicked")

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Maximum number of concurrent goroutines.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// WithWorkers returns cfg limited to n workers. n <= 0 keeps cfg unchanged.
func (cfg Config) WithWorkers(n int) Config {
	if n <= 0 {
		return cfg
	}
	cfg.NumWorkers = n
	cfg.Enabled = n > 1
	return cfg
}

// For calls f(lo, hi) over consecutive chunks covering [0, n).
// Chunks run sequentially when parallelism is disabled or n is small.
// A panic inside f is recovered and returned wrapped in ErrPanic.
func For(ctx context.Context, n int, f func(lo, hi int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		return guard(0, n, f)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return guard(start, end, f)
		})
	}
	return g.Wait()
}

// Grid runs grid blocks of block logical threads. f receives the global
// thread range of one block; the last block may extend past the work size,
// it is up to f to treat those tail threads as no-ops.
func Grid(ctx context.Context, grid, block int, f func(lo, hi int) error, cfg Config) error {
	if grid <= 0 || block <= 0 {
		return nil
	}
	blocksPerChunk := max(1, cfg.MinChunkSize/block)
	chunked := Config{
		Enabled:      cfg.Enabled,
		NumWorkers:   cfg.NumWorkers,
		MinChunkSize: blocksPerChunk,
	}
	return For(ctx, grid, func(lo, hi int) error {
		return f(lo*block, hi*block)
	}, chunked)
}

func guard(lo, hi int, f func(lo, hi int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(ErrPanic, fmt.Sprint(r))
		}
	}()
	return f(lo, hi)
}
