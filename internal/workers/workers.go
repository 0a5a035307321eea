package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Profile describes how a pool scales with the CPUs available to the
// process.
type Profile struct {
	// Env names a variable that pins the size, e.g. THUMBNAIL_WORKERS.
	Env string
	// PerCPU is the number of workers per GOMAXPROCS.
	PerCPU float64
}

var (
	// CPU suits decode and resize work.
	CPU = Profile{Env: "THUMBNAIL_WORKERS", PerCPU: 1}
	// IO suits stat and directory reads.
	IO = Profile{Env: "INDEX_WORKERS", PerCPU: 2}
	// Mixed suits per-file indexing, which hashes and decodes.
	Mixed = Profile{PerCPU: 1.5}
)

// Size returns the pool size for p, capped at limit when limit > 0. A
// positive integer in p.Env wins over the GOMAXPROCS-derived size.
func (p Profile) Size(limit int) int {
	n := 0
	if p.Env != "" {
		if v, err := strconv.Atoi(os.Getenv(p.Env)); err == nil && v > 0 {
			n = v
		}
	}
	if n == 0 {
		// GOMAXPROCS follows cgroup CPU limits.
		n = max(int(float64(runtime.GOMAXPROCS(0))*p.PerCPU), 1)
	}
	if limit > 0 {
		n = min(n, limit)
	}
	return n
}

// Count sizes an ad hoc profile.
func Count(envVar string, multiplier float64, limit int) int {
	return Profile{Env: envVar, PerCPU: multiplier}.Size(limit)
}

// ForCPU sizes a CPU pool.
func ForCPU(limit int) int { return CPU.Size(limit) }

// ForIO sizes an IO pool.
func ForIO(limit int) int { return IO.Size(limit) }

// ForMixed sizes a Mixed pool.
func ForMixed(limit int) int { return Mixed.Size(limit) }

// ForEach calls fn for every index of items on at most n goroutines.
// The first error cancels the context passed to the remaining calls and is
// returned once all started calls have finished. Results are written by fn
// into caller-owned, index-addressed storage so ordering is preserved.
func ForEach[T any](ctx context.Context, n int, items []T, fn func(ctx context.Context, i int, item T) error) error {
	if n < 1 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i, item)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
