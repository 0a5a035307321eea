/*
Package workers sizes and runs bounded worker pools in containerized
environments.

# Overview

runtime.NumCPU reports the host's CPUs even when a cgroup limit applies,
while GOMAXPROCS follows the container limit on Go 1.19+. Worker counts in
this package are derived from GOMAXPROCS.

# Sizing

	// Thumbnail decoding and resizing, one worker per CPU
	n := workers.ForCPU(8)

	// Directory stats and file reads, two workers per CPU
	n := workers.ForIO(16)

	// Custom profile with an environment override
	n := workers.Profile{Env: "MY_WORKERS", PerCPU: 3}.Size(24)

ForCPU honours THUMBNAIL_WORKERS and ForIO honours INDEX_WORKERS, so an
operator can pin either pool:

	env:
	- name: THUMBNAIL_WORKERS
	  value: "4"

With a 2-CPU limit and no overrides, ForCPU(8) returns 2, ForIO(8) returns 4
and ForMixed(8) returns 3.

# Running

ForEach fans a slice out over n goroutines on top of errgroup. The first
error cancels the remaining work:

	thumbs := make([]Ref, len(paths))
	err := workers.ForEach(ctx, workers.ForCPU(8), paths, func(ctx context.Context, i int, p string) error {
		ref, err := gen.GetOrCreate(ctx, p)
		thumbs[i] = ref
		return err
	})

Always pass a limit; an unbounded pool on a large host will outrun the
SQLite connection pool and the disk.
*/
package workers
