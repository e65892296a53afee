// Package pool bounds shard-level parallelism. Every fan-out in the index
// runs its per-shard tasks through one shared Pool, so the number of shard
// operations executing at once never exceeds the configured worker count no
// matter how many queries and writes are in flight.
//
// Only leaf tasks hold a worker slot. Coordinating goroutines that wait on a
// fan-out hold none, so fan-outs started from inside other fan-outs cannot
// exhaust the pool and deadlock.
package pool

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Pool struct {
	size   int
	sem    *semaphore.Weighted
	active atomic.Int64
	total  atomic.Uint64
}

// New creates a pool with size worker slots. size <= 0 means GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

func (p *Pool) Size() int { return p.size }

// Active returns the number of tasks currently holding a slot.
func (p *Pool) Active() int64 { return p.active.Load() }

// Completed returns the number of tasks run since creation.
func (p *Pool) Completed() uint64 { return p.total.Load() }

// Each runs fn(i) for i in [0, n) in parallel, at most Size at a time across
// the whole pool, and waits for all of them. Every call runs to completion
// even when another fails; the first error is returned.
func (p *Pool) Each(n int, fn func(i int) error) error {
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return p.do(func() error { return fn(i) })
		})
	}
	return g.Wait()
}

func (p *Pool) do(task func() error) error {
	// Acquire with a background context cannot fail.
	_ = p.sem.Acquire(context.Background(), 1)
	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.total.Add(1)
		p.sem.Release(1)
	}()
	return task()
}

// Map runs fn(i) for i in [0, n) through p and returns the results in index
// order.
func Map[T any](p *Pool, n int, fn func(i int) T) []T {
	out := make([]T, n)
	_ = p.Each(n, func(i int) error {
		out[i] = fn(i)
		return nil
	})
	return out
}
