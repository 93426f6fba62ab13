// Package governor bounds the number of concurrently running external
// toolchain invocations across a build run and tracks when every
// spawned worker has finished.
package governor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Governor owns the job-slot semaphore, the package-registration
// mutex, and the active-worker count for a single build run.
type Governor struct {
	jobs       *semaphore.Weighted
	registerMu sync.Mutex

	active int64
	once   sync.Once
	done   chan struct{}
}

// New creates a Governor that admits at most maxJobs concurrent
// external invocations.
func New(maxJobs int64) *Governor {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Governor{
		jobs: semaphore.NewWeighted(maxJobs),
		done: make(chan struct{}),
	}
}

// RunExternal acquires one job slot, runs fn, and releases the slot.
// Acquisition respects ctx cancellation.
func (g *Governor) RunExternal(ctx context.Context, fn func() error) error {
	if err := g.jobs.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.jobs.Release(1)
	return fn()
}

// WithRegister serialises fn against every other registration call.
// Package database mutation (ghc-pkg register) is not safe for
// concurrent invocation against the same database, independent of the
// job-slot limit.
func (g *Governor) WithRegister(fn func() error) error {
	g.registerMu.Lock()
	defer g.registerMu.Unlock()
	return fn()
}

// Enter records that one more worker is active. Call once per worker
// goroutine before it starts its state machine.
func (g *Governor) Enter() {
	atomic.AddInt64(&g.active, 1)
}

// Exit records that a worker has finished. Once every entered worker
// has exited, Done's channel closes exactly once.
func (g *Governor) Exit() {
	if atomic.AddInt64(&g.active, -1) == 0 {
		g.once.Do(func() { close(g.done) })
	}
}

// Done returns a channel that closes once every worker that called
// Enter has called Exit and the active count has returned to zero.
func (g *Governor) Done() <-chan struct{} {
	return g.done
}

// Active returns the current number of workers that have entered but
// not yet exited.
func (g *Governor) Active() int64 {
	return atomic.LoadInt64(&g.active)
}
