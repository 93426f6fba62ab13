package domain

import (
	"context"

	"go.trai.ch/zerr"
)

// Latch is a single-assignment, many-reader synchronised cell. It is
// written at most once; readers block until the value is set or the
// supplied context is cancelled.
type Latch[T any] struct {
	done  chan struct{}
	value T
}

// NewLatch creates an unset latch.
func NewLatch[T any]() *Latch[T] {
	return &Latch[T]{done: make(chan struct{})}
}

// Set writes the latch's value. Calling Set more than once panics —
// the contract is that every writer sets a latch exactly once.
func (l *Latch[T]) Set(v T) {
	select {
	case <-l.done:
		panic("domain: latch set more than once")
	default:
	}
	l.value = v
	close(l.done)
}

// Wait blocks until the latch is set or ctx is cancelled.
func (l *Latch[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-l.done:
		return l.value, nil
	case <-ctx.Done():
		var zero T
		return zero, zerr.Wrap(ctx.Err(), "latch wait cancelled")
	}
}

// IsSet reports whether the latch has already been written, without
// blocking.
func (l *Latch[T]) IsSet() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
