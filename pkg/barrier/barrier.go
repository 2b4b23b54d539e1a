// Package barrier provides a waitable map from log sequence numbers to
// local observers, used by a base to make publish-then-wait writes
// read-your-writes consistent with the projector.
package barrier

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrClosed is returned to any waiter outstanding when the barrier is
// closed, and to any call made after Close.
var ErrClosed = errors.New("barrier: closed")

type waiter struct {
	target uint64
	done   chan struct{}
	err    error
}

// Barrier lets one goroutine (the projector) announce "sequence N has been
// applied" while arbitrary other goroutines block until their target
// sequence has been reached.
type Barrier struct {
	mu      sync.Mutex
	applied uint64
	waiters map[*waiter]struct{}
	closed  bool
}

// New returns a Barrier with no sequence yet applied.
func New() *Barrier {
	return &Barrier{
		waiters: make(map[*waiter]struct{}),
	}
}

// Wait blocks until the barrier has been released at or past seq, ctx is
// done, or the barrier is closed. It returns the highest sequence applied
// at the time the wait was satisfied.
func (b *Barrier) Wait(ctx context.Context, seq uint64) (uint64, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	if b.applied >= seq {
		applied := b.applied
		b.mu.Unlock()
		return applied, nil
	}

	w := &waiter{target: seq, done: make(chan struct{})}
	b.waiters[w] = struct{}{}
	b.mu.Unlock()

	select {
	case <-w.done:
		return b.appliedSnapshot(), w.err
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.waiters, w)
		b.mu.Unlock()
		return 0, ctx.Err()
	}
}

func (b *Barrier) appliedSnapshot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applied
}

// Release completes every outstanding waiter whose target is <= seq. It is
// safe to call Release with a seq lower than a previous call; applied only
// moves forward.
func (b *Barrier) Release(seq uint64) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if seq > b.applied {
		b.applied = seq
	}

	var ready []*waiter
	for w := range b.waiters {
		if w.target <= b.applied {
			ready = append(ready, w)
			delete(b.waiters, w)
		}
	}
	b.mu.Unlock()

	// Deterministic order is not required by the contract, but sorting
	// keeps behaviour reproducible in tests.
	sort.Slice(ready, func(i, j int) bool { return ready[i].target < ready[j].target })
	for _, w := range ready {
		close(w.done)
	}
}

// Close fails every outstanding waiter with ErrClosed and makes all future
// calls fail the same way.
func (b *Barrier) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	waiters := b.waiters
	b.waiters = make(map[*waiter]struct{})
	b.mu.Unlock()

	for w := range waiters {
		w.err = ErrClosed
		close(w.done)
	}
}
