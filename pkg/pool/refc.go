package pool

import "sync/atomic"

// RefCounter keeps an object alive while background jobs still
// reference it. Jobs increment it when enqueued and decrement it on
// completion; owners poll Zero before final destruction.
type RefCounter struct {
	n atomic.Int64
}

// Increment adds one reference.
func (rc *RefCounter) Increment() { rc.n.Add(1) }

// Decrement releases one reference.
func (rc *RefCounter) Decrement() { rc.n.Add(-1) }

// Zero reports whether no references remain.
func (rc *RefCounter) Zero() bool { return rc.n.Load() == 0 }

// Count returns the current reference count.
func (rc *RefCounter) Count() int64 { return rc.n.Load() }
