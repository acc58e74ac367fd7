// Package deque provides a fixed-capacity ring buffer that drops its oldest
// entry when full.
//
// It backs per-action log buffers, per-affordance invocation queues and the
// event stream history. Every appended entry is numbered with a monotonically
// increasing sequence so readers can resume from where they left off even
// after older entries have been dropped.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package deque

import "sync"

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// Deque is a bounded, oldest-dropping sequence.
type Deque[T any] struct {
	mu    sync.RWMutex
	buf   []T
	head  int    // index of the oldest entry
	size  int    // number of live entries
	last  uint64 // sequence number of the newest entry (0 = none yet)
	drops uint64
}

// New creates an empty Deque holding at most capacity entries.
func New[T any](capacity int) *Deque[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Deque[T]{buf: make([]T, capacity)}
}

// Append adds v as the newest entry, dropping the oldest entry if the
// buffer is full. It returns the sequence number assigned to v.
func (d *Deque[T]) Append(v T) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	capacity := len(d.buf)
	if d.size == capacity {
		var zero T
		d.buf[d.head] = zero
		d.head = (d.head + 1) % capacity
		d.size--
		d.drops++
	}
	d.buf[(d.head+d.size)%capacity] = v
	d.size++
	d.last++
	return d.last
}

// Items returns a copy of the live entries, oldest first.
func (d *Deque[T]) Items() []T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.copyFrom(0)
}

// Since returns the entries whose sequence number is greater than after,
// oldest first, together with the sequence number of the newest entry.
// Entries already dropped are skipped silently.
func (d *Deque[T]) Since(after uint64) ([]T, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if after >= d.last {
		return nil, d.last
	}
	first := d.last - uint64(d.size) + 1 // sequence of the oldest live entry
	skip := 0
	if after >= first {
		skip = int(after - first + 1)
	}
	return d.copyFrom(skip), d.last
}

// copyFrom copies live entries starting skip places after the oldest.
// Caller must hold d.mu.
func (d *Deque[T]) copyFrom(skip int) []T {
	n := d.size - skip
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = d.buf[(d.head+skip+i)%len(d.buf)]
	}
	return out
}

// Len returns the number of live entries.
func (d *Deque[T]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.size
}

// Cap returns the maximum number of entries held.
func (d *Deque[T]) Cap() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.buf)
}

// LastSeq returns the sequence number of the newest entry ever appended.
func (d *Deque[T]) LastSeq() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Dropped returns how many entries have been discarded to make room.
func (d *Deque[T]) Dropped() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.drops
}

// Resize changes the capacity, keeping the newest entries that still fit.
func (d *Deque[T]) Resize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	keep := d.copyFrom(0)
	if len(keep) > capacity {
		d.drops += uint64(len(keep) - capacity)
		keep = keep[len(keep)-capacity:]
	}
	d.buf = make([]T, capacity)
	copy(d.buf, keep)
	d.head = 0
	d.size = len(keep)
}

// Clear discards every entry. Sequence numbering continues from where it was.
func (d *Deque[T]) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf = make([]T, len(d.buf))
	d.head = 0
	d.size = 0
}
