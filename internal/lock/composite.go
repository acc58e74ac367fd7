package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/labthings-core/internal/timeout"
)

// CompositeLock acquires and releases a fixed set of StrictLocks as one unit.
type CompositeLock struct {
	locks   []*StrictLock
	timeout time.Duration
}

// NewComposite creates a CompositeLock over locks.
//
// Duplicates are removed and the children are ordered by lock ID, which
// fixes a global acquisition order across every composite in the process.
//
// Parameters:
//   - locks: Child locks (nil entries are ignored)
//   - timeout: Total time budget for acquiring every child
func NewComposite(locks []*StrictLock, timeout time.Duration) *CompositeLock {
	seen := make(map[uint64]struct{}, len(locks))
	ordered := make([]*StrictLock, 0, len(locks))
	for _, l := range locks {
		if l == nil {
			continue
		}
		if _, dup := seen[l.id]; dup {
			continue
		}
		seen[l.id] = struct{}{}
		ordered = append(ordered, l)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	return &CompositeLock{locks: ordered, timeout: timeout}
}

// Locks returns the children in acquisition order.
func (c *CompositeLock) Locks() []*StrictLock {
	out := make([]*StrictLock, len(c.locks))
	copy(out, c.locks)
	return out
}

// String implements fmt.Stringer.
func (c *CompositeLock) String() string {
	return fmt.Sprintf("composite of %d locks", len(c.locks))
}

// Acquire takes every child within the composite's default timeout.
func (c *CompositeLock) Acquire(ctx context.Context) error {
	return c.AcquireTimeout(ctx, c.timeout)
}

// AcquireTimeout takes every child, sharing one timeout budget between them.
//
// If any child fails, the children already acquired are released in
// reverse order before ErrAcquireTimeout is returned.
func (c *CompositeLock) AcquireTimeout(ctx context.Context, d time.Duration) error {
	ok, err := c.acquire(ctx, true, d)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s within %v", ErrAcquireTimeout, c, d)
	}
	return nil
}

// TryAcquire attempts every child without blocking.
func (c *CompositeLock) TryAcquire(ctx context.Context) bool {
	ok, err := c.acquire(ctx, false, 0)
	return ok && err == nil
}

func (c *CompositeLock) acquire(ctx context.Context, blocking bool, d time.Duration) (bool, error) {
	tracker := timeout.New(d)
	acquired := make([]*StrictLock, 0, len(c.locks))

	for _, l := range c.locks {
		childBlocking := blocking
		wait := time.Duration(0)
		if blocking && d > 0 {
			// Budget spent: fall back to a single non-blocking attempt
			// rather than treating a zero wait as unbounded.
			wait = tracker.Remaining()
			childBlocking = wait > 0
		}

		ok, err := l.acquire(ctx, childBlocking, wait)
		if err != nil || !ok {
			c.emergencyRelease(ctx, acquired)
			return false, err
		}
		acquired = append(acquired, l)
	}
	return true, nil
}

// emergencyRelease undoes a partial acquisition.
func (c *CompositeLock) emergencyRelease(ctx context.Context, acquired []*StrictLock) {
	for i := len(acquired) - 1; i >= 0; i-- {
		acquired[i].Release(ctx) //nolint:errcheck // acquired by this owner moments ago
	}
}

// Release frees every child.
//
// The caller must hold every child lock; otherwise nothing is released and
// ErrNotOwner is returned.
func (c *CompositeLock) Release(ctx context.Context) error {
	if !c.IsOwned(ctx) {
		return fmt.Errorf("%w: %s", ErrNotOwner, c)
	}
	for i := len(c.locks) - 1; i >= 0; i-- {
		if err := c.locks[i].Release(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Do acquires every child, runs fn and releases them on every exit path.
func (c *CompositeLock) Do(ctx context.Context, fn func() error) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	defer c.Release(ctx) //nolint:errcheck // held by this owner since Acquire succeeded
	return fn()
}

// Locked reports whether any child is held by anyone.
func (c *CompositeLock) Locked() bool {
	for _, l := range c.locks {
		if l.Locked() {
			return true
		}
	}
	return false
}

// IsOwned reports whether the owner carried by ctx holds every child.
func (c *CompositeLock) IsOwned(ctx context.Context) bool {
	for _, l := range c.locks {
		if !l.IsOwned(ctx) {
			return false
		}
	}
	return true
}
