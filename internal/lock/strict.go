package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/labthings-core/internal/owner"
)

// lockIDs hands out process-unique lock IDs used for composite ordering.
var lockIDs atomic.Uint64

// StrictLock is a re-entrant mutex with a mandatory acquisition timeout.
type StrictLock struct {
	id      uint64
	name    string
	timeout time.Duration

	mu    sync.Mutex
	owner owner.ID
	count int
	// freed is closed and replaced each time the count drops to zero.
	freed chan struct{}
}

// New creates a StrictLock.
//
// Parameters:
//   - name: Human-readable name used in errors and logs
//   - timeout: Default acquisition timeout. Zero or negative waits until the
//     caller's context is done.
func New(name string, timeout time.Duration) *StrictLock {
	return &StrictLock{
		id:      lockIDs.Add(1),
		name:    name,
		timeout: timeout,
		freed:   make(chan struct{}),
	}
}

// ID returns the process-unique lock ID.
func (l *StrictLock) ID() uint64 { return l.id }

// Name returns the lock name.
func (l *StrictLock) Name() string { return l.name }

// Timeout returns the default acquisition timeout.
func (l *StrictLock) Timeout() time.Duration { return l.timeout }

// String implements fmt.Stringer.
func (l *StrictLock) String() string {
	if l.name == "" {
		return fmt.Sprintf("lock#%d", l.id)
	}
	return fmt.Sprintf("lock %q", l.name)
}

// Acquire blocks for up to the lock's default timeout.
//
// Returns:
//   - error: nil once held, ErrNoOwner if ctx has no owner,
//     ErrAcquireTimeout if the timeout elapsed or ctx was cancelled
func (l *StrictLock) Acquire(ctx context.Context) error {
	return l.AcquireTimeout(ctx, l.timeout)
}

// AcquireTimeout blocks for up to timeout. It fails exactly like Acquire.
func (l *StrictLock) AcquireTimeout(ctx context.Context, timeout time.Duration) error {
	ok, err := l.acquire(ctx, true, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s within %v", ErrAcquireTimeout, l, timeout)
	}
	return nil
}

// TryAcquire makes a single non-blocking attempt and reports whether the
// lock is now held by the caller. It never returns an error: a missing owner
// simply reports false.
func (l *StrictLock) TryAcquire(ctx context.Context) bool {
	ok, err := l.acquire(ctx, false, 0)
	return ok && err == nil
}

// acquire is the non-strict core shared by every acquisition path.
// It returns (false, nil) when the lock is busy and the wait budget ran out.
// Ownership is checked and recorded in one critical section, so Locked and
// IsOwned never observe a held lock without an owner.
func (l *StrictLock) acquire(ctx context.Context, blocking bool, timeout time.Duration) (bool, error) {
	id, ok := owner.From(ctx)
	if !ok {
		return false, ErrNoOwner
	}

	var expired <-chan time.Time
	for {
		l.mu.Lock()
		switch {
		case l.count == 0:
			l.owner = id
			l.count = 1
			l.mu.Unlock()
			return true, nil
		case l.owner == id:
			l.count++
			l.mu.Unlock()
			return true, nil
		}
		freed := l.freed
		l.mu.Unlock()

		if !blocking {
			return false, nil
		}
		if expired == nil && timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}

		select {
		case <-freed:
			// Another waiter may win the race; loop and check again.
		case <-expired:
			return false, nil
		case <-ctx.Done():
			return false, fmt.Errorf("%w: %s: %w", ErrAcquireTimeout, l, ctx.Err())
		}
	}
}

// Release undoes one acquisition. The lock is freed when the recursion
// count reaches zero.
//
// Returns:
//   - error: ErrNoOwner if ctx has no owner, ErrNotOwner if the caller does
//     not hold the lock
func (l *StrictLock) Release(ctx context.Context) error {
	id, ok := owner.From(ctx)
	if !ok {
		return ErrNoOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 || l.owner != id {
		return fmt.Errorf("%w: %s", ErrNotOwner, l)
	}
	l.count--
	if l.count == 0 {
		l.owner = ""
		close(l.freed)
		l.freed = make(chan struct{})
	}
	return nil
}

// Do acquires the lock, runs fn and releases the lock on every exit path.
func (l *StrictLock) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release(ctx) //nolint:errcheck // held by this owner since Acquire succeeded
	return fn()
}

// Locked reports whether any owner holds the lock.
func (l *StrictLock) Locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}

// IsOwned reports whether the owner carried by ctx holds the lock.
func (l *StrictLock) IsOwned(ctx context.Context) bool {
	id, ok := owner.From(ctx)
	if !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0 && l.owner == id
}
