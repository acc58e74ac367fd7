// Package lock provides timeout-bound, re-entrant mutual exclusion.
//
// # StrictLock
//
// A StrictLock behaves like a re-entrant mutex whose blocking acquisitions
// always have a deadline. Failing to acquire within the timeout is an error
// (ErrAcquireTimeout), not a silent false. Ownership is tracked by the
// owner.ID carried in the caller's context, so the same logical caller may
// re-enter the lock and only that caller may release it.
//
//	ctx = owner.With(ctx)
//	l := lock.New("stage", time.Second)
//	if err := l.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer l.Release(ctx)
//
// Scoped use guarantees release on every exit path, including panics:
//
//	err := l.Do(ctx, func() error { return moveStage() })
//
// # CompositeLock
//
// A CompositeLock acquires a fixed set of StrictLocks as one unit. Children
// are always acquired in ascending lock-ID order, so two composites over
// overlapping sets cannot deadlock by acquiring in opposite orders. If any
// child cannot be acquired, every child already taken is released before
// the error is returned.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package lock
