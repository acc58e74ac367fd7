package lock

import "errors"

// Sentinel errors for lock operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, lock.ErrAcquireTimeout) {
//	    // lock in use by another owner
//	}
var (
	// ErrAcquireTimeout is returned when a lock could not be acquired before
	// its timeout elapsed or its context was cancelled.
	ErrAcquireTimeout = errors.New("lock: unable to acquire, in use by another owner")

	// ErrNotOwner is returned when a caller releases a lock it does not hold.
	ErrNotOwner = errors.New("lock: release by non-owner")

	// ErrNoOwner is returned when the context carries no owner identity.
	// Attach one with owner.With before using a lock.
	ErrNoOwner = errors.New("lock: context carries no owner")
)
