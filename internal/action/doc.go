// Package action runs long-lived units of work in the background and tracks
// their status, progress, data, log and result.
//
// An Action moves through pending, running and one of the terminal states
// completed, cancelled or error. Its body receives a context from which it
// reports progress and data and checks whether it has been asked to stop:
//
//	func average(ctx context.Context, input any) (any, error) {
//	    log := action.Logger(ctx)
//	    for i := 0; i < 10; i++ {
//	        if err := action.CheckStop(ctx); err != nil {
//	            return nil, err
//	        }
//	        log.Info("reading frame", "frame", i)
//	        action.UpdateProgress(ctx, (i+1)*10)
//	    }
//	    return 42.0, nil
//	}
//
//	a, err := pool.Spawn(ctx, "average", average)
//
// # Error hand-off
//
// A caller that wants to answer an HTTP request synchronously when the body
// fails fast holds a lock.StrictLock while it waits on Get, and passes that
// lock with WithHTTPErrorLock. If the body returns a ProtocolError (see
// Abort) while the lock is still held, the action ends cancelled and Get
// returns the error to the caller. Once the caller has stopped waiting the
// same error is recorded on the action as an ordinary failure.
//
// # Pool
//
// Pool is a bounded registry of actions. It never evicts a running action:
// when full of running actions, Spawn fails with ErrPoolFull.
package action
