package event

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/labthings-core/internal/owner"
)

// DefaultStaleTimeout is how long a signal may stay unconsumed before its
// subscriber is presumed gone.
const DefaultStaleTimeout = 5 * time.Second

// Logger defines the logging interface for the event package.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// subscriber is the per-waiter signal state.
type subscriber struct {
	signalled bool
	ch        chan struct{} // closed while signalled
	lastSet   time.Time
}

// ClientEvent is a fan-out signal with one binary flag per subscriber.
//
// Subscribers are identified by the owner.ID carried in their context. A
// Set raises every lowered flag at once; each subscriber sees at most one
// pending notification regardless of how many Sets happened, and lowers its
// own flag with Clear once it has caught up.
//
// A subscriber whose flag stays raised for longer than the stale timeout
// passed to Set is presumed abandoned and is dropped on that Set.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type ClientEvent struct {
	mu          sync.Mutex
	subscribers map[owner.ID]*subscriber
	logger      Logger
	now         func() time.Time
}

// NewClientEvent creates a ClientEvent with no subscribers.
func NewClientEvent() *ClientEvent {
	return &ClientEvent{
		subscribers: make(map[owner.ID]*subscriber),
		logger:      noopLogger{},
		now:         time.Now,
	}
}

// SetLogger sets the logger.
func (e *ClientEvent) SetLogger(logger Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// Subscribe registers the caller without waiting. It reports false if ctx
// carries no owner.
func (e *ClientEvent) Subscribe(ctx context.Context) bool {
	id, ok := owner.From(ctx)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.register(id)
	return true
}

// register returns the caller's state, creating it if unseen.
// Caller must hold e.mu.
func (e *ClientEvent) register(id owner.ID) *subscriber {
	sub, ok := e.subscribers[id]
	if !ok {
		sub = &subscriber{ch: make(chan struct{}), lastSet: e.now()}
		e.subscribers[id] = sub
	}
	return sub
}

// Wait registers the caller if unseen and blocks until its flag is raised,
// the timeout elapses or ctx is done. A non-positive timeout waits on ctx
// alone.
//
// Returns:
//   - bool: true if the flag was raised before the deadline
func (e *ClientEvent) Wait(ctx context.Context, timeout time.Duration) bool {
	id, ok := owner.From(ctx)
	if !ok {
		return false
	}

	e.mu.Lock()
	sub := e.register(id)
	if sub.signalled {
		e.mu.Unlock()
		return true
	}
	ch := sub.ch
	e.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ch:
		return true
	case <-expired:
		return false
	case <-ctx.Done():
		return false
	}
}

// Set raises every lowered flag and drops subscribers whose flag has been
// raised for at least staleTimeout. A non-positive staleTimeout uses
// DefaultStaleTimeout.
func (e *ClientEvent) Set(staleTimeout time.Duration) {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for id, sub := range e.subscribers {
		if !sub.signalled {
			sub.signalled = true
			sub.lastSet = now
			close(sub.ch)
			continue
		}
		if now.Sub(sub.lastSet) >= staleTimeout {
			delete(e.subscribers, id)
			e.logger.Debug("dropped stale event subscriber", "subscriber", string(id))
		}
	}
}

// Clear lowers the caller's own flag.
//
// Returns:
//   - bool: false if the caller is not a known subscriber
func (e *ClientEvent) Clear(ctx context.Context) bool {
	id, ok := owner.From(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	sub, known := e.subscribers[id]
	if !ok || !known {
		e.logger.Error("clear from unknown event subscriber",
			"subscriber", string(id),
			"subscribers", len(e.subscribers),
		)
		return false
	}
	if sub.signalled {
		sub.signalled = false
		sub.ch = make(chan struct{})
	}
	return true
}

// Unsubscribe removes the caller's state.
func (e *ClientEvent) Unsubscribe(ctx context.Context) {
	id, ok := owner.From(ctx)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subscribers, id)
}

// IsSet reports whether the caller's flag is raised.
func (e *ClientEvent) IsSet(ctx context.Context) bool {
	id, ok := owner.From(ctx)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, known := e.subscribers[id]
	return known && sub.signalled
}

// Len returns the number of tracked subscribers.
func (e *ClientEvent) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subscribers)
}
