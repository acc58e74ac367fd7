package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/labthings-core/internal/deque"
	"github.com/nerrad567/labthings-core/internal/infrastructure/logging"
	"github.com/nerrad567/labthings-core/internal/lock"
	"github.com/nerrad567/labthings-core/internal/owner"
)

// DefaultStopTimeout is how long Stop waits for a cooperative exit when no
// timeout is configured.
const DefaultStopTimeout = 5 * time.Second

// Func is an action body. It runs on its own goroutine with a context that
// carries the Action (see FromContext) and is cancelled on forced
// termination.
type Func func(ctx context.Context, input any) (any, error)

// Observer is told about every visible change to an action: start, progress,
// data and the terminal transition. It runs on the goroutine that made the
// change and must not block.
type Observer func(Snapshot)

// Option configures an Action.
type Option func(*Action)

// WithInput records the payload the action was invoked with and passes it to
// the body.
func WithInput(input any) Option {
	return func(a *Action) { a.input = input }
}

// WithHTTPErrorLock enables the error hand-off protocol. The caller holds l
// while it waits for the action; a ProtocolError raised while l is held is
// handed back to the caller through Get instead of being recorded.
func WithHTTPErrorLock(l *lock.StrictLock) Option {
	return func(a *Action) { a.handoff = l }
}

// WithStopTimeout sets the default cooperative stop timeout.
func WithStopTimeout(d time.Duration) Option {
	return func(a *Action) {
		if d > 0 {
			a.stopTimeout = d
		}
	}
}

// WithLogCapacity bounds the captured log.
func WithLogCapacity(n int) Option {
	return func(a *Action) { a.log = deque.New[logging.Record](n) }
}

// WithLogger sets the process logger that captured records are also
// forwarded to.
func WithLogger(l *logging.Logger) Option {
	return func(a *Action) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(a *Action) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// Action is one unit of background work with its own status, progress, data,
// log and result.
//
// Cancellation has two tiers. Stop asks the body to exit by closing the
// channel returned from Stopping; bodies poll it via StopRequested or
// CheckStop. If the body does not exit in time, Terminate cancels the body's
// context and waits for it to return. A body that neither polls the stop
// signal nor blocks on its context cannot be interrupted; Terminate then
// waits until it returns on its own.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Action struct {
	id          string
	name        string
	fn          Func
	input       any
	handoff     *lock.StrictLock
	stopTimeout time.Duration
	logger      *logging.Logger
	log         *deque.Deque[logging.Record]
	observers   []Observer

	stopping  chan struct{}
	stopOnce  sync.Once
	started   chan struct{}
	done      chan struct{}
	doneOnce  sync.Once
	terminate atomic.Bool

	mu          sync.RWMutex
	status      Status
	progress    *int
	data        map[string]any
	output      any
	err         error
	handedOff   bool
	returned    bool
	requestedAt time.Time
	startedAt   time.Time
	completedAt time.Time
	cancel      context.CancelCauseFunc
	capture     *logging.CaptureHandler
}

// New creates a pending Action. It does not run until Start is called.
func New(name string, fn Func, opts ...Option) *Action {
	a := &Action{
		id:          uuid.NewString(),
		name:        name,
		fn:          fn,
		stopTimeout: DefaultStopTimeout,
		logger:      logging.Discard(),
		log:         deque.New[logging.Record](deque.DefaultCapacity),
		stopping:    make(chan struct{}),
		started:     make(chan struct{}),
		done:        make(chan struct{}),
		status:      StatusPending,
		data:        make(map[string]any),
		requestedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the action's process-unique ID.
func (a *Action) ID() string { return a.id }

// Name returns the name the action was spawned under.
func (a *Action) Name() string { return a.name }

// Input returns the invocation payload.
func (a *Action) Input() any { return a.input }

// Status returns the current status.
func (a *Action) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Progress returns the last reported percentage, or nil if none.
func (a *Action) Progress() *int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.progress == nil {
		return nil
	}
	p := *a.progress
	return &p
}

// Data returns a copy of the data map.
func (a *Action) Data() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyMap(a.data)
}

// Output returns the body's return value. It is nil until the action
// completes and for cancelled actions.
func (a *Action) Output() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.output
}

// Err returns the error the action ended with, if any.
func (a *Action) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Log returns the captured log records, oldest first.
func (a *Action) Log() []logging.Record {
	return a.log.Items()
}

// Started is closed once the body has begun running. It is never closed for
// an action cancelled before it started, so wait on Done as well.
func (a *Action) Started() <-chan struct{} { return a.started }

// Done is closed once the action reaches a terminal state.
func (a *Action) Done() <-chan struct{} { return a.done }

// Stopping is closed once a stop has been requested.
func (a *Action) Stopping() <-chan struct{} { return a.stopping }

// Dead reports whether the action has finished by any means.
func (a *Action) Dead() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// StopRequested reports whether Stop or Terminate has been called.
func (a *Action) StopRequested() bool {
	select {
	case <-a.stopping:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (a *Action) String() string {
	return fmt.Sprintf("action %s (%s)", a.name, a.id)
}

// Start runs the body on its own goroutine.
//
// The body's context keeps ctx's values but not its cancellation, so an
// action outlives the request that spawned it. It carries a fresh owner.ID:
// locks held by the spawning caller are not re-entrant from the body.
//
// If a stop was requested before Start, the action is cancelled without
// running the body.
//
// Returns:
//   - error: ErrNotPending if the action was already started or finished
func (a *Action) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.status != StatusPending {
		status := a.status
		a.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotPending, a, status)
	}

	if a.StopRequested() {
		ok := a.transitionLocked(StatusCancelled, nil, ErrCancelled, false)
		a.mu.Unlock()
		if ok {
			a.afterFinish()
		}
		return nil
	}

	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	runCtx = withAction(owner.Fresh(runCtx), a)

	base, capture := a.logger.Capture(func(r logging.Record) { a.log.Append(r) })
	actionLogger := base.With("action_id", a.id, "action", a.name)
	runCtx = withLogger(runCtx, actionLogger)

	a.cancel = cancel
	a.capture = capture
	a.status = StatusRunning
	a.startedAt = time.Now().UTC()
	a.mu.Unlock()

	close(a.started)
	a.notify()

	go a.run(runCtx, actionLogger)
	return nil
}

// run executes the body and records its outcome.
func (a *Action) run(ctx context.Context, logger *logging.Logger) {
	var (
		out any
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("action panicked: %v", r)
			}
		}()
		out, err = a.fn(ctx, a.input)
	}()

	a.complete(ctx, logger, out, err)
}

// complete classifies the body's result and moves to a terminal state.
func (a *Action) complete(ctx context.Context, logger *logging.Logger, out any, err error) {
	a.mu.Lock()
	a.returned = true
	a.mu.Unlock()

	switch {
	case a.terminate.Load():
		cause := context.Cause(ctx)
		if cause == nil {
			cause = ErrTerminated
		}
		logger.Warn("action terminated", "cause", cause)
		a.finish(StatusCancelled, nil, cause, false)

	case err == nil:
		a.finish(StatusCompleted, out, nil, false)

	case errors.Is(err, ErrCancelled), errors.Is(err, ErrTerminated),
		a.StopRequested() && errors.Is(err, context.Canceled):
		logger.Info("action stopped", "reason", err)
		a.finish(StatusCancelled, nil, err, false)

	default:
		if _, ok := AsProtocolError(err); ok {
			a.mu.Lock()
			handedOff := a.handOffLocked(ctx)
			finished := handedOff && a.transitionLocked(StatusCancelled, nil, err, true)
			a.mu.Unlock()
			if handedOff {
				logger.Debug("returning error to waiting caller", "error", err)
				if finished {
					a.afterFinish()
				}
				return
			}
		}
		logger.Error("action failed", "error", err)
		a.finish(StatusError, err.Error(), err, false)
	}
}

// handOffLocked reports whether the spawning caller is still holding the
// hand-off lock, and so will report the error itself. Caller must hold a.mu
// and record the hand-off before releasing it: a caller that releases the
// lock and then reads HandedOff must see either the recorded hand-off or a
// lock this goroutine can still take.
func (a *Action) handOffLocked(ctx context.Context) bool {
	if a.handoff == nil {
		return false
	}
	if a.handoff.TryAcquire(ctx) {
		// The caller stopped waiting; the error is ours to record.
		a.handoff.Release(ctx) //nolint:errcheck // acquired by this goroutine just above
		return false
	}
	return true
}

// finish moves to a terminal state and runs the post-transition steps once.
func (a *Action) finish(status Status, output any, err error, handedOff bool) {
	a.mu.Lock()
	ok := a.transitionLocked(status, output, err, handedOff)
	a.mu.Unlock()
	if ok {
		a.afterFinish()
	}
}

// transitionLocked records the terminal state. Caller must hold a.mu.
func (a *Action) transitionLocked(status Status, output any, err error, handedOff bool) bool {
	if a.status.Terminal() {
		return false
	}
	a.status = status
	a.output = output
	a.err = err
	a.handedOff = handedOff
	if status == StatusCancelled {
		a.output = nil
		a.progress = nil
	}
	a.completedAt = time.Now().UTC()
	return true
}

// afterFinish detaches log capture, releases the body context, notifies
// observers and then wakes waiters, so observers see the terminal state
// before Done fires.
func (a *Action) afterFinish() {
	a.mu.RLock()
	capture, cancel := a.capture, a.cancel
	a.mu.RUnlock()

	if capture != nil {
		capture.Detach()
	}
	if cancel != nil {
		cancel(nil)
	}
	a.notify()
	a.doneOnce.Do(func() { close(a.done) })
}

// Get waits for the action to finish and returns its output.
//
// A non-positive timeout waits until ctx is done. If the action ended by
// handing a ProtocolError back to its caller, that error is returned.
//
// Returns:
//   - any: The recorded output (the error text for failed actions, nil for
//     cancelled ones)
//   - error: ErrTimeout if the action is still running, or the handed-off
//     ProtocolError
func (a *Action) Get(ctx context.Context, timeout time.Duration) (any, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-a.done:
		return a.result()
	case <-ctx.Done():
		if a.Dead() {
			return a.result()
		}
		return nil, fmt.Errorf("%w: %s is %s: %w", ErrTimeout, a, a.Status(), ctx.Err())
	}
}

// HandedOff returns the ProtocolError handed back to the waiting caller, or
// nil. Unlike TryGet it does not wait for Done, so a caller that has just
// released its hand-off lock sees a hand-off decided while it held the lock.
func (a *Action) HandedOff() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.handedOff {
		return a.err
	}
	return nil
}

// TryGet is Get without blocking.
func (a *Action) TryGet() (any, error) {
	if !a.Dead() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTimeout, a, a.Status())
	}
	return a.result()
}

func (a *Action) result() (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.handedOff {
		return nil, a.err
	}
	return a.output, nil
}

// RequestStop closes the stopping channel without waiting.
func (a *Action) RequestStop() {
	a.stopOnce.Do(func() { close(a.stopping) })
}

// Stop asks the body to exit and waits up to timeout for it to do so before
// escalating to Terminate. A negative timeout uses the action's default stop
// timeout; zero escalates immediately unless the action has already finished.
// A pending action is cancelled at once without waiting.
//
// Returns:
//   - bool: true if forced termination was needed
func (a *Action) Stop(timeout time.Duration) bool {
	if timeout < 0 {
		timeout = a.stopTimeout
	}
	a.RequestStop()

	if a.Dead() {
		return false
	}
	if a.cancelIfPending(ErrCancelled) {
		return false
	}
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-a.done:
			return false
		case <-timer.C:
		}
	}

	a.logger.Warn("forcefully terminating action",
		"action_id", a.id,
		"action", a.name,
		"stop_timeout", timeout,
	)
	return a.Terminate(ErrTerminated)
}

// cancelIfPending finishes a never-started action as cancelled. It reports
// false once Start has claimed the action.
func (a *Action) cancelIfPending(cause error) bool {
	a.mu.Lock()
	ok := a.status == StatusPending && a.transitionLocked(StatusCancelled, nil, cause, false)
	a.mu.Unlock()
	if !ok {
		return false
	}
	a.RequestStop()
	a.afterFinish()
	return true
}

// Terminate cancels the body's context with cause and blocks until the body
// has returned. The action ends cancelled with no output or progress.
//
// A pending action is cancelled immediately. Terminating an action that has
// already finished, or whose body has already returned, does nothing.
//
// Returns:
//   - bool: false if there was nothing to terminate
func (a *Action) Terminate(cause error) bool {
	if cause == nil {
		cause = ErrTerminated
	}

	if a.cancelIfPending(cause) {
		return true
	}

	a.mu.Lock()
	if a.status.Terminal() || a.returned {
		a.mu.Unlock()
		return false
	}

	a.terminate.Store(true)
	cancel := a.cancel
	a.mu.Unlock()

	a.RequestStop()
	cancel(cause)
	<-a.done
	return true
}

// updateProgress records a progress percentage, clamped to 0..100.
func (a *Action) updateProgress(percent int) {
	percent = max(0, min(100, percent))

	a.mu.Lock()
	if a.status != StatusRunning {
		a.mu.Unlock()
		return
	}
	a.progress = &percent
	a.mu.Unlock()
	a.notify()
}

// updateData merges values into the data map.
func (a *Action) updateData(values map[string]any) {
	a.mu.Lock()
	if a.status != StatusRunning {
		a.mu.Unlock()
		return
	}
	for k, v := range values {
		a.data[k] = v
	}
	a.mu.Unlock()
	a.notify()
}

func (a *Action) notify() {
	if len(a.observers) == 0 {
		return
	}
	snap := a.Snapshot()
	for _, o := range a.observers {
		o(snap)
	}
}

// Snapshot is a read-only view of an Action at one instant.
type Snapshot struct {
	ID            string           `json:"id"`
	Action        string           `json:"action"`
	Status        Status           `json:"status"`
	Progress      *int             `json:"progress"`
	Data          map[string]any   `json:"data"`
	Log           []logging.Record `json:"log"`
	Input         any              `json:"input,omitempty"`
	Output        any              `json:"output"`
	Exception     string           `json:"exception,omitempty"`
	TimeRequested time.Time        `json:"timeRequested"`
	TimeStarted   *time.Time       `json:"timeStarted,omitempty"`
	TimeCompleted *time.Time       `json:"timeCompleted,omitempty"`
}

// Snapshot returns the action's current state.
func (a *Action) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		ID:            a.id,
		Action:        a.name,
		Status:        a.status,
		Data:          copyMap(a.data),
		Log:           a.log.Items(),
		Input:         a.input,
		Output:        a.output,
		TimeRequested: a.requestedAt,
	}
	if s.Log == nil {
		s.Log = []logging.Record{}
	}
	if a.progress != nil {
		p := *a.progress
		s.Progress = &p
	}
	if a.err != nil {
		s.Exception = a.err.Error()
	}
	if !a.startedAt.IsZero() {
		t := a.startedAt
		s.TimeStarted = &t
	}
	if !a.completedAt.IsZero() {
		t := a.completedAt
		s.TimeCompleted = &t
	}
	return s
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
