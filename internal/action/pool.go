package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/labthings-core/internal/deque"
	"github.com/nerrad567/labthings-core/internal/infrastructure/logging"
)

// DefaultMaxLen is the pool capacity used when none is configured.
const DefaultMaxLen = 100

// Config holds pool limits and the defaults applied to spawned actions.
type Config struct {
	// MaxLen bounds how many actions the pool retains.
	MaxLen int

	// StopTimeout is the default cooperative stop timeout for spawned actions.
	StopTimeout time.Duration

	// LogCapacity bounds each spawned action's captured log.
	LogCapacity int
}

// Pool is a bounded, insertion-ordered registry of Actions.
//
// When full, adding an action evicts the oldest finished one. Running
// actions are never evicted: if every retained action is still running the
// add fails with ErrPoolFull.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Pool struct {
	cfg    Config
	logger *logging.Logger

	mu        sync.RWMutex
	order     []*Action
	byID      map[string]*Action
	observers []Observer
}

// NewPool creates an empty Pool. Zero config fields take package defaults.
func NewPool(cfg Config, logger *logging.Logger) *Pool {
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultMaxLen
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.LogCapacity <= 0 {
		cfg.LogCapacity = deque.DefaultCapacity
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		byID:   make(map[string]*Action),
	}
}

// Config returns the pool configuration after defaults were applied.
func (p *Pool) Config() Config {
	return p.cfg
}

// AddObserver registers o for every action spawned from now on.
func (p *Pool) AddObserver(o Observer) {
	if o == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Add inserts a into the pool, evicting the oldest finished action if the
// pool is full. Adding an action that is already present does nothing.
//
// Returns:
//   - error: ErrPoolFull if the pool is full of running actions
func (p *Pool) Add(a *Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byID[a.id]; ok {
		return nil
	}
	if len(p.order) >= p.cfg.MaxLen {
		if !p.evictLocked() {
			return fmt.Errorf("%w: %d of %d running", ErrPoolFull, len(p.order), p.cfg.MaxLen)
		}
	}
	p.order = append(p.order, a)
	p.byID[a.id] = a
	return nil
}

// evictLocked drops the oldest terminal action. Caller must hold p.mu.
func (p *Pool) evictLocked() bool {
	for i, a := range p.order {
		if !a.Dead() {
			continue
		}
		p.removeLocked(i)
		p.logger.Debug("evicted finished action", "action_id", a.id, "action", a.name)
		return true
	}
	return false
}

// removeLocked drops the entry at index i. Caller must hold p.mu.
func (p *Pool) removeLocked(i int) {
	a := p.order[i]
	p.order = append(p.order[:i], p.order[i+1:]...)
	delete(p.byID, a.id)
}

// Start adds a to the pool and starts it.
func (p *Pool) Start(ctx context.Context, a *Action) error {
	if err := p.Add(a); err != nil {
		return err
	}
	return a.Start(ctx)
}

// Spawn creates an action running fn, adds it to the pool and starts it.
//
// Pool defaults (stop timeout, log capacity, logger, observers) are applied
// first so opts can override them.
//
// Returns:
//   - *Action: The running action
//   - error: ErrPoolFull if there is no room
func (p *Pool) Spawn(ctx context.Context, name string, fn Func, opts ...Option) (*Action, error) {
	p.mu.RLock()
	defaults := []Option{
		WithStopTimeout(p.cfg.StopTimeout),
		WithLogCapacity(p.cfg.LogCapacity),
		WithLogger(p.logger),
	}
	for _, o := range p.observers {
		defaults = append(defaults, WithObserver(o))
	}
	p.mu.RUnlock()

	a := New(name, fn, append(defaults, opts...)...)
	if err := p.Start(ctx, a); err != nil {
		return nil, err
	}

	p.logger.Debug("spawned action", "action_id", a.id, "action", name)
	return a, nil
}

// Get returns the action with id.
func (p *Pool) Get(id string) (*Action, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.byID[id]
	return a, ok
}

// Len returns the number of retained actions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Tasks returns the retained actions in insertion order.
func (p *Pool) Tasks() []*Action {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Action, len(p.order))
	copy(out, p.order)
	return out
}

// ToMap returns the retained actions keyed by ID.
func (p *Pool) ToMap() map[string]*Action {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]*Action, len(p.byID))
	for id, a := range p.byID {
		out[id] = a
	}
	return out
}

// States returns a snapshot of every retained action keyed by ID.
func (p *Pool) States() map[string]Snapshot {
	tasks := p.Tasks()
	out := make(map[string]Snapshot, len(tasks))
	for _, a := range tasks {
		out[a.id] = a.Snapshot()
	}
	return out
}

// DiscardID removes the action with id if it has finished.
//
// Returns:
//   - bool: true if an action was removed
func (p *Pool) DiscardID(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.order {
		if a.id == id {
			if !a.Dead() {
				return false
			}
			p.removeLocked(i)
			return true
		}
	}
	return false
}

// Cleanup removes every finished action and returns how many were removed.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.order[:0]
	removed := 0
	for _, a := range p.order {
		if a.Dead() {
			delete(p.byID, a.id)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	// Clear the tail so evicted actions can be collected.
	for i := len(kept); i < len(p.order); i++ {
		p.order[i] = nil
	}
	p.order = kept
	return removed
}

// Join blocks until every action retained at the time of the call has
// finished, or ctx is done.
func (p *Pool) Join(ctx context.Context) error {
	for _, a := range p.Tasks() {
		select {
		case <-a.Done():
		case <-ctx.Done():
			return fmt.Errorf("joining action pool: %w", ctx.Err())
		}
	}
	return nil
}

// Kill stops every unfinished action in parallel, each with timeout (see
// Action.Stop), and waits for them all.
//
// Returns:
//   - int: How many actions needed forced termination
func (p *Pool) Kill(timeout time.Duration) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		forced int
	)
	for _, a := range p.Tasks() {
		if a.Dead() {
			continue
		}
		wg.Add(1)
		go func(a *Action) {
			defer wg.Done()
			if a.Stop(timeout) {
				mu.Lock()
				forced++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	if forced > 0 {
		p.logger.Warn("forcefully terminated actions", "count", forced)
	}
	return forced
}
